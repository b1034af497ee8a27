package ssdp

import (
	"bytes"

	"github.com/beevik/etree"
)

// DescriptionStandIn builds a minimal UPnP description document for usn/st,
// with server as its friendlyName. It exists only so tests and examples have something real
// for LOCATION to point at — the actual description-document server,
// device model and SOAP action dispatch are external collaborators this
// package never implements (see the core's Non-goals).
func DescriptionStandIn(usn, st, server string) (string, error) {
	doc := etree.NewDocument()
	root := doc.CreateElement("root")
	root.CreateAttr("xmlns", "urn:schemas-upnp-org:device-1-0")

	spec := root.CreateElement("specVersion")
	spec.CreateElement("major").SetText("1")
	spec.CreateElement("minor").SetText("0")

	device := root.CreateElement("device")
	device.CreateElement("deviceType").SetText(st)
	device.CreateElement("UDN").SetText(usn)
	device.CreateElement("friendlyName").SetText(server)

	doc.Indent(2)

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return "", err
	}
	return `<?xml version="1.0" encoding="utf-8"?>` + "\n" + buf.String(), nil
}
