package ssdp_test

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gargoton.petite-maison-orange.fr/eric/pmossdp/ssdp"
)

func TestDescriptionStandInProducesValidXML(t *testing.T) {
	xml, err := ssdp.DescriptionStandIn("uuid:abc::upnp:rootdevice", ssdp.RootDeviceST, "test-server/1")
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(xml))

	device := doc.FindElement("//root/device")
	require.NotNil(t, device)
	assert.Equal(t, ssdp.RootDeviceST, device.SelectElement("deviceType").Text())
	assert.Equal(t, "uuid:abc::upnp:rootdevice", device.SelectElement("UDN").Text())
	assert.Equal(t, "test-server/1", device.SelectElement("friendlyName").Text())
}
