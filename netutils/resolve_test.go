package netutils_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gargoton.petite-maison-orange.fr/eric/pmossdp/netutils"
)

func TestAddrsForInterfaceUnknownNameErrors(t *testing.T) {
	_, err := netutils.AddrsForInterface("definitely-not-a-real-interface-0")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no such interface")
}
