package ssdp_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gargoton.petite-maison-orange.fr/eric/pmossdp/ssdp"
)

func TestPeerUUIDPersistsAcrossCalls(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	first, err := ssdp.PeerUUID()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "uuid:"))

	second, err := ssdp.PeerUUID()
	require.NoError(t, err)
	assert.Equal(t, first, second, "a second call must reuse the persisted identity, not mint a new one")
}

func TestPeerUUIDDiffersAcrossConfigDirs(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	a, err := ssdp.PeerUUID()
	require.NoError(t, err)

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	b, err := ssdp.PeerUUID()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}
