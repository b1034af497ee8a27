package ssdp

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"gargoton.petite-maison-orange.fr/eric/pmossdp/fileutils"
)

// PeerUUID loads this host's persisted SSDP peer identity from the OS
// config directory, generating and saving a new one on first run. The
// result has the form "uuid:<id>"; cmd/ssdpd uses it as the prefix of its
// root device's USN. Engine.Register does not fill in a missing USN.
func PeerUUID() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "pmossdp", "peer-uuid.txt")

	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		return string(data), nil
	}

	id := "uuid:" + uuid.New().String()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Warnf("ssdp: cannot create config dir for peer uuid: %v", err)
		return id, nil
	}
	if !fileutils.IsWriteable(filepath.Dir(path)) {
		log.Warnf("ssdp: %s is not writeable, peer uuid will not persist across runs", filepath.Dir(path))
		return id, nil
	}
	if err := os.WriteFile(path, []byte(id), 0o600); err != nil {
		log.Warnf("ssdp: cannot persist peer uuid: %v", err)
	}
	return id, nil
}
