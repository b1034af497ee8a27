package ssdp

import (
	_ "embed"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

//go:embed ssdp.yaml
var defaultConfigYAML []byte

const envConfigFile = "SSDP_CONFIG"
const envPrefix = "SSDP_CONFIG__"

// Config is the small set of options this peer takes at construction.
type Config struct {
	// Interface names/binds the multicast socket to one NIC; empty means
	// the default route / all interfaces.
	Interface string `yaml:"interface"`
	// TestMode skips the socket bind and ticker start, so unit tests can
	// exercise dispatch purely in memory.
	TestMode bool `yaml:"test_mode"`
	// ServerID is the value advertised in the SSDP SERVER header.
	ServerID string `yaml:"server_id"`
	// HTTPServerID is passed through to the external description-document
	// server; the SSDP core never uses it itself.
	HTTPServerID string `yaml:"http_server_id"`
}

// LoadConfig loads configuration from, in priority order: the provided
// path, the SSDP_CONFIG environment variable, ./.ssdp.yml, $HOME/.ssdp.yml,
// falling back to the built-in default when none of those can be read.
// Environment variables prefixed SSDP_CONFIG__ (e.g. SSDP_CONFIG__SERVER_ID)
// override individual fields after the file is loaded.
//
// A missing file at any candidate path is not fatal — LoadConfig falls
// through to the next candidate and logs a warning. An unparsable YAML
// file, once one is found, is fatal: LoadConfig panics, since a config
// file the operator can read but not parse is a condition somebody needs
// to notice immediately.
func LoadConfig(path string) *Config {
	data, _ := firstReadable(path)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Panicf("ssdp: invalid config YAML: %v", err)
	}
	applyEnvOverrides(cfg)
	return cfg
}

func firstReadable(explicit string) ([]byte, string) {
	candidates := []string{explicit, os.Getenv(envConfigFile)}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, ".ssdp.yml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".ssdp.yml"))
	}

	for _, p := range candidates {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			log.Warnf("ssdp: cannot read config %s, trying next candidate", p)
			continue
		}
		log.Infof("ssdp: loaded config from %s", p)
		return data, p
	}

	log.Infof("ssdp: using built-in default config")
	return defaultConfigYAML, ""
}

// applyEnvOverrides mutates cfg in place from SSDP_CONFIG__* variables.
// A variable set to the empty string is ignored, like an empty SSDP_CONFIG.
func applyEnvOverrides(cfg *Config) {
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || !strings.HasPrefix(name, envPrefix) {
			continue
		}
		field := strings.ToLower(strings.TrimPrefix(name, envPrefix))
		switch field {
		case "interface":
			cfg.Interface = value
		case "test_mode":
			if b, err := strconv.ParseBool(value); err == nil {
				cfg.TestMode = b
			}
		case "server_id":
			cfg.ServerID = value
		case "http_server_id":
			cfg.HTTPServerID = value
		}
	}
}
