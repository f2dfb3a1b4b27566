// Package config loads a holonet conductor's configuration: which DNAs to
// run, where each instance stores its chain/DHT/state, and how its
// GossipBus/mDNS networking is configured. Loading is YAML-first with an
// environment-variable overlay, rather than viper's config-merge model —
// a conductor config is a single small file, not a multi-source merge.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"holonet/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// InstanceEntry names one DNA this conductor loads at startup.
type InstanceEntry struct {
	Handle     string `yaml:"handle" json:"handle"`
	DnaPath    string `yaml:"dna_path" json:"dna_path"`
	StorageDir string `yaml:"storage_dir" json:"storage_dir"`
}

// Config is the unified configuration for a holonet conductor process.
type Config struct {
	Network struct {
		NodeID         string   `yaml:"node_id" json:"node_id"`
		ListenAddr     string   `yaml:"listen_addr" json:"listen_addr"`
		DiscoveryTag   string   `yaml:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers []string `yaml:"bootstrap_peers" json:"bootstrap_peers"`
	} `yaml:"network" json:"network"`

	Instances []InstanceEntry `yaml:"instances" json:"instances"`

	API struct {
		Enabled bool   `yaml:"enabled" json:"enabled"`
		Addr    string `yaml:"addr" json:"addr"`
	} `yaml:"api" json:"api"`

	Logging struct {
		Level string `yaml:"level" json:"level"`
		File  string `yaml:"file" json:"file"`
	} `yaml:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads the named YAML config file (defaulting config/default.yaml
// when path is empty), applies any .env overlay found in the working
// directory, then lets real environment variables override individual
// fields via the HOLONET_* prefix. The resulting configuration is
// stored in AppConfig and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config/default.yaml"
	}

	_ = godotenv.Load() // optional; a missing .env is not an error

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.Wrap(err, "read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, utils.Wrap(err, "parse config file")
	}

	applyEnvOverlay(&cfg)

	AppConfig = cfg
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the HOLONET_CONFIG environment
// variable to locate the file, falling back to Load's default path.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("HOLONET_CONFIG", ""))
}

// applyEnvOverlay lets a handful of commonly-overridden fields (node ID,
// listen address, API address, log level) be set without editing the
// YAML file.
func applyEnvOverlay(cfg *Config) {
	cfg.Network.NodeID = utils.EnvOrDefault("HOLONET_NODE_ID", cfg.Network.NodeID)
	cfg.Network.ListenAddr = utils.EnvOrDefault("HOLONET_LISTEN_ADDR", cfg.Network.ListenAddr)
	cfg.API.Addr = utils.EnvOrDefault("HOLONET_API_ADDR", cfg.API.Addr)
	cfg.Logging.Level = utils.EnvOrDefault("HOLONET_LOG_LEVEL", cfg.Logging.Level)
}

// Validate checks the loaded config's structural well-formedness: every
// instance must name a handle and a DNA path.
func (c *Config) Validate() error {
	for i, inst := range c.Instances {
		if inst.Handle == "" {
			return fmt.Errorf("instances[%d]: missing handle", i)
		}
		if inst.DnaPath == "" {
			return fmt.Errorf("instances[%d]: missing dna_path", i)
		}
	}
	return nil
}
