// Package config loads the per-node YAML configuration cmd/devvnode reads at
// startup: which shard tier and index this node runs as, its shard's peer
// topology, the batching/wait knobs spec.md #4.4 names, and where its
// signing keys live.
//
// Grounded on the teacher's pkg/config.Load: same github.com/spf13/viper
// SetConfigName/AddConfigPath/ReadInConfig/MergeInConfig/AutomaticEnv
// sequence and the same mapstructure-tagged struct shape, with
// github.com/joho/godotenv merging a .env file ahead of it instead of the
// teacher's bespoke pkg/utils env helpers.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"devv.io/node/internal/devvcontext"
)

// Config is the on-disk node configuration (spec.md #4.6, #4.4).
type Config struct {
	Node struct {
		// Mode is "T1" or "T2" (spec.md Glossary).
		Mode string `mapstructure:"mode"`
		// Index is this node's index within its own shard's peer set.
		Index int `mapstructure:"index"`
		// PeerCount is the number of peers in this node's shard.
		PeerCount int `mapstructure:"peer_count"`
		// MaxTxPerBlock is the proposer's per-block transaction target
		// (spec.md #4.4).
		MaxTxPerBlock int `mapstructure:"max_tx_per_block"`
		// MaxWaitMS bounds how long the UTX pool's greedy collector waits
		// for MaxTxPerBlock to fill before proposing a partial block.
		MaxWaitMS int `mapstructure:"max_wait_ms"`
		// SelfURI is the shard topic this node publishes and subscribes on.
		SelfURI string `mapstructure:"self_uri"`
	} `mapstructure:"node"`

	// Peers maps a global peer index (spec.md #4.6: T1 is [0,peer_count),
	// T2 shard k is [(k+1)*peer_count,(k+2)*peer_count)) to the shard topic
	// URI that peer publishes on. Every index this node will ever address —
	// its own shard plus, for T1, the corresponding T2 indices — must be
	// present.
	Peers map[int]string `mapstructure:"peer_uris"`

	Keys struct {
		// Dir is the directory StaticKeyRing loads signing keys from
		// (cryptoprim.KeyRing is out of core scope per spec.md #1; this
		// is the concrete on-disk layout cmd/devvnode uses).
		Dir string `mapstructure:"dir"`
	} `mapstructure:"keys"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

// Load reads config.yaml from dir and, when env is set, merges
// config.<env>.yaml over it so the env-specific keys win (config.yaml may
// then be absent). A .env file in dir is loaded into the process
// environment first, the way the teacher's pkg/config.Load layers
// environment overrides. The result is unmarshaled into a Config.
func Load(dir, env string) (*Config, error) {
	if envFile := dir + "/.env"; fileExists(envFile) {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: loading .env: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || env == "" {
			return nil, fmt.Errorf("config: reading config: %w", err)
		}
	}
	if env != "" {
		v.SetConfigName("config." + env)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("config: merging %s config: %w", env, err)
		}
	}

	v.SetEnvPrefix("DEVVNODE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ToDevvContext builds the immutable devvcontext.Context this node's
// consensus/utxpool/internetwork handlers are constructed with.
func (c *Config) ToDevvContext() (*devvcontext.Context, error) {
	var mode devvcontext.Mode
	switch c.Node.Mode {
	case "T1":
		mode = devvcontext.T1
	case "T2":
		mode = devvcontext.T2
	default:
		return nil, fmt.Errorf("config: node.mode must be T1 or T2, got %q", c.Node.Mode)
	}
	if c.Node.PeerCount <= 0 {
		return nil, fmt.Errorf("config: node.peer_count must be positive")
	}
	uris := make(map[int]string, len(c.Peers))
	for k, v := range c.Peers {
		uris[k] = v
	}
	maxWait := time.Duration(c.Node.MaxWaitMS) * time.Millisecond
	return devvcontext.New(mode, c.Node.Index, c.Node.PeerCount, c.Node.MaxTxPerBlock, maxWait, uris), nil
}
