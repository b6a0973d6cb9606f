package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"devv.io/node/internal/devvcontext"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestLoadBaseConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
node:
  mode: T2
  index: 0
  peer_count: 3
  max_tx_per_block: 50
  max_wait_ms: 200
  self_uri: shard-0
peer_uris:
  0: ws://peer0
  1: ws://peer1
keys:
  dir: /var/devvnode/keys
logging:
  level: info
`)

	cfg, err := Load(dir, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.Mode != "T2" || cfg.Node.PeerCount != 3 || cfg.Node.SelfURI != "shard-0" {
		t.Fatalf("unexpected Node section: %+v", cfg.Node)
	}
	if cfg.Peers[0] != "ws://peer0" || cfg.Peers[1] != "ws://peer1" {
		t.Fatalf("unexpected Peers map: %+v", cfg.Peers)
	}
	if cfg.Keys.Dir != "/var/devvnode/keys" {
		t.Fatalf("Keys.Dir = %q", cfg.Keys.Dir)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadMergesEnvSpecificOverBase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
peer_uris:
  0: ws://peer0
  1: ws://peer1
keys:
  dir: /var/devvnode/keys
logging:
  level: info
`)
	writeFile(t, dir, "config.prod.yaml", `
node:
  mode: T2
  index: 1
  peer_count: 2
  max_tx_per_block: 25
  max_wait_ms: 100
  self_uri: shard-1
`)

	cfg, err := Load(dir, "prod")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.Mode != "T2" || cfg.Node.Index != 1 || cfg.Node.SelfURI != "shard-1" {
		t.Fatalf("env-specific node section not applied: %+v", cfg.Node)
	}
	if cfg.Keys.Dir != "/var/devvnode/keys" || cfg.Logging.Level != "info" {
		t.Fatalf("base-config fields not merged in: keys=%+v logging=%+v", cfg.Keys, cfg.Logging)
	}
}

func TestLoadMissingConfigFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir, ""); err == nil {
		t.Fatal("expected an error loading from a directory with no config.yaml")
	}
}

func TestLoadAppliesDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
node:
  mode: T1
  index: 0
  peer_count: 1
  max_tx_per_block: 1
  max_wait_ms: 0
  self_uri: shard-0
`)
	writeFile(t, dir, ".env", "DEVVNODE_UNRELATED_TEST_KEY=present\n")
	t.Cleanup(func() { os.Unsetenv("DEVVNODE_UNRELATED_TEST_KEY") })

	if _, err := Load(dir, ""); err != nil {
		t.Fatalf("Load with a .env file present: %v", err)
	}
	if os.Getenv("DEVVNODE_UNRELATED_TEST_KEY") != "present" {
		t.Fatal(".env file was not merged into the process environment")
	}
}

func TestToDevvContextValidatesMode(t *testing.T) {
	var cfg Config
	cfg.Node.Mode = "bogus"
	cfg.Node.PeerCount = 3
	if _, err := cfg.ToDevvContext(); err == nil {
		t.Fatal("expected an error for an unrecognized node.mode")
	}
}

func TestToDevvContextValidatesPeerCount(t *testing.T) {
	var cfg Config
	cfg.Node.Mode = "T2"
	cfg.Node.PeerCount = 0
	if _, err := cfg.ToDevvContext(); err == nil {
		t.Fatal("expected an error for a non-positive peer_count")
	}
}

func TestToDevvContextBuildsContext(t *testing.T) {
	var cfg Config
	cfg.Node.Mode = "T2"
	cfg.Node.Index = 2
	cfg.Node.PeerCount = 4
	cfg.Node.MaxTxPerBlock = 30
	cfg.Node.MaxWaitMS = 150
	cfg.Peers = map[int]string{2: "shard-0"}

	ctx, err := cfg.ToDevvContext()
	if err != nil {
		t.Fatalf("ToDevvContext: %v", err)
	}
	if ctx.Mode != devvcontext.T2 || ctx.GetCurrentNode() != 2 || ctx.GetPeerCount() != 4 {
		t.Fatalf("unexpected context: %+v", ctx)
	}
	if ctx.GetMaxWait() != 150*time.Millisecond {
		t.Fatalf("GetMaxWait() = %v, want 150ms", ctx.GetMaxWait())
	}
	uri, err := ctx.GetURIFromIndex(2)
	if err != nil || uri != "shard-0" {
		t.Fatalf("GetURIFromIndex(2) = %q, %v", uri, err)
	}
}
