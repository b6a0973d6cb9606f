// Command devvnode runs one shard peer of the Devv validator node, and
// provides the genkey/bench utility subcommands a real deployment needs
// alongside it.
//
// Grounded on the teacher's cmd/synnergy/main.go: a root cobra.Command with
// leaf subcommands reading their options off cmd.Flags().
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/spf13/cobra"

	"devv.io/node/internal/config"
	"devv.io/node/internal/cryptoprim"
	"devv.io/node/internal/fabric"
	"devv.io/node/internal/node"
	"devv.io/node/internal/txgen"
	"devv.io/node/pkg/logging"
)

func main() {
	root := &cobra.Command{Use: "devvnode"}
	root.AddCommand(runCmd())
	root.AddCommand(genkeyCmd())
	root.AddCommand(benchCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run this shard peer until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config-dir")
			env, _ := cmd.Flags().GetString("env")
			listen, _ := cmd.Flags().GetString("listen")

			cfg, err := config.Load(dir, env)
			if err != nil {
				return fmt.Errorf("devvnode: %w", err)
			}
			log := logging.New(cfg.Logging.Level)

			ring, err := loadKeyRing(cfg.Keys.Dir, cfg.Node.PeerCount)
			if err != nil {
				return fmt.Errorf("devvnode: %w", err)
			}

			wsFabric := fabric.NewWSFabric(log)

			n, err := node.New(log, cfg, ring, wsFabric)
			if err != nil {
				return fmt.Errorf("devvnode: %w", err)
			}

			httpServer := &http.Server{Addr: listen, Handler: wsFabric}
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.WithError(err).Error("devvnode: http listener failed")
				}
			}()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			errCh := make(chan error, 1)
			go func() { errCh <- n.Start(ctx) }()

			<-ctx.Done()
			log.Info("devvnode: shutdown signal received, draining")
			n.StartShutdown()
			n.Shutdown()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = httpServer.Shutdown(shutdownCtx)

			return <-errCh
		},
	}
	cmd.Flags().String("config-dir", ".", "directory containing config.yaml / .env")
	cmd.Flags().String("env", "", "environment suffix (config.<env>.yaml layered over config.yaml)")
	cmd.Flags().String("listen", ":8080", "address this node's websocket fabric listens on")
	return cmd
}

func genkeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "generate a shard's signing keys into a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _ := cmd.Flags().GetInt("peer-count")
			dir, _ := cmd.Flags().GetString("dir")

			ring, err := cryptoprim.GenerateKeyRing(n)
			if err != nil {
				return fmt.Errorf("devvnode: genkey: %w", err)
			}
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("devvnode: genkey: %w", err)
			}
			for i := 0; i < n; i++ {
				priv, addr, err := ring.NodeKey(i)
				if err != nil {
					return fmt.Errorf("devvnode: genkey: %w", err)
				}
				path := fmt.Sprintf("%s/%d.key", dir, i)
				if err := os.WriteFile(path, []byte(hex.EncodeToString(priv.Serialize())), 0o600); err != nil {
					return fmt.Errorf("devvnode: genkey: writing %s: %w", path, err)
				}
				fmt.Printf("node %d: address %s -> %s\n", i, addr, path)
			}
			return nil
		},
	}
	cmd.Flags().Int("peer-count", 4, "number of keys to generate")
	cmd.Flags().String("dir", "./keys", "directory to write <index>.key files into")
	return cmd
}

func benchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "generate and time synthetic transaction encoding",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _ := cmd.Flags().GetInt("count")
			participants, _ := cmd.Flags().GetInt("participants")

			ring, err := cryptoprim.GenerateKeyRing(participants)
			if err != nil {
				return err
			}
			gen, err := txgen.New(ring, participants, 0, 1000, time.Now().UnixNano())
			if err != nil {
				return err
			}

			start := time.Now()
			txs, err := gen.Batch(n)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)
			encoded := txgen.Encode(txs)

			fmt.Printf("generated %d transactions in %s (%.0f tx/s), %d bytes\n",
				n, elapsed, float64(n)/elapsed.Seconds(), len(encoded))
			return nil
		},
	}
	cmd.Flags().Int("count", 10000, "number of transactions to generate")
	cmd.Flags().Int("participants", 16, "number of distinct addresses to transact among")
	return cmd
}

func loadKeyRing(dir string, peerCount int) (*cryptoprim.StaticKeyRing, error) {
	keys := make([]*secp256k1.PrivateKey, peerCount)
	for i := 0; i < peerCount; i++ {
		path := fmt.Sprintf("%s/%d.key", dir, i)
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		b, err := hex.DecodeString(string(raw))
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		keys[i] = secp256k1.PrivKeyFromBytes(b)
	}
	return cryptoprim.NewStaticKeyRing(keys), nil
}
