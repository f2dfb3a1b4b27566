// Command holo is the single-instance conductor CLI: it loads a DNA
// manifest, runs genesis if needed, and runs the instance until signaled
// to stop.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"holonet/core"
)

var (
	dnaPath    string
	storageDir string
	keyPath    string
)

func main() {
	root := &cobra.Command{
		Use:   "holo",
		Short: "Run a holonet agent instance",
	}
	root.PersistentFlags().StringVar(&dnaPath, "dna", "", "path to the DNA manifest JSON file")
	root.PersistentFlags().StringVar(&storageDir, "storage", "", "directory for chain/DHT/state persistence (empty: in-memory)")
	root.PersistentFlags().StringVar(&keyPath, "keyfile", "", "path to a 32-byte ed25519 seed file (empty: generate ephemeral)")

	root.AddCommand(genesisCmd(), runCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func genesisCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genesis",
		Short: "Commit the DNA/AgentId/hc_public genesis entries, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, log, err := buildInstance()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if err := inst.Genesis(cmd.Context()); err != nil {
				return err
			}
			agent, _ := inst.Chain.GetAgentAddress()
			fmt.Printf("genesis complete: agent=%s\n", agent)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the instance (genesis first if not already run) until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, log, err := buildInstance()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if err := inst.Genesis(cmd.Context()); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := inst.Start(ctx); err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			<-sigCh

			log.Info("shutting down")
			return inst.Stop()
		},
	}
}

func buildInstance() (*core.Instance, *zap.Logger, error) {
	if dnaPath == "" {
		return nil, nil, fmt.Errorf("--dna is required")
	}

	log, err := zap.NewProduction()
	if err != nil {
		log = zap.NewNop()
	}

	dna, err := loadDNA(dnaPath)
	if err != nil {
		return nil, nil, err
	}

	ks, err := loadKeystore(keyPath)
	if err != nil {
		return nil, nil, err
	}

	inst, err := core.NewInstance(dna, ks, core.InstanceConfig{
		NodeID:     os.Getenv("HOLONET_NODE_ID"),
		StorageDir: storageDir,
		Log:        log,
	})
	if err != nil {
		return nil, nil, err
	}
	return inst, log, nil
}

func loadDNA(path string) (*core.DNA, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dna manifest: %w", err)
	}
	var dna core.DNA
	if err := json.Unmarshal(raw, &dna); err != nil {
		return nil, fmt.Errorf("parse dna manifest: %w", err)
	}
	return &dna, nil
}

func loadKeystore(path string) (core.Keystore, error) {
	if path == "" {
		return core.NewInMemoryKeystore()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyfile: %w", err)
	}
	if len(raw) != ed25519.SeedSize {
		return nil, fmt.Errorf("keyfile must contain exactly %d seed bytes, got %d", ed25519.SeedSize, len(raw))
	}
	return core.NewInMemoryKeystoreFromSeed(raw)
}
