package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"scheda/internal/config"
	"scheda/internal/docstore"
	"scheda/internal/ops"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "scheda-ops",
		Short:         "Operational tooling for the scheda document store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		newBackupCmd(),
		newRestoreCmd(),
		newDrillCmd(),
		newMigrateInventoryCmd(),
		newSeedCmd(),
	)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newBackupCmd() *cobra.Command {
	var cfgPath, out string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export every document to a .tar.gz archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfgPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if out == "" {
				ts := time.Now().UTC().Format("20060102T150405Z")
				out = filepath.Join("backups", "scheda-"+ts+".tar.gz")
			}
			n, err := ops.BackupStore(context.Background(), store, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d document(s))\n", out, n)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "scheda_config.yml", "path to config file")
	cmd.Flags().StringVar(&out, "out", "", "output archive path (.tar.gz)")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	var cfgPath, archive string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Import a backup archive into the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if archive == "" {
				return fmt.Errorf("archive is required")
			}
			store, err := openStore(cfgPath)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := ops.RestoreStore(context.Background(), store, archive)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d document(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "scheda_config.yml", "path to config file")
	cmd.Flags().StringVar(&archive, "archive", "", "input backup archive (.tar.gz)")
	return cmd
}

// drill exports the store, imports the archive into a scratch store, and
// verifies a re-export reproduces the archive byte for byte.
func newDrillCmd() *cobra.Command {
	var cfgPath, workDir string
	cmd := &cobra.Command{
		Use:   "drill",
		Short: "Backup, restore into a scratch store and verify the round trip",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, err := openStore(cfgPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := os.MkdirAll(workDir, 0o755); err != nil {
				return err
			}
			ts := time.Now().UTC().Format("20060102T150405Z")
			archive := filepath.Join(workDir, "scheda-drill-"+ts+".tar.gz")

			n, err := ops.BackupStore(ctx, store, archive)
			if err != nil {
				return err
			}

			scratch := docstore.NewMemoryStore()
			defer scratch.Close()
			if _, err := ops.RestoreStore(ctx, scratch, archive); err != nil {
				return err
			}

			var reExport bytes.Buffer
			if _, err := ops.ExportStore(ctx, scratch, &reExport); err != nil {
				return err
			}
			srcDigest, err := fileDigest(archive)
			if err != nil {
				return err
			}
			sum := sha256.Sum256(reExport.Bytes())
			restoredDigest := hex.EncodeToString(sum[:])
			if srcDigest != restoredDigest {
				return fmt.Errorf("digest mismatch after restore: src=%s restored=%s", srcDigest, restoredDigest)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "backup:", archive)
			fmt.Fprintf(cmd.OutOrStdout(), "documents: %d\n", n)
			fmt.Fprintln(cmd.OutOrStdout(), "digest:", srcDigest)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "scheda_config.yml", "path to config file")
	cmd.Flags().StringVar(&workDir, "work-dir", os.TempDir(), "temporary workspace for drill artifacts")
	return cmd
}

func newMigrateInventoryCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "migrate-inventory",
		Short: "Normalize legacy inventory entries to the {id, qty} shape",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfgPath)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := ops.MigrateInventories(context.Background(), store, log.Default())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d user document(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "scheda_config.yml", "path to config file")
	return cmd
}

func newSeedCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write the shared utility document if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfgPath)
			if err != nil {
				return err
			}
			defer store.Close()

			written, err := ops.SeedVarie(context.Background(), store)
			if err != nil {
				return err
			}
			if written {
				fmt.Fprintln(cmd.OutOrStdout(), "utils/varie written")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "utils/varie already present, left untouched")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "scheda_config.yml", "path to config file")
	return cmd
}

func openStore(cfgPath string) (*docstore.Store, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	cfg = config.FromEnv(cfg)
	switch cfg.Store.Backend {
	case "memory":
		return docstore.NewMemoryStore(), nil
	case "file":
		return docstore.OpenFileStore(cfg.Store.DataDir)
	case "sqlite":
		return docstore.OpenSQLiteStore(cfg.Store.SQLitePath)
	case "postgres":
		return docstore.OpenPostgresStore(cfg.Store.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func fileDigest(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
