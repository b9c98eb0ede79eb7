package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/chainkeep/chainkeep/internal/alert"
	"github.com/chainkeep/chainkeep/internal/config"
	"github.com/chainkeep/chainkeep/internal/entity"
	"github.com/chainkeep/chainkeep/internal/registry"
	"github.com/chainkeep/chainkeep/internal/server"
	"github.com/chainkeep/chainkeep/internal/storage"
	"github.com/chainkeep/chainkeep/internal/validate"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "chainkeep",
	Short: "Chainkeep - Tamper-Evident Hierarchical Ledger",
	Long:  `An append-only attendance ledger where every record lives on a hash-linked, proof-of-work-sealed chain`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "chainkeep.yaml", "config file path")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
}

func newLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  "chainkeep",
		Level: hclog.Info,
	})
}

func openRegistry(cfg *config.Config, logger hclog.Logger) (*registry.Registry, *storage.Store, error) {
	dbPath := filepath.Join(cfg.Node.DataDir, "chainkeep.db")
	store, err := storage.New(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}

	reg := registry.New(store, cfg.Mining.Difficulty, cfg.Mining.Workers, logger)
	if err := reg.Load(); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to load registry: %w", err)
	}
	return reg, store, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("chainkeep v0.1.0")
		fmt.Println("Tamper-Evident Hierarchical Ledger")
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the ledger data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := os.MkdirAll(cfg.Node.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		reg, store, err := openRegistry(cfg, newLogger())
		if err != nil {
			return err
		}
		defer store.Close()

		orgs, groups, members := reg.Counts()
		fmt.Printf("Initialized ledger at: %s\n", cfg.Node.DataDir)
		fmt.Printf("Mining difficulty: %d\n", cfg.Mining.Difficulty)
		fmt.Printf("Chains: %d organizations, %d groups, %d members\n", orgs, groups, members)

		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ledger API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger := newLogger()

		if err := os.MkdirAll(cfg.Node.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		reg, store, err := openRegistry(cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		validator := validate.New(reg, logger)
		if cfg.Alerts.Enabled {
			validator.SetAlertManager(alert.NewManager(true, cfg.Alerts.SlackWebhook))
		}

		srv := server.New(reg, validator, logger)
		httpServer := &http.Server{
			Addr:    cfg.Node.ListenAddr,
			Handler: srv.Router(),
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("server listening", "addr", cfg.Node.ListenAddr, "difficulty", cfg.Mining.Difficulty)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return fmt.Errorf("server failed: %w", err)
		case <-sigCh:
		}

		fmt.Println("\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}

		fmt.Println("Chainkeep stopped")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display ledger status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		reg, store, err := openRegistry(cfg, newLogger())
		if err != nil {
			return err
		}
		defer store.Close()

		// The registry records the active difficulty in the store's metadata
		// bucket on load; report the persisted value.
		difficulty, err := store.GetMetadata("difficulty")
		if err != nil {
			return fmt.Errorf("failed to read stored difficulty: %w", err)
		}

		orgs, groups, members := reg.Counts()
		fmt.Printf("Data directory: %s\n", cfg.Node.DataDir)
		fmt.Printf("Mining difficulty: %s\n", difficulty)
		fmt.Printf("\nChains:\n")
		fmt.Printf("  organizations: %d\n", orgs)
		fmt.Printf("  groups:        %d\n", groups)
		fmt.Printf("  members:       %d\n", members)

		infos, err := reg.List(entity.KindOrganization)
		if err != nil {
			return err
		}
		for _, info := range infos {
			fmt.Printf("\n  - %s (%s)\n", info.ID, info.DisplayName)
			fmt.Printf("    Blocks: %d\n", info.ChainLength)
			hash := info.LatestHash
			if len(hash) > 16 {
				hash = hash[:16]
			}
			fmt.Printf("    Latest hash: %s\n", hash)
		}

		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [kind id]",
	Short: "Validate chain integrity",
	Long:  `Validate the whole ledger, or one chain by kind (organization, group, member) and id`,
	Args:  cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		reg, store, err := openRegistry(cfg, newLogger())
		if err != nil {
			return err
		}
		defer store.Close()

		validator := validate.New(reg, newLogger())

		if len(args) == 2 {
			var rep *validate.Report
			switch entity.Kind(args[0]) {
			case entity.KindOrganization:
				rep, err = validator.ValidateOrganization(args[1])
			case entity.KindGroup:
				rep, err = validator.ValidateGroup(args[1])
			case entity.KindMember:
				rep, err = validator.ValidateMember(args[1])
			default:
				return fmt.Errorf("unknown kind %q (want organization, group, or member)", args[0])
			}
			if err != nil {
				return err
			}
			return printReport(rep)
		}

		system, err := validator.ValidateSystem()
		if err != nil {
			return err
		}

		if system.Valid {
			fmt.Println("✅ OK: every chain is intact")
		} else {
			fmt.Println("❌ FAILED: ledger integrity is broken")
		}
		printLevel("organizations", system.Organizations)
		printLevel("groups", system.Groups)
		printLevel("members", system.Members)

		if !system.Valid {
			os.Exit(1)
		}
		return nil
	},
}

func printLevel(name string, s validate.LevelSummary) {
	fmt.Printf("  %s: %d valid, %d invalid", name, s.Valid, s.Invalid)
	if len(s.FailingIDs) > 0 {
		fmt.Printf(" (%v)", s.FailingIDs)
	}
	fmt.Println()
}

func printReport(rep *validate.Report) error {
	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !rep.Valid {
		os.Exit(1)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
