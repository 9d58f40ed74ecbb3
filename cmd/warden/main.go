// Package main provides the warden one-shot promotion driver for CI/CD
// automation: it reads a promotion draft, runs it through validation and
// approval, and optionally deploys it, emitting the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/entrhq/warden/pkg/audit"
	"github.com/entrhq/warden/pkg/config"
	"github.com/entrhq/warden/pkg/isolation"
	"github.com/entrhq/warden/pkg/logging"
	"github.com/entrhq/warden/pkg/notify"
	"github.com/entrhq/warden/pkg/promotion"
	"github.com/entrhq/warden/pkg/promotion/gitops"
	"github.com/entrhq/warden/pkg/store"
	"github.com/entrhq/warden/pkg/types"
	"gopkg.in/yaml.v3"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigFile  string
	DraftFile   string
	Approver    string
	Deploy      bool
	OutputFile  string
	AuditFormat string
	Timeout     time.Duration
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("warden v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		log.Printf("Promotion failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to config file (default ~/.warden/config.yaml)")
	flag.StringVar(&cli.DraftFile, "draft", "", "Path to the promotion draft YAML (required)")
	flag.StringVar(&cli.Approver, "approver", "", "Approver recorded on the promotion (required)")
	flag.BoolVar(&cli.Deploy, "deploy", false, "Deploy after approval")
	flag.StringVar(&cli.OutputFile, "output", "", "Write the result JSON to a file instead of stdout")
	flag.StringVar(&cli.AuditFormat, "audit", "", "Print the audit trail in the given format (json, csv, markdown)")
	flag.DurationVar(&cli.Timeout, "timeout", 30*time.Minute, "Overall timeout")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version")
	flag.Parse()

	return cli
}

func run(ctx context.Context, cli *CLIConfig) error {
	if cli.DraftFile == "" {
		return fmt.Errorf("a promotion draft is required (-draft)")
	}
	if cli.Approver == "" {
		return fmt.Errorf("an approver is required (-approver)")
	}

	ctx, cancel := context.WithTimeout(ctx, cli.Timeout)
	defer cancel()

	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return err
	}
	if cfg.OwnRepoPath == "" {
		return fmt.Errorf("config must set ownRepoPath")
	}
	if cfg.TargetRepoID == "" || cfg.TargetRepoPath == "" {
		return fmt.Errorf("config must set targetRepoId and targetRepoPath")
	}

	logger, err := logging.NewLogger("warden")
	if err != nil {
		return err
	}
	defer logger.Close()

	records, err := openRecords(ctx, cfg)
	if err != nil {
		return err
	}
	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}

	guard, err := isolation.NewGuard(isolation.Config{
		OwnRepoPath:       cfg.OwnRepoPath,
		ProtectedPatterns: cfg.ProtectedPatterns,
	}, logger)
	if err != nil {
		return err
	}
	if err := guard.Register(cfg.TargetRepoID, cfg.TargetRepoPath); err != nil {
		return err
	}

	promotions := promotion.NewManager(promotion.Config{
		Target: types.RepositoryContext{
			RepoID:   cfg.TargetRepoID,
			RepoPath: cfg.TargetRepoPath,
		},
		BaseBranch:    cfg.BaseBranch,
		TestCommand:   cfg.TestCommand,
		DeployCommand: cfg.DeployCommand,
		AutoDeploy:    cfg.AutoDeploy,
	}, guard, gitops.New(cfg.TargetRepoPath, logger), nil, notifier, logger)

	trail := audit.NewManager(audit.Config{
		RequireApproval: cfg.RequireRollbackApproval,
		RollbackWindow:  time.Duration(cfg.RollbackWindowHours) * time.Hour,
	}, promotions, nil, records, notifier, logger)
	promotions.SetTrail(trail)
	if err := trail.LoadRollbacks(ctx); err != nil {
		return err
	}

	draft, err := readDraft(cli.DraftFile)
	if err != nil {
		return err
	}

	promo, err := promotions.CreatePromotionRequest(ctx, *draft)
	if err != nil {
		return err
	}
	fmt.Printf("Created promotion %s: %s\n", promo.ID, promo.Title)

	result, err := promotions.Approve(ctx, promo.ID, cli.Approver)
	if err != nil {
		return err
	}
	fmt.Printf("Approved by %s\n", cli.Approver)

	if cli.Deploy && result == nil {
		result, err = promotions.Deploy(ctx, promo.ID)
		if err != nil {
			return err
		}
	}
	if result != nil {
		if err := writeResult(result, cli.OutputFile); err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("deployment failed: %s", result.Error)
		}
	}

	if cli.AuditFormat != "" {
		out, err := trail.ExportAuditLog(cli.AuditFormat)
		if err != nil {
			return err
		}
		fmt.Println(out)
	}
	return nil
}

func openRecords(ctx context.Context, cfg *config.Config) (store.RecordStore, error) {
	if cfg.PostgresDSN == "" {
		return store.NewMemoryStore(), nil
	}
	pg, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	return pg, nil
}

func buildNotifier(cfg *config.Config, logger *logging.Logger) (notify.Notifier, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return notify.NewLogNotifier(logger), nil
	}
	kn, err := notify.NewKafkaNotifier(notify.KafkaConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	}, logger)
	if err != nil {
		return nil, err
	}
	return kn, nil
}

func readDraft(path string) (*types.PromotionRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read draft: %w", err)
	}
	var draft types.PromotionRequest
	if err := yaml.Unmarshal(data, &draft); err != nil {
		return nil, fmt.Errorf("failed to parse draft: %w", err)
	}
	return &draft, nil
}

func writeResult(result *promotion.DeployResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if path == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
