// sptrace walks SharePoint content trees, flags nodes with broken
// permission inheritance, and resolves every principal granted access down
// to flattened accounts with group-chain provenance.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sptrace/application"
	"sptrace/database"
	"sptrace/domain/contracts"
	"sptrace/infrastructure/accessor"
	"sptrace/infrastructure/checkpoint"
	"sptrace/infrastructure/classifier"
	"sptrace/infrastructure/config"
	"sptrace/infrastructure/graphclient"
	"sptrace/infrastructure/jobsource"
	"sptrace/infrastructure/resolver"
	"sptrace/infrastructure/retry"
	"sptrace/infrastructure/sink"
	"sptrace/infrastructure/spclient"
	"sptrace/infrastructure/walker"
	"sptrace/interfaces/status"
	"sptrace/logging"
	"sptrace/platform/events"
)

var (
	jobsPath    string
	optionsPath string
	resume      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sptrace",
		Short: "Permission inheritance auditor for SharePoint content trees",
		Long: `sptrace walks site collections, subsites, lists, and items, flags nodes
whose access control is defined independently of their parent, and resolves
every principal granted access - including nested site and directory groups -
down to a flattened list of accounts with full provenance.`,
		SilenceUsage: true,
	}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a scan over a job list",
		RunE:  runScan,
	}
	scanCmd.Flags().StringVar(&jobsPath, "jobs", "", "path to the job list file, one site URL per line (required)")
	scanCmd.Flags().StringVar(&optionsPath, "options", "", "path to the YAML scan options file")
	scanCmd.Flags().BoolVar(&resume, "resume", false, "resume the latest incomplete run")
	scanCmd.MarkFlagRequired("jobs")

	rootCmd.AddCommand(scanCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err == nil {
		fmt.Fprintln(os.Stderr, "Loaded configuration from .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(&cfg.Logging)
	logging.SetDefault(logger)
	logger.Info("Starting sptrace scan",
		"jobs_path", jobsPath,
		"options_path", optionsPath,
		"resume", resume)

	params, err := config.LoadScanParameters(optionsPath)
	if err != nil {
		return err
	}

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	policy := retry.Policy{
		MaxRetries:   params.MaxRetries,
		InitialDelay: time.Duration(params.RetryDelay) * time.Millisecond,
		CallTimeout:  time.Duration(params.CallTimeout) * time.Second,
	}

	content := spclient.NewService(cfg.Auth, policy)

	// The directory client is optional: without Graph credentials nested
	// directory groups resolve to failed placeholders instead of members.
	var directory contracts.DirectoryClient
	if tokens, err := graphclient.TokenProviderFromEnv(); err != nil {
		logger.Warn("Directory client disabled", "reason", err.Error())
	} else {
		directory = graphclient.New(tokens, policy)
	}

	rc := resolver.NewContext(resolver.NewDirectoryMemberCache())
	res := resolver.New(directory, params)
	bus := events.NewScanEventBus()

	outputSink := sink.New(db, params.FlushBatchSize)
	defer outputSink.Close()

	orchestrator := application.NewOrchestrator(application.Dependencies{
		Classifier:  classifier.New(content),
		Walker:      walker.New(content, params),
		Accessor:    accessor.New(res, params),
		Sink:        outputSink,
		Checkpoints: checkpoint.New(db),
		JobSource:   jobsource.New(jobsPath),
		Params:      params,
		Resolution:  rc,
		Bus:         bus,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Enabled {
		statusServer := status.New(cfg.Server.Addr, db, bus)
		go statusServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			statusServer.Stop(shutdownCtx)
		}()
	}

	if err := orchestrator.Run(ctx, resume); err != nil {
		logger.Error("Scan run aborted", "error", err.Error())
		return err
	}
	return nil
}
