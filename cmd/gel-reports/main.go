package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/moka-guys/GeL-Reports/internal/config"
	"github.com/moka-guys/GeL-Reports/internal/domain/cases"
	"github.com/moka-guys/GeL-Reports/internal/domain/reconcile"
	"github.com/moka-guys/GeL-Reports/internal/pipeline"
	"github.com/moka-guys/GeL-Reports/internal/platform/db"
	"github.com/moka-guys/GeL-Reports/internal/platform/notification"
	"github.com/moka-guys/GeL-Reports/internal/platform/pdf"
	"github.com/moka-guys/GeL-Reports/internal/platform/remote"
	"github.com/moka-guys/GeL-Reports/internal/platform/render"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gel-reports",
		Short: "Issues 100,000 Genomes Project result reports from Moka",
	}

	rootCmd.AddCommand(issueCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func issueCmd() *cobra.Command {
	var (
		testIDs                 []int
		skipLabKey              bool
		ignoreBlock             bool
		submitExitQuestionnaire bool
		downloadSummary         bool
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Create cover pages, attach GeL reports and finalize the given NGS tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := pipeline.Options{
				SkipLabKey:              skipLabKey,
				IgnoreBlock:             ignoreBlock,
				SubmitExitQuestionnaire: submitExitQuestionnaire,
				DownloadSummary:         downloadSummary,
			}
			return runIssue(testIDs, opts)
		},
	}

	cmd.Flags().IntSliceVarP(&testIDs, "ngs-test-id", "n", nil, "Moka NGSTestID from the NGSTest table (repeatable)")
	cmd.Flags().BoolVar(&skipLabKey, "skip-labkey", false, "skip LabKey demographic reconciliation and allow missing DOB/NHS number")
	cmd.Flags().BoolVar(&ignoreBlock, "ignore-block", false, "process cases despite their reporting block")
	cmd.Flags().BoolVar(&submitExitQuestionnaire, "submit-exit-questionnaire", false, "submit the exit questionnaire before issuing")
	cmd.Flags().BoolVar(&downloadSummary, "download-summary", false, "download the summary of findings from the server")
	_ = cmd.MarkFlagRequired("ngs-test-id")

	return cmd
}

// runIssue wires the pipeline and runs the batch. A case rejection or failure
// never makes the process exit non-zero: the exit code reflects whether the
// batch ran, not whether every case succeeded.
func runIssue(testIDs []int, opts pipeline.Options) error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		return err
	}

	needsRemote := !opts.SkipLabKey || opts.SubmitExitQuestionnaire || opts.DownloadSummary
	if needsRemote {
		if err := cfg.ValidateRemote(); err != nil {
			logger.Error().Err(err).Msg("invalid remote configuration")
			return err
		}
	}

	// Database: one pool per run, used serially across cases.
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to Moka")

	repo, err := cases.NewRepoPG(pool, cfg.MokaTables())
	if err != nil {
		return err
	}

	sshClient := remote.NewClient(cfg.SSHHost, cfg.SSHUser, cfg.SSHPassword, cfg.SSHTimeout())
	checker := reconcile.NewChecker(reconcile.NewLabKeySource(sshClient, cfg.LabKeyScript))
	jobs := pipeline.NewJobRunner(sshClient, cfg.ExitQuestionnaireScript, cfg.SummaryFindingsScript, cfg.SummaryRemoteDir)

	assembler := pipeline.NewAssembler(
		render.NewChromiumRenderer(),
		pdf.NewMerger(),
		cfg.CoverTemplatePath,
		cfg.SourceReportDir,
		cfg.OutputReportDir,
	)
	sequencer := pipeline.NewSequencer(
		repo,
		notification.NewFileDrafter(cfg.DraftsDir),
		notification.NewTemplateEngine(),
		cfg.CIPAPIUser,
		logger,
	)

	orch := pipeline.NewOrchestrator(repo, checker, jobs, assembler, sequencer,
		opts, cfg.CIPAPIUser, cfg.SummaryOutputDir, cfg.SummaryHeader, logger)

	sum := pipeline.NewBatch(orch, pipeline.LogSink{Log: logger}).Run(ctx, testIDs)

	logger.Info().
		Int("finalized", sum.Finalized).
		Int("rejected", sum.Rejected).
		Int("failed", sum.Failed).
		Msg("batch complete")
	fmt.Printf("batch complete: %d finalized, %d rejected, %d failed\n", sum.Finalized, sum.Rejected, sum.Failed)
	return nil
}
