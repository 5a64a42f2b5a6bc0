package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/lorebook/internal/ai"
	"github.com/myrjola/lorebook/internal/errors"
	"github.com/myrjola/lorebook/internal/models"
	"github.com/myrjola/lorebook/internal/repositories"
	"github.com/myrjola/lorebook/internal/sqlite"
	"github.com/myrjola/lorebook/internal/wiki"
	"github.com/spf13/cobra"
)

var Group = &cobra.Group{
	ID:    "build",
	Title: "Wiki builds",
}

var (
	businessID string
	dbURL      string
	model      string
	workers    int
)

func init() {
	Build.Flags().StringVar(&businessID, "business-id", "", "Business to build the wiki for")
	Build.Flags().StringVar(&dbURL, "sqlite-url", "./lorebook.sqlite", "SQLite URL")
	Build.Flags().StringVar(&model, "model", "gpt-4o-mini", "Model for planning and writing")
	Build.Flags().IntVar(&workers, "workers", 5, "Concurrent document generation tasks")
	_ = Build.MarkFlagRequired("business-id")
}

var Build = &cobra.Command{
	Use:     "build",
	GroupID: "build",
	Short:   "Build a wiki",
	Long:    "Runs a wiki build for a business and prints the generated document set",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), cmd.OutOrStdout())
	},
}

func run(ctx context.Context, out io.Writer) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	dbs, err := sqlite.NewDatabase(ctx, dbURL, logger)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer func() {
		_ = dbs.Close()
	}()

	businesses := repositories.NewBusinessRepository(dbs, logger)
	interviews := repositories.NewInterviewRepository(dbs, logger)
	builds := repositories.NewBuildRepository(dbs, logger)

	governor := ai.NewGovernor(workers)
	completer := ai.NewClient(os.Getenv("LOREBOOK_OPENAI_API_KEY"), model, time.Minute, governor, logger)
	retry := ai.DefaultRetryPolicy()
	orchestrator := wiki.NewOrchestrator(
		businesses,
		interviews,
		builds,
		wiki.NewPlanner(completer, retry, logger),
		wiki.NewWriter(completer, retry, logger),
		workers,
		15*time.Minute,
		logger,
	)

	finished, err := orchestrator.Run(ctx, businessID)
	if err != nil {
		return errors.Wrap(err, "run build")
	}

	_, _ = fmt.Fprintf(out, "build %s finished with status %s", finished.ID, finished.Status)
	if finished.Reason != "" {
		_, _ = fmt.Fprintf(out, " (%s)", finished.Reason)
	}
	_, _ = fmt.Fprintln(out)

	documents, err := builds.Documents(ctx, finished.ID)
	if err != nil {
		return errors.Wrap(err, "read documents")
	}
	section := ""
	for _, document := range documents {
		if document.Section != section {
			section = document.Section
			_, _ = fmt.Fprintf(out, "%s\n", section)
		}
		marker := " "
		if document.Status != models.DocumentStatusDone {
			marker = "!"
		}
		_, _ = fmt.Fprintf(out, "%s %s.md\t%s\t%s\n", marker, document.Slug, document.Title, document.Status)
	}
	return nil
}
