package seed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/myrjola/lorebook/internal/errors"
	"github.com/myrjola/lorebook/internal/repositories"
	"github.com/myrjola/lorebook/internal/sqlite"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var Group = &cobra.Group{
	ID:    "seed",
	Title: "Seeding",
}

var (
	seedFile string
	dbURL    string
)

func init() {
	Seed.Flags().StringVar(&seedFile, "file", "seed.yaml", "Seed file")
	Seed.Flags().StringVar(&dbURL, "sqlite-url", "./lorebook.sqlite", "SQLite URL")
}

// seedDocument is the YAML shape of a seed file: one business with its
// employees and scripted interview questions in interview order.
type seedDocument struct {
	Business  string `yaml:"business"`
	Employees []struct {
		Email string `yaml:"email"`
		Bio   string `yaml:"bio"`
	} `yaml:"employees"`
	Questions []string `yaml:"questions"`
}

var Seed = &cobra.Command{
	Use:     "seed",
	GroupID: "seed",
	Short:   "Seed a business",
	Long:    "Creates a business with its employees and scripted interview questions from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), cmd.OutOrStdout())
	},
}

func run(ctx context.Context, out io.Writer) error {
	payload, err := os.ReadFile(seedFile)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var document seedDocument
	if err = yaml.Unmarshal(payload, &document); err != nil {
		return errors.Wrap(err, "parse seed file")
	}
	if document.Business == "" {
		return errors.New("seed file has no business name")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	dbs, err := sqlite.NewDatabase(ctx, dbURL, logger)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer func() {
		_ = dbs.Close()
	}()

	businesses := repositories.NewBusinessRepository(dbs, logger)
	business, err := businesses.Create(ctx, document.Business)
	if err != nil {
		return errors.Wrap(err, "create business")
	}
	_, _ = fmt.Fprintf(out, "business %s (%s)\n", business.Name, business.ID)

	for _, employee := range document.Employees {
		created, employeeErr := businesses.CreateEmployee(ctx, business.ID, employee.Email, employee.Bio)
		if employeeErr != nil {
			return errors.Wrap(employeeErr, "create employee")
		}
		_, _ = fmt.Fprintf(out, "employee %s (%s)\n", created.Email, created.ID)
	}

	for i, content := range document.Questions {
		question, questionErr := businesses.CreateScriptedQuestion(ctx, business.ID, content, int64(i))
		if questionErr != nil {
			return errors.Wrap(questionErr, "create scripted question")
		}
		_, _ = fmt.Fprintf(out, "question %d (%s)\n", i, question.ID)
	}

	return nil
}
