package wiki

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/myrjola/lorebook/internal/ai"
	"github.com/myrjola/lorebook/internal/errors"
	"github.com/myrjola/lorebook/internal/models"
)

const writerSystemPrompt = `You are a technical writer producing one page of an internal business wiki.

You are given the wiki's outline, the page to write and the interview answers it should be written from. Write the page as Markdown. Start with a level-one heading matching the page title. Ground every claim in the given answers and do not invent facts. When another outlined page covers a topic in depth, mention it by title instead of duplicating it.

Respond with the Markdown content only.`

// Writer generates the markdown content of a single planned document. It is
// stateless so that any worker can pick up any document.
type Writer struct {
	completer ai.Completer
	retry     ai.RetryPolicy
	logger    *slog.Logger
}

func NewWriter(completer ai.Completer, retry ai.RetryPolicy, logger *slog.Logger) *Writer {
	return &Writer{
		completer: completer,
		retry:     retry,
		logger:    logger.With("source", "Writer"),
	}
}

// Write generates the document planned by stub within section. Transient
// model errors are retried under the shared policy; the final error marks
// only this document failed.
func (w *Writer) Write(
	ctx context.Context,
	corpus *Corpus,
	plan models.NavigationPlan,
	section string,
	stub models.DocStub,
) (string, error) {
	prompt := writerPrompt(corpus, plan, section, stub)

	var content string
	err := w.retry.Do(ctx, func(ctx context.Context) error {
		completion, completeErr := w.completer.Complete(ctx, ai.CompletionRequest{
			Messages: []ai.Message{
				{Role: ai.RoleSystem, Content: writerSystemPrompt},
				{Role: ai.RoleUser, Content: prompt},
			},
			MaxTokens: 4000,
		})
		if completeErr != nil {
			return completeErr
		}
		completion = strings.TrimSpace(completion)
		if completion == "" {
			return errors.Wrap(ai.ErrInvalidResponse, "empty document content")
		}
		content = completion
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "write document", slog.String("slug", stub.Slug))
	}
	return content, nil
}

func writerPrompt(corpus *Corpus, plan models.NavigationPlan, section string, stub models.DocStub) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Business: %s\n\nWiki outline:\n", corpus.Business)
	for _, planSection := range plan.Sections {
		fmt.Fprintf(&b, "- %s\n", planSection.Name)
		for _, doc := range planSection.Docs {
			fmt.Fprintf(&b, "  - %s\n", doc.Title)
		}
	}

	fmt.Fprintf(&b, "\nPage to write: %q in section %q.\n\nInterview answers to write from:\n", stub.Title, section)
	for _, entry := range corpus.Entries(stub.EvidenceTurnIDs) {
		fmt.Fprintf(&b, "\nQ: %s\nA: %s\n", entry.Question, entry.Answer)
	}
	return b.String()
}
