package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/myrjola/lorebook/internal/ai"
	"github.com/myrjola/lorebook/internal/errors"
	"github.com/myrjola/lorebook/internal/models"
)

// ErrTaxonomy means the model could not produce a valid navigation plan even
// after the stricter retry. The build fails without creating any documents.
var ErrTaxonomy = errors.NewSentinel("model produced no valid navigation plan")

const plannerSystemPrompt = `You are a knowledge architect designing an internal wiki for a business.

You are given YAML data of interviews with the business's employees. Each answer carries a numeric turn_id. Design a navigation plan for the wiki: sections grouping related documents, each document with a title, a URL-friendly slug and the turn_ids of the answers it should be written from.

Respond with ONLY a JSON object of this exact shape and nothing else:

{"sections": [{"section_name": "...", "docs": [{"title": "...", "slug": "...", "evidence_turn_ids": [1, 2]}]}]}

The first section must be named "Business Overview" and its first document must have the slug "index". Plan at most 5 sections and at most 10 documents in total. Every evidence_turn_ids entry must be a turn_id that appears in the data. Slugs must be unique.`

// plannerStrictReminder is appended to the system prompt for the single retry
// after an invalid plan.
const plannerStrictReminder = `

Your previous plan was rejected. Respond with the bare JSON object only, with no surrounding prose or code fences, and make sure every evidence_turn_ids entry exists in the data and every slug is unique and non-empty.`

// Planner turns the interview corpus into a bounded navigation plan.
type Planner struct {
	completer ai.Completer
	retry     ai.RetryPolicy
	logger    *slog.Logger
}

func NewPlanner(completer ai.Completer, retry ai.RetryPolicy, logger *slog.Logger) *Planner {
	return &Planner{
		completer: completer,
		retry:     retry,
		logger:    logger.With("source", "Planner"),
	}
}

// Plan prompts for a navigation plan over the corpus and validates it.
//
// An invalid plan earns exactly one retry with a stricter prompt. A second
// invalid plan returns ErrTaxonomy. Transient model errors are retried under
// the shared policy within each attempt.
func (p *Planner) Plan(ctx context.Context, corpus *Corpus) (models.NavigationPlan, error) {
	corpusYAML, err := corpus.YAML()
	if err != nil {
		return models.NavigationPlan{}, errors.Wrap(err, "render corpus")
	}

	plan, err := p.attempt(ctx, plannerSystemPrompt, corpusYAML, corpus)
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, ai.ErrInvalidResponse) {
		return models.NavigationPlan{}, errors.Wrap(err, "plan navigation")
	}
	p.logger.LogAttrs(ctx, slog.LevelWarn, "navigation plan rejected, retrying with stricter prompt",
		errors.SlogError(err))

	plan, err = p.attempt(ctx, plannerSystemPrompt+plannerStrictReminder, corpusYAML, corpus)
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, ai.ErrInvalidResponse) {
		return models.NavigationPlan{}, errors.Wrap(err, "plan navigation")
	}
	return models.NavigationPlan{}, fmt.Errorf("%w: %w", ErrTaxonomy, err)
}

func (p *Planner) attempt(ctx context.Context, systemPrompt, corpusYAML string, corpus *Corpus) (models.NavigationPlan, error) {
	var plan models.NavigationPlan
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		completion, completeErr := p.completer.Complete(ctx, ai.CompletionRequest{
			Messages: []ai.Message{
				{Role: ai.RoleSystem, Content: systemPrompt},
				{Role: ai.RoleUser, Content: corpusYAML},
			},
			MaxTokens: 2000,
		})
		if completeErr != nil {
			return completeErr
		}
		if plan, completeErr = parsePlan(completion, corpus); completeErr != nil {
			return completeErr
		}
		return nil
	})
	if err != nil {
		return models.NavigationPlan{}, err
	}
	return plan, nil
}

// parsePlan validates the model output and truncates it deterministically:
// sections beyond the fifth and documents beyond the tenth are dropped
// keeping the model's own emission order.
func parsePlan(completion string, corpus *Corpus) (models.NavigationPlan, error) {
	payload := strings.TrimSpace(completion)
	if after, found := strings.CutPrefix(payload, "```json"); found {
		payload = after
	} else if after, found = strings.CutPrefix(payload, "```"); found {
		payload = after
	}
	payload = strings.TrimSuffix(strings.TrimSpace(payload), "```")

	var parsed models.NavigationPlan
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return models.NavigationPlan{}, fmt.Errorf("%w: %w", ai.ErrInvalidResponse, err)
	}
	if len(parsed.Sections) == 0 {
		return models.NavigationPlan{}, errors.Wrap(ai.ErrInvalidResponse, "plan has no sections")
	}

	plan := models.NavigationPlan{Sections: make([]models.PlanSection, 0, models.MaxPlanSections)}
	seenSlugs := make(map[string]struct{})
	documents := 0
	for _, section := range parsed.Sections {
		if len(plan.Sections) == models.MaxPlanSections || documents == models.MaxPlanDocuments {
			break
		}
		if strings.TrimSpace(section.Name) == "" {
			return models.NavigationPlan{}, errors.Wrap(ai.ErrInvalidResponse, "section without a name")
		}

		kept := models.PlanSection{Name: section.Name, Docs: make([]models.DocStub, 0, len(section.Docs))}
		for _, doc := range section.Docs {
			if documents == models.MaxPlanDocuments {
				break
			}
			if err := validateStub(doc, seenSlugs, corpus); err != nil {
				return models.NavigationPlan{}, err
			}
			seenSlugs[doc.Slug] = struct{}{}
			kept.Docs = append(kept.Docs, doc)
			documents++
		}
		if len(kept.Docs) == 0 {
			// A section that planned no documents has nothing to show.
			continue
		}
		plan.Sections = append(plan.Sections, kept)
	}
	if documents == 0 {
		return models.NavigationPlan{}, errors.Wrap(ai.ErrInvalidResponse, "plan has no documents")
	}
	return plan, nil
}

func validateStub(doc models.DocStub, seenSlugs map[string]struct{}, corpus *Corpus) error {
	if strings.TrimSpace(doc.Title) == "" || strings.TrimSpace(doc.Slug) == "" {
		return errors.Wrap(ai.ErrInvalidResponse, "document without a title or slug")
	}
	if _, duplicate := seenSlugs[doc.Slug]; duplicate {
		return errors.Wrap(ai.ErrInvalidResponse, "duplicate slug", slog.String("slug", doc.Slug))
	}
	for _, turnID := range doc.EvidenceTurnIDs {
		if !corpus.HasTurn(turnID) {
			return errors.Wrap(ai.ErrInvalidResponse, "evidence turn does not exist",
				slog.String("slug", doc.Slug), slog.Int64("turn_id", turnID))
		}
	}
	return nil
}
