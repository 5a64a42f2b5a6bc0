package wiki

import (
	"context"

	"github.com/myrjola/lorebook/internal/errors"
	"github.com/myrjola/lorebook/internal/repositories"
	"gopkg.in/yaml.v3"
)

// Corpus is a business's accumulated interview knowledge, the input to the
// planner and the evidence source for document generation.
type Corpus struct {
	Business   string            `yaml:"business"`
	Interviews []CorpusInterview `yaml:"interviews"`

	entriesByTurnID map[int64]CorpusEntry
}

type CorpusInterview struct {
	Employee string        `yaml:"employee"`
	Bio      string        `yaml:"bio,omitempty"`
	Answers  []CorpusEntry `yaml:"answers"`
}

// CorpusEntry is one question/answer pair. TurnID is the stable evidence
// reference planned documents point at.
type CorpusEntry struct {
	TurnID   int64  `yaml:"turn_id"`
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

// LoadCorpus assembles the corpus from every completed interview of the
// business.
func LoadCorpus(
	ctx context.Context,
	businesses *repositories.BusinessRepository,
	interviews *repositories.InterviewRepository,
	businessID string,
) (*Corpus, error) {
	business, err := businesses.Get(ctx, businessID)
	if err != nil {
		return nil, errors.Wrap(err, "get business")
	}

	completed, err := interviews.CompletedInterviews(ctx, businessID)
	if err != nil {
		return nil, errors.Wrap(err, "read completed interviews")
	}

	corpus := Corpus{
		Business:        business.Name,
		entriesByTurnID: make(map[int64]CorpusEntry),
	}
	for _, session := range completed {
		employee, employeeErr := businesses.Employee(ctx, session.EmployeeID)
		if employeeErr != nil {
			return nil, errors.Wrap(employeeErr, "get employee")
		}
		answered, answeredErr := interviews.AnsweredQuestions(ctx, session.ID)
		if answeredErr != nil {
			return nil, errors.Wrap(answeredErr, "read answered questions")
		}

		corpusInterview := CorpusInterview{
			Employee: employee.Email,
			Bio:      employee.Bio,
			Answers:  make([]CorpusEntry, 0, len(answered)),
		}
		for _, qt := range answered {
			entry := CorpusEntry{
				TurnID:   qt.Turn.ID,
				Question: qt.Question.Content,
				Answer:   qt.Turn.Content,
			}
			corpusInterview.Answers = append(corpusInterview.Answers, entry)
			corpus.entriesByTurnID[entry.TurnID] = entry
		}
		corpus.Interviews = append(corpus.Interviews, corpusInterview)
	}

	return &corpus, nil
}

// Empty reports whether the corpus holds no answers at all.
func (c *Corpus) Empty() bool {
	return len(c.entriesByTurnID) == 0
}

// HasTurn reports whether the evidence reference resolves to a real turn.
func (c *Corpus) HasTurn(turnID int64) bool {
	_, ok := c.entriesByTurnID[turnID]
	return ok
}

// Entries resolves evidence references, skipping unknown IDs.
func (c *Corpus) Entries(turnIDs []int64) []CorpusEntry {
	entries := make([]CorpusEntry, 0, len(turnIDs))
	for _, turnID := range turnIDs {
		if entry, ok := c.entriesByTurnID[turnID]; ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// YAML renders the corpus for prompting.
func (c *Corpus) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", errors.Wrap(err, "marshal corpus")
	}
	return string(out), nil
}
