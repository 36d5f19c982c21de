// Package store persists curriculum content. MemoryStore backs tests and dry
// runs; PostgresStore is the production implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/p-n-ai/pai-seed/internal/curriculum"
)

var (
	// ErrNotFound is returned when a lookup by natural key finds nothing.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a write breaks a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate key")
	// ErrMissingParent is returned when a child references a parent row that does not exist.
	ErrMissingParent = errors.New("missing parent")
)

// Template is a persisted learning-path root.
type Template struct {
	ID             string
	Slug           string
	Title          string
	Description    string
	Category       string
	Difficulty     string
	EstimatedHours int
	Tags           []string
	Metadata       map[string]string
	Featured       bool
}

// Milestone belongs to one template.
type Milestone struct {
	ID             string
	TemplateID     string
	Title          string
	Description    string
	Position       int
	EstimatedHours int
	Deliverables   []string
}

// Task belongs to one milestone.
type Task struct {
	ID               string
	MilestoneID      string
	Title            string
	Description      string
	Position         int
	EstimatedMinutes int
	Priority         int
	Resources        []string
}

// Subtask belongs to one task.
type Subtask struct {
	ID               string
	TaskID           string
	Title            string
	EstimatedMinutes int
	Position         int
}

// KnowledgeItem belongs to one task. Kind is the discriminator; only the
// columns of that variant are set.
type KnowledgeItem struct {
	ID          string
	TaskID      string
	Kind        string
	Title       string
	Position    int
	Body        string
	Language    string
	Question    string
	Answer      string
	Difficulty  string
	URL         string
	Description string
}

// Language owns an exercise bank. ExerciseCount is derived; see seed.Recount.
type Language struct {
	ID            string
	Slug          string
	Name          string
	Description   string
	ExerciseCount int
}

// Exercise belongs to one language.
type Exercise struct {
	ID               string
	LanguageID       string
	Slug             string
	Title            string
	Description      string
	Prompt           string
	StarterCode      string
	Solution         string
	Hints            []string
	Difficulty       string
	Points           int
	Tags             []string
	TimeLimitSeconds int
	Published        bool
	Position         int
}

// TestCase belongs to one exercise.
type TestCase struct {
	ID             string
	ExerciseID     string
	Input          string
	ExpectedOutput string
	Description    string
	IsSample       bool
	IsHidden       bool
	Position       int
}

// Translation is a derived row owned polymorphically by any content entity.
type Translation struct {
	ID        string
	OwnerType curriculum.EntityKind
	OwnerID   string
	Locale    string
	Field     string
	Value     string
}

// Run is one entry of the population run ledger.
type Run struct {
	ID          string
	Name        string
	Fingerprint string
	Status      string
	Created     int
	Deleted     int
	Error       string
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunSkipped   = "skipped"
)

// Store persists curriculum rows. Every Create call is one write; children
// must reference a parent that is already visible to the same Store.
type Store interface {
	CreateTemplate(ctx context.Context, t Template) (string, error)
	CreateMilestone(ctx context.Context, m Milestone) (string, error)
	CreateTask(ctx context.Context, t Task) (string, error)
	CreateSubtask(ctx context.Context, s Subtask) (string, error)
	CreateKnowledgeItem(ctx context.Context, k KnowledgeItem) (string, error)
	CreateLanguage(ctx context.Context, l Language) (string, error)
	CreateExercise(ctx context.Context, e Exercise) (string, error)
	CreateTestCase(ctx context.Context, tc TestCase) (string, error)

	GetTemplateBySlug(ctx context.Context, slug string) (*Template, error)
	GetLanguageBySlug(ctx context.Context, slug string) (*Language, error)

	// List* return children ordered by position.
	ListTemplates(ctx context.Context) ([]Template, error)
	ListMilestones(ctx context.Context, templateID string) ([]Milestone, error)
	ListTasks(ctx context.Context, milestoneID string) ([]Task, error)
	ListSubtasks(ctx context.Context, taskID string) ([]Subtask, error)
	ListKnowledgeItems(ctx context.Context, taskID string) ([]KnowledgeItem, error)
	ListLanguages(ctx context.Context) ([]Language, error)
	ListExercises(ctx context.Context, languageID string) ([]Exercise, error)
	ListTestCases(ctx context.Context, exerciseID string) ([]TestCase, error)

	// DeleteTemplate removes a template and its whole subtree.
	DeleteTemplate(ctx context.Context, id string) error
	// DeleteExercises removes every exercise (and test case) of a language.
	DeleteExercises(ctx context.Context, languageID string) (int, error)

	// UpdateLanguage rewrites name and description of the language with l.ID.
	UpdateLanguage(ctx context.Context, l Language) error
	CountExercises(ctx context.Context, languageID string) (int, error)
	SetExerciseCount(ctx context.Context, languageID string, count int) error

	// CreateTranslation inserts a row unless the same (owner, locale, field)
	// already exists; it reports whether a row was written.
	CreateTranslation(ctx context.Context, t Translation) (bool, error)
	// DeleteTranslations removes every translation whose owner type is in
	// ownerTypes with a single statement.
	DeleteTranslations(ctx context.Context, ownerTypes []curriculum.EntityKind) (int, error)
	ListTranslations(ctx context.Context, ownerType curriculum.EntityKind) ([]Translation, error)

	StartRun(ctx context.Context, r Run) (string, error)
	FinishRun(ctx context.Context, r Run) error
	LastSuccessfulRun(ctx context.Context, name string) (*Run, error)

	// InTx runs fn against a Store whose writes commit together or not at all.
	InTx(ctx context.Context, fn func(tx Store) error) error
}
