package curriculum

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// EntityKind names a persisted entity type. It doubles as the polymorphic
// owner-type tag on translation rows.
type EntityKind string

const (
	KindTemplate      EntityKind = "template"
	KindMilestone     EntityKind = "milestone"
	KindTask          EntityKind = "task"
	KindSubtask       EntityKind = "subtask"
	KindKnowledgeItem EntityKind = "knowledge_item"
	KindLanguage      EntityKind = "language"
	KindExercise      EntityKind = "exercise"
	KindTestCase      EntityKind = "test_case"
)

// AllKinds returns every entity kind in tree order.
func AllKinds() []EntityKind {
	return []EntityKind{
		KindTemplate, KindMilestone, KindTask, KindSubtask, KindKnowledgeItem,
		KindLanguage, KindExercise, KindTestCase,
	}
}

// ParseEntityKind converts a string such as "knowledge_item" into an EntityKind.
func ParseEntityKind(s string) (EntityKind, error) {
	for _, k := range AllKinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// Difficulty is the difficulty tier shared by templates, exercises and
// exercise-type knowledge items.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Translations maps locale -> field -> localized text, e.g. {"ms": {"title": "..."}}.
type Translations map[string]map[string]string

// TemplateDef is the root of one learning path.
type TemplateDef struct {
	Slug           string            `yaml:"slug" json:"slug"`
	Title          string            `yaml:"title" json:"title"`
	Description    string            `yaml:"description" json:"description,omitempty"`
	Category       string            `yaml:"category" json:"category,omitempty"`
	Difficulty     Difficulty        `yaml:"difficulty" json:"difficulty,omitempty"`
	EstimatedHours int               `yaml:"estimated_hours" json:"estimated_hours" validate:"gte=0"`
	Tags           []string          `yaml:"tags" json:"tags,omitempty" validate:"dive,required"`
	Metadata       map[string]string `yaml:"metadata" json:"metadata,omitempty"`
	Featured       bool              `yaml:"featured" json:"featured"`
	Milestones     []MilestoneDef    `yaml:"milestones" json:"milestones,omitempty"`
	Translations   Translations      `yaml:"translations" json:"translations,omitempty"`
}

// MilestoneDef is one stage of a template.
type MilestoneDef struct {
	Title          string       `yaml:"title" json:"title"`
	Description    string       `yaml:"description" json:"description,omitempty"`
	Position       int          `yaml:"position" json:"position" validate:"gte=0"`
	EstimatedHours int          `yaml:"estimated_hours" json:"estimated_hours" validate:"gte=0"`
	Deliverables   []string     `yaml:"deliverables" json:"deliverables,omitempty"`
	Tasks          []TaskDef    `yaml:"tasks" json:"tasks,omitempty"`
	Translations   Translations `yaml:"translations" json:"translations,omitempty"`
}

// TaskDef is a unit of work inside a milestone.
type TaskDef struct {
	Title            string             `yaml:"title" json:"title"`
	Description      string             `yaml:"description" json:"description,omitempty"`
	Position         int                `yaml:"position" json:"position" validate:"gte=0"`
	EstimatedMinutes int                `yaml:"estimated_minutes" json:"estimated_minutes" validate:"gte=0"`
	Priority         int                `yaml:"priority" json:"priority" validate:"min=1,max=5"`
	Resources        []string           `yaml:"resources" json:"resources,omitempty" validate:"dive,required"`
	Subtasks         []SubtaskDef       `yaml:"subtasks" json:"subtasks,omitempty"`
	KnowledgeItems   []KnowledgeItemDef `yaml:"knowledge_items" json:"knowledge_items,omitempty"`
	Translations     Translations       `yaml:"translations" json:"translations,omitempty"`
}

// SubtaskDef is a checklist entry embedded in a task.
type SubtaskDef struct {
	Title            string `yaml:"title" json:"title"`
	EstimatedMinutes int    `yaml:"estimated_minutes" json:"estimated_minutes" validate:"gte=0"`
	Position         int    `yaml:"position" json:"position" validate:"gte=0"`
}

// KnowledgeItemKind is the variant tag of a knowledge item.
type KnowledgeItemKind string

const (
	ItemNote         KnowledgeItemKind = "note"
	ItemCodeSnippet  KnowledgeItemKind = "code_snippet"
	ItemExercise     KnowledgeItemKind = "exercise"
	ItemResourceLink KnowledgeItemKind = "resource_link"
)

// NoteBody carries the fields of a note item.
type NoteBody struct {
	Body string
}

// CodeSnippetBody carries the fields of a code_snippet item.
type CodeSnippetBody struct {
	Body     string
	Language string
}

// ExerciseBody carries the fields of an exercise item.
type ExerciseBody struct {
	Question   string
	Answer     string
	Difficulty Difficulty
}

// ResourceLinkBody carries the fields of a resource_link item.
type ResourceLinkBody struct {
	URL         string `validate:"omitempty,url"`
	Description string
}

// KnowledgeItemDef is a tagged content block attached to a task. Exactly one of
// the body pointers is meaningful, selected by Kind.
type KnowledgeItemDef struct {
	Kind         KnowledgeItemKind
	Title        string
	Position     int `validate:"gte=0"`
	Note         *NoteBody
	Snippet      *CodeSnippetBody
	Exercise     *ExerciseBody
	Link         *ResourceLinkBody
	Translations Translations
}

// knowledgeItemWire is the flat form used in content files and for schema
// validation: variant fields sit next to the tag.
type knowledgeItemWire struct {
	Kind         KnowledgeItemKind `yaml:"kind" json:"kind"`
	Title        string            `yaml:"title" json:"title"`
	Position     int               `yaml:"position" json:"position"`
	Body         string            `yaml:"body" json:"body,omitempty"`
	Language     string            `yaml:"language" json:"language,omitempty"`
	Question     string            `yaml:"question" json:"question,omitempty"`
	Answer       string            `yaml:"answer" json:"answer,omitempty"`
	Difficulty   Difficulty        `yaml:"difficulty" json:"difficulty,omitempty"`
	URL          string            `yaml:"url" json:"url,omitempty"`
	Description  string            `yaml:"description" json:"description,omitempty"`
	Translations Translations      `yaml:"translations" json:"translations,omitempty"`
}

func (k KnowledgeItemDef) toWire() knowledgeItemWire {
	w := knowledgeItemWire{
		Kind:         k.Kind,
		Title:        k.Title,
		Position:     k.Position,
		Translations: k.Translations,
	}
	switch k.Kind {
	case ItemNote:
		if k.Note != nil {
			w.Body = k.Note.Body
		}
	case ItemCodeSnippet:
		if k.Snippet != nil {
			w.Body = k.Snippet.Body
			w.Language = k.Snippet.Language
		}
	case ItemExercise:
		if k.Exercise != nil {
			w.Question = k.Exercise.Question
			w.Answer = k.Exercise.Answer
			w.Difficulty = k.Exercise.Difficulty
		}
	case ItemResourceLink:
		if k.Link != nil {
			w.URL = k.Link.URL
			w.Description = k.Link.Description
		}
	}
	return w
}

func (w knowledgeItemWire) toDef() (KnowledgeItemDef, error) {
	k := KnowledgeItemDef{
		Kind:         w.Kind,
		Title:        w.Title,
		Position:     w.Position,
		Translations: w.Translations,
	}
	switch w.Kind {
	case ItemNote:
		k.Note = &NoteBody{Body: w.Body}
	case ItemCodeSnippet:
		k.Snippet = &CodeSnippetBody{Body: w.Body, Language: w.Language}
	case ItemExercise:
		k.Exercise = &ExerciseBody{Question: w.Question, Answer: w.Answer, Difficulty: w.Difficulty}
	case ItemResourceLink:
		k.Link = &ResourceLinkBody{URL: w.URL, Description: w.Description}
	default:
		return KnowledgeItemDef{}, fmt.Errorf("unknown knowledge item kind %q", w.Kind)
	}
	return k, nil
}

// MarshalJSON emits the flat form so schema rules can key off "kind".
func (k KnowledgeItemDef) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.toWire())
}

// UnmarshalJSON accepts the flat form.
func (k *KnowledgeItemDef) UnmarshalJSON(data []byte) error {
	var w knowledgeItemWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	def, err := w.toDef()
	if err != nil {
		return err
	}
	*k = def
	return nil
}

// knowledgeItemKeys are the yaml keys of knowledgeItemWire. Node.Decode does
// not inherit the decoder's KnownFields setting, so UnmarshalYAML checks keys
// itself.
var knowledgeItemKeys = func() map[string]bool {
	keys := make(map[string]bool)
	t := reflect.TypeOf(knowledgeItemWire{})
	for i := range t.NumField() {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		keys[name] = true
	}
	return keys
}()

// UnmarshalYAML accepts the flat form used in content files and rejects
// unknown keys.
func (k *KnowledgeItemDef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			key := value.Content[i]
			if !knowledgeItemKeys[key.Value] {
				return fmt.Errorf("line %d: field %s not found in knowledge item", key.Line, key.Value)
			}
		}
	}

	var w knowledgeItemWire
	if err := value.Decode(&w); err != nil {
		return err
	}
	def, err := w.toDef()
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*k = def
	return nil
}

// LanguageDef is a programming-language entry with its exercise bank.
type LanguageDef struct {
	Slug         string        `yaml:"slug" json:"slug"`
	Name         string        `yaml:"name" json:"name"`
	Description  string        `yaml:"description" json:"description,omitempty"`
	Exercises    []ExerciseDef `yaml:"exercises" json:"exercises,omitempty"`
	Translations Translations  `yaml:"translations" json:"translations,omitempty"`
}

// ExerciseDef is one coding exercise. Its slug is never authored; see
// DeriveExerciseSlug.
type ExerciseDef struct {
	Title            string        `yaml:"title" json:"title"`
	Description      string        `yaml:"description" json:"description,omitempty"`
	Prompt           string        `yaml:"prompt" json:"prompt"`
	StarterCode      string        `yaml:"starter_code" json:"starter_code,omitempty"`
	Solution         string        `yaml:"solution" json:"solution,omitempty"`
	Hints            []string      `yaml:"hints" json:"hints,omitempty" validate:"dive,required"`
	Difficulty       Difficulty    `yaml:"difficulty" json:"difficulty,omitempty"`
	Points           int           `yaml:"points" json:"points" validate:"gte=0"`
	Tags             []string      `yaml:"tags" json:"tags,omitempty" validate:"dive,required"`
	TimeLimitSeconds int           `yaml:"time_limit_seconds" json:"time_limit_seconds" validate:"gte=0"`
	Published        bool          `yaml:"published" json:"published"`
	Position         int           `yaml:"position" json:"position" validate:"gte=0"`
	TestCases        []TestCaseDef `yaml:"test_cases" json:"test_cases,omitempty"`
	Translations     Translations  `yaml:"translations" json:"translations,omitempty"`
}

// TestCaseDef is one input/expected-output pair of an exercise.
type TestCaseDef struct {
	Input          string       `yaml:"input" json:"input"`
	ExpectedOutput string       `yaml:"expected_output" json:"expected_output"`
	Description    string       `yaml:"description" json:"description,omitempty"`
	IsSample       bool         `yaml:"is_sample" json:"is_sample"`
	IsHidden       bool         `yaml:"is_hidden" json:"is_hidden"`
	Position       int          `yaml:"position" json:"position" validate:"gte=0"`
	Translations   Translations `yaml:"translations" json:"translations,omitempty"`
}

// Catalog is the full set of content definitions for one population run.
type Catalog struct {
	Templates []TemplateDef `json:"templates"`
	Languages []LanguageDef `json:"languages"`
}
