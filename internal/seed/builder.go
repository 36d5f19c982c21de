// Package seed populates the curriculum store: it builds content trees,
// recomputes derived counters and resynchronizes translation rows.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/p-n-ai/pai-seed/internal/curriculum"
	"github.com/p-n-ai/pai-seed/internal/store"
)

// TemplateHandle holds the generated IDs of a persisted template tree, in the
// same order as the definition it was built from.
type TemplateHandle struct {
	ID         string
	Slug       string
	Milestones []MilestoneHandle
	Written    int
}

type MilestoneHandle struct {
	ID    string
	Key   string
	Tasks []TaskHandle
}

type TaskHandle struct {
	ID             string
	Key            string
	Subtasks       []string
	KnowledgeItems []string
}

// LanguageHandle holds the generated IDs of a persisted exercise bank.
type LanguageHandle struct {
	ID        string
	Slug      string
	Exercises []ExerciseHandle
	Written   int
}

type ExerciseHandle struct {
	ID        string
	Slug      string
	TestCases []string
}

// Builder persists content trees depth-first through the Store in its
// RunContext. It validates a whole tree before the first write but makes no
// atomicity guarantee of its own; callers wrap it in Store.InTx.
type Builder struct {
	rc     RunContext
	schema *curriculum.Schema
}

// NewBuilder creates a builder that writes to rc.Store.
func NewBuilder(rc RunContext) (*Builder, error) {
	schema, err := curriculum.DefaultSchema()
	if err != nil {
		return nil, fmt.Errorf("load content schema: %w", err)
	}
	if rc.Reporter == nil {
		rc.Reporter = NopReporter{}
	}
	return &Builder{rc: rc, schema: schema}, nil
}

// tally counts writes so a failure can say how much of the tree it left behind.
type tally struct {
	written int
}

func (t *tally) write(op, key string, fn func() (string, error)) (string, error) {
	id, err := fn()
	if err != nil {
		mapped := MapStoreError(op, key, err)
		if t.written > 0 {
			return "", newError(CodePartialApply, key, fmt.Sprintf("%d rows written before failure", t.written), mapped)
		}
		return "", mapped
	}
	t.written++
	return id, nil
}

// BuildTemplate persists a template with its milestones, tasks, subtasks and
// knowledge items. Positions are copied from the definition as authored.
func (b *Builder) BuildTemplate(ctx context.Context, def curriculum.TemplateDef) (TemplateHandle, error) {
	if err := b.schema.ValidateTemplate(def); err != nil {
		return TemplateHandle{}, MapStoreError("validate template", def.Slug, err)
	}
	if err := b.checkOrdering(curriculum.CheckTemplateOrdering(def)); err != nil {
		return TemplateHandle{}, err
	}

	st := b.rc.Store
	var t tally
	h := TemplateHandle{Slug: def.Slug}

	id, err := t.write("create template", def.Slug, func() (string, error) {
		return st.CreateTemplate(ctx, store.Template{
			Slug:           def.Slug,
			Title:          def.Title,
			Description:    def.Description,
			Category:       def.Category,
			Difficulty:     string(def.Difficulty),
			EstimatedHours: def.EstimatedHours,
			Tags:           def.Tags,
			Metadata:       def.Metadata,
			Featured:       def.Featured,
		})
	})
	if err != nil {
		return h, err
	}
	h.ID = id

	for _, m := range def.Milestones {
		mh, err := b.buildMilestone(ctx, &t, id, def.Slug, m)
		if mh.ID != "" {
			h.Milestones = append(h.Milestones, mh)
		}
		if err != nil {
			h.Written = t.written
			return h, err
		}
	}

	h.Written = t.written
	b.rc.report(Event{Kind: EventCreated, Entity: string(curriculum.KindTemplate), Key: def.Slug, Count: t.written})
	return h, nil
}

func (b *Builder) buildMilestone(ctx context.Context, t *tally, templateID, templateSlug string, def curriculum.MilestoneDef) (MilestoneHandle, error) {
	st := b.rc.Store
	key := curriculum.MilestoneKey(templateSlug, def.Position)
	h := MilestoneHandle{Key: key}

	id, err := t.write("create milestone", key, func() (string, error) {
		return st.CreateMilestone(ctx, store.Milestone{
			TemplateID:     templateID,
			Title:          def.Title,
			Description:    def.Description,
			Position:       def.Position,
			EstimatedHours: def.EstimatedHours,
			Deliverables:   def.Deliverables,
		})
	})
	if err != nil {
		return h, err
	}
	h.ID = id

	for _, task := range def.Tasks {
		th, err := b.buildTask(ctx, t, id, key, task)
		if th.ID != "" {
			h.Tasks = append(h.Tasks, th)
		}
		if err != nil {
			return h, err
		}
	}
	return h, nil
}

func (b *Builder) buildTask(ctx context.Context, t *tally, milestoneID, milestoneKey string, def curriculum.TaskDef) (TaskHandle, error) {
	st := b.rc.Store
	key := curriculum.TaskKey(milestoneKey, def.Position)
	h := TaskHandle{Key: key}

	id, err := t.write("create task", key, func() (string, error) {
		return st.CreateTask(ctx, store.Task{
			MilestoneID:      milestoneID,
			Title:            def.Title,
			Description:      def.Description,
			Position:         def.Position,
			EstimatedMinutes: def.EstimatedMinutes,
			Priority:         def.Priority,
			Resources:        def.Resources,
		})
	})
	if err != nil {
		return h, err
	}
	h.ID = id

	for _, sub := range def.Subtasks {
		subID, err := t.write("create subtask", curriculum.SubtaskKey(key, sub.Position), func() (string, error) {
			return st.CreateSubtask(ctx, store.Subtask{
				TaskID:           id,
				Title:            sub.Title,
				EstimatedMinutes: sub.EstimatedMinutes,
				Position:         sub.Position,
			})
		})
		if err != nil {
			return h, err
		}
		h.Subtasks = append(h.Subtasks, subID)
	}

	for _, item := range def.KnowledgeItems {
		row, err := knowledgeItemRow(id, item)
		if err != nil {
			return h, MapStoreError("create knowledge item", curriculum.KnowledgeItemKey(key, item.Position), err)
		}
		itemID, err := t.write("create knowledge item", curriculum.KnowledgeItemKey(key, item.Position), func() (string, error) {
			return st.CreateKnowledgeItem(ctx, row)
		})
		if err != nil {
			return h, err
		}
		h.KnowledgeItems = append(h.KnowledgeItems, itemID)
	}
	return h, nil
}

// knowledgeItemRow flattens the variant body into its discriminator columns.
func knowledgeItemRow(taskID string, def curriculum.KnowledgeItemDef) (store.KnowledgeItem, error) {
	row := store.KnowledgeItem{
		TaskID:   taskID,
		Kind:     string(def.Kind),
		Title:    def.Title,
		Position: def.Position,
	}
	switch def.Kind {
	case curriculum.ItemNote:
		if def.Note == nil {
			return row, errors.New("note item has no body")
		}
		row.Body = def.Note.Body
	case curriculum.ItemCodeSnippet:
		if def.Snippet == nil {
			return row, errors.New("code_snippet item has no body")
		}
		row.Body = def.Snippet.Body
		row.Language = def.Snippet.Language
	case curriculum.ItemExercise:
		if def.Exercise == nil {
			return row, errors.New("exercise item has no body")
		}
		row.Question = def.Exercise.Question
		row.Answer = def.Exercise.Answer
		row.Difficulty = string(def.Exercise.Difficulty)
	case curriculum.ItemResourceLink:
		if def.Link == nil {
			return row, errors.New("resource_link item has no body")
		}
		row.URL = def.Link.URL
		row.Description = def.Link.Description
	default:
		return row, fmt.Errorf("unknown knowledge item kind %q", def.Kind)
	}
	return row, nil
}

// BuildLanguage creates the language row and then its exercise bank.
func (b *Builder) BuildLanguage(ctx context.Context, def curriculum.LanguageDef) (LanguageHandle, error) {
	if err := b.validateLanguage(def); err != nil {
		return LanguageHandle{}, err
	}

	var t tally
	id, err := t.write("create language", def.Slug, func() (string, error) {
		return b.rc.Store.CreateLanguage(ctx, store.Language{
			Slug:        def.Slug,
			Name:        def.Name,
			Description: def.Description,
		})
	})
	if err != nil {
		return LanguageHandle{}, err
	}
	return b.buildExercises(ctx, &t, id, def)
}

// BuildExercises persists the exercise bank of def under an existing
// language. Each exercise slug is derived from the language slug and the
// exercise position.
func (b *Builder) BuildExercises(ctx context.Context, languageID string, def curriculum.LanguageDef) (LanguageHandle, error) {
	if err := b.validateLanguage(def); err != nil {
		return LanguageHandle{}, err
	}
	return b.buildExercises(ctx, &tally{}, languageID, def)
}

func (b *Builder) validateLanguage(def curriculum.LanguageDef) error {
	if err := b.schema.ValidateLanguage(def); err != nil {
		return MapStoreError("validate language", def.Slug, err)
	}
	return b.checkOrdering(curriculum.CheckLanguageOrdering(def))
}

func (b *Builder) buildExercises(ctx context.Context, t *tally, languageID string, def curriculum.LanguageDef) (LanguageHandle, error) {
	st := b.rc.Store
	h := LanguageHandle{ID: languageID, Slug: def.Slug}

	for _, ex := range def.Exercises {
		slug := curriculum.DeriveExerciseSlug(def.Slug, ex.Position)
		exID, err := t.write("create exercise", slug, func() (string, error) {
			return st.CreateExercise(ctx, store.Exercise{
				LanguageID:       languageID,
				Slug:             slug,
				Title:            ex.Title,
				Description:      ex.Description,
				Prompt:           ex.Prompt,
				StarterCode:      ex.StarterCode,
				Solution:         ex.Solution,
				Hints:            ex.Hints,
				Difficulty:       string(ex.Difficulty),
				Points:           ex.Points,
				Tags:             ex.Tags,
				TimeLimitSeconds: ex.TimeLimitSeconds,
				Published:        ex.Published,
				Position:         ex.Position,
			})
		})
		if err != nil {
			h.Written = t.written
			return h, err
		}
		eh := ExerciseHandle{ID: exID, Slug: slug}

		for _, tc := range ex.TestCases {
			tcID, err := t.write("create test case", curriculum.TestCaseKey(slug, tc.Position), func() (string, error) {
				return st.CreateTestCase(ctx, store.TestCase{
					ExerciseID:     exID,
					Input:          tc.Input,
					ExpectedOutput: tc.ExpectedOutput,
					Description:    tc.Description,
					IsSample:       tc.IsSample,
					IsHidden:       tc.IsHidden,
					Position:       tc.Position,
				})
			})
			if err != nil {
				h.Exercises = append(h.Exercises, eh)
				h.Written = t.written
				return h, err
			}
			eh.TestCases = append(eh.TestCases, tcID)
			if tc.IsSample && tc.IsHidden {
				b.rc.report(Event{Kind: EventWarning, Entity: string(curriculum.KindTestCase), Key: curriculum.TestCaseKey(slug, tc.Position),
					Message: "test case is both sample and hidden"})
			}
		}
		if !hasSample(ex.TestCases) {
			b.rc.report(Event{Kind: EventWarning, Entity: string(curriculum.KindExercise), Key: slug, Message: "exercise has no sample test case"})
		}
		h.Exercises = append(h.Exercises, eh)
	}

	h.Written = t.written
	b.rc.report(Event{Kind: EventCreated, Entity: string(curriculum.KindLanguage), Key: def.Slug, Count: t.written})
	return h, nil
}

func hasSample(cases []curriculum.TestCaseDef) bool {
	for _, tc := range cases {
		if tc.IsSample {
			return true
		}
	}
	return false
}

// checkOrdering reports ordering issues as warnings, or rejects the first one
// when the run is strict.
func (b *Builder) checkOrdering(issues []curriculum.OrderingIssue) error {
	for _, issue := range issues {
		if b.rc.StrictOrdering {
			return newError(CodeValidation, issue.Parent, "check ordering", errors.New(issue.String()))
		}
		b.rc.report(Event{Kind: EventWarning, Entity: string(issue.Kind), Key: issue.Parent, Message: issue.String()})
	}
	return nil
}
