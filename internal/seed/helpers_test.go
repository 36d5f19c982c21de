package seed_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/p-n-ai/pai-seed/internal/curriculum"
	"github.com/p-n-ai/pai-seed/internal/seed"
	"github.com/p-n-ai/pai-seed/internal/store"
)

func note(position int, title string, tr curriculum.Translations) curriculum.KnowledgeItemDef {
	return curriculum.KnowledgeItemDef{
		Kind:         curriculum.ItemNote,
		Title:        title,
		Position:     position,
		Note:         &curriculum.NoteBody{Body: title + " body"},
		Translations: tr,
	}
}

func ms(title string) curriculum.Translations {
	return curriculum.Translations{"ms": {"title": title}}
}

// goBasics has two milestones: the first with no tasks, the second with three.
func goBasics() curriculum.TemplateDef {
	return curriculum.TemplateDef{
		Slug:         "go-basics",
		Title:        "Go Basics",
		Difficulty:   curriculum.DifficultyBeginner,
		Tags:         []string{"go"},
		Metadata:     map[string]string{"track": "backend"},
		Translations: ms("Asas Go"),
		Milestones: []curriculum.MilestoneDef{
			{Title: "Orientation", Position: 1},
			{
				Title:    "Syntax",
				Position: 2,
				Tasks: []curriculum.TaskDef{
					{
						Title: "Variables", Position: 1, Priority: 1,
						Subtasks:       []curriculum.SubtaskDef{{Title: "var", Position: 1}, {Title: ":=", Position: 2}},
						KnowledgeItems: []curriculum.KnowledgeItemDef{note(1, "Declaring", ms("Mengisytihar"))},
					},
					{
						Title: "Functions", Position: 2, Priority: 2,
						KnowledgeItems: []curriculum.KnowledgeItemDef{
							{
								Kind: curriculum.ItemCodeSnippet, Title: "Hello", Position: 1,
								Snippet: &curriculum.CodeSnippetBody{Body: "func main() {}", Language: "go"},
							},
							{
								Kind: curriculum.ItemExercise, Title: "Quiz", Position: 2,
								Exercise: &curriculum.ExerciseBody{Question: "1+1?", Answer: "2", Difficulty: curriculum.DifficultyBeginner},
							},
						},
					},
					{
						Title: "Links", Position: 3, Priority: 3,
						KnowledgeItems: []curriculum.KnowledgeItemDef{
							{
								Kind: curriculum.ItemResourceLink, Title: "Tour", Position: 1,
								Link: &curriculum.ResourceLinkBody{URL: "https://go.dev/tour", Description: "A tour of Go"},
							},
						},
					},
				},
			},
		},
	}
}

// tenNotes is a template whose only task carries ten translated notes.
func tenNotes() curriculum.TemplateDef {
	items := make([]curriculum.KnowledgeItemDef, 10)
	for i := range items {
		items[i] = note(i+1, fmt.Sprintf("Note %d", i+1), ms(fmt.Sprintf("Nota %d", i+1)))
	}
	return curriculum.TemplateDef{
		Slug:  "ten-notes",
		Title: "Ten Notes",
		Milestones: []curriculum.MilestoneDef{{
			Title: "Only", Position: 1,
			Tasks: []curriculum.TaskDef{{Title: "Read", Position: 1, Priority: 1, KnowledgeItems: items}},
		}},
	}
}

func goLanguage() curriculum.LanguageDef {
	return curriculum.LanguageDef{
		Slug:         "go",
		Name:         "Go",
		Translations: ms("Bahasa Go"),
		Exercises: []curriculum.ExerciseDef{
			{
				Title: "Hello", Prompt: "Print hello", Position: 1, Points: 10,
				Hints:        []string{"use fmt"},
				Translations: ms("Helo"),
				TestCases: []curriculum.TestCaseDef{
					{Input: "", ExpectedOutput: "hello", IsSample: true, Position: 1, Translations: ms("contoh")},
					{Input: "x", ExpectedOutput: "hello", IsHidden: true, Position: 2},
				},
			},
			{
				Title: "Sum", Prompt: "Add two ints", Position: 2,
				TestCases: []curriculum.TestCaseDef{{Input: "1 2", ExpectedOutput: "3", IsSample: true, Position: 1}},
			},
		},
	}
}

func newBuilder(t testing.TB, st store.Store, r seed.Reporter, strict bool) *seed.Builder {
	t.Helper()
	b, err := seed.NewBuilder(seed.RunContext{Routine: "test", Store: st, Reporter: r, StrictOrdering: strict})
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	return b
}

// faults configures failingStore. Counters are shared with the stores
// handed to InTx callbacks.
type faults struct {
	translation  error
	itemErr      error
	itemsAllowed int // CreateKnowledgeItem calls that succeed before itemErr
	itemCalls    int
}

// failingStore injects write failures into a wrapped store.
type failingStore struct {
	store.Store
	f *faults
}

func (s *failingStore) CreateTranslation(ctx context.Context, t store.Translation) (bool, error) {
	if s.f.translation != nil {
		return false, s.f.translation
	}
	return s.Store.CreateTranslation(ctx, t)
}

func (s *failingStore) CreateKnowledgeItem(ctx context.Context, k store.KnowledgeItem) (string, error) {
	if s.f.itemErr != nil {
		s.f.itemCalls++
		if s.f.itemCalls > s.f.itemsAllowed {
			return "", s.f.itemErr
		}
	}
	return s.Store.CreateKnowledgeItem(ctx, k)
}

func (s *failingStore) InTx(ctx context.Context, fn func(tx store.Store) error) error {
	return s.Store.InTx(ctx, func(tx store.Store) error {
		return fn(&failingStore{Store: tx, f: s.f})
	})
}

// fakeLocker records lock use.
type fakeLocker struct {
	err      error
	acquired int
	released int
}

func (l *fakeLocker) AcquireLock(context.Context, string, time.Duration) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}
