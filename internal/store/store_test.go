package store_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-seed/internal/curriculum"
	"github.com/p-n-ai/pai-seed/internal/store"
)

// testStoreContract runs the behaviour every Store implementation shares.
// newStore must return an empty store.
func testStoreContract(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("template tree", func(t *testing.T) { testTemplateTree(t, newStore(t)) })
	t.Run("uniqueness", func(t *testing.T) { testUniqueness(t, newStore(t)) })
	t.Run("missing parent", func(t *testing.T) { testMissingParent(t, newStore(t)) })
	t.Run("delete template cascades", func(t *testing.T) { testDeleteTemplate(t, newStore(t)) })
	t.Run("exercise bank", func(t *testing.T) { testExerciseBank(t, newStore(t)) })
	t.Run("translations", func(t *testing.T) { testTranslations(t, newStore(t)) })
	t.Run("run ledger", func(t *testing.T) { testRunLedger(t, newStore(t)) })
	t.Run("transactions", func(t *testing.T) { testInTx(t, newStore(t)) })
}

// mustID returns a func that unwraps the (id, error) result of a Create call,
// failing the test on error: mustID(t)(st.CreateTemplate(ctx, tmpl)).
func mustID(t *testing.T) func(string, error) string {
	return func(id string, err error) string {
		t.Helper()
		if err != nil {
			t.Fatalf("create error = %v", err)
		}
		if id == "" {
			t.Fatal("create returned empty ID")
		}
		return id
	}
}

func testTemplateTree(t *testing.T, st store.Store) {
	ctx := context.Background()
	want := store.Template{
		Slug: "go-basics", Title: "Go Basics", Difficulty: "beginner", EstimatedHours: 8,
		Tags: []string{"go", "backend"}, Metadata: map[string]string{"track": "backend"}, Featured: true,
	}
	tmplID := mustID(t)(st.CreateTemplate(ctx, want))

	got, err := st.GetTemplateBySlug(ctx, "go-basics")
	if err != nil {
		t.Fatalf("GetTemplateBySlug() error = %v", err)
	}
	want.ID = tmplID
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("GetTemplateBySlug() = %+v, want %+v", *got, want)
	}

	// inserted out of order, listed by position
	for _, pos := range []int{3, 1, 2} {
		mustID(t)(st.CreateMilestone(ctx, store.Milestone{TemplateID: tmplID, Title: "M", Position: pos, Deliverables: []string{"demo"}}))
	}
	milestones, err := st.ListMilestones(ctx, tmplID)
	if err != nil {
		t.Fatalf("ListMilestones() error = %v", err)
	}
	for i, m := range milestones {
		if m.Position != i+1 || m.TemplateID != tmplID {
			t.Errorf("milestone %d = %+v", i, m)
		}
	}

	taskID := mustID(t)(st.CreateTask(ctx, store.Task{MilestoneID: milestones[0].ID, Title: "T", Position: 1, Priority: 2, Resources: []string{"https://go.dev"}}))
	mustID(t)(st.CreateSubtask(ctx, store.Subtask{TaskID: taskID, Title: "S", Position: 1}))

	items := []store.KnowledgeItem{
		{TaskID: taskID, Kind: "note", Title: "N", Position: 1, Body: "body"},
		{TaskID: taskID, Kind: "code_snippet", Title: "C", Position: 2, Body: "x := 1", Language: "go"},
		{TaskID: taskID, Kind: "exercise", Title: "E", Position: 3, Question: "q", Answer: "a", Difficulty: "beginner"},
		{TaskID: taskID, Kind: "resource_link", Title: "L", Position: 4, URL: "https://go.dev", Description: "d"},
	}
	for _, k := range items {
		mustID(t)(st.CreateKnowledgeItem(ctx, k))
	}
	gotItems, err := st.ListKnowledgeItems(ctx, taskID)
	if err != nil {
		t.Fatalf("ListKnowledgeItems() error = %v", err)
	}
	if len(gotItems) != len(items) {
		t.Fatalf("got %d items, want %d", len(gotItems), len(items))
	}
	for i := range items {
		items[i].ID = gotItems[i].ID
		if !reflect.DeepEqual(gotItems[i], items[i]) {
			t.Errorf("item %d = %+v, want %+v", i, gotItems[i], items[i])
		}
	}

	subtasks, _ := st.ListSubtasks(ctx, taskID)
	tasks, _ := st.ListTasks(ctx, milestones[0].ID)
	if len(subtasks) != 1 || len(tasks) != 1 || tasks[0].Resources[0] != "https://go.dev" {
		t.Errorf("subtasks = %+v, tasks = %+v", subtasks, tasks)
	}

	if _, err := st.GetTemplateBySlug(ctx, "rust-basics"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetTemplateBySlug(missing) error = %v, want ErrNotFound", err)
	}
}

func testUniqueness(t *testing.T, st store.Store) {
	ctx := context.Background()
	mustID(t)(st.CreateTemplate(ctx, store.Template{Slug: "go-basics", Title: "A"}))
	if _, err := st.CreateTemplate(ctx, store.Template{Slug: "go-basics", Title: "B"}); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("duplicate template error = %v, want ErrDuplicate", err)
	}

	goID := mustID(t)(st.CreateLanguage(ctx, store.Language{Slug: "go", Name: "Go"}))
	pyID := mustID(t)(st.CreateLanguage(ctx, store.Language{Slug: "python", Name: "Python"}))
	mustID(t)(st.CreateExercise(ctx, store.Exercise{LanguageID: goID, Slug: "go-exercise-1", Title: "E", Prompt: "p", Position: 1}))
	if _, err := st.CreateExercise(ctx, store.Exercise{LanguageID: goID, Slug: "go-exercise-1", Title: "E", Prompt: "p", Position: 1}); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("duplicate exercise error = %v, want ErrDuplicate", err)
	}
	// slugs are unique per language
	mustID(t)(st.CreateExercise(ctx, store.Exercise{LanguageID: pyID, Slug: "go-exercise-1", Title: "E", Prompt: "p", Position: 1}))
}

func testMissingParent(t *testing.T, st store.Store) {
	ctx := context.Background()
	missing := uuid.NewString()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"milestone", func() error {
			_, err := st.CreateMilestone(ctx, store.Milestone{TemplateID: missing, Title: "M"})
			return err
		}},
		{"task", func() error {
			_, err := st.CreateTask(ctx, store.Task{MilestoneID: missing, Title: "T", Priority: 1})
			return err
		}},
		{"knowledge item", func() error {
			_, err := st.CreateKnowledgeItem(ctx, store.KnowledgeItem{TaskID: missing, Kind: "note", Title: "N", Body: "b"})
			return err
		}},
		{"exercise", func() error {
			_, err := st.CreateExercise(ctx, store.Exercise{LanguageID: missing, Slug: "x-exercise-1", Title: "E", Prompt: "p"})
			return err
		}},
		{"test case", func() error {
			_, err := st.CreateTestCase(ctx, store.TestCase{ExerciseID: missing, ExpectedOutput: "1"})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, store.ErrMissingParent) {
				t.Errorf("error = %v, want ErrMissingParent", err)
			}
		})
	}
}

func testDeleteTemplate(t *testing.T, st store.Store) {
	ctx := context.Background()
	tmplID := mustID(t)(st.CreateTemplate(ctx, store.Template{Slug: "go-basics", Title: "A"}))
	mID := mustID(t)(st.CreateMilestone(ctx, store.Milestone{TemplateID: tmplID, Title: "M", Position: 1}))
	taskID := mustID(t)(st.CreateTask(ctx, store.Task{MilestoneID: mID, Title: "T", Position: 1, Priority: 1}))
	mustID(t)(st.CreateKnowledgeItem(ctx, store.KnowledgeItem{TaskID: taskID, Kind: "note", Title: "N", Body: "b"}))
	mustID(t)(st.CreateSubtask(ctx, store.Subtask{TaskID: taskID, Title: "S"}))

	if err := st.DeleteTemplate(ctx, tmplID); err != nil {
		t.Fatalf("DeleteTemplate() error = %v", err)
	}
	templates, _ := st.ListTemplates(ctx)
	milestones, _ := st.ListMilestones(ctx, tmplID)
	tasks, _ := st.ListTasks(ctx, mID)
	items, _ := st.ListKnowledgeItems(ctx, taskID)
	subtasks, _ := st.ListSubtasks(ctx, taskID)
	if n := len(templates) + len(milestones) + len(tasks) + len(items) + len(subtasks); n != 0 {
		t.Errorf("%d rows left after delete, want 0", n)
	}

	if err := st.DeleteTemplate(ctx, tmplID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second DeleteTemplate() error = %v, want ErrNotFound", err)
	}
}

func testExerciseBank(t *testing.T, st store.Store) {
	ctx := context.Background()
	langID := mustID(t)(st.CreateLanguage(ctx, store.Language{Slug: "go", Name: "Go"}))

	want := store.Exercise{
		LanguageID: langID, Slug: "go-exercise-1", Title: "Hello", Prompt: "Print hello",
		Hints: []string{"fmt"}, Tags: []string{"io"}, Difficulty: "beginner", Points: 5,
		TimeLimitSeconds: 2, Published: true, Position: 1,
	}
	exID := mustID(t)(st.CreateExercise(ctx, want))
	mustID(t)(st.CreateExercise(ctx, store.Exercise{LanguageID: langID, Slug: "go-exercise-2", Title: "Sum", Prompt: "p", Position: 2}))
	mustID(t)(st.CreateTestCase(ctx, store.TestCase{ExerciseID: exID, Input: "", ExpectedOutput: "hello", IsSample: true, Position: 1}))

	exercises, err := st.ListExercises(ctx, langID)
	if err != nil {
		t.Fatalf("ListExercises() error = %v", err)
	}
	want.ID = exID
	if len(exercises) != 2 || !reflect.DeepEqual(exercises[0], want) {
		t.Errorf("ListExercises()[0] = %+v, want %+v", exercises[0], want)
	}

	n, err := st.CountExercises(ctx, langID)
	if err != nil || n != 2 {
		t.Fatalf("CountExercises() = %d, %v; want 2", n, err)
	}
	if err := st.SetExerciseCount(ctx, langID, n); err != nil {
		t.Fatalf("SetExerciseCount() error = %v", err)
	}
	if err := st.UpdateLanguage(ctx, store.Language{ID: langID, Name: "Golang", Description: "d"}); err != nil {
		t.Fatalf("UpdateLanguage() error = %v", err)
	}
	lang, _ := st.GetLanguageBySlug(ctx, "go")
	if lang.ExerciseCount != 2 || lang.Name != "Golang" || lang.Description != "d" {
		t.Errorf("language = %+v", lang)
	}

	deleted, err := st.DeleteExercises(ctx, langID)
	if err != nil || deleted != 2 {
		t.Fatalf("DeleteExercises() = %d, %v; want 2", deleted, err)
	}
	cases, _ := st.ListTestCases(ctx, exID)
	if len(cases) != 0 {
		t.Error("test cases should be deleted with their exercise")
	}

	if err := st.SetExerciseCount(ctx, uuid.NewString(), 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SetExerciseCount(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := st.GetLanguageBySlug(ctx, "rust"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetLanguageBySlug(missing) error = %v, want ErrNotFound", err)
	}
}

func testTranslations(t *testing.T, st store.Store) {
	ctx := context.Background()
	owner := uuid.NewString()
	rows := []store.Translation{
		{OwnerType: curriculum.KindTask, OwnerID: owner, Locale: "ms", Field: "title", Value: "Tugasan"},
		{OwnerType: curriculum.KindTask, OwnerID: owner, Locale: "ms", Field: "description", Value: "Huraian"},
		{OwnerType: curriculum.KindExercise, OwnerID: owner, Locale: "zh", Field: "title", Value: "练习"},
	}
	for _, r := range rows {
		created, err := st.CreateTranslation(ctx, r)
		if err != nil || !created {
			t.Fatalf("CreateTranslation() = %v, %v", created, err)
		}
	}
	created, err := st.CreateTranslation(ctx, rows[0])
	if err != nil || created {
		t.Errorf("repeated CreateTranslation() = %v, %v; want false, nil", created, err)
	}

	tasks, _ := st.ListTranslations(ctx, curriculum.KindTask)
	if len(tasks) != 2 || tasks[0].Field != "description" {
		t.Errorf("ListTranslations(task) = %+v", tasks)
	}

	n, err := st.DeleteTranslations(ctx, []curriculum.EntityKind{curriculum.KindTask, curriculum.KindMilestone})
	if err != nil || n != 2 {
		t.Fatalf("DeleteTranslations() = %d, %v; want 2", n, err)
	}
	exercises, _ := st.ListTranslations(ctx, curriculum.KindExercise)
	if len(exercises) != 1 {
		t.Error("translations of other owner types must survive a scoped delete")
	}
}

func testRunLedger(t *testing.T, st store.Store) {
	ctx := context.Background()
	if _, err := st.LastSuccessfulRun(ctx, "templates"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("LastSuccessfulRun() on empty ledger error = %v, want ErrNotFound", err)
	}

	first := mustID(t)(st.StartRun(ctx, store.Run{Name: "templates", Fingerprint: "aaa", Status: store.RunRunning}))
	if err := st.FinishRun(ctx, store.Run{ID: first, Status: store.RunSucceeded, Created: 12}); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}
	second := mustID(t)(st.StartRun(ctx, store.Run{Name: "templates", Fingerprint: "bbb", Status: store.RunRunning}))
	if err := st.FinishRun(ctx, store.Run{ID: second, Status: store.RunFailed, Error: "boom"}); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	last, err := st.LastSuccessfulRun(ctx, "templates")
	if err != nil {
		t.Fatalf("LastSuccessfulRun() error = %v", err)
	}
	if last.ID != first || last.Fingerprint != "aaa" || last.Created != 12 || last.FinishedAt == nil {
		t.Errorf("LastSuccessfulRun() = %+v, want the first run", last)
	}

	if err := st.FinishRun(ctx, store.Run{ID: uuid.NewString(), Status: store.RunSucceeded}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FinishRun(unknown) error = %v, want ErrNotFound", err)
	}
}

func testInTx(t *testing.T, st store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.InTx(ctx, func(tx store.Store) error {
		id, err := tx.CreateTemplate(ctx, store.Template{Slug: "rolled-back", Title: "R"})
		if err != nil {
			return err
		}
		if _, err := tx.CreateMilestone(ctx, store.Milestone{TemplateID: id, Title: "M"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}
	if _, err := st.GetTemplateBySlug(ctx, "rolled-back"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("rolled back template is visible: %v", err)
	}

	err = st.InTx(ctx, func(tx store.Store) error {
		_, err := tx.CreateTemplate(ctx, store.Template{Slug: "committed", Title: "C"})
		return err
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}
	if _, err := st.GetTemplateBySlug(ctx, "committed"); err != nil {
		t.Errorf("committed template missing: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) store.Store { return store.NewMemoryStore() })
}
