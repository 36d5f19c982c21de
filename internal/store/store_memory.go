package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-seed/internal/curriculum"
)

// MemoryStore is an in-memory implementation of Store. It mirrors the SQL
// schema's unique, foreign-key and cascade rules.
type MemoryStore struct {
	mu   sync.RWMutex
	data *memData
}

type memData struct {
	templates      []Template
	milestones     []Milestone
	tasks          []Task
	subtasks       []Subtask
	knowledgeItems []KnowledgeItem
	languages      []Language
	exercises      []Exercise
	testCases      []TestCase
	translations   []Translation
	runs           []Run
}

func (d *memData) clone() *memData {
	return &memData{
		templates:      slices.Clone(d.templates),
		milestones:     slices.Clone(d.milestones),
		tasks:          slices.Clone(d.tasks),
		subtasks:       slices.Clone(d.subtasks),
		knowledgeItems: slices.Clone(d.knowledgeItems),
		languages:      slices.Clone(d.languages),
		exercises:      slices.Clone(d.exercises),
		testCases:      slices.Clone(d.testCases),
		translations:   slices.Clone(d.translations),
		runs:           slices.Clone(d.runs),
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memData{}}
}

func newID() string {
	return uuid.NewString()
}

func (s *MemoryStore) CreateTemplate(_ context.Context, t Template) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.templates {
		if existing.Slug == t.Slug {
			return "", fmt.Errorf("create template %s: %w", t.Slug, ErrDuplicate)
		}
	}
	t.ID = newID()
	s.data.templates = append(s.data.templates, t)
	return t.ID, nil
}

func (s *MemoryStore) CreateMilestone(_ context.Context, m Milestone) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.ContainsFunc(s.data.templates, func(t Template) bool { return t.ID == m.TemplateID }) {
		return "", fmt.Errorf("create milestone: template %s: %w", m.TemplateID, ErrMissingParent)
	}
	m.ID = newID()
	s.data.milestones = append(s.data.milestones, m)
	return m.ID, nil
}

func (s *MemoryStore) CreateTask(_ context.Context, t Task) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.ContainsFunc(s.data.milestones, func(m Milestone) bool { return m.ID == t.MilestoneID }) {
		return "", fmt.Errorf("create task: milestone %s: %w", t.MilestoneID, ErrMissingParent)
	}
	t.ID = newID()
	s.data.tasks = append(s.data.tasks, t)
	return t.ID, nil
}

func (s *MemoryStore) CreateSubtask(_ context.Context, st Subtask) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.ContainsFunc(s.data.tasks, func(t Task) bool { return t.ID == st.TaskID }) {
		return "", fmt.Errorf("create subtask: task %s: %w", st.TaskID, ErrMissingParent)
	}
	st.ID = newID()
	s.data.subtasks = append(s.data.subtasks, st)
	return st.ID, nil
}

func (s *MemoryStore) CreateKnowledgeItem(_ context.Context, k KnowledgeItem) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.ContainsFunc(s.data.tasks, func(t Task) bool { return t.ID == k.TaskID }) {
		return "", fmt.Errorf("create knowledge item: task %s: %w", k.TaskID, ErrMissingParent)
	}
	k.ID = newID()
	s.data.knowledgeItems = append(s.data.knowledgeItems, k)
	return k.ID, nil
}

func (s *MemoryStore) CreateLanguage(_ context.Context, l Language) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.languages {
		if existing.Slug == l.Slug {
			return "", fmt.Errorf("create language %s: %w", l.Slug, ErrDuplicate)
		}
	}
	l.ID = newID()
	s.data.languages = append(s.data.languages, l)
	return l.ID, nil
}

func (s *MemoryStore) CreateExercise(_ context.Context, e Exercise) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.ContainsFunc(s.data.languages, func(l Language) bool { return l.ID == e.LanguageID }) {
		return "", fmt.Errorf("create exercise: language %s: %w", e.LanguageID, ErrMissingParent)
	}
	for _, existing := range s.data.exercises {
		if existing.LanguageID == e.LanguageID && existing.Slug == e.Slug {
			return "", fmt.Errorf("create exercise %s: %w", e.Slug, ErrDuplicate)
		}
	}
	e.ID = newID()
	s.data.exercises = append(s.data.exercises, e)
	return e.ID, nil
}

func (s *MemoryStore) CreateTestCase(_ context.Context, tc TestCase) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.ContainsFunc(s.data.exercises, func(e Exercise) bool { return e.ID == tc.ExerciseID }) {
		return "", fmt.Errorf("create test case: exercise %s: %w", tc.ExerciseID, ErrMissingParent)
	}
	tc.ID = newID()
	s.data.testCases = append(s.data.testCases, tc)
	return tc.ID, nil
}

func (s *MemoryStore) GetTemplateBySlug(_ context.Context, slug string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.data.templates {
		if t.Slug == slug {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("template %s: %w", slug, ErrNotFound)
}

func (s *MemoryStore) GetLanguageBySlug(_ context.Context, slug string) (*Language, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.data.languages {
		if l.Slug == slug {
			return &l, nil
		}
	}
	return nil, fmt.Errorf("language %s: %w", slug, ErrNotFound)
}

func (s *MemoryStore) ListTemplates(_ context.Context) ([]Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Clone(s.data.templates)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (s *MemoryStore) ListMilestones(_ context.Context, templateID string) ([]Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterByPosition(s.data.milestones,
		func(m Milestone) bool { return m.TemplateID == templateID },
		func(m Milestone) int { return m.Position }), nil
}

func (s *MemoryStore) ListTasks(_ context.Context, milestoneID string) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterByPosition(s.data.tasks,
		func(t Task) bool { return t.MilestoneID == milestoneID },
		func(t Task) int { return t.Position }), nil
}

func (s *MemoryStore) ListSubtasks(_ context.Context, taskID string) ([]Subtask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterByPosition(s.data.subtasks,
		func(st Subtask) bool { return st.TaskID == taskID },
		func(st Subtask) int { return st.Position }), nil
}

func (s *MemoryStore) ListKnowledgeItems(_ context.Context, taskID string) ([]KnowledgeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterByPosition(s.data.knowledgeItems,
		func(k KnowledgeItem) bool { return k.TaskID == taskID },
		func(k KnowledgeItem) int { return k.Position }), nil
}

func (s *MemoryStore) ListLanguages(_ context.Context) ([]Language, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Clone(s.data.languages)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (s *MemoryStore) ListExercises(_ context.Context, languageID string) ([]Exercise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterByPosition(s.data.exercises,
		func(e Exercise) bool { return e.LanguageID == languageID },
		func(e Exercise) int { return e.Position }), nil
}

func (s *MemoryStore) ListTestCases(_ context.Context, exerciseID string) ([]TestCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterByPosition(s.data.testCases,
		func(tc TestCase) bool { return tc.ExerciseID == exerciseID },
		func(tc TestCase) int { return tc.Position }), nil
}

func (s *MemoryStore) DeleteTemplate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.data.templates)
	s.data.templates = slices.DeleteFunc(s.data.templates, func(t Template) bool { return t.ID == id })
	if len(s.data.templates) == before {
		return fmt.Errorf("delete template %s: %w", id, ErrNotFound)
	}

	milestones := make(map[string]bool)
	s.data.milestones = slices.DeleteFunc(s.data.milestones, func(m Milestone) bool {
		if m.TemplateID == id {
			milestones[m.ID] = true
			return true
		}
		return false
	})
	tasks := make(map[string]bool)
	s.data.tasks = slices.DeleteFunc(s.data.tasks, func(t Task) bool {
		if milestones[t.MilestoneID] {
			tasks[t.ID] = true
			return true
		}
		return false
	})
	s.data.subtasks = slices.DeleteFunc(s.data.subtasks, func(st Subtask) bool { return tasks[st.TaskID] })
	s.data.knowledgeItems = slices.DeleteFunc(s.data.knowledgeItems, func(k KnowledgeItem) bool { return tasks[k.TaskID] })
	return nil
}

func (s *MemoryStore) DeleteExercises(_ context.Context, languageID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exercises := make(map[string]bool)
	s.data.exercises = slices.DeleteFunc(s.data.exercises, func(e Exercise) bool {
		if e.LanguageID == languageID {
			exercises[e.ID] = true
			return true
		}
		return false
	})
	s.data.testCases = slices.DeleteFunc(s.data.testCases, func(tc TestCase) bool { return exercises[tc.ExerciseID] })
	return len(exercises), nil
}

func (s *MemoryStore) UpdateLanguage(_ context.Context, l Language) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.languages {
		if s.data.languages[i].ID == l.ID {
			s.data.languages[i].Name = l.Name
			s.data.languages[i].Description = l.Description
			return nil
		}
	}
	return fmt.Errorf("update language %s: %w", l.ID, ErrNotFound)
}

func (s *MemoryStore) CountExercises(_ context.Context, languageID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.data.exercises {
		if e.LanguageID == languageID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SetExerciseCount(_ context.Context, languageID string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.languages {
		if s.data.languages[i].ID == languageID {
			s.data.languages[i].ExerciseCount = count
			return nil
		}
	}
	return fmt.Errorf("set exercise count: language %s: %w", languageID, ErrNotFound)
}

func (s *MemoryStore) CreateTranslation(_ context.Context, t Translation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.translations {
		if existing.OwnerType == t.OwnerType && existing.OwnerID == t.OwnerID &&
			existing.Locale == t.Locale && existing.Field == t.Field {
			return false, nil
		}
	}
	t.ID = newID()
	s.data.translations = append(s.data.translations, t)
	return true, nil
}

func (s *MemoryStore) DeleteTranslations(_ context.Context, ownerTypes []curriculum.EntityKind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.data.translations)
	s.data.translations = slices.DeleteFunc(s.data.translations, func(t Translation) bool {
		return slices.Contains(ownerTypes, t.OwnerType)
	})
	return before - len(s.data.translations), nil
}

func (s *MemoryStore) ListTranslations(_ context.Context, ownerType curriculum.EntityKind) ([]Translation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Translation
	for _, t := range s.data.translations {
		if t.OwnerType == ownerType {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.OwnerID != b.OwnerID {
			return a.OwnerID < b.OwnerID
		}
		if a.Locale != b.Locale {
			return a.Locale < b.Locale
		}
		return a.Field < b.Field
	})
	return out, nil
}

func (s *MemoryStore) StartRun(_ context.Context, r Run) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = newID()
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if r.Status == "" {
		r.Status = RunRunning
	}
	s.data.runs = append(s.data.runs, r)
	return r.ID, nil
}

func (s *MemoryStore) FinishRun(_ context.Context, r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.runs {
		if s.data.runs[i].ID != r.ID {
			continue
		}
		now := time.Now()
		run := &s.data.runs[i]
		run.Status = r.Status
		run.Created = r.Created
		run.Deleted = r.Deleted
		run.Error = r.Error
		run.FinishedAt = &now
		return nil
	}
	return fmt.Errorf("finish run %s: %w", r.ID, ErrNotFound)
}

func (s *MemoryStore) LastSuccessfulRun(_ context.Context, name string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.data.runs) - 1; i >= 0; i-- {
		r := s.data.runs[i]
		if r.Name == name && r.Status == RunSucceeded {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("run %s: %w", name, ErrNotFound)
}

// InTx snapshots the data, runs fn and restores the snapshot if fn fails.
// MemoryStore assumes a single writer, like the seeder itself.
func (s *MemoryStore) InTx(_ context.Context, fn func(tx Store) error) error {
	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func filterByPosition[T any](rows []T, keep func(T) bool, position func(T) int) []T {
	var out []T
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return position(out[i]) < position(out[j]) })
	return out
}
