package curriculum_test

import (
	"errors"
	"testing"

	"github.com/p-n-ai/pai-seed/internal/curriculum"
)

func TestValidate_KnowledgeItemVariants(t *testing.T) {
	tests := []struct {
		name      string
		item      curriculum.KnowledgeItemDef
		wantField string
	}{
		{
			name: "note ok",
			item: curriculum.KnowledgeItemDef{Kind: curriculum.ItemNote, Title: "N", Note: &curriculum.NoteBody{Body: "b"}},
		},
		{
			name:      "note without body",
			item:      curriculum.KnowledgeItemDef{Kind: curriculum.ItemNote, Title: "N", Note: &curriculum.NoteBody{}},
			wantField: "body",
		},
		{
			name: "snippet ok",
			item: curriculum.KnowledgeItemDef{Kind: curriculum.ItemCodeSnippet, Title: "S", Snippet: &curriculum.CodeSnippetBody{Body: "x := 1", Language: "go"}},
		},
		{
			name:      "snippet without language",
			item:      curriculum.KnowledgeItemDef{Kind: curriculum.ItemCodeSnippet, Title: "S", Snippet: &curriculum.CodeSnippetBody{Body: "x := 1"}},
			wantField: "language",
		},
		{
			name: "exercise ok",
			item: curriculum.KnowledgeItemDef{Kind: curriculum.ItemExercise, Title: "E", Exercise: &curriculum.ExerciseBody{Question: "q", Answer: "a"}},
		},
		{
			name:      "exercise without question",
			item:      curriculum.KnowledgeItemDef{Kind: curriculum.ItemExercise, Title: "E", Exercise: &curriculum.ExerciseBody{Answer: "a"}},
			wantField: "question",
		},
		{
			name:      "exercise with unknown difficulty",
			item:      curriculum.KnowledgeItemDef{Kind: curriculum.ItemExercise, Title: "E", Exercise: &curriculum.ExerciseBody{Question: "q", Answer: "a", Difficulty: "expert"}},
			wantField: "difficulty",
		},
		{
			name: "link ok",
			item: curriculum.KnowledgeItemDef{Kind: curriculum.ItemResourceLink, Title: "L", Link: &curriculum.ResourceLinkBody{URL: "https://go.dev", Description: "d"}},
		},
		{
			name:      "link without url",
			item:      curriculum.KnowledgeItemDef{Kind: curriculum.ItemResourceLink, Title: "L", Link: &curriculum.ResourceLinkBody{Description: "d"}},
			wantField: "url",
		},
		{
			name:      "missing title",
			item:      curriculum.KnowledgeItemDef{Kind: curriculum.ItemNote, Note: &curriculum.NoteBody{Body: "b"}},
			wantField: "title",
		},
		{
			name:      "negative position",
			item:      curriculum.KnowledgeItemDef{Kind: curriculum.ItemNote, Title: "N", Position: -1, Note: &curriculum.NoteBody{Body: "b"}},
			wantField: "position",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := curriculum.Validate(curriculum.KindKnowledgeItem, tt.item)
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			var ve *curriculum.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q (%v)", ve.Field, tt.wantField, ve)
			}
		})
	}
}

func TestValidate_OtherKinds(t *testing.T) {
	tests := []struct {
		name    string
		kind    curriculum.EntityKind
		payload any
		wantErr bool
	}{
		{"task ok", curriculum.KindTask, curriculum.TaskDef{Title: "T", Priority: 3}, false},
		{"task priority zero", curriculum.KindTask, curriculum.TaskDef{Title: "T"}, true},
		{"task empty resource", curriculum.KindTask, curriculum.TaskDef{Title: "T", Priority: 1, Resources: []string{""}}, true},
		{"milestone ok", curriculum.KindMilestone, curriculum.MilestoneDef{Title: "M"}, false},
		{"milestone negative hours", curriculum.KindMilestone, curriculum.MilestoneDef{Title: "M", EstimatedHours: -2}, true},
		{"subtask without title", curriculum.KindSubtask, curriculum.SubtaskDef{Position: 1}, true},
		{"exercise without prompt", curriculum.KindExercise, curriculum.ExerciseDef{Title: "E"}, true},
		{"test case sample and hidden", curriculum.KindTestCase, curriculum.TestCaseDef{ExpectedOutput: "1", IsSample: true, IsHidden: true}, false},
		{"test case hidden only", curriculum.KindTestCase, curriculum.TestCaseDef{ExpectedOutput: "1", IsHidden: true}, false},
		{"language bad slug", curriculum.KindLanguage, curriculum.LanguageDef{Slug: "Go!", Name: "Go"}, true},
		{"template ok", curriculum.KindTemplate, curriculum.TemplateDef{Slug: "go-basics", Title: "Go"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := curriculum.Validate(tt.kind, tt.payload)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTemplate_ReportsNodeKey(t *testing.T) {
	s, err := curriculum.DefaultSchema()
	if err != nil {
		t.Fatalf("DefaultSchema() error = %v", err)
	}

	tmpl := curriculum.TemplateDef{
		Slug:  "go-basics",
		Title: "Go Basics",
		Milestones: []curriculum.MilestoneDef{{
			Title: "M", Position: 1,
			Tasks: []curriculum.TaskDef{{
				Title: "T", Position: 2, Priority: 1,
				Subtasks: []curriculum.SubtaskDef{{Position: 3}},
			}},
		}},
	}
	err = s.ValidateTemplate(tmpl)
	var ve *curriculum.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("ValidateTemplate() error = %v, want *ValidationError", err)
	}
	if ve.Key != "go-basics/m1/t2/s3" || ve.Kind != curriculum.KindSubtask {
		t.Errorf("Key, Kind = %q, %q; want go-basics/m1/t2/s3, subtask", ve.Key, ve.Kind)
	}
}

func TestValidateLanguage_ReportsExerciseSlug(t *testing.T) {
	s, err := curriculum.DefaultSchema()
	if err != nil {
		t.Fatalf("DefaultSchema() error = %v", err)
	}

	lang := curriculum.LanguageDef{
		Slug: "go", Name: "Go",
		Exercises: []curriculum.ExerciseDef{{
			Title: "Hello", Prompt: "p", Position: 4,
			TestCases: []curriculum.TestCaseDef{{Position: 1}},
		}},
	}
	err = s.ValidateLanguage(lang)
	var ve *curriculum.ValidationError
	if !errors.As(err, &ve) || ve.Key != "go-exercise-4#tc1" {
		t.Errorf("ValidateLanguage() error = %v, want key go-exercise-4#tc1", err)
	}
}
