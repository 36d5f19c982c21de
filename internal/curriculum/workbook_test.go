package curriculum_test

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-seed/internal/curriculum"
)

func TestExerciseWorkbook(t *testing.T) {
	lang := curriculum.LanguageDef{
		Slug:         "go",
		Name:         "Go",
		Description:  "The Go programming language",
		Translations: curriculum.Translations{"ms": {"name": "Go", "description": "Bahasa Go"}},
		Exercises: []curriculum.ExerciseDef{
			{
				Title: "Hello", Prompt: "Print hello", Position: 1, TimeLimitSeconds: 5,
				StarterCode:  "package main",
				Translations: curriculum.Translations{"ms": {"title": "Helo"}, "zh": {"title": "你好"}},
				TestCases: []curriculum.TestCaseDef{{
					ExpectedOutput: "hello", IsSample: true, Position: 1,
					Translations: curriculum.Translations{"ms": {"description": "contoh"}},
				}},
			},
			{
				Title: "Sum", Prompt: "Add two ints", Position: 2, Points: 20,
				Hints:      []string{"first line\nsecond line", "print the sum, then a newline"},
				Tags:       []string{"math", "io,stdin"},
				Difficulty: curriculum.DifficultyIntermediate,
				Published:  true,
				TestCases: []curriculum.TestCaseDef{
					{Input: "1 2", ExpectedOutput: "3", IsSample: true, Position: 1},
					{Input: "-1 1", ExpectedOutput: "0", IsHidden: true, Position: 2, Description: "negatives"},
				},
			},
		},
	}

	path := filepath.Join(t.TempDir(), "go.exercises.xlsx")
	if err := curriculum.WriteExerciseWorkbook(path, lang); err != nil {
		t.Fatalf("WriteExerciseWorkbook() error = %v", err)
	}
	got, err := curriculum.ReadExerciseWorkbook(path)
	if err != nil {
		t.Fatalf("ReadExerciseWorkbook() error = %v", err)
	}

	if !reflect.DeepEqual(got, lang) {
		t.Errorf("round trip mismatch\n got  %+v\n want %+v", got, lang)
	}
}

func TestWriteExerciseWorkbook_SortsByPosition(t *testing.T) {
	lang := curriculum.LanguageDef{
		Slug: "go", Name: "Go",
		Exercises: []curriculum.ExerciseDef{
			{Title: "Second", Prompt: "p", Position: 2},
			{Title: "First", Prompt: "p", Position: 1},
		},
	}
	path := filepath.Join(t.TempDir(), "go.exercises.xlsx")
	if err := curriculum.WriteExerciseWorkbook(path, lang); err != nil {
		t.Fatalf("WriteExerciseWorkbook() error = %v", err)
	}
	got, err := curriculum.ReadExerciseWorkbook(path)
	if err != nil {
		t.Fatalf("ReadExerciseWorkbook() error = %v", err)
	}
	if got.Exercises[0].Title != "First" || got.Exercises[1].Title != "Second" {
		t.Errorf("exercises = %q, %q; want First, Second", got.Exercises[0].Title, got.Exercises[1].Title)
	}
}

func TestWriteExerciseWorkbook_DuplicatePositions(t *testing.T) {
	tests := []struct {
		name      string
		exercises []curriculum.ExerciseDef
	}{
		{"exercise", []curriculum.ExerciseDef{
			{Title: "A", Prompt: "p", Position: 1},
			{Title: "B", Prompt: "p", Position: 1},
		}},
		{"test case", []curriculum.ExerciseDef{
			{Title: "A", Prompt: "p", Position: 1, TestCases: []curriculum.TestCaseDef{
				{ExpectedOutput: "1", Position: 1},
				{ExpectedOutput: "2", Position: 1},
			}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lang := curriculum.LanguageDef{Slug: "go", Name: "Go", Exercises: tt.exercises}
			err := curriculum.WriteExerciseWorkbook(filepath.Join(t.TempDir(), "go.exercises.xlsx"), lang)
			if err == nil || !strings.Contains(err.Error(), "duplicate") {
				t.Errorf("WriteExerciseWorkbook() error = %v, want duplicate position error", err)
			}
		})
	}
}

func TestReadExerciseWorkbook_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		exercises [][]any
		testCases [][]any
		want      string
	}{
		{
			name:      "duplicate exercise position",
			exercises: [][]any{{1, "A", "p"}, {1, "B", "p"}},
			testCases: [][]any{{1, 1, "", "x"}},
			want:      "duplicate exercise position 1",
		},
		{
			name:      "duplicate test case position",
			exercises: [][]any{{1, "A", "p"}},
			testCases: [][]any{{1, 1, "", "x"}, {1, 1, "", "y"}},
			want:      "duplicate test case position 1",
		},
		{
			name:      "test case without exercise",
			exercises: [][]any{{1, "A", "p"}},
			testCases: [][]any{{2, 1, "", "x"}},
			want:      "no exercise at position 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeRawWorkbook(t, tt.exercises, tt.testCases)
			_, err := curriculum.ReadExerciseWorkbook(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ReadExerciseWorkbook() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestReadExerciseWorkbook_HandWrittenLists(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	mustSetRows(t, f, "Sheet1", [][]any{{"slug", "go"}, {"name", "Go"}})
	mustSetRows(t, f, "exercises", [][]any{
		{"position", "title", "prompt", "hints", "tags"},
		{1, "A", "p", "parse input\nprint result", "io, math"},
	})
	if err := f.SetSheetName("Sheet1", "language"); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "go.exercises.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	got, err := curriculum.ReadExerciseWorkbook(path)
	if err != nil {
		t.Fatalf("ReadExerciseWorkbook() error = %v", err)
	}
	ex := got.Exercises[0]
	if !reflect.DeepEqual(ex.Hints, []string{"parse input", "print result"}) {
		t.Errorf("Hints = %q", ex.Hints)
	}
	if !reflect.DeepEqual(ex.Tags, []string{"io", "math"}) {
		t.Errorf("Tags = %q", ex.Tags)
	}
}

// writeRawWorkbook writes exercise rows (position, title, prompt) and test
// case rows (exercise_position, position, input, expected_output) as given.
func writeRawWorkbook(t *testing.T, exercises, testCases [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	mustSetRows(t, f, "Sheet1", [][]any{{"slug", "go"}, {"name", "Go"}})
	if err := f.SetSheetName("Sheet1", "language"); err != nil {
		t.Fatal(err)
	}
	mustSetRows(t, f, "exercises", append([][]any{{"position", "title", "prompt"}}, exercises...))
	mustSetRows(t, f, "test_cases", append([][]any{{"exercise_position", "position", "input", "expected_output"}}, testCases...))

	path := filepath.Join(t.TempDir(), "raw.exercises.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func mustSetRows(t *testing.T, f *excelize.File, sheet string, rows [][]any) {
	t.Helper()
	if _, err := f.NewSheet(sheet); err != nil {
		t.Fatal(err)
	}
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLoader_ReadsWorkbooks(t *testing.T) {
	dir := t.TempDir()
	lang := curriculum.LanguageDef{
		Slug: "python", Name: "Python",
		Exercises: []curriculum.ExerciseDef{{Title: "Hi", Prompt: "Say hi", Position: 1}},
	}
	if err := curriculum.WriteExerciseWorkbook(filepath.Join(dir, "python.exercises.xlsx"), lang); err != nil {
		t.Fatalf("WriteExerciseWorkbook() error = %v", err)
	}

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	got, found := loader.GetLanguage("python")
	if !found || len(got.Exercises) != 1 {
		t.Errorf("GetLanguage(python) = %+v, %v", got, found)
	}
}
