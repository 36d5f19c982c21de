package curriculum

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Exercise banks can be authored as workbooks with four sheets:
//
//	language      key/value rows: slug, name, description
//	exercises     one row per exercise, header row first
//	test_cases    one row per test case, keyed by exercise_position
//	translations  one row per translated field (optional)
//
// Positions are the join keys between sheets, so exercise positions must be
// unique within the bank and test case positions unique within an exercise.
const (
	sheetLanguage     = "language"
	sheetExercises    = "exercises"
	sheetTestCases    = "test_cases"
	sheetTranslations = "translations"
)

var exerciseColumns = []string{
	"position", "title", "description", "prompt", "starter_code", "solution",
	"hints", "difficulty", "points", "tags", "time_limit_seconds", "published",
}

var testCaseColumns = []string{
	"exercise_position", "position", "input", "expected_output", "description", "is_sample", "is_hidden",
}

// owner is language, exercise or test_case; the position columns locate it.
var translationColumns = []string{
	"owner", "exercise_position", "test_case_position", "locale", "field", "value",
}

// ReadExerciseWorkbook reads a language and its exercise bank from an .xlsx file.
// The hints and tags cells hold a JSON array of strings; hand-written cells
// may instead separate hints by newlines and tags by commas.
func ReadExerciseWorkbook(path string) (LanguageDef, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return LanguageDef{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var lang LanguageDef
	rows, err := f.GetRows(sheetLanguage)
	if err != nil {
		return LanguageDef{}, fmt.Errorf("read %s sheet: %w", sheetLanguage, err)
	}
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		switch strings.TrimSpace(row[0]) {
		case "slug":
			lang.Slug = strings.TrimSpace(row[1])
		case "name":
			lang.Name = strings.TrimSpace(row[1])
		case "description":
			lang.Description = row[1]
		}
	}

	exRows, err := readTable(f, sheetExercises)
	if err != nil {
		return LanguageDef{}, err
	}
	byPosition := make(map[int]int, len(exRows))
	for i, r := range exRows {
		ex, err := exerciseFromRow(r)
		if err != nil {
			return LanguageDef{}, fmt.Errorf("%s row %d: %w", sheetExercises, i+2, err)
		}
		if _, dup := byPosition[ex.Position]; dup {
			return LanguageDef{}, fmt.Errorf("%s row %d: duplicate exercise position %d", sheetExercises, i+2, ex.Position)
		}
		byPosition[ex.Position] = len(lang.Exercises)
		lang.Exercises = append(lang.Exercises, ex)
	}

	tcRows, err := readTable(f, sheetTestCases)
	if err != nil {
		return LanguageDef{}, err
	}
	for i, r := range tcRows {
		exPos, err := atoiCell(r["exercise_position"])
		if err != nil {
			return LanguageDef{}, fmt.Errorf("%s row %d: exercise_position: %w", sheetTestCases, i+2, err)
		}
		idx, ok := byPosition[exPos]
		if !ok {
			return LanguageDef{}, fmt.Errorf("%s row %d: no exercise at position %d", sheetTestCases, i+2, exPos)
		}
		tc, err := testCaseFromRow(r)
		if err != nil {
			return LanguageDef{}, fmt.Errorf("%s row %d: %w", sheetTestCases, i+2, err)
		}
		if findTestCase(lang.Exercises[idx].TestCases, tc.Position) >= 0 {
			return LanguageDef{}, fmt.Errorf("%s row %d: duplicate test case position %d in exercise %d",
				sheetTestCases, i+2, tc.Position, exPos)
		}
		lang.Exercises[idx].TestCases = append(lang.Exercises[idx].TestCases, tc)
	}

	if err := readTranslations(f, &lang, byPosition); err != nil {
		return LanguageDef{}, err
	}
	return lang, nil
}

// readTranslations attaches the rows of the optional translations sheet.
func readTranslations(f *excelize.File, lang *LanguageDef, byPosition map[int]int) error {
	if idx, err := f.GetSheetIndex(sheetTranslations); err != nil || idx < 0 {
		return nil
	}
	rows, err := readTable(f, sheetTranslations)
	if err != nil {
		return err
	}
	for i, r := range rows {
		target, err := translationTarget(lang, byPosition, r)
		if err != nil {
			return fmt.Errorf("%s row %d: %w", sheetTranslations, i+2, err)
		}
		locale, field := strings.TrimSpace(r["locale"]), strings.TrimSpace(r["field"])
		if locale == "" || field == "" {
			return fmt.Errorf("%s row %d: locale and field are required", sheetTranslations, i+2)
		}
		if *target == nil {
			*target = Translations{}
		}
		if (*target)[locale] == nil {
			(*target)[locale] = map[string]string{}
		}
		(*target)[locale][field] = r["value"]
	}
	return nil
}

func translationTarget(lang *LanguageDef, byPosition map[int]int, r map[string]string) (*Translations, error) {
	owner := EntityKind(strings.TrimSpace(r["owner"]))
	if owner == KindLanguage {
		return &lang.Translations, nil
	}
	if owner != KindExercise && owner != KindTestCase {
		return nil, fmt.Errorf("owner %q: want language, exercise or test_case", owner)
	}

	exPos, err := atoiCell(r["exercise_position"])
	if err != nil {
		return nil, fmt.Errorf("exercise_position: %w", err)
	}
	idx, ok := byPosition[exPos]
	if !ok {
		return nil, fmt.Errorf("no exercise at position %d", exPos)
	}
	ex := &lang.Exercises[idx]
	if owner == KindExercise {
		return &ex.Translations, nil
	}

	tcPos, err := atoiCell(r["test_case_position"])
	if err != nil {
		return nil, fmt.Errorf("test_case_position: %w", err)
	}
	j := findTestCase(ex.TestCases, tcPos)
	if j < 0 {
		return nil, fmt.Errorf("no test case at position %d in exercise %d", tcPos, exPos)
	}
	return &ex.TestCases[j].Translations, nil
}

func findTestCase(cases []TestCaseDef, position int) int {
	return slices.IndexFunc(cases, func(tc TestCaseDef) bool { return tc.Position == position })
}

// WriteExerciseWorkbook writes lang in the layout ReadExerciseWorkbook expects.
func WriteExerciseWorkbook(path string, lang LanguageDef) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetLanguage); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for i, kv := range [][]any{{"slug", lang.Slug}, {"name", lang.Name}, {"description", lang.Description}} {
		if err := f.SetSheetRow(sheetLanguage, cellName(1, i+1), &kv); err != nil {
			return fmt.Errorf("write %s sheet: %w", sheetLanguage, err)
		}
	}

	exercises := append([]ExerciseDef(nil), lang.Exercises...)
	sort.SliceStable(exercises, func(i, j int) bool { return exercises[i].Position < exercises[j].Position })

	exRows := [][]any{toAny(exerciseColumns)}
	tcRows := [][]any{toAny(testCaseColumns)}
	trRows := [][]any{toAny(translationColumns)}
	trRows = appendTranslationRows(trRows, lang.Translations, KindLanguage, "", "")
	for i, ex := range exercises {
		if i > 0 && exercises[i-1].Position == ex.Position {
			return fmt.Errorf("duplicate exercise position %d", ex.Position)
		}
		hints, err := listCell(ex.Hints)
		if err != nil {
			return fmt.Errorf("exercise %d hints: %w", ex.Position, err)
		}
		tags, err := listCell(ex.Tags)
		if err != nil {
			return fmt.Errorf("exercise %d tags: %w", ex.Position, err)
		}
		exRows = append(exRows, []any{
			ex.Position, ex.Title, ex.Description, ex.Prompt, ex.StarterCode, ex.Solution,
			hints, string(ex.Difficulty), ex.Points, tags, ex.TimeLimitSeconds, ex.Published,
		})
		trRows = appendTranslationRows(trRows, ex.Translations, KindExercise, ex.Position, "")

		for j, tc := range ex.TestCases {
			if findTestCase(ex.TestCases[:j], tc.Position) >= 0 {
				return fmt.Errorf("duplicate test case position %d in exercise %d", tc.Position, ex.Position)
			}
			tcRows = append(tcRows, []any{
				ex.Position, tc.Position, tc.Input, tc.ExpectedOutput, tc.Description, tc.IsSample, tc.IsHidden,
			})
			trRows = appendTranslationRows(trRows, tc.Translations, KindTestCase, ex.Position, tc.Position)
		}
	}
	if err := writeTable(f, sheetExercises, exRows); err != nil {
		return err
	}
	if err := writeTable(f, sheetTestCases, tcRows); err != nil {
		return err
	}
	if err := writeTable(f, sheetTranslations, trRows); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func exerciseFromRow(r map[string]string) (ExerciseDef, error) {
	var ex ExerciseDef
	var err error
	if ex.Position, err = atoiCell(r["position"]); err != nil {
		return ex, fmt.Errorf("position: %w", err)
	}
	if ex.Points, err = atoiCell(r["points"]); err != nil {
		return ex, fmt.Errorf("points: %w", err)
	}
	if ex.TimeLimitSeconds, err = atoiCell(r["time_limit_seconds"]); err != nil {
		return ex, fmt.Errorf("time_limit_seconds: %w", err)
	}
	if ex.Published, err = boolCell(r["published"]); err != nil {
		return ex, fmt.Errorf("published: %w", err)
	}
	ex.Title = r["title"]
	ex.Description = r["description"]
	ex.Prompt = r["prompt"]
	ex.StarterCode = r["starter_code"]
	ex.Solution = r["solution"]
	ex.Difficulty = Difficulty(strings.TrimSpace(r["difficulty"]))
	if ex.Hints, err = parseListCell(r["hints"], "\n"); err != nil {
		return ex, fmt.Errorf("hints: %w", err)
	}
	if ex.Tags, err = parseListCell(r["tags"], ","); err != nil {
		return ex, fmt.Errorf("tags: %w", err)
	}
	return ex, nil
}

// appendTranslationRows adds one row per locale and field, sorted so the same
// bank always produces the same sheet.
func appendTranslationRows(rows [][]any, tr Translations, owner EntityKind, exPos, tcPos any) [][]any {
	for _, locale := range slices.Sorted(maps.Keys(tr)) {
		fields := tr[locale]
		for _, field := range slices.Sorted(maps.Keys(fields)) {
			rows = append(rows, []any{string(owner), exPos, tcPos, locale, field, fields[field]})
		}
	}
	return rows
}

// listCell encodes a string list as a JSON array, which keeps separators and
// line breaks inside an element intact. An empty list is an empty cell.
func listCell(items []string) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// parseListCell reads a JSON array cell, or falls back to splitting a
// hand-written cell on sep.
func parseListCell(s, sep string) ([]string, error) {
	if strings.HasPrefix(strings.TrimSpace(s), "[") {
		var items []string
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil, fmt.Errorf("invalid JSON list: %w", err)
		}
		if len(items) == 0 {
			return nil, nil
		}
		return items, nil
	}
	return splitCell(s, sep), nil
}

func testCaseFromRow(r map[string]string) (TestCaseDef, error) {
	var tc TestCaseDef
	var err error
	if tc.Position, err = atoiCell(r["position"]); err != nil {
		return tc, fmt.Errorf("position: %w", err)
	}
	if tc.IsSample, err = boolCell(r["is_sample"]); err != nil {
		return tc, fmt.Errorf("is_sample: %w", err)
	}
	if tc.IsHidden, err = boolCell(r["is_hidden"]); err != nil {
		return tc, fmt.Errorf("is_hidden: %w", err)
	}
	tc.Input = r["input"]
	tc.ExpectedOutput = r["expected_output"]
	tc.Description = r["description"]
	return tc, nil
}

// readTable returns the rows below the header keyed by header name.
func readTable(f *excelize.File, sheet string) ([]map[string]string, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read %s sheet: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		rec := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[strings.TrimSpace(col)] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func writeTable(f *excelize.File, sheet string, rows [][]any) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create %s sheet: %w", sheet, err)
	}
	for i := range rows {
		if err := f.SetSheetRow(sheet, cellName(1, i+1), &rows[i]); err != nil {
			return fmt.Errorf("write %s sheet: %w", sheet, err)
		}
	}
	return nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func atoiCell(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func boolCell(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

func splitCell(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
