package seed

import (
	"context"
	"fmt"
	"sort"

	"github.com/p-n-ai/pai-seed/internal/curriculum"
	"github.com/p-n-ai/pai-seed/internal/store"
)

// owner is a translated definition node resolved to its persisted row.
type owner struct {
	Kind         curriculum.EntityKind
	ID           string
	Key          string
	Translations curriculum.Translations
}

type kindSet map[curriculum.EntityKind]bool

func (k kindSet) hasAny(kinds ...curriculum.EntityKind) bool {
	for _, kind := range kinds {
		if k[kind] {
			return true
		}
	}
	return false
}

// resolveOwners walks the catalog and looks up the persisted ID of every
// node of the wanted kinds that carries translations. Siblings are matched by
// position; exercises by their derived slug.
func resolveOwners(ctx context.Context, st store.Store, cat curriculum.Catalog, kinds kindSet) ([]owner, error) {
	var owners []owner
	for _, t := range cat.Templates {
		if !templateTranslated(t, kinds) {
			continue
		}
		found, err := resolveTemplate(ctx, st, t, kinds)
		if err != nil {
			return nil, err
		}
		owners = append(owners, found...)
	}
	for _, l := range cat.Languages {
		if !languageTranslated(l, kinds) {
			continue
		}
		found, err := resolveLanguage(ctx, st, l, kinds)
		if err != nil {
			return nil, err
		}
		owners = append(owners, found...)
	}
	return owners, nil
}

func resolveTemplate(ctx context.Context, st store.Store, def curriculum.TemplateDef, kinds kindSet) ([]owner, error) {
	row, err := st.GetTemplateBySlug(ctx, def.Slug)
	if err != nil {
		return nil, MapStoreError("resolve template", def.Slug, err)
	}

	var owners []owner
	owners = appendOwner(owners, kinds, curriculum.KindTemplate, row.ID, def.Slug, def.Translations)
	if !kinds.hasAny(curriculum.KindMilestone, curriculum.KindTask, curriculum.KindKnowledgeItem) {
		return owners, nil
	}

	milestoneRows, err := st.ListMilestones(ctx, row.ID)
	if err != nil {
		return nil, MapStoreError("list milestones", def.Slug, err)
	}
	milestones, err := pairByPosition(def.Slug, def.Milestones, milestoneRows,
		func(m curriculum.MilestoneDef) int { return m.Position },
		func(m store.Milestone) int { return m.Position })
	if err != nil {
		return nil, err
	}

	for i, m := range milestones {
		mID := milestoneRows[i].ID
		mKey := curriculum.MilestoneKey(def.Slug, m.Position)
		owners = appendOwner(owners, kinds, curriculum.KindMilestone, mID, mKey, m.Translations)
		if !kinds.hasAny(curriculum.KindTask, curriculum.KindKnowledgeItem) {
			continue
		}

		taskRows, err := st.ListTasks(ctx, mID)
		if err != nil {
			return nil, MapStoreError("list tasks", mKey, err)
		}
		tasks, err := pairByPosition(mKey, m.Tasks, taskRows,
			func(t curriculum.TaskDef) int { return t.Position },
			func(t store.Task) int { return t.Position })
		if err != nil {
			return nil, err
		}

		for j, task := range tasks {
			tID := taskRows[j].ID
			tKey := curriculum.TaskKey(mKey, task.Position)
			owners = appendOwner(owners, kinds, curriculum.KindTask, tID, tKey, task.Translations)
			if !kinds[curriculum.KindKnowledgeItem] {
				continue
			}

			itemRows, err := st.ListKnowledgeItems(ctx, tID)
			if err != nil {
				return nil, MapStoreError("list knowledge items", tKey, err)
			}
			items, err := pairByPosition(tKey, task.KnowledgeItems, itemRows,
				func(k curriculum.KnowledgeItemDef) int { return k.Position },
				func(k store.KnowledgeItem) int { return k.Position })
			if err != nil {
				return nil, err
			}
			for k, item := range items {
				owners = appendOwner(owners, kinds, curriculum.KindKnowledgeItem, itemRows[k].ID,
					curriculum.KnowledgeItemKey(tKey, item.Position), item.Translations)
			}
		}
	}
	return owners, nil
}

func resolveLanguage(ctx context.Context, st store.Store, def curriculum.LanguageDef, kinds kindSet) ([]owner, error) {
	row, err := st.GetLanguageBySlug(ctx, def.Slug)
	if err != nil {
		return nil, MapStoreError("resolve language", def.Slug, err)
	}

	var owners []owner
	owners = appendOwner(owners, kinds, curriculum.KindLanguage, row.ID, def.Slug, def.Translations)
	if !kinds.hasAny(curriculum.KindExercise, curriculum.KindTestCase) {
		return owners, nil
	}

	exerciseRows, err := st.ListExercises(ctx, row.ID)
	if err != nil {
		return nil, MapStoreError("list exercises", def.Slug, err)
	}
	bySlug := make(map[string]store.Exercise, len(exerciseRows))
	for _, e := range exerciseRows {
		bySlug[e.Slug] = e
	}

	for _, ex := range def.Exercises {
		slug := curriculum.DeriveExerciseSlug(def.Slug, ex.Position)
		exRow, ok := bySlug[slug]
		if !ok {
			return nil, newError(CodePrerequisiteMissing, slug, "resolve exercise", store.ErrNotFound)
		}
		owners = appendOwner(owners, kinds, curriculum.KindExercise, exRow.ID, slug, ex.Translations)
		if !kinds[curriculum.KindTestCase] {
			continue
		}

		caseRows, err := st.ListTestCases(ctx, exRow.ID)
		if err != nil {
			return nil, MapStoreError("list test cases", slug, err)
		}
		cases, err := pairByPosition(slug, ex.TestCases, caseRows,
			func(tc curriculum.TestCaseDef) int { return tc.Position },
			func(tc store.TestCase) int { return tc.Position })
		if err != nil {
			return nil, err
		}
		for i, tc := range cases {
			owners = appendOwner(owners, kinds, curriculum.KindTestCase, caseRows[i].ID,
				curriculum.TestCaseKey(slug, tc.Position), tc.Translations)
		}
	}
	return owners, nil
}

func appendOwner(owners []owner, kinds kindSet, kind curriculum.EntityKind, id, key string, tr curriculum.Translations) []owner {
	if !kinds[kind] || len(tr) == 0 {
		return owners
	}
	return append(owners, owner{Kind: kind, ID: id, Key: key, Translations: tr})
}

// pairByPosition sorts defs the way the store orders rows (by position,
// insertion order on ties) and checks the two line up.
func pairByPosition[D, R any](parent string, defs []D, rows []R, defPos func(D) int, rowPos func(R) int) ([]D, error) {
	sorted := append([]D(nil), defs...)
	sort.SliceStable(sorted, func(i, j int) bool { return defPos(sorted[i]) < defPos(sorted[j]) })

	if len(sorted) != len(rows) {
		return nil, newError(CodePrerequisiteMissing, parent, "resolve children",
			fmt.Errorf("content has %d children, store has %d; repopulate before translating", len(sorted), len(rows)))
	}
	for i := range sorted {
		if defPos(sorted[i]) != rowPos(rows[i]) {
			return nil, newError(CodePrerequisiteMissing, parent, "resolve children",
				fmt.Errorf("content position %d does not match stored position %d", defPos(sorted[i]), rowPos(rows[i])))
		}
	}
	return sorted, nil
}

// rebuildTranslations inserts the translation rows of every owner of kind.
// Rows that already exist are left alone, so a retry after a partial rebuild
// completes it.
func rebuildTranslations(ctx context.Context, st store.Store, kind curriculum.EntityKind, owners []owner) (int, error) {
	created := 0
	for _, o := range owners {
		if o.Kind != kind {
			continue
		}
		for _, locale := range sortedKeys(o.Translations) {
			fields := o.Translations[locale]
			for _, field := range sortedKeys(fields) {
				ok, err := st.CreateTranslation(ctx, store.Translation{
					OwnerType: kind,
					OwnerID:   o.ID,
					Locale:    locale,
					Field:     field,
					Value:     fields[field],
				})
				if err != nil {
					return created, MapStoreError("create translation", fmt.Sprintf("%s[%s.%s]", o.Key, locale, field), err)
				}
				if ok {
					created++
				}
			}
		}
	}
	return created, nil
}

func templateTranslated(t curriculum.TemplateDef, kinds kindSet) bool {
	if kinds[curriculum.KindTemplate] && len(t.Translations) > 0 {
		return true
	}
	for _, m := range t.Milestones {
		if kinds[curriculum.KindMilestone] && len(m.Translations) > 0 {
			return true
		}
		for _, task := range m.Tasks {
			if kinds[curriculum.KindTask] && len(task.Translations) > 0 {
				return true
			}
			for _, item := range task.KnowledgeItems {
				if kinds[curriculum.KindKnowledgeItem] && len(item.Translations) > 0 {
					return true
				}
			}
		}
	}
	return false
}

func languageTranslated(l curriculum.LanguageDef, kinds kindSet) bool {
	if kinds[curriculum.KindLanguage] && len(l.Translations) > 0 {
		return true
	}
	for _, ex := range l.Exercises {
		if kinds[curriculum.KindExercise] && len(ex.Translations) > 0 {
			return true
		}
		for _, tc := range ex.TestCases {
			if kinds[curriculum.KindTestCase] && len(tc.Translations) > 0 {
				return true
			}
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
