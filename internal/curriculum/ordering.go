package curriculum

import "fmt"

// OrderingIssue flags a sibling collection whose authored positions repeat or
// disagree with the order the siblings are written in.
type OrderingIssue struct {
	Kind   EntityKind
	Parent string
	Reason string
}

func (i OrderingIssue) String() string {
	return fmt.Sprintf("%s under %s: %s", i.Kind, i.Parent, i.Reason)
}

// CheckTemplateOrdering inspects every sibling collection of a template tree.
func CheckTemplateOrdering(t TemplateDef) []OrderingIssue {
	var issues []OrderingIssue

	positions := make([]int, len(t.Milestones))
	for i, m := range t.Milestones {
		positions[i] = m.Position
	}
	issues = append(issues, checkPositions(KindMilestone, t.Slug, positions)...)

	for _, m := range t.Milestones {
		mKey := MilestoneKey(t.Slug, m.Position)
		positions = make([]int, len(m.Tasks))
		for i, task := range m.Tasks {
			positions[i] = task.Position
		}
		issues = append(issues, checkPositions(KindTask, mKey, positions)...)

		for _, task := range m.Tasks {
			tKey := TaskKey(mKey, task.Position)
			positions = make([]int, len(task.Subtasks))
			for i, st := range task.Subtasks {
				positions[i] = st.Position
			}
			issues = append(issues, checkPositions(KindSubtask, tKey, positions)...)

			positions = make([]int, len(task.KnowledgeItems))
			for i, item := range task.KnowledgeItems {
				positions[i] = item.Position
			}
			issues = append(issues, checkPositions(KindKnowledgeItem, tKey, positions)...)
		}
	}
	return issues
}

// CheckLanguageOrdering inspects the exercise bank of a language.
func CheckLanguageOrdering(l LanguageDef) []OrderingIssue {
	positions := make([]int, len(l.Exercises))
	for i, ex := range l.Exercises {
		positions[i] = ex.Position
	}
	issues := checkPositions(KindExercise, l.Slug, positions)

	for _, ex := range l.Exercises {
		positions = make([]int, len(ex.TestCases))
		for i, tc := range ex.TestCases {
			positions[i] = tc.Position
		}
		issues = append(issues, checkPositions(KindTestCase, DeriveExerciseSlug(l.Slug, ex.Position), positions)...)
	}
	return issues
}

// checkPositions accepts gaps but not repeats or descents.
func checkPositions(kind EntityKind, parent string, positions []int) []OrderingIssue {
	var issues []OrderingIssue
	seen := make(map[int]int, len(positions))
	for i, p := range positions {
		if first, dup := seen[p]; dup {
			issues = append(issues, OrderingIssue{
				Kind:   kind,
				Parent: parent,
				Reason: fmt.Sprintf("position %d repeated at index %d (first at %d)", p, i, first),
			})
			continue
		}
		seen[p] = i
		if i > 0 && p < positions[i-1] {
			issues = append(issues, OrderingIssue{
				Kind:   kind,
				Parent: parent,
				Reason: fmt.Sprintf("position %d at index %d follows position %d", p, i, positions[i-1]),
			})
		}
	}
	return issues
}
