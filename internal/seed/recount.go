package seed

import (
	"context"

	"github.com/p-n-ai/pai-seed/internal/store"
)

// Recount sets a language's exercise_count to the number of exercises it
// currently owns and returns that number. Call it only after every exercise
// of the language has been written in the current run.
func Recount(ctx context.Context, st store.Store, languageID string) (int, error) {
	n, err := st.CountExercises(ctx, languageID)
	if err != nil {
		return 0, MapStoreError("count exercises", languageID, err)
	}
	if err := st.SetExerciseCount(ctx, languageID, n); err != nil {
		return 0, MapStoreError("set exercise count", languageID, err)
	}
	return n, nil
}

// RecountAll recounts every language and returns the counts by slug.
func RecountAll(ctx context.Context, st store.Store) (map[string]int, error) {
	languages, err := st.ListLanguages(ctx)
	if err != nil {
		return nil, MapStoreError("list languages", "", err)
	}
	counts := make(map[string]int, len(languages))
	for _, l := range languages {
		n, err := Recount(ctx, st, l.ID)
		if err != nil {
			if e, ok := err.(*Error); ok {
				e.Key = l.Slug
			}
			return counts, err
		}
		counts[l.Slug] = n
	}
	return counts, nil
}
