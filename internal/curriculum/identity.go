package curriculum

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DeriveExerciseSlug returns the public slug of the exercise at position within
// the language identified by languageSlug. The position is the only
// per-exercise input, so renumbering an exercise changes its slug.
func DeriveExerciseSlug(languageSlug string, position int) string {
	return languageSlug + "-exercise-" + strconv.Itoa(position)
}

// Keys used to name nodes in errors and reports. They follow the natural-key
// path from the root: "go-basics/m1/t2/k3".

func MilestoneKey(templateSlug string, position int) string {
	return fmt.Sprintf("%s/m%d", templateSlug, position)
}

func TaskKey(milestoneKey string, position int) string {
	return fmt.Sprintf("%s/t%d", milestoneKey, position)
}

func SubtaskKey(taskKey string, position int) string {
	return fmt.Sprintf("%s/s%d", taskKey, position)
}

func KnowledgeItemKey(taskKey string, position int) string {
	return fmt.Sprintf("%s/k%d", taskKey, position)
}

func TestCaseKey(exerciseSlug string, position int) string {
	return fmt.Sprintf("%s#tc%d", exerciseSlug, position)
}

var slugReplacer = strings.NewReplacer("+", "p", "#", "sharp")

// Slugify turns a display name into a lowercase ASCII slug: "C++" -> "cpp",
// "Élixir Basics" -> "elixir-basics".
func Slugify(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = slugReplacer.Replace(strings.ToLower(folded))

	var b strings.Builder
	dash := false
	for _, r := range folded {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Fingerprint hashes the canonical JSON encoding of v with BLAKE2b-256.
// Equal definitions always produce equal fingerprints.
func Fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode for fingerprint: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
