// Package curriculum defines learning-path and exercise-bank content, loads it
// from a content directory and validates it before it is persisted.
package curriculum

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader loads and caches content definitions from the filesystem.
//
//	*.template.yaml   one TemplateDef with its milestone tree
//	*.language.yaml   one LanguageDef with its exercise bank
//	*.exercises.xlsx  one LanguageDef authored as a workbook
type Loader struct {
	rootDir   string
	templates map[string]TemplateDef
	languages map[string]LanguageDef
	sources   map[string]string // slug -> file it came from
	mu        sync.RWMutex
}

// NewLoader creates a new content loader and loads all content.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir:   rootDir,
		templates: make(map[string]TemplateDef),
		languages: make(map[string]LanguageDef),
		sources:   make(map[string]string),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}

	slog.Info("content loaded", "templates", len(l.templates), "languages", len(l.languages))
	return l, nil
}

// GetTemplate returns a template by slug.
func (l *Loader) GetTemplate(slug string) (TemplateDef, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.templates[slug]
	return t, ok
}

// GetLanguage returns a language by slug.
func (l *Loader) GetLanguage(slug string) (LanguageDef, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lang, ok := l.languages[slug]
	return lang, ok
}

// Catalog returns every loaded definition sorted by slug, so runs over the
// same directory always visit content in the same order.
func (l *Loader) Catalog() Catalog {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c := Catalog{
		Templates: make([]TemplateDef, 0, len(l.templates)),
		Languages: make([]LanguageDef, 0, len(l.languages)),
	}
	for _, t := range l.templates {
		c.Templates = append(c.Templates, t)
	}
	for _, lang := range l.languages {
		c.Languages = append(c.Languages, lang)
	}
	sort.Slice(c.Templates, func(i, j int) bool { return c.Templates[i].Slug < c.Templates[j].Slug })
	sort.Slice(c.Languages, func(i, j int) bool { return c.Languages[i].Slug < c.Languages[j].Slug })
	return c
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		name := info.Name()
		switch {
		case hasAnySuffix(name, ".template.yaml", ".template.yml"):
			return l.loadTemplate(path)
		case hasAnySuffix(name, ".language.yaml", ".language.yml"):
			return l.loadLanguage(path)
		case strings.HasSuffix(name, ".exercises.xlsx"):
			return l.loadWorkbook(path)
		}
		return nil
	})
}

func (l *Loader) loadTemplate(path string) error {
	var t TemplateDef
	if err := decodeYAML(path, &t); err != nil {
		return err
	}
	if t.Slug == "" {
		t.Slug = Slugify(t.Title)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, dup := l.sources["template:"+t.Slug]; dup {
		return fmt.Errorf("%s: template %q already defined in %s", path, t.Slug, prev)
	}
	l.templates[t.Slug] = t
	l.sources["template:"+t.Slug] = path
	return nil
}

func (l *Loader) loadLanguage(path string) error {
	var lang LanguageDef
	if err := decodeYAML(path, &lang); err != nil {
		return err
	}
	return l.addLanguage(path, lang)
}

func (l *Loader) loadWorkbook(path string) error {
	lang, err := ReadExerciseWorkbook(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return l.addLanguage(path, lang)
}

func (l *Loader) addLanguage(path string, lang LanguageDef) error {
	if lang.Slug == "" {
		lang.Slug = Slugify(lang.Name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, dup := l.sources["language:"+lang.Slug]; dup {
		return fmt.Errorf("%s: language %q already defined in %s", path, lang.Slug, prev)
	}
	l.languages[lang.Slug] = lang
	l.sources["language:"+lang.Slug] = path
	return nil
}

func decodeYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
