package curriculum

import (
	"embed"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ValidationError reports the first field of a payload that breaks the
// content schema for its entity kind.
type ValidationError struct {
	Kind   EntityKind
	Key    string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("invalid %s: field %q: %s", e.Kind, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %s: field %q: %s", e.Kind, e.Key, e.Field, e.Reason)
}

// Schema validates content payloads. JSON Schema documents describe which
// fields each kind (and each knowledge-item variant) requires; struct tags
// carry the remaining value rules.
type Schema struct {
	schemas  map[EntityKind]*gojsonschema.Schema
	validate *validator.Validate
}

var (
	defaultSchema     *Schema
	defaultSchemaErr  error
	defaultSchemaOnce sync.Once
)

// DefaultSchema returns a process-wide Schema compiled from the embedded documents.
func DefaultSchema() (*Schema, error) {
	defaultSchemaOnce.Do(func() {
		defaultSchema, defaultSchemaErr = NewSchema()
	})
	return defaultSchema, defaultSchemaErr
}

// NewSchema compiles the embedded schema documents.
func NewSchema() (*Schema, error) {
	s := &Schema{
		schemas:  make(map[EntityKind]*gojsonschema.Schema),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.validate.RegisterTagNameFunc(fieldName)

	for _, kind := range AllKinds() {
		data, err := schemaFS.ReadFile("schemas/" + string(kind) + ".json")
		if err != nil {
			return nil, fmt.Errorf("read %s schema: %w", kind, err)
		}
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", kind, err)
		}
		s.schemas[kind] = compiled
	}
	return s, nil
}

// Validate checks a single payload of the given kind. It has no side effects.
func (s *Schema) Validate(kind EntityKind, payload any) error {
	compiled, ok := s.schemas[kind]
	if !ok {
		return &ValidationError{Kind: kind, Field: "(root)", Reason: "unknown entity kind"}
	}

	result, err := compiled.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return &ValidationError{Kind: kind, Field: "(root)", Reason: err.Error()}
	}
	if !result.Valid() {
		field, reason := firstSchemaError(result.Errors())
		return &ValidationError{Kind: kind, Field: field, Reason: reason}
	}

	if err := s.validate.Struct(payload); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Kind: kind, Field: fe.Field(), Reason: ruleReason(fe)}
		}
		return &ValidationError{Kind: kind, Field: "(root)", Reason: err.Error()}
	}
	return nil
}

// Validate checks payload against the default schema.
func Validate(kind EntityKind, payload any) error {
	s, err := DefaultSchema()
	if err != nil {
		return err
	}
	return s.Validate(kind, payload)
}

// ValidateTemplate validates every node of a template tree before anything is
// written. The returned error carries the key of the first invalid node.
func (s *Schema) ValidateTemplate(t TemplateDef) error {
	root := t
	root.Milestones = nil
	if err := s.validateNode(KindTemplate, t.Slug, root); err != nil {
		return err
	}

	for _, m := range t.Milestones {
		mKey := MilestoneKey(t.Slug, m.Position)
		shallow := m
		shallow.Tasks = nil
		if err := s.validateNode(KindMilestone, mKey, shallow); err != nil {
			return err
		}

		for _, task := range m.Tasks {
			tKey := TaskKey(mKey, task.Position)
			shallowTask := task
			shallowTask.Subtasks = nil
			shallowTask.KnowledgeItems = nil
			if err := s.validateNode(KindTask, tKey, shallowTask); err != nil {
				return err
			}
			for _, st := range task.Subtasks {
				if err := s.validateNode(KindSubtask, SubtaskKey(tKey, st.Position), st); err != nil {
					return err
				}
			}
			for _, item := range task.KnowledgeItems {
				if err := s.validateNode(KindKnowledgeItem, KnowledgeItemKey(tKey, item.Position), item); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ValidateLanguage validates a language and its whole exercise bank.
func (s *Schema) ValidateLanguage(l LanguageDef) error {
	root := l
	root.Exercises = nil
	if err := s.validateNode(KindLanguage, l.Slug, root); err != nil {
		return err
	}

	for _, ex := range l.Exercises {
		slug := DeriveExerciseSlug(l.Slug, ex.Position)
		shallow := ex
		shallow.TestCases = nil
		if err := s.validateNode(KindExercise, slug, shallow); err != nil {
			return err
		}
		for _, tc := range ex.TestCases {
			if err := s.validateNode(KindTestCase, TestCaseKey(slug, tc.Position), tc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Schema) validateNode(kind EntityKind, key string, payload any) error {
	if err := s.Validate(kind, payload); err != nil {
		if ve, ok := err.(*ValidationError); ok {
			ve.Key = key
			return ve
		}
		return err
	}
	return nil
}

// firstSchemaError picks the most specific error; if/then and allOf wrappers
// are reported alongside the leaf error and say nothing about the field.
func firstSchemaError(errs []gojsonschema.ResultError) (string, string) {
	for _, e := range errs {
		switch e.Type() {
		case "condition_then", "condition_else", "number_all_of", "number_any_of", "number_one_of":
			continue
		case "required":
			if prop, ok := e.Details()["property"].(string); ok {
				return prop, "is required"
			}
		}
		return e.Field(), e.Description()
	}
	if len(errs) > 0 {
		return errs[0].Field(), errs[0].Description()
	}
	return "(root)", "invalid"
}

func ruleReason(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("failed %s=%s rule", fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("failed %s rule", fe.Tag())
}

func fieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return strings.ToLower(f.Name)
	}
	return name
}
