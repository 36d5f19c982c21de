package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-seed/internal/curriculum"
)

const dbTimeout = 5 * time.Second

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	db querier
}

// NewPostgresStore creates a PostgreSQL-backed curriculum store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) CreateTemplate(ctx context.Context, t Template) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return "", fmt.Errorf("encode template metadata: %w", err)
	}

	var id string
	err = s.db.QueryRow(ctx,
		`INSERT INTO templates (slug, title, description, category, difficulty, estimated_hours, tags, metadata, featured)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
		 RETURNING id::text`,
		t.Slug,
		t.Title,
		nullIfEmpty(t.Description),
		nullIfEmpty(t.Category),
		nullIfEmpty(t.Difficulty),
		t.EstimatedHours,
		nonNil(t.Tags),
		string(metadata),
		t.Featured,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create template %s: %w", t.Slug, mapPgError(err))
	}
	return id, nil
}

func (s *PostgresStore) CreateMilestone(ctx context.Context, m Milestone) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var id string
	err := s.db.QueryRow(ctx,
		`INSERT INTO milestones (template_id, title, description, position, estimated_hours, deliverables)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6)
		 RETURNING id::text`,
		m.TemplateID,
		m.Title,
		nullIfEmpty(m.Description),
		m.Position,
		m.EstimatedHours,
		nonNil(m.Deliverables),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create milestone: %w", mapPgError(err))
	}
	return id, nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, t Task) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var id string
	err := s.db.QueryRow(ctx,
		`INSERT INTO tasks (milestone_id, title, description, position, estimated_minutes, priority, resources)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
		 RETURNING id::text`,
		t.MilestoneID,
		t.Title,
		nullIfEmpty(t.Description),
		t.Position,
		t.EstimatedMinutes,
		t.Priority,
		nonNil(t.Resources),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create task: %w", mapPgError(err))
	}
	return id, nil
}

func (s *PostgresStore) CreateSubtask(ctx context.Context, st Subtask) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var id string
	err := s.db.QueryRow(ctx,
		`INSERT INTO subtasks (task_id, title, estimated_minutes, position)
		 VALUES ($1::uuid, $2, $3, $4)
		 RETURNING id::text`,
		st.TaskID,
		st.Title,
		st.EstimatedMinutes,
		st.Position,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create subtask: %w", mapPgError(err))
	}
	return id, nil
}

func (s *PostgresStore) CreateKnowledgeItem(ctx context.Context, k KnowledgeItem) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var id string
	err := s.db.QueryRow(ctx,
		`INSERT INTO knowledge_items (task_id, kind, title, position, body, language, question, answer, difficulty, url, description)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id::text`,
		k.TaskID,
		k.Kind,
		k.Title,
		k.Position,
		nullIfEmpty(k.Body),
		nullIfEmpty(k.Language),
		nullIfEmpty(k.Question),
		nullIfEmpty(k.Answer),
		nullIfEmpty(k.Difficulty),
		nullIfEmpty(k.URL),
		nullIfEmpty(k.Description),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create knowledge item: %w", mapPgError(err))
	}
	return id, nil
}

func (s *PostgresStore) CreateLanguage(ctx context.Context, l Language) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var id string
	err := s.db.QueryRow(ctx,
		`INSERT INTO languages (slug, name, description, exercise_count)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id::text`,
		l.Slug,
		l.Name,
		nullIfEmpty(l.Description),
		l.ExerciseCount,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create language %s: %w", l.Slug, mapPgError(err))
	}
	return id, nil
}

func (s *PostgresStore) CreateExercise(ctx context.Context, e Exercise) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var id string
	err := s.db.QueryRow(ctx,
		`INSERT INTO exercises (language_id, slug, title, description, prompt, starter_code, solution,
		                        hints, difficulty, points, tags, time_limit_seconds, published, position)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id::text`,
		e.LanguageID,
		e.Slug,
		e.Title,
		nullIfEmpty(e.Description),
		e.Prompt,
		nullIfEmpty(e.StarterCode),
		nullIfEmpty(e.Solution),
		nonNil(e.Hints),
		nullIfEmpty(e.Difficulty),
		e.Points,
		nonNil(e.Tags),
		e.TimeLimitSeconds,
		e.Published,
		e.Position,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create exercise %s: %w", e.Slug, mapPgError(err))
	}
	return id, nil
}

func (s *PostgresStore) CreateTestCase(ctx context.Context, tc TestCase) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var id string
	err := s.db.QueryRow(ctx,
		`INSERT INTO test_cases (exercise_id, input, expected_output, description, is_sample, is_hidden, position)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
		 RETURNING id::text`,
		tc.ExerciseID,
		tc.Input,
		tc.ExpectedOutput,
		nullIfEmpty(tc.Description),
		tc.IsSample,
		tc.IsHidden,
		tc.Position,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create test case: %w", mapPgError(err))
	}
	return id, nil
}

func (s *PostgresStore) GetTemplateBySlug(ctx context.Context, slug string) (*Template, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx, templateSelect+` WHERE slug = $1 LIMIT 1`, slug)
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", slug, err)
	}
	templates, err := scanTemplates(rows)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("template %s: %w", slug, ErrNotFound)
	}
	return &templates[0], nil
}

func (s *PostgresStore) GetLanguageBySlug(ctx context.Context, slug string) (*Language, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var l Language
	var description *string
	err := s.db.QueryRow(ctx,
		`SELECT id::text, slug, name, description, exercise_count
		 FROM languages
		 WHERE slug = $1
		 LIMIT 1`,
		slug,
	).Scan(&l.ID, &l.Slug, &l.Name, &description, &l.ExerciseCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("language %s: %w", slug, ErrNotFound)
		}
		return nil, fmt.Errorf("get language %s: %w", slug, err)
	}
	l.Description = deref(description)
	return &l, nil
}

const templateSelect = `SELECT id::text, slug, title, description, category, difficulty, estimated_hours, tags, metadata, featured
	 FROM templates`

func (s *PostgresStore) ListTemplates(ctx context.Context) ([]Template, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx, templateSelect+` ORDER BY slug ASC`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	return scanTemplates(rows)
}

func scanTemplates(rows pgx.Rows) ([]Template, error) {
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var t Template
		var description, category, difficulty *string
		var metadata []byte
		if err := rows.Scan(
			&t.ID,
			&t.Slug,
			&t.Title,
			&description,
			&category,
			&difficulty,
			&t.EstimatedHours,
			&t.Tags,
			&metadata,
			&t.Featured,
		); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		t.Description = deref(description)
		t.Category = deref(category)
		t.Difficulty = deref(difficulty)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
				return nil, fmt.Errorf("decode template metadata: %w", err)
			}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListMilestones(ctx context.Context, templateID string) ([]Milestone, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT id::text, template_id::text, title, description, position, estimated_hours, deliverables
		 FROM milestones
		 WHERE template_id = $1::uuid
		 ORDER BY position ASC, created_at ASC`,
		templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("query milestones: %w", err)
	}
	defer rows.Close()

	var out []Milestone
	for rows.Next() {
		var m Milestone
		var description *string
		if err := rows.Scan(&m.ID, &m.TemplateID, &m.Title, &description, &m.Position, &m.EstimatedHours, &m.Deliverables); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		m.Description = deref(description)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate milestones: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, milestoneID string) ([]Task, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT id::text, milestone_id::text, title, description, position, estimated_minutes, priority, resources
		 FROM tasks
		 WHERE milestone_id = $1::uuid
		 ORDER BY position ASC, created_at ASC`,
		milestoneID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		var description *string
		if err := rows.Scan(&t.ID, &t.MilestoneID, &t.Title, &description, &t.Position, &t.EstimatedMinutes, &t.Priority, &t.Resources); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Description = deref(description)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListSubtasks(ctx context.Context, taskID string) ([]Subtask, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT id::text, task_id::text, title, estimated_minutes, position
		 FROM subtasks
		 WHERE task_id = $1::uuid
		 ORDER BY position ASC, created_at ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query subtasks: %w", err)
	}
	defer rows.Close()

	var out []Subtask
	for rows.Next() {
		var st Subtask
		if err := rows.Scan(&st.ID, &st.TaskID, &st.Title, &st.EstimatedMinutes, &st.Position); err != nil {
			return nil, fmt.Errorf("scan subtask: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subtasks: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListKnowledgeItems(ctx context.Context, taskID string) ([]KnowledgeItem, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT id::text, task_id::text, kind, title, position, body, language, question, answer, difficulty, url, description
		 FROM knowledge_items
		 WHERE task_id = $1::uuid
		 ORDER BY position ASC, created_at ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query knowledge items: %w", err)
	}
	defer rows.Close()

	var out []KnowledgeItem
	for rows.Next() {
		var k KnowledgeItem
		var body, language, question, answer, difficulty, url, description *string
		if err := rows.Scan(
			&k.ID,
			&k.TaskID,
			&k.Kind,
			&k.Title,
			&k.Position,
			&body,
			&language,
			&question,
			&answer,
			&difficulty,
			&url,
			&description,
		); err != nil {
			return nil, fmt.Errorf("scan knowledge item: %w", err)
		}
		k.Body = deref(body)
		k.Language = deref(language)
		k.Question = deref(question)
		k.Answer = deref(answer)
		k.Difficulty = deref(difficulty)
		k.URL = deref(url)
		k.Description = deref(description)
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge items: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListLanguages(ctx context.Context) ([]Language, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT id::text, slug, name, description, exercise_count
		 FROM languages
		 ORDER BY slug ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query languages: %w", err)
	}
	defer rows.Close()

	var out []Language
	for rows.Next() {
		var l Language
		var description *string
		if err := rows.Scan(&l.ID, &l.Slug, &l.Name, &description, &l.ExerciseCount); err != nil {
			return nil, fmt.Errorf("scan language: %w", err)
		}
		l.Description = deref(description)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate languages: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListExercises(ctx context.Context, languageID string) ([]Exercise, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT id::text, language_id::text, slug, title, description, prompt, starter_code, solution,
		        hints, difficulty, points, tags, time_limit_seconds, published, position
		 FROM exercises
		 WHERE language_id = $1::uuid
		 ORDER BY position ASC, created_at ASC`,
		languageID,
	)
	if err != nil {
		return nil, fmt.Errorf("query exercises: %w", err)
	}
	defer rows.Close()

	var out []Exercise
	for rows.Next() {
		var e Exercise
		var description, starterCode, solution, difficulty *string
		if err := rows.Scan(
			&e.ID,
			&e.LanguageID,
			&e.Slug,
			&e.Title,
			&description,
			&e.Prompt,
			&starterCode,
			&solution,
			&e.Hints,
			&difficulty,
			&e.Points,
			&e.Tags,
			&e.TimeLimitSeconds,
			&e.Published,
			&e.Position,
		); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		e.Description = deref(description)
		e.StarterCode = deref(starterCode)
		e.Solution = deref(solution)
		e.Difficulty = deref(difficulty)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exercises: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListTestCases(ctx context.Context, exerciseID string) ([]TestCase, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT id::text, exercise_id::text, input, expected_output, description, is_sample, is_hidden, position
		 FROM test_cases
		 WHERE exercise_id = $1::uuid
		 ORDER BY position ASC, created_at ASC`,
		exerciseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query test cases: %w", err)
	}
	defer rows.Close()

	var out []TestCase
	for rows.Next() {
		var tc TestCase
		var description *string
		if err := rows.Scan(&tc.ID, &tc.ExerciseID, &tc.Input, &tc.ExpectedOutput, &description, &tc.IsSample, &tc.IsHidden, &tc.Position); err != nil {
			return nil, fmt.Errorf("scan test case: %w", err)
		}
		tc.Description = deref(description)
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test cases: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteTemplate(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.db.Exec(ctx, `DELETE FROM templates WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("delete template %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteExercises(ctx context.Context, languageID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.db.Exec(ctx, `DELETE FROM exercises WHERE language_id = $1::uuid`, languageID)
	if err != nil {
		return 0, fmt.Errorf("delete exercises: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

func (s *PostgresStore) UpdateLanguage(ctx context.Context, l Language) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.db.Exec(ctx,
		`UPDATE languages SET name = $2, description = $3 WHERE id = $1::uuid`,
		l.ID,
		l.Name,
		nullIfEmpty(l.Description),
	)
	if err != nil {
		return fmt.Errorf("update language: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("update language %s: %w", l.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CountExercises(ctx context.Context, languageID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var n int
	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM exercises WHERE language_id = $1::uuid`,
		languageID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count exercises: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) SetExerciseCount(ctx context.Context, languageID string, count int) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.db.Exec(ctx,
		`UPDATE languages SET exercise_count = $2 WHERE id = $1::uuid`,
		languageID,
		count,
	)
	if err != nil {
		return fmt.Errorf("set exercise count: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("set exercise count: language %s: %w", languageID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CreateTranslation(ctx context.Context, t Translation) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.db.Exec(ctx,
		`INSERT INTO translations (owner_type, owner_id, locale, field, value)
		 VALUES ($1, $2::uuid, $3, $4, $5)
		 ON CONFLICT (owner_type, owner_id, locale, field) DO NOTHING`,
		string(t.OwnerType),
		t.OwnerID,
		t.Locale,
		t.Field,
		t.Value,
	)
	if err != nil {
		return false, fmt.Errorf("create translation: %w", mapPgError(err))
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *PostgresStore) DeleteTranslations(ctx context.Context, ownerTypes []curriculum.EntityKind) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	types := make([]string, len(ownerTypes))
	for i, k := range ownerTypes {
		types[i] = string(k)
	}
	cmd, err := s.db.Exec(ctx, `DELETE FROM translations WHERE owner_type = ANY($1)`, types)
	if err != nil {
		return 0, fmt.Errorf("delete translations: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

func (s *PostgresStore) ListTranslations(ctx context.Context, ownerType curriculum.EntityKind) ([]Translation, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT id::text, owner_type, owner_id::text, locale, field, value
		 FROM translations
		 WHERE owner_type = $1
		 ORDER BY owner_id, locale, field`,
		string(ownerType),
	)
	if err != nil {
		return nil, fmt.Errorf("query translations: %w", err)
	}
	defer rows.Close()

	var out []Translation
	for rows.Next() {
		var t Translation
		var kind string
		if err := rows.Scan(&t.ID, &kind, &t.OwnerID, &t.Locale, &t.Field, &t.Value); err != nil {
			return nil, fmt.Errorf("scan translation: %w", err)
		}
		t.OwnerType = curriculum.EntityKind(kind)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate translations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) StartRun(ctx context.Context, r Run) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	status := r.Status
	if status == "" {
		status = RunRunning
	}
	startedAt := r.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	var id string
	err := s.db.QueryRow(ctx,
		`INSERT INTO seed_runs (name, fingerprint, status, started_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id::text`,
		r.Name,
		r.Fingerprint,
		status,
		startedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("start run %s: %w", r.Name, err)
	}
	return id, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, r Run) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.db.Exec(ctx,
		`UPDATE seed_runs
		 SET status = $2, created_count = $3, deleted_count = $4, error = $5, finished_at = NOW()
		 WHERE id = $1::uuid`,
		r.ID,
		r.Status,
		r.Created,
		r.Deleted,
		nullIfEmpty(r.Error),
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) LastSuccessfulRun(ctx context.Context, name string) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var r Run
	var errText *string
	err := s.db.QueryRow(ctx,
		`SELECT id::text, name, fingerprint, status, created_count, deleted_count, error, started_at, finished_at
		 FROM seed_runs
		 WHERE name = $1 AND status = $2
		 ORDER BY started_at DESC
		 LIMIT 1`,
		name,
		RunSucceeded,
	).Scan(&r.ID, &r.Name, &r.Fingerprint, &r.Status, &r.Created, &r.Deleted, &errText, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("last run %s: %w", name, err)
	}
	r.Error = deref(errText)
	return &r, nil
}

// InTx runs fn inside a transaction. Nested calls become savepoints.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&PostgresStore{db: tx})
	})
}

// mapPgError translates constraint violations into the store sentinels.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch strings.TrimSpace(pgErr.Code) {
	case "23505":
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, errors.Join(ErrDuplicate, err))
	case "23503":
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, errors.Join(ErrMissingParent, err))
	}
	return err
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
