package seed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/p-n-ai/pai-seed/internal/curriculum"
	"github.com/p-n-ai/pai-seed/internal/store"
)

// Routine names, in the order "all" runs them.
const (
	RoutineTemplates    = "templates"
	RoutineLanguages    = "languages"
	RoutineTranslations = "translations"
	RoutineAll          = "all"

	// RoutineResync is the ledger name of an ad-hoc resync of selected types.
	RoutineResync = "resync"
)

const (
	defaultLockKey = "pai-seed:run"
	defaultLockTTL = 10 * time.Minute
)

var (
	errUnknownRoutine = errors.New("unknown routine")
	errEmptyCatalog   = errors.New("catalog has no templates or languages, refusing to delete translations")
)

// Locker serializes population runs across processes.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// RunnerConfig holds dependencies for the runner.
type RunnerConfig struct {
	Store    store.Store
	Catalog  curriculum.Catalog
	Reporter Reporter
	Locker   Locker        // nil runs without a lock
	LockKey  string        // default "pai-seed:run"
	LockTTL  time.Duration // default 10m
	// Atomic replaces each tree, and runs each resync, inside one transaction.
	Atomic         bool
	StrictOrdering bool
}

// RunOptions tune a single Run call.
type RunOptions struct {
	// SkipUnchanged skips a routine whose last successful run saw the same
	// content fingerprint.
	SkipUnchanged bool
}

// Summary totals what a run did.
type Summary struct {
	Routine  string
	Created  int
	Deleted  int
	Warnings int
	Skipped  []string // routines skipped as unchanged
}

func (s *Summary) add(o Summary) {
	s.Created += o.Created
	s.Deleted += o.Deleted
	s.Warnings += o.Warnings
	s.Skipped = append(s.Skipped, o.Skipped...)
}

// Runner executes named population routines against one store.
type Runner struct {
	store          store.Store
	catalog        curriculum.Catalog
	reporter       Reporter
	locker         Locker
	lockKey        string
	lockTTL        time.Duration
	atomic         bool
	strictOrdering bool
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) *Runner {
	st := cfg.Store
	if st == nil {
		st = store.NewMemoryStore()
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = NopReporter{}
	}
	lockKey := cfg.LockKey
	if lockKey == "" {
		lockKey = defaultLockKey
	}
	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = defaultLockTTL
	}
	return &Runner{
		store:          st,
		catalog:        cfg.Catalog,
		reporter:       reporter,
		locker:         cfg.Locker,
		lockKey:        lockKey,
		lockTTL:        lockTTL,
		atomic:         cfg.Atomic,
		strictOrdering: cfg.StrictOrdering,
	}
}

// Routines returns the registered routine names in run order.
func Routines() []string {
	return []string{RoutineTemplates, RoutineLanguages, RoutineTranslations, RoutineAll}
}

// Run executes the named routine under the run lock. "all" runs templates,
// languages and translations in that order and stops at the first failure.
func (r *Runner) Run(ctx context.Context, name string, opts RunOptions) (Summary, error) {
	if !slices.Contains(Routines(), name) {
		return Summary{}, newError(CodeValidation, name, "run", errUnknownRoutine)
	}

	var total Summary
	err := r.locked(ctx, func() error {
		steps := []string{name}
		if name == RoutineAll {
			steps = Routines()[:3]
		}
		for _, step := range steps {
			sum, err := r.runRoutine(ctx, step, opts)
			total.add(sum)
			if err != nil {
				return err
			}
		}
		return nil
	})
	total.Routine = name
	return total, err
}

// Resync deletes and rebuilds the translation rows of kinds, recorded in the
// ledger as a "resync" run.
func (r *Runner) Resync(ctx context.Context, kinds []curriculum.EntityKind) (Summary, error) {
	if _, err := allowed(kinds); err != nil {
		return Summary{}, err
	}

	var sum Summary
	err := r.locked(ctx, func() error {
		var err error
		sum, err = r.record(ctx, RoutineResync, "", func(rc RunContext) (Summary, error) {
			return r.resync(ctx, rc, kinds)
		})
		return err
	})
	sum.Routine = RoutineResync
	return sum, err
}

func (r *Runner) locked(ctx context.Context, fn func() error) error {
	if r.locker == nil {
		return fn()
	}
	release, err := r.locker.AcquireLock(ctx, r.lockKey, r.lockTTL)
	if err != nil {
		return newError(CodeInternal, r.lockKey, "acquire run lock", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			r.reporter.Report(Event{Kind: EventWarning, Key: r.lockKey, Message: err.Error()})
		}
	}()
	return fn()
}

func (r *Runner) runRoutine(ctx context.Context, name string, opts RunOptions) (Summary, error) {
	fp, err := r.fingerprint(ctx, name)
	if err != nil {
		return Summary{Routine: name}, err
	}

	if opts.SkipUnchanged {
		last, err := r.store.LastSuccessfulRun(ctx, name)
		switch {
		case err == nil && last.Fingerprint == fp:
			return r.skip(ctx, name, fp)
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return Summary{Routine: name}, MapStoreError("last successful run", name, err)
		}
	}

	return r.record(ctx, name, fp, func(rc RunContext) (Summary, error) {
		switch name {
		case RoutineTemplates:
			return r.populateTemplates(ctx, rc)
		case RoutineLanguages:
			return r.populateLanguages(ctx, rc)
		default:
			return r.resync(ctx, rc, AllowList)
		}
	})
}

// record wraps fn in a ledger row. The ledger is written through the base
// store, outside any tree transaction, so failed runs stay visible.
func (r *Runner) record(ctx context.Context, name, fp string, fn func(rc RunContext) (Summary, error)) (Summary, error) {
	runID, err := r.store.StartRun(ctx, store.Run{Name: name, Fingerprint: fp, Status: store.RunRunning})
	if err != nil {
		return Summary{Routine: name}, MapStoreError("start run", name, err)
	}

	counter := &countingReporter{next: r.reporter}
	rc := RunContext{Routine: name, Store: r.store, Reporter: counter, StrictOrdering: r.strictOrdering}

	sum, runErr := fn(rc)
	sum.Routine = name
	sum.Warnings = int(counter.warnings.Load())

	finished := store.Run{ID: runID, Status: store.RunSucceeded, Created: sum.Created, Deleted: sum.Deleted}
	if runErr != nil {
		finished.Status = store.RunFailed
		finished.Error = runErr.Error()
	}
	if err := r.store.FinishRun(ctx, finished); err != nil && runErr == nil {
		return sum, MapStoreError("finish run", name, err)
	}
	if runErr != nil {
		return sum, runErr
	}

	rc.report(Event{Kind: EventSummary, Count: sum.Created,
		Message: fmt.Sprintf("%s created %d rows, deleted %d, %d warnings", name, sum.Created, sum.Deleted, sum.Warnings)})
	return sum, nil
}

func (r *Runner) skip(ctx context.Context, name, fp string) (Summary, error) {
	runID, err := r.store.StartRun(ctx, store.Run{Name: name, Fingerprint: fp, Status: store.RunSkipped})
	if err != nil {
		return Summary{Routine: name}, MapStoreError("start run", name, err)
	}
	if err := r.store.FinishRun(ctx, store.Run{ID: runID, Status: store.RunSkipped}); err != nil {
		return Summary{Routine: name}, MapStoreError("finish run", name, err)
	}
	r.reporter.Report(Event{Routine: name, Kind: EventSkipped, Message: "content unchanged since last successful run"})
	return Summary{Routine: name, Skipped: []string{name}}, nil
}

// fingerprint hashes the content a routine reads. Translation rows hang off
// the IDs written by the last primary runs, so those run IDs are part of the
// translations fingerprint.
func (r *Runner) fingerprint(ctx context.Context, name string) (string, error) {
	var v any
	switch name {
	case RoutineTemplates:
		v = r.catalog.Templates
	case RoutineLanguages:
		v = r.catalog.Languages
	default:
		templatesRun, err := r.lastRunID(ctx, RoutineTemplates)
		if err != nil {
			return "", err
		}
		languagesRun, err := r.lastRunID(ctx, RoutineLanguages)
		if err != nil {
			return "", err
		}
		v = struct {
			Catalog      curriculum.Catalog `json:"catalog"`
			TemplatesRun string             `json:"templates_run"`
			LanguagesRun string             `json:"languages_run"`
		}{r.catalog, templatesRun, languagesRun}
	}

	fp, err := curriculum.Fingerprint(v)
	if err != nil {
		return "", newError(CodeInternal, name, "fingerprint content", err)
	}
	return fp, nil
}

func (r *Runner) lastRunID(ctx context.Context, name string) (string, error) {
	last, err := r.store.LastSuccessfulRun(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", MapStoreError("last successful run", name, err)
	}
	return last.ID, nil
}

// preflight validates every definition of the catalog before the first delete,
// so a bad file never costs the previous content.
func (r *Runner) preflight(templates bool) error {
	schema, err := curriculum.DefaultSchema()
	if err != nil {
		return newError(CodeInternal, "", "load content schema", err)
	}

	if templates {
		for _, def := range r.catalog.Templates {
			if err := schema.ValidateTemplate(def); err != nil {
				return MapStoreError("validate template", def.Slug, err)
			}
			if err := r.strictCheck(curriculum.CheckTemplateOrdering(def)); err != nil {
				return err
			}
		}
		return nil
	}
	for _, def := range r.catalog.Languages {
		if err := schema.ValidateLanguage(def); err != nil {
			return MapStoreError("validate language", def.Slug, err)
		}
		if err := r.strictCheck(curriculum.CheckLanguageOrdering(def)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) strictCheck(issues []curriculum.OrderingIssue) error {
	if !r.strictOrdering || len(issues) == 0 {
		return nil
	}
	return newError(CodeValidation, issues[0].Parent, "check ordering", errors.New(issues[0].String()))
}

func (r *Runner) inTx(ctx context.Context, fn func(st store.Store) error) error {
	if !r.atomic {
		return fn(r.store)
	}
	return r.store.InTx(ctx, fn)
}

// populateTemplates replaces every template of the catalog by slug: the old
// tree is deleted (cascading to its descendants) and the definition is built
// again, one transaction per template.
func (r *Runner) populateTemplates(ctx context.Context, rc RunContext) (Summary, error) {
	var sum Summary
	if err := r.preflight(true); err != nil {
		return sum, err
	}

	for _, def := range r.catalog.Templates {
		var deleted, created int
		err := r.inTx(ctx, func(st store.Store) error {
			var err error
			deleted, created, err = replaceTemplate(ctx, rc.WithStore(st), def)
			return err
		})
		if err != nil {
			if r.atomic && deleted+created > 0 {
				rc.report(Event{Kind: EventRollback, Entity: string(curriculum.KindTemplate), Key: def.Slug, Message: "template rolled back"})
			}
			return sum, err
		}
		sum.Deleted += deleted
		sum.Created += created
	}
	return sum, nil
}

func replaceTemplate(ctx context.Context, rc RunContext, def curriculum.TemplateDef) (int, int, error) {
	st := rc.Store
	deleted := 0

	existing, err := st.GetTemplateBySlug(ctx, def.Slug)
	switch {
	case err == nil:
		if err := st.DeleteTemplate(ctx, existing.ID); err != nil {
			return 0, 0, MapStoreError("delete template", def.Slug, err)
		}
		deleted = 1
		rc.report(Event{Kind: EventDeleted, Entity: string(curriculum.KindTemplate), Key: def.Slug, Count: 1})
	case !errors.Is(err, store.ErrNotFound):
		return 0, 0, MapStoreError("get template", def.Slug, err)
	}

	b, err := NewBuilder(rc)
	if err != nil {
		return deleted, 0, newError(CodeInternal, def.Slug, "new builder", err)
	}
	h, err := b.BuildTemplate(ctx, def)
	return deleted, h.Written, err
}

// populateLanguages finds or creates each language by slug, replaces its
// exercise bank and recounts it, one transaction per language.
func (r *Runner) populateLanguages(ctx context.Context, rc RunContext) (Summary, error) {
	var sum Summary
	if err := r.preflight(false); err != nil {
		return sum, err
	}

	for _, def := range r.catalog.Languages {
		var deleted, created int
		err := r.inTx(ctx, func(st store.Store) error {
			var err error
			deleted, created, err = replaceLanguage(ctx, rc.WithStore(st), def)
			return err
		})
		if err != nil {
			if r.atomic && deleted+created > 0 {
				rc.report(Event{Kind: EventRollback, Entity: string(curriculum.KindLanguage), Key: def.Slug, Message: "language rolled back"})
			}
			return sum, err
		}
		sum.Deleted += deleted
		sum.Created += created
	}
	return sum, nil
}

func replaceLanguage(ctx context.Context, rc RunContext, def curriculum.LanguageDef) (int, int, error) {
	st := rc.Store
	b, err := NewBuilder(rc)
	if err != nil {
		return 0, 0, newError(CodeInternal, def.Slug, "new builder", err)
	}

	var (
		id      string
		deleted int
		h       LanguageHandle
	)
	existing, err := st.GetLanguageBySlug(ctx, def.Slug)
	switch {
	case err == nil:
		id = existing.ID
		if err := st.UpdateLanguage(ctx, store.Language{ID: id, Slug: def.Slug, Name: def.Name, Description: def.Description}); err != nil {
			return 0, 0, MapStoreError("update language", def.Slug, err)
		}
		deleted, err = st.DeleteExercises(ctx, id)
		if err != nil {
			return 0, 0, MapStoreError("delete exercises", def.Slug, err)
		}
		rc.report(Event{Kind: EventDeleted, Entity: string(curriculum.KindExercise), Key: def.Slug, Count: deleted})
		h, err = b.BuildExercises(ctx, id, def)
	case errors.Is(err, store.ErrNotFound):
		h, err = b.BuildLanguage(ctx, def)
		id = h.ID
	default:
		return 0, 0, MapStoreError("get language", def.Slug, err)
	}
	if err != nil {
		return deleted, h.Written, err
	}

	n, err := Recount(ctx, st, id)
	if err != nil {
		return deleted, h.Written, err
	}
	rc.report(Event{Kind: EventRecount, Entity: string(curriculum.KindLanguage), Key: def.Slug, Count: n})
	return deleted, h.Written, nil
}

// resync refuses an empty catalog: the delete would succeed and the rebuild
// would write nothing.
func (r *Runner) resync(ctx context.Context, rc RunContext, kinds []curriculum.EntityKind) (Summary, error) {
	if len(r.catalog.Templates) == 0 && len(r.catalog.Languages) == 0 {
		return Summary{}, newError(CodePrerequisiteMissing, "", "resync", errEmptyCatalog)
	}
	c := NewCoordinator(rc, CoordinatorConfig{Catalog: r.catalog, Atomic: r.atomic})
	res, err := c.Resync(ctx, kinds)
	return Summary{Created: res.Created(), Deleted: res.Deleted}, err
}

// countingReporter forwards events and counts warnings.
type countingReporter struct {
	next     Reporter
	warnings atomic.Int64
}

func (c *countingReporter) Report(event Event) {
	if event.Kind == EventWarning {
		c.warnings.Add(1)
	}
	c.next.Report(event)
}
