package seed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/p-n-ai/pai-seed/internal/curriculum"
	"github.com/p-n-ai/pai-seed/internal/store"
)

// AllowList is the fixed set of owner types whose translation rows Resync may
// delete and rebuild, in rebuild order. Subtasks are never translated on
// their own. Seeding a new translated kind means adding it here.
var AllowList = []curriculum.EntityKind{
	curriculum.KindTemplate,
	curriculum.KindMilestone,
	curriculum.KindTask,
	curriculum.KindKnowledgeItem,
	curriculum.KindLanguage,
	curriculum.KindExercise,
	curriculum.KindTestCase,
}

var errNotAllowed = errors.New("not in the resync allow-list")

// ResyncResult reports what one resync cycle did.
type ResyncResult struct {
	Deleted int
	Rebuilt map[curriculum.EntityKind]int
}

// Created returns the total number of rows rebuilt.
func (r ResyncResult) Created() int {
	n := 0
	for _, c := range r.Rebuilt {
		n += c
	}
	return n
}

// CoordinatorConfig holds dependencies for the coordinator.
type CoordinatorConfig struct {
	Catalog curriculum.Catalog
	// Atomic runs delete and rebuild in one transaction. Without it a failed
	// rebuild leaves the deleted rows missing and Resync returns a
	// ResyncInconsistency error.
	Atomic bool
}

// Coordinator deletes and regenerates translation rows for allow-listed types.
type Coordinator struct {
	rc      RunContext
	catalog curriculum.Catalog
	atomic  bool
}

// NewCoordinator creates a coordinator that writes to rc.Store.
func NewCoordinator(rc RunContext, cfg CoordinatorConfig) *Coordinator {
	if rc.Reporter == nil {
		rc.Reporter = NopReporter{}
	}
	return &Coordinator{rc: rc, catalog: cfg.Catalog, atomic: cfg.Atomic}
}

// ParseKinds parses a comma-separated list such as "task,knowledge_item".
// An empty list selects the whole allow-list.
func ParseKinds(list string) ([]curriculum.EntityKind, error) {
	if strings.TrimSpace(list) == "" {
		return append([]curriculum.EntityKind(nil), AllowList...), nil
	}
	var kinds []curriculum.EntityKind
	for _, part := range strings.Split(list, ",") {
		kind, err := curriculum.ParseEntityKind(strings.TrimSpace(part))
		if err != nil {
			return nil, newError(CodeValidation, strings.TrimSpace(part), "parse kinds", err)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// Resync deletes every translation row owned by one of types with a single
// statement, then rebuilds them type by type in AllowList order.
func (c *Coordinator) Resync(ctx context.Context, types []curriculum.EntityKind) (ResyncResult, error) {
	kinds, err := allowed(types)
	if err != nil {
		return ResyncResult{}, err
	}
	if len(kinds) == 0 {
		return ResyncResult{Rebuilt: map[curriculum.EntityKind]int{}}, nil
	}

	var result ResyncResult
	if c.atomic {
		err = c.rc.Store.InTx(ctx, func(tx store.Store) error {
			result, _, err = c.cycle(ctx, tx, kinds)
			return err
		})
		if err != nil {
			c.rc.report(Event{Kind: EventRollback, Message: "resync rolled back", Count: result.Deleted})
			return ResyncResult{Rebuilt: map[curriculum.EntityKind]int{}}, err
		}
	} else {
		var deleted bool
		var failedKey string
		result, deleted, err = c.cycle(ctx, c.rc.Store, kinds)
		if err != nil {
			if !deleted {
				return result, err
			}
			var e *Error
			if errors.As(err, &e) {
				failedKey = e.Key
			}
			return result, newError(CodeResyncInconsistency, failedKey,
				fmt.Sprintf("rebuild failed after deleting %d rows", result.Deleted), err)
		}
	}

	c.rc.report(Event{Kind: EventSummary, Entity: "translation", Count: result.Deleted,
		Message: fmt.Sprintf("resync deleted %d rows, rebuilt %d", result.Deleted, result.Created())})
	return result, nil
}

// cycle runs one delete-then-rebuild pass against st. deleted reports whether
// the delete step ran, i.e. whether a failure left the store short of rows.
func (c *Coordinator) cycle(ctx context.Context, st store.Store, kinds []curriculum.EntityKind) (ResyncResult, bool, error) {
	result := ResyncResult{Rebuilt: make(map[curriculum.EntityKind]int, len(kinds))}

	set := make(kindSet, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	owners, err := resolveOwners(ctx, st, c.catalog, set)
	if err != nil {
		return result, false, err
	}

	n, err := st.DeleteTranslations(ctx, kinds)
	if err != nil {
		return result, false, MapStoreError("delete translations", "", err)
	}
	result.Deleted = n
	c.rc.report(Event{Kind: EventDeleted, Entity: "translation", Count: n})

	for _, kind := range kinds {
		created, err := rebuildTranslations(ctx, st, kind, owners)
		result.Rebuilt[kind] = created
		if err != nil {
			return result, true, err
		}
		c.rc.report(Event{Kind: EventCreated, Entity: string(kind), Count: created})
	}
	return result, true, nil
}

// allowed checks types against AllowList and returns them deduplicated in
// AllowList order.
func allowed(types []curriculum.EntityKind) ([]curriculum.EntityKind, error) {
	want := make(map[curriculum.EntityKind]bool, len(types))
	for _, t := range types {
		if !slices.Contains(AllowList, t) {
			return nil, newError(CodeValidation, string(t), "resync", errNotAllowed)
		}
		want[t] = true
	}
	var kinds []curriculum.EntityKind
	for _, a := range AllowList {
		if want[a] {
			kinds = append(kinds, a)
		}
	}
	return kinds, nil
}
