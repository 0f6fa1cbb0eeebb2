// Package reconcile compares a mirrored snapshot with the live device state
// and writes confirmed differences back to the device.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/koltyakov/fbxos/internal/entity"
)

// Action is the kind of change a candidate proposes.
type Action int

// Actions.
const (
	// Recreate re-adds an entity present in the mirror but gone from the
	// device.
	Recreate Action = iota + 1
	// Update writes a mirrored mutable field back over the live value.
	Update
)

func (a Action) String() string {
	switch a {
	case Recreate:
		return "recreate"
	case Update:
		return "update"
	default:
		return "unknown"
	}
}

// Candidate is one proposed change. For updates From is the mirrored value
// and To the live one; restoring writes From.
type Candidate struct {
	Action Action
	Key    string
	Field  string
	From   any
	To     any
	// Entity is the mirrored entity the candidate was computed from.
	Entity *entity.Entity
}

func (c Candidate) String() string {
	kind := c.Entity.Kind()
	if c.Action == Recreate {
		return fmt.Sprintf("recreate %s %s", kind.Name, c.Key)
	}
	col, _ := kind.Column(c.Field)
	return fmt.Sprintf("update %s %s: %s %q -> %q", kind.Name, c.Key, c.Field,
		col.FormatValue(c.To), col.FormatValue(c.From))
}

// Plan is the ordered list of candidates for one kind.
type Plan struct {
	Kind       *entity.Kind
	Candidates []Candidate
	// Missing lists keys absent live that the device cannot recreate.
	Missing []string
}

// Empty reports whether there is nothing to restore.
func (p Plan) Empty() bool {
	return len(p.Candidates) == 0
}

// Diff computes what restoring mirrored onto live would change: entities
// missing live become Recreate candidates when the kind can be created, and
// mutable columns whose values differ become Update candidates. Order follows the mirrored collection and
// the column declaration. Nothing is written.
func Diff(mirrored, live *entity.Collection) (Plan, error) {
	if mirrored.Kind() != live.Kind() {
		return Plan{}, fmt.Errorf("cannot reconcile %s against %s", mirrored.Kind().Name, live.Kind().Name)
	}
	kind := mirrored.Kind()
	plan := Plan{Kind: kind}
	for _, m := range mirrored.All() {
		key := m.Key()
		l := live.ByID(key)
		if l == nil {
			if kind.Creatable() {
				plan.Candidates = append(plan.Candidates, Candidate{Action: Recreate, Key: key, Entity: m})
			} else {
				plan.Missing = append(plan.Missing, key)
			}
			continue
		}
		for _, c := range kind.MutableColumns() {
			from, to := m.Get(c.Name), l.Get(c.Name)
			if from == to {
				continue
			}
			plan.Candidates = append(plan.Candidates, Candidate{
				Action: Update,
				Key:    key,
				Field:  c.Name,
				From:   from,
				To:     to,
				Entity: m,
			})
		}
	}
	return plan, nil
}

// Writer applies changes to the device. [*entity.Service] implements it.
type Writer interface {
	UpdateField(ctx context.Context, kind *entity.Kind, id, field string, value any) (bool, error)
	Create(ctx context.Context, e *entity.Entity) (*entity.Entity, error)
}

// Confirmer approves a single candidate before it is written.
type Confirmer interface {
	Confirm(ctx context.Context, c Candidate) (bool, error)
}

// ConfirmFunc adapts a function to [Confirmer].
type ConfirmFunc func(ctx context.Context, c Candidate) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, c Candidate) (bool, error) {
	return f(ctx, c)
}

// ConfirmAll approves every candidate.
var ConfirmAll = ConfirmFunc(func(context.Context, Candidate) (bool, error) { return true, nil })

// ErrNoConfirmer is returned by Apply when a non-empty plan has no
// confirmer.
var ErrNoConfirmer = errors.New("reconcile: a confirmer is required")

// Result summarizes an Apply run.
type Result struct {
	Applied  int
	Declined int
	// Unchanged counts confirmed updates the device already matched.
	Unchanged int
}

// Apply asks confirm about each candidate in order and writes the approved
// ones with w. The first write or confirmation error stops the run; the
// result covers the candidates handled so far.
func Apply(ctx context.Context, plan Plan, w Writer, confirm Confirmer) (Result, error) {
	var res Result
	if plan.Empty() {
		return res, nil
	}
	if confirm == nil {
		return res, ErrNoConfirmer
	}
	for _, c := range plan.Candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ok, err := confirm.Confirm(ctx, c)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Declined++
			continue
		}
		switch c.Action {
		case Recreate:
			if _, err := w.Create(ctx, c.Entity); err != nil {
				return res, fmt.Errorf("recreate %s %s: %w", plan.Kind.Name, c.Key, err)
			}
			res.Applied++
		case Update:
			changed, err := w.UpdateField(ctx, plan.Kind, c.Key, c.Field, c.From)
			if err != nil {
				return res, fmt.Errorf("update %s %s %s: %w", plan.Kind.Name, c.Key, c.Field, err)
			}
			if changed {
				res.Applied++
			} else {
				res.Unchanged++
			}
		default:
			return res, fmt.Errorf("unknown action %d", c.Action)
		}
	}
	return res, nil
}
