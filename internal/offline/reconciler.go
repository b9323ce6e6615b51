package offline

import (
	"context"
	"time"

	"github.com/nerrad567/hostel-gate/internal/apperr"
	"github.com/nerrad567/hostel-gate/internal/auth"
	"github.com/nerrad567/hostel-gate/internal/canteen"
	"github.com/nerrad567/hostel-gate/internal/clock"
	"github.com/nerrad567/hostel-gate/internal/movement"
)

// ErrUnknownKind is returned for an event whose kind is neither security nor canteen.
var ErrUnknownKind = apperr.New(apperr.Invalid, "unknown_kind", "unknown offline event kind")

// ErrDuplicateInFlight is returned when another copy of the same event is
// still being applied. The client should retry it later.
var ErrDuplicateInFlight = apperr.New(apperr.Conflict, "duplicate_in_flight", "event is already being applied")

// Movement applies security scans.
type Movement interface {
	Apply(ctx context.Context, actor auth.Identity, action movement.Action, rollNo string, at time.Time, offline bool) (*movement.Result, error)
}

// Canteen records canteen scans.
type Canteen interface {
	RecordVisit(ctx context.Context, actor auth.Identity, rollNo string, at time.Time, offline bool) (*canteen.Result, error)
}

// Logger is the logging interface used by the reconciler.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Deps holds the collaborators of a Reconciler. Dedup and Logger are optional.
type Deps struct {
	Movement Movement
	Canteen  Canteen
	Dedup    Deduper
	Clock    clock.Clock
	Logger   Logger
}

// Reconciler replays queued offline scans through the live transitions.
type Reconciler struct {
	movement Movement
	canteen  Canteen
	dedup    Deduper
	clock    clock.Clock
	logger   Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(deps Deps) *Reconciler {
	r := &Reconciler{
		movement: deps.Movement,
		canteen:  deps.Canteen,
		dedup:    deps.Dedup,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
	if r.clock == nil {
		r.clock = clock.Real{}
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	return r
}

// Replay applies events in submission order and returns one result per
// event. A failing event is reported in its result and never stops the batch.
func (r *Reconciler) Replay(ctx context.Context, actor auth.Identity, events []Event) []Result {
	results := make([]Result, 0, len(events))
	for i, ev := range events {
		results = append(results, r.replayOne(ctx, actor, i, ev))
	}

	ok, failed := Summary(results)
	r.logger.Info("offline batch replayed",
		"device_id", actor.DeviceID,
		"role", string(actor.Role),
		"events", len(events),
		"succeeded", ok,
		"failed", failed,
	)
	return results
}

func (r *Reconciler) replayOne(ctx context.Context, actor auth.Identity, index int, ev Event) Result {
	res := Result{
		Index:   index,
		EventID: ev.EventID,
		Kind:    ev.Kind,
		RollNo:  ev.RollNo,
		Action:  ev.Action,
	}

	at, ok := ev.Time()
	if !ok {
		at = r.clock.Now().UTC()
	}
	res.Time = at

	if err := ctx.Err(); err != nil {
		return fail(res, err)
	}
	if err := authorizeEvent(actor, ev.Kind); err != nil {
		return fail(res, err)
	}

	key, state, claimed := r.claim(ctx, actor, ev)
	switch state {
	case ClaimApplied:
		res.Success = true
		res.Duplicate = true
		return res
	case ClaimPending:
		return fail(res, ErrDuplicateInFlight)
	}

	err := r.apply(ctx, actor, ev, at, &res)
	if err != nil {
		if claimed {
			if relErr := r.dedup.Release(ctx, key); relErr != nil {
				r.logger.Warn("releasing dedup claim failed", "key", key, "error", relErr)
			}
		}
		return fail(res, err)
	}
	if claimed {
		if cErr := r.dedup.Confirm(ctx, key); cErr != nil {
			r.logger.Warn("confirming dedup claim failed", "key", key, "error", cErr)
		}
	}
	res.Success = true
	return res
}

func (r *Reconciler) apply(ctx context.Context, actor auth.Identity, ev Event, at time.Time, res *Result) error {
	switch ev.Kind {
	case KindSecurity:
		action, err := movement.ParseAction(ev.Action)
		if err != nil {
			return err
		}
		out, err := r.movement.Apply(ctx, actor, action, ev.RollNo, at, true)
		if err != nil {
			return err
		}
		res.Action = string(action)
		res.Disciplinary = out.Exceeded()
		return nil
	case KindCanteen:
		out, err := r.canteen.RecordVisit(ctx, actor, ev.RollNo, at, true)
		if err != nil {
			return err
		}
		res.Unauthorized = out.Visit.IsUnauthorized
		return nil
	default:
		return ErrUnknownKind
	}
}

// claim reserves the event id. claimed reports whether this call holds the
// pending claim. A dedup backend failure lets the event through.
func (r *Reconciler) claim(ctx context.Context, actor auth.Identity, ev Event) (key string, state ClaimState, claimed bool) {
	if r.dedup == nil || ev.EventID == "" {
		return "", ClaimWon, false
	}
	key = dedupKey(actor.DeviceID, ev.EventID)
	state, err := r.dedup.Claim(ctx, key)
	if err != nil {
		r.logger.Warn("dedup claim failed, applying event", "key", key, "error", err)
		return key, ClaimWon, false
	}
	switch state {
	case ClaimApplied:
		r.logger.Info("duplicate offline event skipped", "key", key)
	case ClaimPending:
		r.logger.Info("duplicate offline event still in flight", "key", key)
	}
	return key, state, state == ClaimWon
}

// authorizeEvent checks the actor may sync and may perform this kind of scan.
func authorizeEvent(actor auth.Identity, kind Kind) error {
	if !auth.HasPermission(actor.Role, auth.PermOfflineSync) {
		return auth.ErrForbidden
	}
	switch kind {
	case KindSecurity:
		if !auth.HasPermission(actor.Role, auth.PermMovementScan) {
			return auth.ErrForbidden
		}
	case KindCanteen:
		if !auth.HasPermission(actor.Role, auth.PermCanteenScan) {
			return auth.ErrForbidden
		}
	default:
		return ErrUnknownKind
	}
	return nil
}

func fail(res Result, err error) Result {
	res.Success = false
	res.Error = err.Error()
	res.Code = apperr.CodeOf(err)
	return res
}
