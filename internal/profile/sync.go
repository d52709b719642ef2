package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opencrafts-io/parley/internal/eventbus"
	"github.com/opencrafts-io/parley/internal/metrics"
)

var (
	ErrUsernameExists = errors.New("profile: username already exists")
	ErrNoProfile      = errors.New("profile: no profile under the event key")
)

type Outcome string

const (
	Applied Outcome = "applied"
	Skipped Outcome = "skipped"
	Failed  Outcome = "failed"
)

// Result reports what applying one event did. Err is set only when the
// outcome is Failed.
type Result struct {
	Outcome Outcome
	Message string
	Err     error
}

func applied(msg string) Result { return Result{Outcome: Applied, Message: msg} }
func skipped(msg string) Result { return Result{Outcome: Skipped, Message: msg} }

func failed(err error) Result {
	return Result{Outcome: Failed, Message: err.Error(), Err: err}
}

// Sync applies identity change events to the profile store.
type Sync struct {
	store  Store
	logger *slog.Logger
}

func NewSync(store Store, logger *slog.Logger) *Sync {
	return &Sync{store: store, logger: logger}
}

// Handlers is the consumer dispatch table. Applied and skipped events are
// acknowledged and failed ones are rejected.
func (s *Sync) Handlers() eventbus.Handlers {
	return eventbus.Handlers{
		eventbus.KindRegistered:      eventbus.On(adapt(s, s.Registered)),
		eventbus.KindUsernameChanged: eventbus.On(adapt(s, s.UsernameChanged)),
		eventbus.KindEmailChanged:    eventbus.On(adapt(s, s.EmailChanged)),
		eventbus.KindDeactivated:     eventbus.On(adapt(s, s.Deactivated)),
	}
}

func adapt[T eventbus.Event](s *Sync, apply func(context.Context, T) Result) func(context.Context, T) error {
	return func(ctx context.Context, ev T) error {
		res := apply(ctx, ev)
		s.record(ev, res)
		if res.Outcome == Failed {
			return res.Err
		}
		return nil
	}
}

func (s *Sync) record(ev eventbus.Event, res Result) {
	meta := ev.Metadata()
	metrics.ProfileSyncTotal.WithLabelValues(string(ev.Kind()), string(res.Outcome)).Inc()

	attrs := []any{
		slog.String("kind", string(ev.Kind())),
		slog.String("event_id", meta.EventID),
		slog.String("subject_id", meta.SubjectID),
		slog.Int64("sequence", meta.Sequence),
		slog.String("outcome", string(res.Outcome)),
		slog.String("message", res.Message),
	}
	switch res.Outcome {
	case Failed:
		s.logger.Error("Failed to apply identity event", attrs...)
	case Skipped:
		s.logger.Warn("Skipped identity event", attrs...)
	default:
		s.logger.Info("Applied identity event", attrs...)
	}
}

// Registered creates the profile. An existing username fails unless it is
// the same subject replaying an event already applied.
func (s *Sync) Registered(ctx context.Context, ev eventbus.Registered) Result {
	seq := ev.Meta.Sequence

	existing, err := s.store.FindByUsername(ctx, ev.Username)
	switch {
	case err == nil:
		if existing.SubjectID == ev.SubjectID && existing.Sequence >= seq {
			return skipped("profile already created")
		}
		return failed(fmt.Errorf("%w: %s", ErrUsernameExists, ev.Username))
	case !errors.Is(err, ErrNotFound):
		return failed(err)
	}

	if res, done := s.alreadyApplied(ctx, ev.SubjectID, seq); done {
		return res
	}

	roles := ev.Roles
	if roles == nil {
		roles = []string{}
	}
	p := &Profile{
		SubjectID:   ev.SubjectID,
		Username:    ev.Username,
		Email:       ev.Email,
		Roles:       roles,
		Status:      PresenceOffline,
		LastSeen:    ev.CreatedAt,
		Active:      true,
		Sequence:    seq,
		UsernameSeq: seq,
		EmailSeq:    seq,
		ActiveSeq:   seq,
		CreatedAt:   ev.CreatedAt,
		UpdatedAt:   ev.Meta.OccurredAt,
	}
	if err := s.store.Create(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return failed(fmt.Errorf("%w: %s", ErrUsernameExists, ev.Username))
		}
		return failed(err)
	}
	return applied("profile created")
}

func (s *Sync) UsernameChanged(ctx context.Context, ev eventbus.UsernameChanged) Result {
	return s.change(ctx, ev.Meta, IdentityChange{Username: &ev.NewUsername}, "username changed")
}

func (s *Sync) EmailChanged(ctx context.Context, ev eventbus.EmailChanged) Result {
	return s.change(ctx, ev.Meta, IdentityChange{Email: &ev.NewEmail}, "email changed")
}

func (s *Sync) Deactivated(ctx context.Context, ev eventbus.Deactivated) Result {
	inactive := false
	return s.change(ctx, ev.Meta, IdentityChange{Active: &inactive}, "profile deactivated")
}

// change applies c to the event subject's profile. Events for different
// fields travel on different queues and may arrive in any order, so each
// field is gated by its own revision. A change that wrote nothing is either
// older than what the field holds (skipped) or has no profile to go to
// (failed).
func (s *Sync) change(ctx context.Context, meta eventbus.EventMetadata, c IdentityChange, msg string) Result {
	ok, err := s.store.ApplyIdentityChange(ctx, meta.SubjectID, meta.Sequence, c)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return failed(fmt.Errorf("%w: change for subject %s collides with another profile", ErrUsernameExists, meta.SubjectID))
		}
		return failed(err)
	}
	if ok {
		return applied(msg)
	}

	p, err := s.store.FindBySubject(ctx, meta.SubjectID)
	switch {
	case errors.Is(err, ErrNotFound):
		return failed(fmt.Errorf("%w: subject %s", ErrNoProfile, meta.SubjectID))
	case err != nil:
		return failed(err)
	}
	return skipped(fmt.Sprintf("stale event, field is at sequence %d", fieldSequence(p, c)))
}

// fieldSequence is the newest revision held by any field c touches.
func fieldSequence(p *Profile, c IdentityChange) int64 {
	var seq int64
	if c.Username != nil {
		seq = max(seq, p.UsernameSeq)
	}
	if c.Email != nil {
		seq = max(seq, p.EmailSeq)
	}
	if c.Active != nil {
		seq = max(seq, p.ActiveSeq)
	}
	return seq
}

// alreadyApplied reports a skip when the subject's profile has already seen
// seq or something newer.
func (s *Sync) alreadyApplied(ctx context.Context, subjectID string, seq int64) (Result, bool) {
	p, err := s.store.FindBySubject(ctx, subjectID)
	switch {
	case errors.Is(err, ErrNotFound):
		return Result{}, false
	case err != nil:
		return failed(err), true
	case p.Sequence >= seq:
		return skipped(fmt.Sprintf("stale event, profile is at sequence %d", p.Sequence)), true
	}
	return Result{}, false
}
