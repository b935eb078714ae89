package replay

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/enroll"
	"github.com/darasahq/darasa/core/persona"
	"github.com/darasahq/darasa/core/script"
)

const defaultMaxEventsPerPass = 5

// Service replays authored social-proof scripts against a clock: the video
// position of a masterclass replay, or the days elapsed since an enrollment
// anchor. Fired entries are recorded in the delivery ledger so a given user
// sees a stable, non-repeating sequence across page loads, sweeps and
// reconnects.
//
// Per-user state lives entirely in the ledger; the scripts and persona
// registry are read-only after load, so one Service is safe for concurrent
// use across users.
type Service struct {
	chat       *script.Store // video-keyed
	drip       *script.Store // day-keyed
	reg        *persona.Registry
	repo       Repository
	logger     core.Logger
	maxPerPass int

	nowFunc func() time.Time // mockable
}

// NewService cross-validates the two scripts against the persona registry and
// wires the delivery ledger. maxPerPass caps how many newly due entries fire
// per pass (≤ 0 selects the default); entries beyond the cap stay due for the
// next pass.
func NewService(
	chat, drip *script.Store,
	reg *persona.Registry,
	repo Repository,
	logger core.Logger,
	maxPerPass int,
) (*Service, error) {
	if chat.Kind() != script.TimelineVideo {
		return nil, &script.ValidationError{Script: chat.Name(), Reason: "chat script must be video-keyed"}
	}
	if drip.Kind() != script.TimelineDay {
		return nil, &script.ValidationError{Script: drip.Name(), Reason: "drip script must be day-keyed"}
	}
	for _, store := range []*script.Store{chat, drip} {
		if err := crossValidate(store, reg); err != nil {
			return nil, err
		}
	}
	// entry ids key the shared delivery ledger; they must not collide across scripts
	for _, e := range chat.All() {
		if _, ok := drip.Get(e.ID); ok {
			return nil, &script.ValidationError{
				Script: drip.Name(), EntryID: e.ID,
				Reason: "entry id also present in script " + strconv.Quote(chat.Name()),
			}
		}
	}
	if maxPerPass <= 0 {
		maxPerPass = defaultMaxEventsPerPass
	}
	return &Service{
		chat:       chat,
		drip:       drip,
		reg:        reg,
		repo:       repo,
		logger:     logger,
		maxPerPass: maxPerPass,
		nowFunc:    time.Now,
	}, nil
}

// crossValidate checks the references a script store cannot check alone:
// persona ids must exist and persona-derived tokens require a persona.
func crossValidate(store *script.Store, reg *persona.Registry) error {
	for _, e := range store.All() {
		if e.PersonaID != "" && !reg.Has(e.PersonaID) {
			return &script.ValidationError{
				Script: store.Name(), EntryID: e.ID,
				Reason: "unknown persona " + strconv.Quote(e.PersonaID),
			}
		}
		for _, v := range e.Variants {
			for _, tok := range script.Tokens(v.Text) {
				switch tok {
				case script.TokenPersonaName, script.TokenPersonaLocation, script.TokenProgressPercent:
					if e.PersonaID == "" {
						return &script.ValidationError{
							Script: store.Name(), EntryID: e.ID,
							Reason: "token {{" + tok + "}} requires a persona",
						}
					}
				}
				if tok == script.TokenProgressPercent && store.Kind() != script.TimelineDay {
					return &script.ValidationError{
						Script: store.Name(), EntryID: e.ID,
						Reason: "token {{" + script.TokenProgressPercent + "}} is only valid on day timelines",
					}
				}
			}
		}
	}
	return nil
}

// ReplayChat returns the chat events newly due at the given playback position
// for this user, rendered and recorded. Repeated calls never re-deliver: an
// entry fires at most once per user, and no entry past the playback position
// ever fires early.
func (svc *Service) ReplayChat(
	ctx context.Context,
	userID string,
	position int,
	rctx RenderContext,
	seed int64,
) ([]Event, error) {
	delivered, err := svc.deliveredSet(ctx, userID)
	if err != nil {
		return nil, err
	}

	due := svc.chat.Due(position, delivered)
	if len(due) > svc.maxPerPass {
		due = due[:svc.maxPerPass]
	}

	events := make([]Event, 0, len(due))
	for _, e := range due {
		evt, ok := svc.fire(ctx, userID, e, rctx, seed, svc.nowFunc().UTC())
		if ok {
			events = append(events, evt)
		}
	}
	return events, nil
}

// SweepResult is the outcome of one day-keyed sweep pass for one enrollment.
type SweepResult struct {
	Events  []Event          `json:"events"`  // on-page events (DM feed, nudges)
	Intents []DeliveryIntent `json:"intents"` // side-channel sends for the host to perform
}

// SweepUser evaluates the day-keyed drip script for one enrollment as of now.
// Entries never fire before their day offset has elapsed; a jitter window only
// delays firing within the trigger day. On-page entries become events,
// email/SMS entries become delivery intents; both are recorded in the ledger
// before any side effect is attempted.
func (svc *Service) SweepUser(
	ctx context.Context,
	enr enroll.Enrollment,
	rctx RenderContext,
	seed int64,
) (SweepResult, error) {
	var res SweepResult

	now := svc.nowFunc().UTC()
	days := enr.ElapsedDays(now)
	if days < 0 {
		return res, nil
	}

	delivered, err := svc.deliveredSet(ctx, enr.ID)
	if err != nil {
		return res, err
	}

	due := svc.drip.Due(days, delivered)
	fired := 0
	for _, e := range due {
		if fired >= svc.maxPerPass {
			break
		}
		if !svc.jitterElapsed(e, enr, days, now) {
			continue
		}

		extra := map[string]string{script.TokenDayNumber: strconv.Itoa(e.At)}
		evt, ok := svc.fire(ctx, enr.ID, e, rctx.Merged(extra), seed, now)
		if !ok {
			continue
		}
		fired++

		if e.Channel == script.ChannelOnPage {
			res.Events = append(res.Events, evt)
			continue
		}
		res.Intents = append(res.Intents, svc.intentFor(e, enr, evt, rctx.Merged(extra)))
	}
	return res, nil
}

// History re-renders everything the user has already seen, ascending by
// firedAt. Variant selection is derived from the (user, entry) pair, so a
// repaint always reproduces the exact messages originally shown.
func (svc *Service) History(
	ctx context.Context,
	userID string,
	rctx RenderContext,
	seed int64,
) ([]Event, error) {
	recs, err := svc.repo.History(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying delivery history")
	}

	events := make([]Event, 0, len(recs))
	for _, rec := range recs {
		e, ok := svc.chat.Get(rec.EntryID)
		if !ok {
			if e, ok = svc.drip.Get(rec.EntryID); !ok {
				continue // entry retired from the script; skip silently
			}
		}
		full := rctx
		if svc.storeOf(e) == svc.drip {
			full = rctx.Merged(map[string]string{script.TokenDayNumber: strconv.Itoa(e.At)})
		}
		msg, renderErr := svc.render(userID, e, full, seed, e.At)
		if renderErr != nil {
			svc.logger.Error("re-rendering delivered entry", renderErr)
			continue
		}
		events = append(events, Event{
			EntryID:   e.ID,
			PersonaID: e.PersonaID,
			Kind:      e.Kind,
			Message:   msg,
			FiredAt:   rec.FiredAt,
		})
	}
	return events, nil
}

// Progress proxies the persona progress-curve lookup for presentation needs.
func (svc *Service) Progress(arch persona.Archetype, elapsedDays int) (int, error) {
	return svc.reg.Progress(arch, elapsedDays)
}

// fire renders the entry and records the delivery. A render failure or a
// duplicate ledger row skips the entry; a non-duplicate ledger failure still
// delivers (at-least-once is tolerable here, the next pass re-offers nothing
// that was recorded).
func (svc *Service) fire(
	ctx context.Context,
	userID string,
	e script.Entry,
	rctx RenderContext,
	seed int64,
	firedAt time.Time,
) (Event, bool) {
	progressDays := e.At // authored day; keeps repaints stable
	msg, err := svc.render(userID, e, rctx, seed, progressDays)
	if err != nil {
		svc.logger.Error("rendering script entry "+e.ID, err)
		return Event{}, false
	}

	rec := Record{
		ID:      uuid.New().String(),
		UserID:  userID,
		EntryID: e.ID,
		FiredAt: firedAt,
	}
	if err := svc.repo.RecordFired(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateDelivery) {
			return Event{}, false // someone else got here first; not an error
		}
		svc.logger.Error("recording delivery for entry "+e.ID, err)
	}

	return Event{
		EntryID:   e.ID,
		PersonaID: e.PersonaID,
		Kind:      e.Kind,
		Message:   msg,
		FiredAt:   firedAt,
	}, true
}

// render resolves persona tokens and substitutes placeholders using a seed
// derived from the (user, entry) pair: same user, same entry, same message.
func (svc *Service) render(
	userID string,
	e script.Entry,
	rctx RenderContext,
	seed int64,
	progressDays int,
) (string, error) {
	if e.PersonaID != "" {
		p, err := svc.reg.Get(e.PersonaID)
		if err != nil {
			return "", errors.Wrapf(err, "resolving persona %q", e.PersonaID)
		}
		extra := map[string]string{
			script.TokenPersonaName:     p.Name,
			script.TokenPersonaLocation: p.Location,
		}
		if svc.storeOf(e) == svc.drip {
			pct, err := svc.reg.Progress(p.Archetype, progressDays)
			if err != nil {
				return "", errors.Wrapf(err, "progress for archetype %q", p.Archetype)
			}
			extra[script.TokenProgressPercent] = strconv.Itoa(pct)
		}
		rctx = rctx.Merged(extra)
	}

	eng := NewEngine(DeriveSeed(seed, userID, e.ID))
	return eng.Render(e, rctx)
}

// jitterElapsed reports whether the entry's jitter window has passed. Entries
// past their trigger day always fire; within the trigger day the entry waits
// for a deterministic per-(user, entry) hour inside the window.
func (svc *Service) jitterElapsed(e script.Entry, enr enroll.Enrollment, days int, now time.Time) bool {
	if e.Jitter == nil || e.At < days {
		return true
	}
	span := e.Jitter.ToHour - e.Jitter.FromHour + 1
	hour := e.Jitter.FromHour + int(uint64(DeriveSeed(0, enr.ID, e.ID))%uint64(span))
	return enr.HourOfDay(now) >= hour
}

func (svc *Service) intentFor(e script.Entry, enr enroll.Enrollment, evt Event, rctx RenderContext) DeliveryIntent {
	recipient := enr.Email
	if e.Channel == script.ChannelSMS {
		recipient = enr.Phone
	}
	vars := make(map[string]string, len(rctx)+1)
	for k, v := range rctx {
		vars[k] = v
	}
	vars["message"] = evt.Message
	return DeliveryIntent{
		UserID:        enr.ID,
		EntryID:       e.ID,
		Channel:       e.Channel,
		Recipient:     recipient,
		RecipientName: enr.FirstName,
		Template:      e.Template,
		Vars:          vars,
	}
}

func (svc *Service) storeOf(e script.Entry) *script.Store {
	if _, ok := svc.drip.Get(e.ID); ok {
		return svc.drip
	}
	return svc.chat
}

func (svc *Service) deliveredSet(ctx context.Context, userID string) (map[string]bool, error) {
	recs, err := svc.repo.History(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying delivery history")
	}
	delivered := make(map[string]bool, len(recs))
	for _, rec := range recs {
		delivered[rec.EntryID] = true
	}
	return delivered, nil
}
