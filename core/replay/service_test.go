package replay

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/darasahq/darasa/core/enroll"
	"github.com/darasahq/darasa/core/persona"
	"github.com/darasahq/darasa/core/script"
)

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// memLedger is an in-test delivery ledger.
type memLedger struct {
	mu        sync.Mutex
	recs      []Record
	recordErr error // injected non-duplicate failure
}

func (l *memLedger) HasFired(_ context.Context, userID, entryID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.recs {
		if r.UserID == userID && r.EntryID == entryID {
			return true, nil
		}
	}
	return false, nil
}

func (l *memLedger) RecordFired(ctx context.Context, rec Record) error {
	fired, _ := l.HasFired(ctx, rec.UserID, rec.EntryID)
	if fired {
		return ErrDuplicateDelivery
	}
	if l.recordErr != nil {
		return l.recordErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recs = append(l.recs, rec)
	return nil
}

func (l *memLedger) History(_ context.Context, userID string) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Record
	for _, r := range l.recs {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FiredAt.Before(out[j].FiredAt) })
	return out, nil
}

func testRegistry(t *testing.T) *persona.Registry {
	t.Helper()
	reg, err := persona.NewRegistry(
		[]persona.Persona{
			{ID: "amina", Name: "Amina K.", Location: "Nairobi, Kenya", Archetype: persona.ArchetypeLeader},
		},
		map[persona.Archetype][]int{
			persona.ArchetypeLeader:     {10, 35, 60, 85, 100},
			persona.ArchetypeStruggler:  {5, 11, 19, 34, 52},
			persona.ArchetypeQuestioner: {10, 24, 41, 58, 73},
			persona.ArchetypeBuyer:      {14, 33, 55, 72, 90},
		},
	)
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}
	return reg
}

func mustStore(t *testing.T, name string, kind script.TimelineKind, entries []script.Entry) *script.Store {
	t.Helper()
	s, err := script.NewStore(name, kind, entries)
	if err != nil {
		t.Fatalf("NewStore(%s) failed: %v", name, err)
	}
	return s
}

func testChatEntries() []script.Entry {
	return []script.Entry{
		{
			ID: "hello-30", At: 30, Kind: script.KindChat, PersonaID: "amina",
			Variants: []script.Variant{
				{Text: "A {{firstName}}", Weight: 1},
				{Text: "B {{firstName}}", Weight: 1},
			},
		},
		{
			ID: "ping-60", At: 60, Kind: script.KindEnrollment, PersonaID: "amina",
			Variants: []script.Variant{
				{Text: "{{personaName}} from {{personaLocation}} just enrolled", Weight: 1},
			},
		},
	}
}

func testDripEntries() []script.Entry {
	return []script.Entry{
		{
			ID: "day0-dm", At: 0, Kind: script.KindSystem,
			Variants: []script.Variant{{Text: "Worksheet one is live, {{firstName}}", Weight: 1}},
		},
		{
			ID: "day2-progress", At: 2, Kind: script.KindMilestone, PersonaID: "amina",
			Variants: []script.Variant{{Text: "{{personaName}} is at {{progressPercent}}% of the track", Weight: 1}},
		},
		{
			ID: "day4-email", At: 4, Kind: script.KindSystem,
			Channel: script.ChannelEmail, Template: "day4_checkin",
			Jitter:   &script.JitterWindow{FromHour: 1, ToHour: 3},
			Variants: []script.Variant{{Text: "Quick day {{dayNumber}} check-in, {{firstName}}", Weight: 1}},
		},
	}
}

func newTestService(t *testing.T, chat, drip []script.Entry, maxPerPass int) (*Service, *memLedger) {
	t.Helper()
	ledger := &memLedger{}
	svc, err := NewService(
		mustStore(t, "chat", script.TimelineVideo, chat),
		mustStore(t, "drip", script.TimelineDay, drip),
		testRegistry(t),
		ledger,
		nopLogger{},
		maxPerPass,
	)
	if err != nil {
		t.Fatalf("NewService() failed: %v", err)
	}
	return svc, ledger
}

func TestNewServiceValidation(t *testing.T) {
	reg := testRegistry(t)
	ledger := &memLedger{}
	chat := mustStore(t, "chat", script.TimelineVideo, testChatEntries())
	drip := mustStore(t, "drip", script.TimelineDay, testDripEntries())

	t.Run("chat must be video-keyed", func(t *testing.T) {
		if _, err := NewService(drip, drip, reg, ledger, nopLogger{}, 0); err == nil {
			t.Error("NewService() accepted a day-keyed chat script")
		}
	})

	t.Run("drip must be day-keyed", func(t *testing.T) {
		if _, err := NewService(chat, chat, reg, ledger, nopLogger{}, 0); err == nil {
			t.Error("NewService() accepted a video-keyed drip script")
		}
	})

	t.Run("unknown persona reference", func(t *testing.T) {
		bad := mustStore(t, "chat", script.TimelineVideo, []script.Entry{{
			ID: "x", At: 5, Kind: script.KindChat, PersonaID: "ghost",
			Variants: []script.Variant{{Text: "hi", Weight: 1}},
		}})
		if _, err := NewService(bad, drip, reg, ledger, nopLogger{}, 0); err == nil {
			t.Error("NewService() accepted an unknown persona reference")
		}
	})

	t.Run("persona token without persona", func(t *testing.T) {
		bad := mustStore(t, "chat", script.TimelineVideo, []script.Entry{{
			ID: "x", At: 5, Kind: script.KindEnrollment,
			Variants: []script.Variant{{Text: "{{personaName}} joined", Weight: 1}},
		}})
		if _, err := NewService(bad, drip, reg, ledger, nopLogger{}, 0); err == nil {
			t.Error("NewService() accepted a persona token without a persona")
		}
	})

	t.Run("progress token on video timeline", func(t *testing.T) {
		bad := mustStore(t, "chat", script.TimelineVideo, []script.Entry{{
			ID: "x", At: 5, Kind: script.KindMilestone, PersonaID: "amina",
			Variants: []script.Variant{{Text: "at {{progressPercent}}%", Weight: 1}},
		}})
		if _, err := NewService(bad, drip, reg, ledger, nopLogger{}, 0); err == nil {
			t.Error("NewService() accepted a progress token on a video timeline")
		}
	})

	t.Run("entry id shared across scripts", func(t *testing.T) {
		dup := mustStore(t, "drip", script.TimelineDay, []script.Entry{{
			ID: "hello-30", At: 0, Kind: script.KindSystem,
			Variants: []script.Variant{{Text: "hi", Weight: 1}},
		}})
		if _, err := NewService(chat, dup, reg, ledger, nopLogger{}, 0); err == nil {
			t.Error("NewService() accepted colliding entry ids across scripts")
		}
	})
}

func TestReplayChat(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, testChatEntries(), testDripEntries(), 0)
	rctx := RenderContext{script.TokenFirstName: "Dana"}

	// before the first trigger nothing fires
	events, err := svc.ReplayChat(ctx, "u1", 15, rctx, 99)
	if err != nil {
		t.Fatalf("ReplayChat() failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("ReplayChat(15) fired %d events, want 0", len(events))
	}

	// the 30s entry becomes due; exactly one of its two variants renders
	events, err = svc.ReplayChat(ctx, "u1", 45, rctx, 99)
	if err != nil {
		t.Fatalf("ReplayChat() failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("ReplayChat(45) fired %d events, want 1", len(events))
	}
	first := events[0]
	if first.EntryID != "hello-30" || first.Kind != script.KindChat || first.PersonaID != "amina" {
		t.Errorf("unexpected event: %+v", first)
	}
	if first.Message != "A Dana" && first.Message != "B Dana" {
		t.Errorf("Message = %q, want a fully rendered variant", first.Message)
	}

	// replaying the same position never re-delivers
	events, err = svc.ReplayChat(ctx, "u1", 90, rctx, 99)
	if err != nil {
		t.Fatalf("ReplayChat() failed: %v", err)
	}
	if len(events) != 1 || events[0].EntryID != "ping-60" {
		t.Fatalf("ReplayChat(90) = %+v, want only ping-60", events)
	}
	if want := "Amina K. from Nairobi, Kenya just enrolled"; events[0].Message != want {
		t.Errorf("Message = %q, want %q", events[0].Message, want)
	}

	events, err = svc.ReplayChat(ctx, "u1", 90, rctx, 99)
	if err != nil {
		t.Fatalf("ReplayChat() failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("second ReplayChat(90) re-delivered %d events", len(events))
	}
}

func TestReplayChatNeverFiresEarly(t *testing.T) {
	ctx := context.Background()
	rctx := RenderContext{script.TokenFirstName: "Dana"}
	for pos := -5; pos < 30; pos++ {
		svc, _ := newTestService(t, testChatEntries(), testDripEntries(), 0)
		events, err := svc.ReplayChat(ctx, "u1", pos, rctx, 1)
		if err != nil {
			t.Fatalf("ReplayChat(%d) failed: %v", pos, err)
		}
		if len(events) != 0 {
			t.Fatalf("ReplayChat(%d) fired %v before the first trigger", pos, events)
		}
	}
}

func TestReplayChatCapsPerPass(t *testing.T) {
	ctx := context.Background()
	var entries []script.Entry
	for _, id := range []string{"e1", "e2", "e3", "e4", "e5", "e6", "e7"} {
		entries = append(entries, script.Entry{
			ID: id, At: 10, Kind: script.KindSystem,
			Variants: []script.Variant{{Text: "notice " + id, Weight: 1}},
		})
	}
	svc, _ := newTestService(t, entries, testDripEntries(), 3)

	var total int
	for pass := 0; pass < 3; pass++ {
		events, err := svc.ReplayChat(ctx, "u1", 10, nil, 1)
		if err != nil {
			t.Fatalf("ReplayChat() failed: %v", err)
		}
		if len(events) > 3 {
			t.Fatalf("pass %d fired %d events, cap is 3", pass, len(events))
		}
		total += len(events)
	}
	if total != 7 {
		t.Errorf("drained %d events over three passes, want 7", total)
	}
	// entries within a pass keep script order
}

func TestReplayChatRenderFailureSkips(t *testing.T) {
	ctx := context.Background()
	svc, ledger := newTestService(t, testChatEntries(), testDripEntries(), 0)

	// firstName missing: the entry cannot render and must not burn its ledger slot
	events, err := svc.ReplayChat(ctx, "u1", 45, nil, 1)
	if err != nil {
		t.Fatalf("ReplayChat() failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("unrenderable entry produced %d events", len(events))
	}
	if len(ledger.recs) != 0 {
		t.Fatalf("unrenderable entry was recorded: %+v", ledger.recs)
	}

	// once the context is complete the entry delivers normally
	events, err = svc.ReplayChat(ctx, "u1", 45, RenderContext{script.TokenFirstName: "Dana"}, 1)
	if err != nil {
		t.Fatalf("ReplayChat() failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("entry did not deliver after render context was completed")
	}
}

func TestReplayChatLedgerFailureStillDelivers(t *testing.T) {
	ctx := context.Background()
	svc, ledger := newTestService(t, testChatEntries(), testDripEntries(), 0)
	ledger.recordErr = errors.New("ledger unavailable")

	events, err := svc.ReplayChat(ctx, "u1", 45, RenderContext{script.TokenFirstName: "Dana"}, 1)
	if err != nil {
		t.Fatalf("ReplayChat() failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("ledger failure suppressed delivery: %+v", events)
	}
}

func TestReplayChatVariantStablePerUser(t *testing.T) {
	ctx := context.Background()
	rctx := RenderContext{script.TokenFirstName: "Dana"}

	// same user and seed on a fresh ledger always lands on the same variant
	var msgs []string
	for i := 0; i < 5; i++ {
		svc, _ := newTestService(t, testChatEntries(), testDripEntries(), 0)
		events, err := svc.ReplayChat(ctx, "u1", 45, rctx, 99)
		if err != nil {
			t.Fatalf("ReplayChat() failed: %v", err)
		}
		msgs = append(msgs, events[0].Message)
	}
	for _, m := range msgs[1:] {
		if m != msgs[0] {
			t.Fatalf("variant selection unstable for one user: %v", msgs)
		}
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	svc, ledger := newTestService(t, testChatEntries(), testDripEntries(), 0)
	rctx := RenderContext{script.TokenFirstName: "Dana"}

	base := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	svc.nowFunc = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	delivered, err := svc.ReplayChat(ctx, "u1", 90, rctx, 99)
	if err != nil {
		t.Fatalf("ReplayChat() failed: %v", err)
	}
	if len(delivered) != 2 {
		t.Fatalf("delivered %d events, want 2", len(delivered))
	}

	// a retired entry in the ledger is skipped silently
	ledger.recs = append(ledger.recs, Record{
		ID: "stale", UserID: "u1", EntryID: "removed-entry", FiredAt: clock.Add(time.Hour),
	})

	hist, err := svc.History(ctx, "u1", rctx, 99)
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("History() returned %d events, want 2", len(hist))
	}
	for i, evt := range hist {
		if evt.EntryID != delivered[i].EntryID {
			t.Errorf("history order mismatch at %d: %q vs %q", i, evt.EntryID, delivered[i].EntryID)
		}
		// repaint must reproduce the exact message originally shown
		if evt.Message != delivered[i].Message {
			t.Errorf("history repaint diverged for %s: %q vs %q", evt.EntryID, evt.Message, delivered[i].Message)
		}
	}
	if !hist[0].FiredAt.Before(hist[1].FiredAt) {
		t.Error("History() is not ascending by firedAt")
	}

	seen := map[string]bool{}
	for _, evt := range hist {
		if seen[evt.EntryID] {
			t.Errorf("History() repeated entry %s", evt.EntryID)
		}
		seen[evt.EntryID] = true
	}
}

func TestSweepUser(t *testing.T) {
	ctx := context.Background()
	anchor := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	enr := enroll.Enrollment{
		ID: "enr-1", FirstName: "Dana", Email: "dana@example.test",
		Course: "certification", IsActive: true, AnchorAt: anchor,
	}
	rctx := RenderContext{script.TokenFirstName: "Dana"}

	t.Run("before the anchor nothing fires", func(t *testing.T) {
		svc, _ := newTestService(t, testChatEntries(), testDripEntries(), 0)
		svc.nowFunc = func() time.Time { return anchor.Add(-time.Hour) }
		res, err := svc.SweepUser(ctx, enr, rctx, 7)
		if err != nil {
			t.Fatalf("SweepUser() failed: %v", err)
		}
		if len(res.Events) != 0 || len(res.Intents) != 0 {
			t.Errorf("pre-anchor sweep fired: %+v", res)
		}
	})

	t.Run("day three fires only elapsed entries", func(t *testing.T) {
		svc, _ := newTestService(t, testChatEntries(), testDripEntries(), 0)
		svc.nowFunc = func() time.Time { return anchor.Add(3*24*time.Hour + 5*time.Hour) }
		res, err := svc.SweepUser(ctx, enr, rctx, 7)
		if err != nil {
			t.Fatalf("SweepUser() failed: %v", err)
		}
		if len(res.Events) != 2 || len(res.Intents) != 0 {
			t.Fatalf("day-3 sweep = %d events, %d intents; want 2, 0", len(res.Events), len(res.Intents))
		}
		if res.Events[0].EntryID != "day0-dm" || res.Events[1].EntryID != "day2-progress" {
			t.Errorf("unexpected events: %+v", res.Events)
		}
		if want := "Worksheet one is live, Dana"; res.Events[0].Message != want {
			t.Errorf("Message = %q, want %q", res.Events[0].Message, want)
		}
		// amina's leader curve reads 10 for the authored day of day2-progress
		if want := "Amina K. is at 10% of the track"; res.Events[1].Message != want {
			t.Errorf("Message = %q, want %q", res.Events[1].Message, want)
		}
	})

	t.Run("jitter holds the trigger-day entry until its hour", func(t *testing.T) {
		svc, _ := newTestService(t, testChatEntries(), testDripEntries(), 0)
		svc.nowFunc = func() time.Time { return anchor.Add(4 * 24 * time.Hour) } // day 4, hour 0
		res, err := svc.SweepUser(ctx, enr, rctx, 7)
		if err != nil {
			t.Fatalf("SweepUser() failed: %v", err)
		}
		for _, it := range res.Intents {
			if it.EntryID == "day4-email" {
				t.Fatal("day4-email fired before its jitter window opened")
			}
		}

		// hour 3 is at or past every slot of the [1, 3] window
		svc.nowFunc = func() time.Time { return anchor.Add(4*24*time.Hour + 3*time.Hour) }
		res, err = svc.SweepUser(ctx, enr, rctx, 7)
		if err != nil {
			t.Fatalf("SweepUser() failed: %v", err)
		}
		var intent *DeliveryIntent
		for i := range res.Intents {
			if res.Intents[i].EntryID == "day4-email" {
				intent = &res.Intents[i]
			}
		}
		if intent == nil {
			t.Fatalf("day4-email did not fire at hour 3: %+v", res)
		}
		if intent.Channel != script.ChannelEmail || intent.Recipient != enr.Email ||
			intent.RecipientName != "Dana" || intent.Template != "day4_checkin" {
			t.Errorf("unexpected intent: %+v", intent)
		}
		if want := "Quick day 4 check-in, Dana"; intent.Vars["message"] != want {
			t.Errorf("intent message = %q, want %q", intent.Vars["message"], want)
		}
		if intent.Vars[script.TokenDayNumber] != "4" {
			t.Errorf("intent dayNumber = %q, want 4", intent.Vars[script.TokenDayNumber])
		}
	})

	t.Run("jitter never delays past the trigger day", func(t *testing.T) {
		svc, _ := newTestService(t, testChatEntries(), testDripEntries(), 0)
		svc.nowFunc = func() time.Time { return anchor.Add(5 * 24 * time.Hour) } // day 5, hour 0
		res, err := svc.SweepUser(ctx, enr, rctx, 7)
		if err != nil {
			t.Fatalf("SweepUser() failed: %v", err)
		}
		found := false
		for _, it := range res.Intents {
			found = found || it.EntryID == "day4-email"
		}
		if !found {
			t.Error("day4-email still held back a full day after its trigger")
		}
	})

	t.Run("sweeps never re-deliver", func(t *testing.T) {
		svc, _ := newTestService(t, testChatEntries(), testDripEntries(), 0)
		svc.nowFunc = func() time.Time { return anchor.Add(6 * 24 * time.Hour) }
		first, err := svc.SweepUser(ctx, enr, rctx, 7)
		if err != nil {
			t.Fatalf("SweepUser() failed: %v", err)
		}
		if len(first.Events)+len(first.Intents) != 3 {
			t.Fatalf("first sweep fired %d entries, want 3", len(first.Events)+len(first.Intents))
		}
		second, err := svc.SweepUser(ctx, enr, rctx, 7)
		if err != nil {
			t.Fatalf("SweepUser() failed: %v", err)
		}
		if len(second.Events)+len(second.Intents) != 0 {
			t.Errorf("second sweep re-delivered: %+v", second)
		}
	})
}

func TestServiceProgress(t *testing.T) {
	svc, _ := newTestService(t, testChatEntries(), testDripEntries(), 0)
	got, err := svc.Progress(persona.ArchetypeLeader, 14)
	if err != nil {
		t.Fatalf("Progress() failed: %v", err)
	}
	if got != 60 {
		t.Errorf("Progress() = %d, want 60", got)
	}
}
