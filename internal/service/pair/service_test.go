package pair_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	pairservice "github.com/studyhall/pairhub/internal/service/pair"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time           { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newService(t *testing.T, cfg pairservice.Config) (*pairservice.Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	return pairservice.NewService(cfg, pairservice.WithClock(clock.Now)), clock
}

func TestServiceCreateAndGetSession(t *testing.T) {
	svc, _ := newService(t, pairservice.DefaultConfig())
	ctx := context.Background()

	uid := int64(7)
	session, err := svc.CreateSession(ctx, &uid, "ada")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if session.ID == "" {
		t.Fatal("expected session id")
	}

	got, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}
	if got.HostUsername != "ada" {
		t.Fatalf("unexpected host: %s", got.HostUsername)
	}
	if got.HostUserID == nil || *got.HostUserID != 7 {
		t.Fatalf("unexpected host user id: %v", got.HostUserID)
	}
	if got.Code == "" {
		t.Fatal("expected default code")
	}
}

func TestServiceCreateDefaultsHostName(t *testing.T) {
	svc, _ := newService(t, pairservice.DefaultConfig())

	session, err := svc.CreateSession(context.Background(), nil, "  ")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if session.HostUsername != "Host" {
		t.Fatalf("expected Host, got %q", session.HostUsername)
	}
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc, _ := newService(t, pairservice.DefaultConfig())

	if _, err := svc.GetSession(context.Background(), "missing"); !errors.Is(err, pairservice.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.GetSession(context.Background(), ""); !errors.Is(err, pairservice.ErrSessionIDRequired) {
		t.Fatalf("expected ErrSessionIDRequired, got %v", err)
	}
}

func TestServiceSessionExpiresAndExtends(t *testing.T) {
	svc, clock := newService(t, pairservice.Config{TTL: time.Hour})
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, nil, "ada")

	clock.Advance(50 * time.Minute)
	if _, err := svc.ExtendSession(ctx, session.ID, 2); err != nil {
		t.Fatalf("ExtendSession err: %v", err)
	}

	clock.Advance(90 * time.Minute)
	if _, err := svc.GetSession(ctx, session.ID); err != nil {
		t.Fatalf("expected extended session to be alive: %v", err)
	}

	clock.Advance(time.Hour)
	if _, err := svc.GetSession(ctx, session.ID); !errors.Is(err, pairservice.ErrSessionNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
	if _, err := svc.ExtendSession(ctx, session.ID, 1); !errors.Is(err, pairservice.ErrSessionNotFound) {
		t.Fatalf("expected extend on expired session to fail, got %v", err)
	}
}

func TestServiceExtendRejectsNonPositiveHours(t *testing.T) {
	svc, _ := newService(t, pairservice.DefaultConfig())
	session, _ := svc.CreateSession(context.Background(), nil, "ada")

	if _, err := svc.ExtendSession(context.Background(), session.ID, 0); !errors.Is(err, pairservice.ErrInvalidHours) {
		t.Fatalf("expected ErrInvalidHours, got %v", err)
	}
}

func TestServiceParticipantsKeyedBySocket(t *testing.T) {
	svc, _ := newService(t, pairservice.DefaultConfig())
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx, nil, "ada")

	if _, err := svc.AddParticipant(ctx, session.ID, nil, "sam", "sock-1"); err != nil {
		t.Fatalf("AddParticipant err: %v", err)
	}
	// same display name, different connection
	if _, err := svc.AddParticipant(ctx, session.ID, nil, "sam", "sock-2"); err != nil {
		t.Fatalf("AddParticipant err: %v", err)
	}
	got, err := svc.AddParticipant(ctx, session.ID, nil, "sam", "sock-1")
	if err != nil {
		t.Fatalf("AddParticipant err: %v", err)
	}
	if len(got.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(got.Participants))
	}

	got, err = svc.RemoveParticipant(ctx, session.ID, "sock-1")
	if err != nil {
		t.Fatalf("RemoveParticipant err: %v", err)
	}
	if len(got.Participants) != 1 || got.Participants[0].SocketID != "sock-2" {
		t.Fatalf("unexpected participants after removal: %+v", got.Participants)
	}
}

func TestServiceBlankUsernameGetsPlaceholder(t *testing.T) {
	svc, _ := newService(t, pairservice.DefaultConfig())
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx, nil, "ada")

	got, _ := svc.AddParticipant(ctx, session.ID, nil, "", "sock-1")
	if got.Participants[0].Username != "User0" {
		t.Fatalf("expected User0, got %q", got.Participants[0].Username)
	}
}

func TestServiceCodeLastWriteWins(t *testing.T) {
	svc, _ := newService(t, pairservice.DefaultConfig())
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx, nil, "ada")

	for _, code := range []string{"a", "b", "x=1"} {
		if err := svc.UpdateCode(ctx, session.ID, code); err != nil {
			t.Fatalf("UpdateCode err: %v", err)
		}
	}
	if err := svc.UpdateOutput(ctx, session.ID, "1\n"); err != nil {
		t.Fatalf("UpdateOutput err: %v", err)
	}

	state, err := svc.Snapshot(ctx, session.ID)
	if err != nil {
		t.Fatalf("Snapshot err: %v", err)
	}
	if state.Code != "x=1" || state.Output != "1\n" {
		t.Fatalf("unexpected snapshot: code=%q output=%q", state.Code, state.Output)
	}
}

func TestServiceMessagesCappedAndReplayed(t *testing.T) {
	svc, _ := newService(t, pairservice.Config{MaxMessages: 5, ReplayMessages: 3})
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx, nil, "ada")

	ids := make(map[string]bool)
	for i := 0; i < 8; i++ {
		msg, err := svc.AddMessage(ctx, session.ID, "ada", fmt.Sprintf("m%d", i), "sock")
		if err != nil {
			t.Fatalf("AddMessage err: %v", err)
		}
		if msg.ID == "" || ids[msg.ID] {
			t.Fatalf("expected unique message id, got %q", msg.ID)
		}
		ids[msg.ID] = true
	}

	got, _ := svc.GetSession(ctx, session.ID)
	if len(got.Messages) != 5 || got.Messages[0].Message != "m3" {
		t.Fatalf("unexpected retained messages: %+v", got.Messages)
	}

	state, _ := svc.Snapshot(ctx, session.ID)
	if len(state.Messages) != 3 || state.Messages[0].Message != "m5" || state.Messages[2].Message != "m7" {
		t.Fatalf("unexpected replayed messages: %+v", state.Messages)
	}
}

func TestServiceSnapshotHidesMessageSockets(t *testing.T) {
	svc, _ := newService(t, pairservice.DefaultConfig())
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx, nil, "ada")

	if _, err := svc.AddMessage(ctx, session.ID, "ada", "hi", "sock-ada"); err != nil {
		t.Fatalf("AddMessage err: %v", err)
	}

	got, _ := svc.GetSession(ctx, session.ID)
	if got.Messages[0].SocketID != "sock-ada" {
		t.Fatalf("expected stored socket id, got %q", got.Messages[0].SocketID)
	}

	state, _ := svc.Snapshot(ctx, session.ID)
	raw, err := json.Marshal(state.Messages)
	if err != nil {
		t.Fatalf("marshal messages: %v", err)
	}
	if strings.Contains(string(raw), "sock-ada") {
		t.Fatalf("replayed messages expose socket ids: %s", raw)
	}
}

func TestServiceSelectionClearedByAnyEmptyValue(t *testing.T) {
	svc, _ := newService(t, pairservice.DefaultConfig())
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx, nil, "ada")

	for _, empty := range []string{`null`, `{}`, `[]`, `""`, ``} {
		_ = svc.UpdateSelection(ctx, session.ID, "sock", json.RawMessage(`{"start":1}`))
		_ = svc.UpdateSelection(ctx, session.ID, "sock", json.RawMessage(empty))
		got, _ := svc.GetSession(ctx, session.ID)
		if _, ok := got.Selections["sock"]; ok {
			t.Fatalf("expected %q to clear the selection", empty)
		}
	}
}

func TestServiceSelectionClearedWhenEmpty(t *testing.T) {
	svc, _ := newService(t, pairservice.DefaultConfig())
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx, nil, "ada")

	if err := svc.UpdateSelection(ctx, session.ID, "sock", json.RawMessage(`{"start":1,"end":4}`)); err != nil {
		t.Fatalf("UpdateSelection err: %v", err)
	}
	got, _ := svc.GetSession(ctx, session.ID)
	if _, ok := got.Selections["sock"]; !ok {
		t.Fatal("expected stored selection")
	}

	_ = svc.UpdateSelection(ctx, session.ID, "sock", json.RawMessage(`null`))
	got, _ = svc.GetSession(ctx, session.ID)
	if _, ok := got.Selections["sock"]; ok {
		t.Fatal("expected selection to be cleared")
	}
}

func TestServiceSetTyping(t *testing.T) {
	svc, _ := newService(t, pairservice.DefaultConfig())
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx, nil, "ada")
	_, _ = svc.AddParticipant(ctx, session.ID, nil, "ada", "sock")

	if err := svc.SetTyping(ctx, session.ID, "sock", true); err != nil {
		t.Fatalf("SetTyping err: %v", err)
	}
	got, _ := svc.GetSession(ctx, session.ID)
	p, ok := got.Participant("sock")
	if !ok || !p.IsTyping {
		t.Fatalf("expected participant typing, got %+v", p)
	}
}

func TestServiceSweep(t *testing.T) {
	svc, clock := newService(t, pairservice.Config{TTL: time.Hour})
	ctx := context.Background()
	_, _ = svc.CreateSession(ctx, nil, "a")
	clock.Advance(30 * time.Minute)
	keep, _ := svc.CreateSession(ctx, nil, "b")

	clock.Advance(45 * time.Minute)
	if n := svc.Sweep(); n != 1 {
		t.Fatalf("expected 1 swept session, got %d", n)
	}

	live := svc.ListSessions(ctx)
	if len(live) != 1 || live[0].ID != keep.ID {
		t.Fatalf("unexpected live sessions: %+v", live)
	}
}
