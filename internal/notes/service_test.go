package notes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inkwell-notes/inkwell/internal/events"
	"github.com/inkwell-notes/inkwell/internal/fault"
)

func TestCreateThenListRoundtrip(t *testing.T) {
	db := newTestDatabase(t)
	clock := &testClock{now: time.Unix(1700000000, 0).UTC()}
	store := newTestStore(t, db, clock, "owner-a", nil)

	created, err := store.Create(context.Background(), "Groceries", "milk, eggs")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("a fresh note must have CreatedAt == UpdatedAt, got %v and %v", created.CreatedAt, created.UpdatedAt)
	}

	listed, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one note, got %d", len(listed))
	}
	if listed[0].ID != created.ID || listed[0].Title != "Groceries" || listed[0].Content != "milk, eggs" {
		t.Fatalf("listed note does not match created note: %+v", listed[0])
	}
	if listed[0].OwnerID != "owner-a" {
		t.Fatalf("note must be tagged with the bound owner, got %q", listed[0].OwnerID)
	}
}

func TestCreateRejectsEmptyTitle(t *testing.T) {
	db := newTestDatabase(t)
	clock := &testClock{now: time.Unix(1700000000, 0).UTC()}
	store := newTestStore(t, db, clock, "owner-a", nil)

	for _, title := range []string{"", "   "} {
		_, err := store.Create(context.Background(), title, "content")
		if !errors.Is(err, ErrEmptyTitle) {
			t.Fatalf("expected ErrEmptyTitle for %q, got %v", title, err)
		}
		if !fault.IsValidation(err) {
			t.Fatalf("empty title should be a validation fault")
		}
	}

	listed, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("rejected creates must not persist anything")
	}
}

func TestUpdateRefreshesUpdateTime(t *testing.T) {
	db := newTestDatabase(t)
	clock := &testClock{now: time.Unix(1700000000, 0).UTC()}
	store := newTestStore(t, db, clock, "owner-a", nil)

	created, err := store.Create(context.Background(), "Draft", "v1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	clock.Advance(42 * time.Second)
	updated, err := store.Update(context.Background(), created.ID, "Final", "v2")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if updated.Title != "Final" || updated.Content != "v2" {
		t.Fatalf("update did not apply fields: %+v", updated)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Fatalf("UpdatedAt must be strictly after CreatedAt, got %v and %v", updated.UpdatedAt, updated.CreatedAt)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("CreatedAt is immutable, got %v", updated.CreatedAt)
	}

	listed, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 1 || listed[0].Title != "Final" {
		t.Fatalf("list must reflect the committed update: %+v", listed)
	}
}

func TestUpdateUnknownNoteFails(t *testing.T) {
	db := newTestDatabase(t)
	clock := &testClock{now: time.Unix(1700000000, 0).UTC()}
	store := newTestStore(t, db, clock, "owner-a", nil)

	_, err := store.Update(context.Background(), "missing", "Title", "content")
	if !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("expected ErrNoteNotFound, got %v", err)
	}
	if !fault.IsValidation(err) {
		t.Fatalf("unknown note should be a validation fault")
	}
}

func TestDeleteRemovesNote(t *testing.T) {
	db := newTestDatabase(t)
	clock := &testClock{now: time.Unix(1700000000, 0).UTC()}
	store := newTestStore(t, db, clock, "owner-a", nil)

	created, err := store.Create(context.Background(), "Doomed", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := store.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	listed, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("deleted note must not appear in list")
	}

	// deleting again reports not-found rather than silently succeeding.
	err = store.Delete(context.Background(), created.ID)
	if !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("expected ErrNoteNotFound on repeated delete, got %v", err)
	}
}

func TestListOrdersByUpdateTimeDescending(t *testing.T) {
	db := newTestDatabase(t)
	clock := &testClock{now: time.Unix(1700000000, 0).UTC()}
	store := newTestStore(t, db, clock, "owner-a", nil)

	first, err := store.Create(context.Background(), "first", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	clock.Advance(time.Minute)
	second, err := store.Create(context.Background(), "second", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	clock.Advance(time.Minute)
	third, err := store.Create(context.Background(), "third", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	listed, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	assertOrder(t, listed, third.ID, second.ID, first.ID)

	// updating the oldest note moves it to the front.
	clock.Advance(time.Minute)
	if _, err := store.Update(context.Background(), first.ID, "first-revised", ""); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	listed, err = store.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	assertOrder(t, listed, first.ID, third.ID, second.ID)
}

func TestCrossOwnerIsolation(t *testing.T) {
	db := newTestDatabase(t)
	clock := &testClock{now: time.Unix(1700000000, 0).UTC()}
	storeA := newTestStore(t, db, clock, "owner-a", nil)
	storeB := newTestStore(t, db, clock, "owner-b", nil)

	noteA, err := storeA.Create(context.Background(), "private to a", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := storeB.Create(context.Background(), "private to b", ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	listedB, err := storeB.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, record := range listedB {
		if record.ID == noteA.ID || record.OwnerID != "owner-b" {
			t.Fatalf("owner b must never see owner a's notes: %+v", record)
		}
	}

	// cross-owner mutation attempts resolve to not-found.
	if _, err := storeB.Update(context.Background(), noteA.ID, "hijack", ""); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("expected ErrNoteNotFound for cross-owner update, got %v", err)
	}
	if err := storeB.Delete(context.Background(), noteA.ID); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("expected ErrNoteNotFound for cross-owner delete, got %v", err)
	}
}

func TestMutationsPublishChangeEvents(t *testing.T) {
	db := newTestDatabase(t)
	clock := &testClock{now: time.Unix(1700000000, 0).UTC()}
	dispatcher := events.NewDispatcher()
	store := newTestStore(t, db, clock, "owner-a", dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, cleanup := dispatcher.Subscribe(ctx, "owner-a")
	defer cleanup()

	created, err := store.Create(context.Background(), "watched", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	select {
	case message := <-stream:
		if message.EventType != events.EventNoteChanged {
			t.Fatalf("unexpected event type %q", message.EventType)
		}
		if len(message.NoteIDs) != 1 || message.NoteIDs[0] != created.ID {
			t.Fatalf("unexpected note ids %v", message.NoteIDs)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a note-change event after create")
	}
}

func assertOrder(t *testing.T, listed []Note, expected ...string) {
	t.Helper()
	if len(listed) != len(expected) {
		t.Fatalf("expected %d notes, got %d", len(expected), len(listed))
	}
	for position, id := range expected {
		if listed[position].ID != id {
			t.Fatalf("position %d: expected %q, got %q", position, id, listed[position].ID)
		}
	}
}
