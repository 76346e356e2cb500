package service

import (
	"context"
	"sync"
	"testing"
	"time"
)

type saveRecorder struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (r *saveRecorder) save(ctx context.Context, emails []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string(nil), emails...))
	return r.err
}

func (r *saveRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *saveRecorder) last() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition never met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRecipientEditorCoalescesEdits(t *testing.T) {
	rec := &saveRecorder{}
	editor := NewRecipientEditor(20*time.Millisecond, rec.save)

	editor.SyncFromRemote([]string{"ana@x.com"})
	editor.AddBlank()
	editor.SetEntry(1, "o")
	editor.SetEntry(1, "op")
	editor.SetEntry(1, "ops@x.com")

	if !editor.Editing() {
		t.Fatalf("expected editing state while timer pending")
	}

	waitFor(t, func() bool { return rec.count() > 0 })

	if rec.count() != 1 {
		t.Fatalf("expected a single coalesced write, got %d", rec.count())
	}
	got := rec.last()
	if len(got) != 2 || got[1] != "ops@x.com" {
		t.Fatalf("expected final draft persisted, got %v", got)
	}
	if editor.Editing() {
		t.Fatalf("expected editor back to idle after flush")
	}
}

func TestRecipientEditorRefusesEmptyFlush(t *testing.T) {
	rec := &saveRecorder{}
	editor := NewRecipientEditor(10*time.Millisecond, rec.save)

	editor.SyncFromRemote([]string{"ana@x.com"})
	editor.SetEntry(0, "   ")

	waitFor(t, func() bool { return !editor.Editing() })

	if rec.count() != 0 {
		t.Fatalf("empty list must never be persisted, got %v", rec.calls)
	}
}

func TestRecipientEditorRemoveWritesImmediately(t *testing.T) {
	rec := &saveRecorder{}
	editor := NewRecipientEditor(time.Hour, rec.save)

	editor.SyncFromRemote([]string{"ana@x.com", "ops@x.com"})
	editor.SetEntry(0, "ana2@x.com") // pending debounce
	editor.Remove(context.Background(), 1)

	if rec.count() != 1 {
		t.Fatalf("expected immediate write on remove, got %d", rec.count())
	}
	got := rec.last()
	if len(got) != 1 || got[0] != "ana2@x.com" {
		t.Fatalf("unexpected persisted list: %v", got)
	}
	if editor.Editing() {
		t.Fatalf("expected idle after remove")
	}
}

func TestRecipientEditorIgnoresSyncWhileEditing(t *testing.T) {
	rec := &saveRecorder{}
	editor := NewRecipientEditor(time.Hour, rec.save)

	editor.SyncFromRemote([]string{"ana@x.com"})
	editor.SetEntry(0, "typing@x")
	editor.SyncFromRemote([]string{"other@x.com"})

	got := editor.Draft()
	if len(got) != 1 || got[0] != "typing@x" {
		t.Fatalf("inbound sync clobbered the draft: %v", got)
	}
}

func TestRecipientEditorBoundsChecked(t *testing.T) {
	rec := &saveRecorder{}
	editor := NewRecipientEditor(time.Hour, rec.save)

	editor.SetEntry(0, "x") // empty draft, out of range
	editor.Remove(context.Background(), 3)

	if editor.Editing() {
		t.Fatalf("out-of-range edit must not enter editing state")
	}
	if rec.count() != 0 {
		t.Fatalf("out-of-range remove persisted: %v", rec.calls)
	}
}
