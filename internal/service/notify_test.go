package service

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/conselhomais/portal"
)

type fakeMailer struct {
	mu       sync.Mutex
	notified []string
	replies  []string
	failFor  map[string]bool
	replyErr error
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{failFor: map[string]bool{}}
}

func (m *fakeMailer) SendContactNotification(ctx context.Context, msg portal.Message, recipient string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[recipient] {
		return errors.Wrap(portal.ErrDispatchFailed, "smtp refused")
	}
	m.notified = append(m.notified, recipient)
	return nil
}

func (m *fakeMailer) SendReply(ctx context.Context, msg portal.Message, replyText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replyErr != nil {
		return m.replyErr
	}
	m.replies = append(m.replies, replyText)
	return nil
}

func TestNotifierStampsNotifiedAt(t *testing.T) {
	store := newFakeStore()
	mailer := newFakeMailer()
	n := NewNotifier(mailer, store)

	msg := portal.Message{ID: "m1", Name: "Ana", Subject: "Dúvida"}
	n.Dispatch(context.Background(), msg, []string{"ana@x.com", "ops@x.com"})

	if len(mailer.notified) != 2 {
		t.Fatalf("expected both recipients mailed, got %v", mailer.notified)
	}
	if len(store.updates) != 1 {
		t.Fatalf("expected one audit patch, got %d", len(store.updates))
	}
	patch := store.updates[0]
	if patch.collection != portal.CollectionMessages || patch.id != "m1" {
		t.Fatalf("patch targeted %s/%s", patch.collection, patch.id)
	}
	if patch.patch["notifiedAt"] == nil || patch.patch["notifiedSenderAt"] == nil {
		t.Fatalf("audit fields missing: %v", patch.patch)
	}
}

func TestNotifierPartialFailureStillStamps(t *testing.T) {
	store := newFakeStore()
	mailer := newFakeMailer()
	mailer.failFor["ops@x.com"] = true
	n := NewNotifier(mailer, store)

	n.Dispatch(context.Background(), portal.Message{ID: "m1"}, []string{"ana@x.com", "ops@x.com"})

	if len(mailer.notified) != 1 || mailer.notified[0] != "ana@x.com" {
		t.Fatalf("unexpected sends: %v", mailer.notified)
	}
	if len(store.updates) != 1 {
		t.Fatalf("one successful recipient must stamp notifiedAt")
	}
}

func TestNotifierTotalFailureLeavesMessageUntouched(t *testing.T) {
	store := newFakeStore()
	mailer := newFakeMailer()
	mailer.failFor["ana@x.com"] = true
	n := NewNotifier(mailer, store)

	n.Dispatch(context.Background(), portal.Message{ID: "m1"}, []string{"ana@x.com"})

	if len(store.updates) != 0 {
		t.Fatalf("total failure must not stamp notifiedAt: %v", store.updates)
	}
}

func TestNotifierSkipsBlankRecipients(t *testing.T) {
	store := newFakeStore()
	mailer := newFakeMailer()
	n := NewNotifier(mailer, store)

	n.Dispatch(context.Background(), portal.Message{ID: "m1"}, []string{"", "  "})

	if len(mailer.notified) != 0 {
		t.Fatalf("blank recipients must be skipped, got %v", mailer.notified)
	}
	if len(store.updates) != 0 {
		t.Fatalf("nothing sent, nothing stamped: %v", store.updates)
	}
}
