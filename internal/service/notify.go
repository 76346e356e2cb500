package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/conselhomais/portal"
)

// Notifier fans a contact-message notification out to the configured
// recipient list. Dispatch is best effort relative to the message write: it
// never fails the caller, and a message whose dispatch failed entirely keeps
// notifiedAt unset permanently.
type Notifier struct {
	mailer portal.Mailer
	store  portal.RemoteStore
}

func NewNotifier(mailer portal.Mailer, store portal.RemoteStore) *Notifier {
	return &Notifier{mailer: mailer, store: store}
}

// Dispatch sends one mail per non-blank recipient, concurrently, tracking
// success per recipient. The notifiedAt audit marker is stamped when at
// least one recipient got the mail.
func (n *Notifier) Dispatch(ctx context.Context, msg portal.Message, recipients []string) {
	valid := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if strings.TrimSpace(r) != "" {
			valid = append(valid, r)
		}
	}

	if len(valid) == 0 {
		slog.Warn(
			"No notification recipients configured",
			slog.String("messageId", msg.ID),
			slog.String("module", "notify"),
		)
		return
	}

	results := make([]error, len(valid))
	var wg sync.WaitGroup
	for i, recipient := range valid {
		wg.Add(1)
		go func(i int, recipient string) {
			defer wg.Done()
			results[i] = n.mailer.SendContactNotification(ctx, msg, recipient)
		}(i, recipient)
	}
	wg.Wait()

	succeeded := 0
	for i, err := range results {
		if err != nil {
			slog.Error(
				"Notification send failed",
				slog.String("recipient", valid[i]),
				slog.String("error", err.Error()),
				slog.String("module", "notify"),
			)
			continue
		}
		succeeded++
	}

	if succeeded == 0 {
		return
	}

	now := portal.NowISO()
	patch := map[string]any{
		"notifiedAt":       now,
		"notifiedSenderAt": now,
	}
	if err := n.store.Update(ctx, portal.CollectionMessages, msg.ID, patch); err != nil {
		slog.Warn(
			"Failed to stamp notifiedAt",
			slog.String("messageId", msg.ID),
			slog.String("error", err.Error()),
			slog.String("module", "notify"),
		)
		return
	}

	slog.Info(
		"Notifications dispatched",
		slog.Int("sent", succeeded),
		slog.Int("failed", len(valid)-succeeded),
		slog.String("module", "notify"),
	)
}
