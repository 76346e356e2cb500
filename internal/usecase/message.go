package usecase

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/conselhomais/portal"
)

// MessageUsecase drives the contact-message lifecycle:
//
//	Novo ──reply──▶ Respondido
//	  │                 │
//	  └────────┬────────┘
//	           ▼
//	       Arquivado  (no way out)
//
// UpdateStatus enforces that table by default; Force bypasses it, keeping
// the unrestricted overwrite operators have always had.
type MessageUsecase struct {
	store    portal.RemoteStore
	state    StateReader
	mailer   portal.Mailer
	notifier Dispatcher
}

func NewMessageUsecase(store portal.RemoteStore, state StateReader, mailer portal.Mailer, notifier Dispatcher) *MessageUsecase {
	return &MessageUsecase{store: store, state: state, mailer: mailer, notifier: notifier}
}

// MessageInput is what the contact form submits; id, status and createdAt
// are assigned here.
type MessageInput struct {
	Name    string `json:"name"`
	Company string `json:"company"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// Add persists the message, then fans out the notification emails. The
// write's outcome is independent of dispatch: a message whose notification
// failed is still created.
func (uc *MessageUsecase) Add(ctx context.Context, input MessageInput) (portal.Message, error) {
	ctx, span := tracer.Start(ctx, "Message.Usecase.Add")
	defer span.End()

	msg := portal.Message{
		ID:        portal.TimestampID(),
		Name:      input.Name,
		Company:   input.Company,
		Email:     input.Email,
		Subject:   input.Subject,
		Content:   input.Content,
		Status:    portal.StatusNew,
		CreatedAt: portal.NowISO(),
	}

	if err := uc.store.Set(ctx, portal.CollectionMessages, msg.ID, msg); err != nil {
		return portal.Message{}, writeError(err, "add message")
	}

	uc.notifier.Dispatch(ctx, msg, uc.state.Recipients())

	return msg, nil
}

// Reply is all or nothing from the caller's side: the reply email must go
// out before anything is written, and any failure reports false with the
// stored message untouched. A message absent from the current in-memory
// snapshot also reports false, with zero external calls.
func (uc *MessageUsecase) Reply(ctx context.Context, id, replyText string) bool {
	ctx, span := tracer.Start(ctx, "Message.Usecase.Reply")
	defer span.End()

	msg, ok := uc.state.MessageByID(id)
	if !ok {
		slog.Warn(
			"Reply to unknown message",
			slog.String("messageId", id),
			slog.String("module", "message"),
		)
		return false
	}

	if err := uc.mailer.SendReply(ctx, msg, replyText); err != nil {
		slog.Error(
			"Reply dispatch failed, message left untouched",
			slog.String("messageId", id),
			slog.String("error", err.Error()),
			slog.String("module", "message"),
		)
		return false
	}

	patch := map[string]any{
		"reply":       replyText,
		"status":      portal.StatusResponded,
		"respondedAt": portal.NowISO(),
	}
	if err := uc.store.Update(ctx, portal.CollectionMessages, id, patch); err != nil {
		slog.Error(
			"Failed to persist reply",
			slog.String("messageId", id),
			slog.String("error", err.Error()),
			slog.String("module", "message"),
		)
		return false
	}
	return true
}

// UpdateStatus overwrites the message status. Without force the transition
// table applies, judged against the last-known in-memory status.
func (uc *MessageUsecase) UpdateStatus(ctx context.Context, id string, status portal.MessageStatus, force bool) error {
	ctx, span := tracer.Start(ctx, "Message.Usecase.UpdateStatus")
	defer span.End()

	switch status {
	case portal.StatusNew, portal.StatusResponded, portal.StatusArchived:
	default:
		return errors.Wrapf(portal.ErrInvalidRecord, "unknown status %q", status)
	}

	if !force {
		current, ok := uc.state.MessageByID(id)
		if !ok {
			return errors.Wrapf(portal.ErrNotFound, "message %s", id)
		}
		if !legalTransition(current.Status, status) {
			return errors.Wrapf(portal.ErrIllegalTransition, "%s -> %s", current.Status, status)
		}
	}

	patch := map[string]any{"status": status}
	return writeError(uc.store.Update(ctx, portal.CollectionMessages, id, patch), "update message status")
}

func legalTransition(from, to portal.MessageStatus) bool {
	if from == to {
		return true
	}
	switch to {
	case portal.StatusArchived:
		return true
	case portal.StatusResponded:
		return from == portal.StatusNew
	default:
		return false
	}
}

func (uc *MessageUsecase) Remove(ctx context.Context, id string) error {
	return writeError(uc.store.Delete(ctx, portal.CollectionMessages, id), "remove message")
}
