package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

type editState int

const (
	stateIdle editState = iota
	stateEditing
)

// RecipientEditor coalesces keystroke-level edits of the notification
// recipient list into a single write after an inactivity window. It is a
// two-state machine: while editing, inbound sync values are ignored so an
// in-flight snapshot cannot clobber what the operator is typing; the timer
// is the only way back to idle (apart from the immediate-removal path).
type RecipientEditor struct {
	mu    sync.Mutex
	state editState
	draft []string
	timer *time.Timer
	delay time.Duration
	save  func(context.Context, []string) error
}

func NewRecipientEditor(delay time.Duration, save func(context.Context, []string) error) *RecipientEditor {
	return &RecipientEditor{
		delay: delay,
		save:  save,
		draft: []string{},
	}
}

// SyncFromRemote reinitializes the draft from the synced value, but only
// while idle.
func (e *RecipientEditor) SyncFromRemote(list []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateIdle {
		return
	}
	e.draft = append([]string(nil), list...)
}

// SetEntry applies one edit to the draft, enters the editing state and
// re-arms the inactivity timer.
func (e *RecipientEditor) SetEntry(index int, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.draft) {
		return
	}
	e.draft[index] = value
	e.state = stateEditing
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.delay, e.onTimer)
}

// AddBlank appends an empty entry to the draft. A blank row is a pure local
// operation: no timer, no state change, nothing to persist until the
// operator types into it.
func (e *RecipientEditor) AddBlank() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draft = append(e.draft, "")
}

// Remove deletes one entry and writes immediately, bypassing the debounce.
// Any pending timer is cancelled and the editor returns to idle
// synchronously.
func (e *RecipientEditor) Remove(ctx context.Context, index int) {
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if index >= 0 && index < len(e.draft) {
		e.draft = append(e.draft[:index], e.draft[index+1:]...)
	}
	draft := append([]string(nil), e.draft...)
	e.state = stateIdle
	e.mu.Unlock()

	e.persist(ctx, draft)
}

// Draft returns a copy of the current draft for display.
func (e *RecipientEditor) Draft() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.draft...)
}

func (e *RecipientEditor) Editing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == stateEditing
}

func (e *RecipientEditor) onTimer() {
	e.mu.Lock()
	if e.state != stateEditing {
		e.mu.Unlock()
		return
	}
	draft := append([]string(nil), e.draft...)
	e.state = stateIdle
	e.timer = nil
	e.mu.Unlock()

	e.persist(context.Background(), draft)
}

// persist writes the cleaned draft. An empty-after-cleaning list never
// reaches the store: the recipient list must not become empty through this
// path.
func (e *RecipientEditor) persist(ctx context.Context, draft []string) {
	cleaned := make([]string, 0, len(draft))
	for _, entry := range draft {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}

	if len(cleaned) == 0 {
		slog.Warn("Refusing to persist an empty recipient list", slog.String("module", "recipients"))
		return
	}

	if err := e.save(ctx, cleaned); err != nil {
		slog.Error(
			"Failed to persist recipient list",
			slog.String("error", err.Error()),
			slog.String("module", "recipients"),
		)
	}
}
