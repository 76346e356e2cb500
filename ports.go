package portal

import (
	"context"
)

// CancelFunc tears down a subscription. Safe to call more than once.
type CancelFunc func()

// CollectionSpec names what a subscription watches. A non-empty Slot narrows
// the subscription to one singleton document of the collection. OrderBy, when
// set, names a field of the stored value; snapshots are delivered in that
// order.
type CollectionSpec struct {
	Name       string
	Slot       string
	OrderBy    string
	Descending bool
}

// Key is the namespaced identifier of the spec, used for cache keys and
// logging.
func (s CollectionSpec) Key() string {
	if s.Slot != "" {
		return s.Slot
	}
	return s.Name
}

// RemoteStore is the document database boundary. Subscriptions deliver a
// full snapshot on every underlying change, not a diff; handlers replace
// state wholesale. Within one subscription snapshots arrive in emission
// order; across subscriptions there is no ordering guarantee.
type RemoteStore interface {
	Subscribe(ctx context.Context, spec CollectionSpec, onSnapshot func(Snapshot), onError func(error)) (CancelFunc, error)

	// Set writes the full record at (collection, id), creating or replacing.
	Set(ctx context.Context, collection, id string, value any) error
	// Update merges patch fields into the stored document. Updating an
	// absent id is not an error.
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	// Delete is idempotent: deleting an absent id reports success.
	Delete(ctx context.Context, collection, id string) error
}

// LocalCache mirrors public collections on durable local storage. Best
// effort on both sides: implementations never propagate backend failures,
// a failed read degrades to "absent".
type LocalCache interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// Identity is whatever the auth provider reports for a signed-in session.
type Identity struct {
	Identifier string
}

// AuthProvider is the external authentication boundary.
type AuthProvider interface {
	// OnStateChanged registers a callback invoked with the current identity
	// (nil when signed out) immediately and on every change.
	OnStateChanged(fn func(*Identity)) CancelFunc
	// SignIn returns ErrNotFound for an unknown identifier and
	// ErrBadCredential for a wrong secret.
	SignIn(ctx context.Context, identifier, secret string) error
	// SignUp returns ErrIdentityTaken when the identifier exists.
	SignUp(ctx context.Context, identifier, secret string) error
	SignOut(ctx context.Context) error
}

// Mailer is the external email dispatch boundary.
type Mailer interface {
	SendContactNotification(ctx context.Context, msg Message, recipient string) error
	SendReply(ctx context.Context, msg Message, replyText string) error
}
