package usecase

import (
	"context"

	"github.com/conselhomais/portal"
)

// StateReader is the in-memory view the sync engine maintains. Facade
// operations read it for lookups only; they never mutate it — state changes
// arrive back through the engine's subscriptions.
type StateReader interface {
	MessageByID(id string) (portal.Message, bool)
	BlogPostByID(id string) (portal.BlogPost, bool)
	NewsItemByID(id string) (portal.NewsItem, bool)
	Recipients() []string
}

// Dispatcher fans out the creation notification for a contact message.
// Implementations never report failure to the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg portal.Message, recipients []string)
}
