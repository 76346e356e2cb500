package usecase

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/conselhomais/portal"
)

var tracer = otel.Tracer("usecase")

// ContentUsecase is the typed mutation facade for the public collections.
// Every call is a direct remote write; nothing is applied optimistically —
// the in-memory state catches up when the subscription redelivers.
type ContentUsecase struct {
	store portal.RemoteStore
	state StateReader
}

func NewContentUsecase(store portal.RemoteStore, state StateReader) *ContentUsecase {
	return &ContentUsecase{store: store, state: state}
}

func writeError(err error, what string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(portal.ErrWriteRejected, "%s: %v", what, err)
}

func validateMember(m portal.Member) error {
	if len(m.Specialization) == 0 {
		return errors.Wrap(portal.ErrInvalidRecord, "member needs at least one specialization")
	}
	if len(m.Specialization) > portal.MaxSpecializations {
		return errors.Wrapf(portal.ErrInvalidRecord, "member exceeds %d specializations", portal.MaxSpecializations)
	}
	seen := map[string]bool{}
	for _, s := range m.Specialization {
		key := strings.TrimSpace(s)
		if seen[key] {
			return errors.Wrapf(portal.ErrInvalidRecord, "duplicate specialization %q", s)
		}
		seen[key] = true
	}
	return nil
}

func (uc *ContentUsecase) AddMember(ctx context.Context, m portal.Member) error {
	ctx, span := tracer.Start(ctx, "Content.Usecase.AddMember")
	defer span.End()

	if err := validateMember(m); err != nil {
		return err
	}
	return writeError(uc.store.Set(ctx, portal.CollectionMembers, m.ID, m), "add member")
}

func (uc *ContentUsecase) UpdateMember(ctx context.Context, id string, m portal.Member) error {
	ctx, span := tracer.Start(ctx, "Content.Usecase.UpdateMember")
	defer span.End()

	if err := validateMember(m); err != nil {
		return err
	}
	m.ID = id
	return writeError(uc.store.Update(ctx, portal.CollectionMembers, id, portal.ToPatch(m)), "update member")
}

func (uc *ContentUsecase) RemoveMember(ctx context.Context, id string) error {
	return writeError(uc.store.Delete(ctx, portal.CollectionMembers, id), "remove member")
}

func (uc *ContentUsecase) AddBlogPost(ctx context.Context, p portal.BlogPost) error {
	ctx, span := tracer.Start(ctx, "Content.Usecase.AddBlogPost")
	defer span.End()

	return writeError(uc.store.Set(ctx, portal.CollectionBlogPosts, p.ID, p), "add blog post")
}

// UpdateBlogPost keeps the creation date: when the post is known in memory,
// the update re-supplies the stored date regardless of what the caller sent.
func (uc *ContentUsecase) UpdateBlogPost(ctx context.Context, id string, p portal.BlogPost) error {
	ctx, span := tracer.Start(ctx, "Content.Usecase.UpdateBlogPost")
	defer span.End()

	if existing, ok := uc.state.BlogPostByID(id); ok {
		p.Date = existing.Date
	}
	p.ID = id
	return writeError(uc.store.Update(ctx, portal.CollectionBlogPosts, id, portal.ToPatch(p)), "update blog post")
}

func (uc *ContentUsecase) RemoveBlogPost(ctx context.Context, id string) error {
	return writeError(uc.store.Delete(ctx, portal.CollectionBlogPosts, id), "remove blog post")
}

func (uc *ContentUsecase) AddNewsItem(ctx context.Context, n portal.NewsItem) error {
	ctx, span := tracer.Start(ctx, "Content.Usecase.AddNewsItem")
	defer span.End()

	return writeError(uc.store.Set(ctx, portal.CollectionNewsItems, n.ID, n), "add news item")
}

func (uc *ContentUsecase) UpdateNewsItem(ctx context.Context, id string, n portal.NewsItem) error {
	ctx, span := tracer.Start(ctx, "Content.Usecase.UpdateNewsItem")
	defer span.End()

	if existing, ok := uc.state.NewsItemByID(id); ok {
		n.Date = existing.Date
	}
	n.ID = id
	return writeError(uc.store.Update(ctx, portal.CollectionNewsItems, id, portal.ToPatch(n)), "update news item")
}

func (uc *ContentUsecase) RemoveNewsItem(ctx context.Context, id string) error {
	return writeError(uc.store.Delete(ctx, portal.CollectionNewsItems, id), "remove news item")
}

func (uc *ContentUsecase) AddTool(ctx context.Context, t portal.Tool) error {
	return writeError(uc.store.Set(ctx, portal.CollectionTools, t.ID, t), "add tool")
}

func (uc *ContentUsecase) RemoveTool(ctx context.Context, id string) error {
	return writeError(uc.store.Delete(ctx, portal.CollectionTools, id), "remove tool")
}

func (uc *ContentUsecase) UpdateMetaTags(ctx context.Context, tags portal.MetaConfig) error {
	ctx, span := tracer.Start(ctx, "Content.Usecase.UpdateMetaTags")
	defer span.End()

	return writeError(uc.store.Set(ctx, portal.CollectionConfig, portal.SlotMetaTags, tags), "update meta tags")
}

func (uc *ContentUsecase) AddMetric(ctx context.Context, m portal.Metric) error {
	return writeError(uc.store.Set(ctx, portal.CollectionMetrics, m.ID, m), "add metric")
}

func (uc *ContentUsecase) RemoveMetric(ctx context.Context, id string) error {
	return writeError(uc.store.Delete(ctx, portal.CollectionMetrics, id), "remove metric")
}

// UpdateRecipients persists the cleaned notification recipient list. An
// empty result is rejected here as well, independent of the editor's own
// guard.
func (uc *ContentUsecase) UpdateRecipients(ctx context.Context, emails []string) error {
	ctx, span := tracer.Start(ctx, "Content.Usecase.UpdateRecipients")
	defer span.End()

	cleaned := make([]string, 0, len(emails))
	for _, e := range emails {
		if trimmed := strings.TrimSpace(e); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return errors.Wrap(portal.ErrInvalidRecord, "recipient list must not become empty")
	}
	value := portal.RecipientConfig{Emails: cleaned}
	return writeError(uc.store.Set(ctx, portal.CollectionConfig, portal.SlotInternalEmails, value), "update recipients")
}
