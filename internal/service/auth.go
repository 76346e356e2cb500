package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/conselhomais/portal"
	"github.com/conselhomais/portal/internal/infrastructure/database/models"
)

var authTracer = otel.Tracer("auth")

const sessionKeyPrefix = "portal:session:"

// Auth implements the auth provider boundary: a provisioned-identity table
// with bcrypt secrets, an in-process identity state stream, and opaque
// session tokens held in Redis.
type Auth struct {
	db         *gorm.DB
	rdb        *redis.Client
	sessionTTL time.Duration

	mu           sync.Mutex
	identity     *portal.Identity
	listeners    map[int]func(*portal.Identity)
	nextListener int
}

func NewAuth(db *gorm.DB, rdb *redis.Client, sessionTTL time.Duration) *Auth {
	return &Auth{
		db:         db,
		rdb:        rdb,
		sessionTTL: sessionTTL,
		listeners:  map[int]func(*portal.Identity){},
	}
}

// OnStateChanged delivers the current identity immediately, then again on
// every sign-in and sign-out.
func (a *Auth) OnStateChanged(fn func(*portal.Identity)) portal.CancelFunc {
	a.mu.Lock()
	id := a.nextListener
	a.nextListener++
	a.listeners[id] = fn
	current := a.identity
	a.mu.Unlock()

	fn(current)

	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

func (a *Auth) SignIn(ctx context.Context, identifier, secret string) error {
	ctx, span := authTracer.Start(ctx, "Auth.Service.SignIn")
	defer span.End()

	var row models.Identity
	err := a.db.WithContext(ctx).Where("identifier = ?", identifier).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return portal.ErrNotFound
		}
		span.RecordError(err)
		return errors.Wrap(err, "load identity")
	}

	if bcrypt.CompareHashAndPassword([]byte(row.SecretHash), []byte(secret)) != nil {
		return portal.ErrBadCredential
	}

	a.setIdentity(&portal.Identity{Identifier: identifier})
	return nil
}

func (a *Auth) SignUp(ctx context.Context, identifier, secret string) error {
	ctx, span := authTracer.Start(ctx, "Auth.Service.SignUp")
	defer span.End()

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash secret")
	}

	row := models.Identity{Identifier: identifier, SecretHash: string(hash)}
	err = a.db.WithContext(ctx).Create(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return portal.ErrIdentityTaken
		}
		span.RecordError(err)
		return errors.Wrap(err, "create identity")
	}

	a.setIdentity(&portal.Identity{Identifier: identifier})
	return nil
}

func (a *Auth) SignOut(ctx context.Context) error {
	a.setIdentity(nil)
	return nil
}

func (a *Auth) setIdentity(identity *portal.Identity) {
	a.mu.Lock()
	a.identity = identity
	fns := make([]func(*portal.Identity), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(identity)
	}
}

// IssueSession mints an opaque bearer token for the REST surface.
func (a *Auth) IssueSession(ctx context.Context) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generate session token")
	}
	token := hex.EncodeToString(buf)

	err := a.rdb.Set(ctx, sessionKeyPrefix+token, "1", a.sessionTTL).Err()
	if err != nil {
		return "", errors.Wrap(err, "store session token")
	}
	return token, nil
}

func (a *Auth) ValidateSession(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	n, err := a.rdb.Exists(ctx, sessionKeyPrefix+token).Result()
	if err != nil {
		slog.Warn(
			"Session lookup failed",
			slog.String("error", err.Error()),
			slog.String("module", "auth"),
		)
		return false
	}
	return n > 0
}

func (a *Auth) RevokeSession(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := a.rdb.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		slog.Warn(
			"Session revoke failed",
			slog.String("error", err.Error()),
			slog.String("module", "auth"),
		)
	}
}

// CredentialBridge exchanges the shared admin secret for a session against
// a fixed identifier. The identity is provisioned on first use only while
// none exists yet; afterwards a wrong secret fails closed.
type CredentialBridge struct {
	auth       portal.AuthProvider
	identifier string
}

func NewCredentialBridge(auth portal.AuthProvider, identifier string) *CredentialBridge {
	return &CredentialBridge{auth: auth, identifier: identifier}
}

// Login reports success as a boolean; credential failures never surface as
// errors to the caller.
func (b *CredentialBridge) Login(ctx context.Context, secret string) bool {
	err := b.auth.SignIn(ctx, b.identifier, secret)
	if err == nil {
		return true
	}

	if errors.Is(err, portal.ErrNotFound) {
		if err := b.auth.SignUp(ctx, b.identifier, secret); err != nil {
			slog.Warn(
				"First-use provisioning failed",
				slog.String("error", err.Error()),
				slog.String("module", "auth"),
			)
			return false
		}
		slog.Info(
			"Admin identity provisioned on first use",
			slog.String("identifier", b.identifier),
			slog.String("module", "auth"),
		)
		return true
	}

	slog.Debug(
		"Login rejected",
		slog.String("error", err.Error()),
		slog.String("module", "auth"),
	)
	return false
}

func (b *CredentialBridge) Logout(ctx context.Context) {
	if err := b.auth.SignOut(ctx); err != nil {
		slog.Warn(
			"Sign-out failed",
			slog.String("error", err.Error()),
			slog.String("module", "auth"),
		)
	}
}
