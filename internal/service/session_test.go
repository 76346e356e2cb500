package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/conselhomais/portal"
)

type fakeAuthProvider struct {
	mu        sync.Mutex
	identity  *portal.Identity
	listeners []func(*portal.Identity)
	signInErr error
	signUpErr error
	signIns   int
	signUps   int
	signOuts  int
}

func (a *fakeAuthProvider) OnStateChanged(fn func(*portal.Identity)) portal.CancelFunc {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	identity := a.identity
	a.mu.Unlock()
	fn(identity)
	return func() {}
}

func (a *fakeAuthProvider) SignIn(ctx context.Context, identifier, secret string) error {
	a.mu.Lock()
	a.signIns++
	err := a.signInErr
	a.mu.Unlock()
	if err != nil {
		return err
	}
	a.emit(&portal.Identity{Identifier: identifier})
	return nil
}

func (a *fakeAuthProvider) SignUp(ctx context.Context, identifier, secret string) error {
	a.mu.Lock()
	a.signUps++
	err := a.signUpErr
	a.mu.Unlock()
	if err != nil {
		return err
	}
	a.emit(&portal.Identity{Identifier: identifier})
	return nil
}

func (a *fakeAuthProvider) SignOut(ctx context.Context) error {
	a.mu.Lock()
	a.signOuts++
	a.mu.Unlock()
	a.emit(nil)
	return nil
}

func (a *fakeAuthProvider) emit(identity *portal.Identity) {
	a.mu.Lock()
	a.identity = identity
	listeners := append(([]func(*portal.Identity))(nil), a.listeners...)
	a.mu.Unlock()
	for _, fn := range listeners {
		fn(identity)
	}
}

func TestGateTogglesAdminTier(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, newFakeCache(), time.Hour)
	engine.Start(context.Background())
	defer engine.Stop()

	auth := &fakeAuthProvider{}
	gate := NewGate(auth, engine)
	gate.Start()
	defer gate.Stop()

	if gate.IsAuthenticated() {
		t.Fatalf("expected signed-out initial state")
	}
	if store.subscribed(portal.CollectionMessages) {
		t.Fatalf("admin subscriptions open while signed out")
	}

	auth.emit(&portal.Identity{Identifier: "admin@conselhomais.com.br"})

	if !gate.IsAuthenticated() {
		t.Fatalf("expected authenticated after identity arrived")
	}
	if !store.subscribed(portal.CollectionMessages) {
		t.Fatalf("expected admin subscriptions open")
	}

	// repeated identical state is not a transition
	auth.emit(&portal.Identity{Identifier: "admin@conselhomais.com.br"})

	auth.emit(nil)
	if gate.IsAuthenticated() {
		t.Fatalf("expected signed out after nil identity")
	}
	if store.subscribed(portal.CollectionMessages) {
		t.Fatalf("expected admin subscriptions closed")
	}
}

func TestCredentialBridgeSignIn(t *testing.T) {
	auth := &fakeAuthProvider{}
	bridge := NewCredentialBridge(auth, "admin@conselhomais.com.br")

	if !bridge.Login(context.Background(), "secret") {
		t.Fatalf("expected login to succeed")
	}
	if auth.signIns != 1 || auth.signUps != 0 {
		t.Fatalf("unexpected call counts: signIns=%d signUps=%d", auth.signIns, auth.signUps)
	}
}

func TestCredentialBridgeProvisionsOnFirstUse(t *testing.T) {
	auth := &fakeAuthProvider{signInErr: portal.ErrNotFound}
	bridge := NewCredentialBridge(auth, "admin@conselhomais.com.br")

	if !bridge.Login(context.Background(), "secret") {
		t.Fatalf("expected first-use provisioning to succeed")
	}
	if auth.signUps != 1 {
		t.Fatalf("expected SignUp on unknown identity, got %d", auth.signUps)
	}
}

func TestCredentialBridgeRejectsBadSecret(t *testing.T) {
	auth := &fakeAuthProvider{signInErr: portal.ErrBadCredential}
	bridge := NewCredentialBridge(auth, "admin@conselhomais.com.br")

	if bridge.Login(context.Background(), "wrong") {
		t.Fatalf("expected login rejected")
	}
	if auth.signUps != 0 {
		t.Fatalf("wrong secret must not trigger provisioning")
	}
}

func TestCredentialBridgeProvisioningFailure(t *testing.T) {
	auth := &fakeAuthProvider{signInErr: portal.ErrNotFound, signUpErr: portal.ErrIdentityTaken}
	bridge := NewCredentialBridge(auth, "admin@conselhomais.com.br")

	if bridge.Login(context.Background(), "secret") {
		t.Fatalf("expected login to fail when provisioning fails")
	}
}

func TestCredentialBridgeLogout(t *testing.T) {
	auth := &fakeAuthProvider{}
	bridge := NewCredentialBridge(auth, "admin@conselhomais.com.br")

	bridge.Logout(context.Background())
	if auth.signOuts != 1 {
		t.Fatalf("expected SignOut called")
	}
}
