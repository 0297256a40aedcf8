package testutil

import (
	"context"
	"errors"
	"sync"

	"doit/internal/service"
)

// FakeIdentity is an in-memory identity provider.
type FakeIdentity struct {
	mu       sync.Mutex
	accounts map[string]fakeAccount
	current  *service.User
	subs     []chan *service.User

	// Error injection for testing
	SubscribeErr error
	SignInErr    error
	SignUpErr    error
	SignOutErr   error

	SignOutCalls int
}

type fakeAccount struct {
	password string
	user     service.User
}

// ErrBadCredentials is returned by FakeIdentity.SignIn for unknown logins.
var ErrBadCredentials = errors.New("bad credentials")

// NewFakeIdentity creates a signed-out FakeIdentity.
func NewFakeIdentity() *FakeIdentity {
	return &FakeIdentity{accounts: make(map[string]fakeAccount)}
}

// AddAccount registers an account.
func (f *FakeIdentity) AddAccount(uid, email, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[email] = fakeAccount{
		password: password,
		user:     service.User{UID: uid, Email: email, DisplayName: email},
	}
}

// SetCurrent signs u in (or out for nil) and notifies subscribers.
func (f *FakeIdentity) SetCurrent(u *service.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setLocked(u)
}

// Subscribe implements session.Provider. The current state is delivered
// first.
func (f *FakeIdentity) Subscribe(ctx context.Context) (<-chan *service.User, error) {
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan *service.User, 16)
	ch <- copyUser(f.current)
	f.subs = append(f.subs, ch)
	return ch, nil
}

// SignIn implements session.Authenticator.
func (f *FakeIdentity) SignIn(ctx context.Context, email, password string) (*service.User, error) {
	if f.SignInErr != nil {
		return nil, f.SignInErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[email]
	if !ok || acct.password != password {
		return nil, ErrBadCredentials
	}
	u := acct.user
	f.setLocked(&u)
	return copyUser(&u), nil
}

// SignUp implements session.Authenticator.
func (f *FakeIdentity) SignUp(ctx context.Context, email, password, displayName string) (*service.User, error) {
	if f.SignUpErr != nil {
		return nil, f.SignUpErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u := service.User{UID: "uid-" + email, Email: email, DisplayName: displayName}
	f.accounts[email] = fakeAccount{password: password, user: u}
	f.setLocked(&u)
	return copyUser(&u), nil
}

// SignOut implements session.Provider.
func (f *FakeIdentity) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SignOutCalls++
	if f.SignOutErr != nil {
		return f.SignOutErr
	}
	f.setLocked(nil)
	return nil
}

func (f *FakeIdentity) setLocked(u *service.User) {
	f.current = copyUser(u)
	for _, ch := range f.subs {
		ch <- copyUser(u)
	}
}

func copyUser(u *service.User) *service.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
