// Package session holds the signed-in identity for the rest of the client.
//
// A Store subscribes once to an identity Provider's auth-state stream and
// exposes the latest snapshot. It is created, started and closed explicitly
// by its owner and passed to whoever needs it.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"doit/internal/service"
)

// ErrUnavailable is returned by providers that cannot run, e.g. without
// credentials.
var ErrUnavailable = errors.New("identity provider unavailable")

// Provider is the identity provider as seen by the store.
type Provider interface {
	// Subscribe returns a stream of auth states. A nil user means signed
	// out. The stream is closed when ctx is done.
	Subscribe(ctx context.Context) (<-chan *service.User, error)

	// SignOut ends the provider-side session.
	SignOut(ctx context.Context) error
}

// Snapshot is the store's view at one point in time.
type Snapshot struct {
	User    *service.User
	Loading bool
}

// SignedIn reports whether a user is present.
func (s Snapshot) SignedIn() bool { return s.User != nil }

// Store tracks the current session.
type Store struct {
	provider Provider
	log      *slog.Logger

	mu       sync.RWMutex
	snap     Snapshot
	ready    chan struct{}
	readyOne sync.Once
	watchers []chan Snapshot

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStore creates a store over provider. log may be nil.
func NewStore(provider Provider, log *slog.Logger) *Store {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		provider: provider,
		log:      log,
		snap:     Snapshot{Loading: true},
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start subscribes to the provider. If the provider cannot be subscribed
// to, the store settles into a signed-out state instead of loading forever.
// Start must be called at most once.
func (s *Store) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.provider == nil {
		s.log.Debug("no identity provider, staying signed out")
		s.apply(nil)
		close(s.done)
		return
	}
	events, err := s.provider.Subscribe(ctx)
	if err != nil {
		s.log.Warn("identity provider not available, staying signed out", "error", err)
		s.apply(nil)
		close(s.done)
		return
	}

	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-events:
				if !ok {
					s.apply(nil)
					return
				}
				s.apply(u)
			}
		}
	}()
}

// Close tears the subscription down and waits for it to finish.
func (s *Store) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done

	s.mu.Lock()
	for _, w := range s.watchers {
		close(w)
	}
	s.watchers = nil
	s.mu.Unlock()
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// User returns the current user or nil.
func (s *Store) User() *service.User {
	return s.Snapshot().User
}

// Wait blocks until the first auth state has arrived or ctx is done.
func (s *Store) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-s.ready:
		return s.Snapshot(), nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// Changes returns a channel receiving every snapshot applied from now on.
// Slow receivers miss intermediate snapshots. The channel is closed by Close.
func (s *Store) Changes() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	return ch
}

// Logout signs out at the provider and clears the user whether or not the
// provider call succeeded. The provider error is returned for reporting.
func (s *Store) Logout(ctx context.Context) error {
	var err error
	if s.provider != nil {
		err = s.provider.SignOut(ctx)
		if err != nil {
			s.log.Warn("provider sign-out failed", "error", err)
		}
	}
	s.apply(nil)
	return err
}

// apply replaces the snapshot wholesale.
func (s *Store) apply(u *service.User) {
	var user *service.User
	if u != nil {
		cp := *u
		user = &cp
	}

	s.mu.Lock()
	s.snap = Snapshot{User: user, Loading: false}
	snap := s.snap
	for _, w := range s.watchers {
		select {
		case w <- snap:
		default:
			// drop the stale pending snapshot in favor of the newest
			select {
			case <-w:
			default:
			}
			w <- snap
		}
	}
	s.mu.Unlock()

	s.readyOne.Do(func() { close(s.ready) })
}
