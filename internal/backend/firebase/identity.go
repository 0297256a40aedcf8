// Package firebase implements the identity provider and object storage on
// top of a Firebase project.
package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"

	"doit/internal/gateway"
	"doit/internal/service"
	"doit/internal/session"
)

// SecureTokenURL is the refresh-token exchange endpoint.
const SecureTokenURL = "https://securetoken.googleapis.com/v1/token"

// IdentityOptions configures an Identity.
type IdentityOptions struct {
	APIKey string

	// Tokens receives the ID token after sign-in and is evicted on sign-out.
	Tokens *gateway.TokenStore

	// SessionPath stores the signed-in user between runs.
	SessionPath string

	// Endpoint overrides the identity toolkit base URL.
	Endpoint string

	// TokenURL overrides SecureTokenURL.
	TokenURL string

	// HTTPClient replaces the default client; the API key is then expected
	// to be applied by the caller.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Identity is a session.Authenticator backed by Firebase Auth.
type Identity struct {
	svc         *identitytoolkit.Service
	tokens      *gateway.TokenStore
	sessionPath string
	refresh     oauth2.Config
	hc          *http.Client
	log         *slog.Logger

	mu   sync.Mutex
	subs []chan *service.User
}

// NewIdentity creates an Identity.
func NewIdentity(ctx context.Context, opts IdentityOptions) (*Identity, error) {
	if opts.APIKey == "" {
		return nil, session.ErrUnavailable
	}
	var clientOpts []option.ClientOption
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	} else {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	svc, err := identitytoolkit.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity service: %w", err)
	}

	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = SecureTokenURL
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Identity{
		svc:         svc,
		tokens:      opts.Tokens,
		sessionPath: opts.SessionPath,
		refresh: oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL + "?key=" + opts.APIKey,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		hc:  opts.HTTPClient,
		log: log,
	}, nil
}

// Subscribe implements session.Provider. The stored session is restored
// first and delivered as the initial state.
func (id *Identity) Subscribe(ctx context.Context) (<-chan *service.User, error) {
	user := id.restore(ctx)

	ch := make(chan *service.User, 1)
	id.mu.Lock()
	ch <- copyUser(user)
	id.subs = append(id.subs, ch)
	id.mu.Unlock()

	go func() {
		<-ctx.Done()
		id.mu.Lock()
		defer id.mu.Unlock()
		for i, c := range id.subs {
			if c == ch {
				id.subs = append(id.subs[:i], id.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// SignIn implements session.Authenticator.
func (id *Identity) SignIn(ctx context.Context, email, password string) (*service.User, error) {
	resp, err := id.svc.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return id.open(ctx, resp.IdToken, resp.RefreshToken, resp.ExpiresIn)
}

// SignUp implements session.Authenticator.
func (id *Identity) SignUp(ctx context.Context, email, password, displayName string) (*service.User, error) {
	resp, err := id.svc.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	}).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return id.open(ctx, resp.IdToken, resp.RefreshToken, resp.ExpiresIn)
}

// SignOut implements session.Provider.
func (id *Identity) SignOut(ctx context.Context) error {
	var errs []error
	if id.tokens != nil {
		if err := id.tokens.Evict(); err != nil {
			errs = append(errs, err)
		}
	}
	if id.sessionPath != "" {
		if err := os.Remove(id.sessionPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	id.publish(nil)
	return errors.Join(errs...)
}

// Token implements oauth2.TokenSource, refreshing an expired ID token.
func (id *Identity) Token() (*oauth2.Token, error) {
	if id.tokens == nil {
		return nil, gateway.ErrNoToken
	}
	tok, err := id.tokens.Token()
	if err != nil {
		return nil, err
	}
	if !expired(tok) {
		return tok, nil
	}
	return id.refreshToken(context.Background(), tok)
}

func (id *Identity) open(ctx context.Context, idToken, refreshToken string, expiresIn int64) (*service.User, error) {
	tok := &oauth2.Token{
		AccessToken:  idToken,
		TokenType:    "Bearer",
		RefreshToken: refreshToken,
	}
	if expiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(expiresIn) * time.Second)
	}
	if id.tokens != nil {
		if err := id.tokens.Save(tok); err != nil {
			return nil, fmt.Errorf("failed to save token: %w", err)
		}
	}

	user, err := id.accountInfo(ctx, idToken)
	if err != nil {
		return nil, err
	}
	if err := id.saveSession(user); err != nil {
		id.log.Warn("failed to save session", "error", err)
	}
	id.publish(user)
	return copyUser(user), nil
}

func (id *Identity) accountInfo(ctx context.Context, idToken string) (*service.User, error) {
	resp, err := id.svc.Relyingparty.GetAccountInfo(&identitytoolkit.IdentitytoolkitRelyingpartyGetAccountInfoRequest{
		IdToken: idToken,
	}).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	if len(resp.Users) == 0 {
		return nil, session.ErrUserNotFound
	}
	u := resp.Users[0]
	return &service.User{
		UID:           u.LocalId,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		PhotoURL:      u.PhotoUrl,
		EmailVerified: u.EmailVerified,
	}, nil
}

// restore returns the stored user when a matching, unexpired (or
// refreshable) ID token exists.
func (id *Identity) restore(ctx context.Context) *service.User {
	if id.tokens == nil || id.sessionPath == "" {
		return nil
	}
	data, err := os.ReadFile(id.sessionPath)
	if err != nil {
		return nil
	}
	var user service.User
	if err := json.Unmarshal(data, &user); err != nil || user.UID == "" {
		id.log.Debug("ignoring invalid session file", "error", err)
		return nil
	}
	tok, err := id.tokens.Token()
	if err != nil {
		return nil
	}
	claims, err := parseClaims(tok.AccessToken)
	if err != nil || claims.Subject != user.UID {
		id.log.Debug("stored token does not match session", "error", err)
		return nil
	}
	if expired(tok) {
		if _, err := id.refreshToken(ctx, tok); err != nil {
			id.log.Debug("token refresh failed", "error", err)
			return nil
		}
	}
	return &user
}

func (id *Identity) refreshToken(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	if tok.RefreshToken == "" {
		return nil, gateway.ErrNoToken
	}
	if id.hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, id.hc)
	}
	fresh, err := id.refresh.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	if idToken, ok := fresh.Extra("id_token").(string); ok && idToken != "" {
		fresh.AccessToken = idToken
	}
	fresh.TokenType = "Bearer"
	if err := id.tokens.Save(fresh); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	id.log.Debug("refreshed id token")
	return fresh, nil
}

func (id *Identity) saveSession(user *service.User) error {
	if id.sessionPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(id.sessionPath), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(id.sessionPath, data, 0600)
}

// publish delivers u to every subscriber, replacing an undelivered state.
func (id *Identity) publish(u *service.User) {
	id.mu.Lock()
	defer id.mu.Unlock()
	for _, ch := range id.subs {
		select {
		case <-ch:
		default:
		}
		ch <- copyUser(u)
	}
}

func parseClaims(idToken string) (*jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

// expired prefers the token's own exp claim over the stored expiry.
func expired(tok *oauth2.Token) bool {
	if claims, err := parseClaims(tok.AccessToken); err == nil && claims.ExpiresAt != nil {
		return time.Now().After(claims.ExpiresAt.Time)
	}
	return !tok.Expiry.IsZero() && time.Now().After(tok.Expiry)
}

// wrapError maps provider error messages onto the session sentinels.
func wrapError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	code := gerr.Message
	if i := strings.IndexAny(code, " :"); i > 0 {
		code = code[:i]
	}
	switch code {
	case "EMAIL_NOT_FOUND", "USER_DISABLED":
		return session.ErrUserNotFound
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return session.ErrWrongPassword
	case "EMAIL_EXISTS":
		return session.ErrEmailInUse
	case "WEAK_PASSWORD":
		return session.ErrWeakPassword
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return session.ErrInvalidEmail
	}
	return fmt.Errorf("identity provider: %w", err)
}

func copyUser(u *service.User) *service.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
