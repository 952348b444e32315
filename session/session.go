// Package session keeps the signed-in identity for the single configured
// account and persists it through a store.KV.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"socialfeed/models"
	"socialfeed/store"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// InvalidCredentialsMessage is the only failure text shown to users
const InvalidCredentialsMessage = "Invalid credentials. Please try again."

// Account is the one identity allowed to sign in
type Account struct {
	User         models.User
	PasswordHash []byte
}

// NewAccount builds an Account from a bcrypt hash, or hashes password when
// no hash is given
func NewAccount(user models.User, password, passwordHash string, cost int) (Account, error) {
	if passwordHash != "" {
		return Account{User: user, PasswordHash: []byte(passwordHash)}, nil
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return Account{}, err
	}
	return Account{User: user, PasswordHash: hash}, nil
}

type Option func(*Store)

// WithLoginDelay simulates the latency of a real auth service
func WithLoginDelay(d time.Duration) Option {
	return func(s *Store) { s.loginDelay = d }
}

// WithSignOut registers a hook run after logout, used by the view to
// redirect to the sign-in surface
func WithSignOut(fn func()) Option {
	return func(s *Store) { s.onSignOut = fn }
}

// Store is the session state machine: anonymous <-> authenticated.
// Authentication is derived from token presence only.
type Store struct {
	mu         sync.RWMutex
	kv         store.KV
	account    Account
	token      string
	user       models.User
	loginDelay time.Duration
	onSignOut  func()
}

func New(kv store.KV, account Account, opts ...Option) *Store {
	s := &Store{
		kv:      kv,
		account: account,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open restores persisted state. A user record without a token is stale and
// is cleared; a token without a user record falls back to the account details.
func (s *Store) Open(ctx context.Context) error {
	token, hasToken, err := s.kv.Get(ctx, store.KeySessionToken)
	if err != nil {
		return err
	}

	var user models.User
	hasUser, err := store.GetJSON(ctx, s.kv, store.KeySessionUser, &user)
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Warn("Discarding unreadable session user")
		hasUser = false
	}

	if !hasToken || token == "" {
		if hasUser {
			if err := s.kv.Clear(ctx, store.KeySessionUser); err != nil {
				return err
			}
		}
		s.set("", models.User{})
		return nil
	}

	if !hasUser {
		user = s.account.User
	}
	s.set(token, user)
	return nil
}

// Login checks the credentials against the configured account. Unknown
// email and wrong password are reported the same way.
func (s *Store) Login(ctx context.Context, email, password string) bool {
	if s.loginDelay > 0 {
		select {
		case <-time.After(s.loginDelay):
		case <-ctx.Done():
			return false
		}
	}

	emailMatches := strings.EqualFold(strings.TrimSpace(email), s.account.User.Email)
	// Always compare so both failure causes take the same time
	passwordErr := bcrypt.CompareHashAndPassword(s.account.PasswordHash, []byte(password))
	if !emailMatches || passwordErr != nil {
		log.Info("Rejected sign-in attempt")
		return false
	}

	token := uuid.NewString()
	user := s.account.User

	// Persist first, flip state only when both entries are written
	if err := store.SetJSON(ctx, s.kv, store.KeySessionUser, user); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("Error persisting session user")
		return false
	}
	if err := s.kv.Set(ctx, store.KeySessionToken, token); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("Error persisting session token")
		if err := s.kv.Clear(ctx, store.KeySessionUser); err != nil {
			log.WithFields(log.Fields{"error": err}).Error("Error rolling back session user")
		}
		return false
	}

	s.set(token, user)
	log.WithFields(log.Fields{"email": user.Email}).Info("Signed in")
	return true
}

// Logout clears the persisted session and signals the view to redirect.
// The session stays signed in when the token cannot be cleared.
func (s *Store) Logout(ctx context.Context) error {
	if err := s.kv.Clear(ctx, store.KeySessionToken); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("Error clearing session token")
		return err
	}
	s.set("", models.User{})
	log.Info("Signed out")

	// A user record left behind is dropped by Open once the token is gone
	userErr := s.kv.Clear(ctx, store.KeySessionUser)
	if userErr != nil {
		log.WithFields(log.Fields{"error": userErr}).Warn("Error clearing session user")
	}

	if s.onSignOut != nil {
		s.onSignOut()
	}
	return userErr
}

func (s *Store) IsAuthenticated() bool {
	return s.Token() != ""
}

// Token returns the bearer token, empty when anonymous
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the signed-in user, the zero value when anonymous
func (s *Store) User() models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Store) set(token string, user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = user
}
