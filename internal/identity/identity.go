package identity

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/amoylab/chatterbox/internal/common/cnst"
	"github.com/amoylab/chatterbox/internal/storage"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost used for new passwords
const DefaultCost = 10

const gravatarBase = "https://www.gravatar.com/avatar/"

// Errors carry the text shown to clients.
var (
	ErrUsernameTaken     = errors.New(cnst.MsgUsernameTaken)
	ErrNoMatchingAccount = errors.New(cnst.MsgNoMatchingAccount)
	ErrLookupFailed      = errors.New(cnst.MsgUserLookupFailed)
	ErrInsertFailed      = errors.New(cnst.MsgUserInsertFailed)
)

// UserStore is the persistence the service needs
type UserStore interface {
	GetUser(ctx context.Context, username string) (*storage.User, error)
	PutUserIfAbsent(ctx context.Context, u *storage.User) error
}

// Identity is what a connection knows about its user once authenticated
type Identity struct {
	Username string `json:"username"`
	Email    string `json:"-"`
	Avatar   string `json:"avatar"`
}

// Service creates and authenticates registered users
type Service struct {
	logger *zap.Logger
	store  UserStore
	cost   int
}

// NewService creates a new identity service. A cost outside bcrypt's range falls back to DefaultCost.
func NewService(logger *zap.Logger, store UserStore, cost int) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Service{
		logger: logger.Named("identity"),
		store:  store,
		cost:   cost,
	}
}

// Create registers a new user. The existence check runs before the insert,
// and the insert itself is conditional on the username being free, so two
// concurrent creations of one name leave exactly one account.
func (s *Service) Create(ctx context.Context, username, email, password string) (*Identity, error) {
	if err := s.ensureAbsent(ctx, username); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		s.logger.Error("failed to hash password", zap.Error(err))
		return nil, ErrInsertFailed
	}

	err = s.store.PutUserIfAbsent(ctx, &storage.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	})
	switch {
	case errors.Is(err, storage.ErrConditionFailed):
		return nil, ErrUsernameTaken
	case err != nil:
		s.logger.Error("failed to insert user", zap.String("username", username), zap.Error(err))
		return nil, ErrInsertFailed
	}

	s.logger.Info("user created", zap.String("username", username))
	return &Identity{Username: username, Email: email, Avatar: GravatarURL(email)}, nil
}

func (s *Service) ensureAbsent(ctx context.Context, username string) error {
	_, err := s.store.GetUser(ctx, username)
	switch {
	case err == nil:
		return ErrUsernameTaken
	case errors.Is(err, storage.ErrNotFound):
		return nil
	default:
		s.logger.Error("failed to lookup user", zap.String("username", username), zap.Error(err))
		return ErrLookupFailed
	}
}

// Authenticate checks a username and plaintext password. An unknown user and a
// wrong password are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Identity, error) {
	u, err := s.store.GetUser(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoMatchingAccount
	}
	if err != nil {
		s.logger.Error("failed to lookup user", zap.String("username", username), zap.Error(err))
		return nil, ErrLookupFailed
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrNoMatchingAccount
	}
	return &Identity{Username: u.Username, Email: u.Email, Avatar: GravatarURL(u.Email)}, nil
}

// Anonymous mints a throwaway identity. Nothing is persisted.
func Anonymous() (*Identity, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate anonymous username: %w", err)
	}
	username := "anonymous_" + hex.EncodeToString(b)
	return &Identity{Username: username, Avatar: GravatarURL(username) + "?d=retro"}, nil
}

// GravatarURL returns the gravatar image for s, hashed as given
func GravatarURL(s string) string {
	sum := md5.Sum([]byte(s))
	return gravatarBase + hex.EncodeToString(sum[:])
}
