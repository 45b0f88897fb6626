package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/noughts/internal/dependencies/clock"
	"github.com/mcoot/noughts/internal/dependencies/ids"
	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/storage"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid or expired session")
	ErrEmailExists        = errors.New("email already registered")
)

const (
	issuer            = "noughts"
	MinPasswordLength = 6
)

// Session represents an authenticated session
type Session struct {
	ID        string // jti of the token
	Token     string
	UserID    model.UserID
	CreatedAt time.Time
	ExpiresAt time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// Service handles authentication and session management
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	ids     ids.Generator
	secret  []byte
	logger  *slog.Logger

	sessionDuration time.Duration
}

// Config holds configuration for the auth service
type Config struct {
	// Secret signs session tokens. A random secret is generated if empty,
	// which invalidates every token on restart.
	Secret          []byte
	SessionDuration time.Duration
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		SessionDuration: 24 * time.Hour,
	}
}

// New creates a new AuthService
func New(storage storage.Storage, clock clock.Clock, ids ids.Generator, cfg Config, logger *slog.Logger) *Service {
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = DefaultConfig().SessionDuration
	}
	logger = logger.With(slog.String("component", "auth-service"))
	if len(cfg.Secret) == 0 {
		cfg.Secret = make([]byte, 32)
		_, _ = rand.Read(cfg.Secret)
		logger.Warn("no token secret configured, generated an ephemeral one")
	}
	return &Service{
		storage:         storage,
		clock:           clock,
		ids:             ids,
		secret:          cfg.Secret,
		logger:          logger,
		sessionDuration: cfg.SessionDuration,
	}
}

// Signup registers a new user and opens a session for them
func (s *Service) Signup(ctx context.Context, email, fullName, password string) (*Session, *model.User, error) {
	email = normalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, nil, fmt.Errorf("%w: full name is required", model.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, nil, fmt.Errorf("%w: invalid email", model.ErrInvalidInput)
	}
	if len(password) < MinPasswordLength {
		return nil, nil, fmt.Errorf("%w: password must be at least %d characters", model.ErrInvalidInput, MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	user := &model.User{
		ID:        model.UserID(s.ids.NewID()),
		FullName:  fullName,
		Email:     email,
		CreatedAt: now,
	}
	creds := &model.Credentials{
		UserID:       user.ID,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// Credentials first: the store claims the email atomically
	if err := s.storage.SaveCredentials(ctx, creds); err != nil {
		if errors.Is(err, model.ErrEmailTaken) {
			return nil, nil, ErrEmailExists
		}
		return nil, nil, err
	}
	if err := s.storage.SaveUser(ctx, user); err != nil {
		return nil, nil, err
	}

	s.logger.Info("user registered", slog.String("user_id", string(user.ID)))

	session, err := s.createSession(user.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// Login authenticates a user by email and password and creates a session
func (s *Service) Login(ctx context.Context, email, password string) (*Session, *model.User, error) {
	creds, err := s.storage.GetCredentialsByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	user, err := s.storage.GetUser(ctx, creds.UserID)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.createSession(user.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// ValidateSession checks that a token is validly signed, unexpired, not
// revoked and belongs to a user that still exists
func (s *Service) ValidateSession(ctx context.Context, token string) (*Session, error) {
	session, err := s.parseToken(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.storage.IsSessionRevoked(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidSession
	}

	if _, err := s.storage.GetUser(ctx, session.UserID); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	return session, nil
}

// InvalidateSession revokes a session token. Tokens that do not parse are ignored.
func (s *Service) InvalidateSession(ctx context.Context, token string) error {
	session, err := s.parseToken(token)
	if err != nil {
		return nil
	}
	if err := s.storage.RevokeSession(ctx, session.ID, session.ExpiresAt); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.logger.Info("session revoked", slog.String("user_id", string(session.UserID)))
	return nil
}

// GetUser returns the user for a session token
func (s *Service) GetUser(ctx context.Context, token string) (*model.User, error) {
	session, err := s.ValidateSession(ctx, token)
	if err != nil {
		return nil, err
	}
	user, err := s.storage.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	return user, nil
}

// parseToken verifies the signature and registered claims of a token
func (s *Service) parseToken(token string) (*Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil || claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidSession
	}

	session := &Session{
		ID:        claims.ID,
		Token:     token,
		UserID:    model.UserID(claims.Subject),
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		session.CreatedAt = claims.IssuedAt.Time
	}
	return session, nil
}

// createSession signs a new token for a user
func (s *Service) createSession(userID model.UserID) (*Session, error) {
	now := s.clock.Now()
	session := &Session{
		ID:        s.ids.NewID(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionDuration),
	}

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   string(userID),
			ID:        session.ID,
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	session.Token = token
	return session, nil
}

// CleanExpiredSessions forgets revocations for tokens that have expired (call periodically)
func (s *Service) CleanExpiredSessions(ctx context.Context) error {
	removed, err := s.storage.PurgeRevokedSessions(ctx, s.clock.Now())
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.Debug("purged revoked sessions", slog.Int("count", removed))
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
