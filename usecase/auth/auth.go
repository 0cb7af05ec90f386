package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fastygo/tasktracker/domain"
	"github.com/fastygo/tasktracker/repository"
)

const minPasswordLength = 8

// emailRule matches the `email` tag on the transport requests.
var emailRule = validator.New()

// Result is what a successful register or login hands back to the client.
type Result struct {
	User      *domain.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type UseCase struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	tokens   *TokenIssuer
	logger   *zap.Logger
	now      func() time.Time
	cost     int
}

func New(users repository.UserRepository, sessions repository.SessionRepository, tokens *TokenIssuer, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		logger:   logger,
		now:      time.Now,
		cost:     bcrypt.DefaultCost,
	}
}

// WithHashCost lowers the bcrypt cost; tests use bcrypt.MinCost.
func (uc *UseCase) WithHashCost(cost int) *UseCase {
	uc.cost = cost
	return uc
}

func (uc *UseCase) Register(ctx context.Context, name, email, password, userAgent string) (*Result, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	fields := map[string]string{}
	if name == "" {
		fields["name"] = "name is required"
	}
	if err := emailRule.Var(email, "required,email"); err != nil {
		fields["email"] = "email must be a valid email"
	}
	if len(password) < minPasswordLength {
		fields["password"] = "password must be at least 8 characters"
	}
	if len(fields) > 0 {
		return nil, domain.NewValidationError(fields)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), uc.cost)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "hash password", err)
	}

	user := &domain.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Active:       true,
	}
	if err := uc.users.Create(ctx, user); err != nil {
		return nil, err
	}
	uc.logger.Info("user registered", zap.String("user_id", user.ID))

	return uc.startSession(ctx, user, userAgent)
}

func (uc *UseCase) Login(ctx context.Context, email, password, userAgent string) (*Result, error) {
	user, err := uc.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive() {
		return nil, domain.ErrInvalidCredentials
	}

	now := uc.now().UTC()
	if err := uc.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		uc.logger.Warn("failed to record last login", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}

	return uc.startSession(ctx, user, userAgent)
}

// Logout revokes the session; tokens pointing at it stop validating.
func (uc *UseCase) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return domain.ErrSessionNotFound
	}
	return uc.sessions.Delete(ctx, sessionID)
}

// ValidateSession confirms the session is live and was issued to userID.
func (uc *UseCase) ValidateSession(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	session, err := uc.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	if session.IsExpired(uc.now()) || !session.BelongsTo(userID) {
		return nil, domain.ErrUnauthorized
	}
	return session, nil
}

// Refresh extends a live session and issues a new token for it.
func (uc *UseCase) Refresh(ctx context.Context, sessionID, userID string) (*Result, error) {
	session, err := uc.ValidateSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	user, err := uc.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := uc.sessions.Extend(ctx, sessionID, uc.tokens.TTL()); err != nil {
		return nil, err
	}
	session.ExpiresAt = uc.now().Add(uc.tokens.TTL())

	token, err := uc.tokens.Issue(user, session)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "issue token", err)
	}
	return &Result{User: user, Token: token, ExpiresAt: session.ExpiresAt}, nil
}

func (uc *UseCase) startSession(ctx context.Context, user *domain.User, userAgent string) (*Result, error) {
	now := uc.now()
	session := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(uc.tokens.TTL()),
	}
	if err := uc.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	token, err := uc.tokens.Issue(user, session)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "issue token", err)
	}
	return &Result{User: user, Token: token, ExpiresAt: session.ExpiresAt}, nil
}
