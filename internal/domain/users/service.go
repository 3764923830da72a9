package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/lgn-platform/lgn-api/internal/audit"
	"github.com/lgn-platform/lgn-api/internal/auth"
	"github.com/lgn-platform/lgn-api/internal/metrics"
)

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RegisterParams struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      string
}

type ChangePasswordParams struct {
	CurrentPassword      string
	NewPassword          string
	ConfirmationPassword string
}

// Principal is the authenticated caller resolved from an access token.
type Principal struct {
	UserID int64
	Email  string
	Role   auth.Role
}

type Options struct {
	// WithTx makes registration atomic. Without it the user insert and the
	// token save run as separate statements.
	WithTx            TxFunc
	Notifier          Notifier
	Audit             *audit.Logger
	Clock             clockwork.Clock
	AllowRegisterRole bool
	Logger            zerolog.Logger
}

// Service implements registration, authentication, token refresh, logout
// and password changes.
type Service struct {
	users             UserRepository
	tokens            TokenRepository
	withTx            TxFunc
	jwt               *auth.JWTManager
	notifier          Notifier
	audit             *audit.Logger
	clock             clockwork.Clock
	allowRegisterRole bool
	logger            zerolog.Logger
}

func NewService(users UserRepository, tokens TokenRepository, jwt *auth.JWTManager, opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	withTx := opts.WithTx
	if withTx == nil {
		withTx = func(ctx context.Context, fn func(context.Context, UserRepository, TokenRepository) error) error {
			return fn(ctx, users, tokens)
		}
	}
	return &Service{
		users:             users,
		tokens:            tokens,
		withTx:            withTx,
		jwt:               jwt,
		notifier:          opts.Notifier,
		audit:             opts.Audit,
		clock:             clock,
		allowRegisterRole: opts.AllowRegisterRole,
		logger:            opts.Logger.With().Str("component", "users").Logger(),
	}
}

func (s *Service) Register(ctx context.Context, params RegisterParams) (TokenPair, error) {
	role := auth.RoleUser
	if s.allowRegisterRole {
		if requested, ok := auth.ParseRole(params.Role); ok {
			role = requested
		}
	}

	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return TokenPair{}, err
	}

	// The user row and its first token commit together, so a failed token
	// save leaves the email free for a retry.
	var (
		user *User
		pair TokenPair
	)
	err = s.withTx(ctx, func(ctx context.Context, userRepo UserRepository, tokenRepo TokenRepository) error {
		created, err := userRepo.Create(ctx, User{
			FirstName:    strings.TrimSpace(params.FirstName),
			LastName:     strings.TrimSpace(params.LastName),
			Email:        NormalizeEmail(params.Email),
			PasswordHash: hash,
			Role:         role,
		})
		if err != nil {
			return err
		}
		issued, err := s.issuePair(created)
		if err != nil {
			return err
		}
		if _, err := tokenRepo.Save(ctx, s.newToken(created.ID, issued.AccessToken)); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
		user, pair = created, issued
		return nil
	})
	if err != nil {
		metrics.RecordAuthEvent("register", err)
		return TokenPair{}, err
	}

	metrics.RecordAuthEvent("register", nil)
	s.audit.LogSuccess(ctx, "auth.register", user.Email, "user", strconv.FormatInt(user.ID, 10),
		map[string]string{"role": string(user.Role)})

	if s.notifier != nil {
		if err := s.notifier.SendWelcome(ctx, user.Email, user.FirstName); err != nil {
			s.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("welcome email failed")
		}
	}
	return pair, nil
}

// Authenticate checks credentials and, on success, revokes every active
// token of the user before storing the newly issued one.
func (s *Service) Authenticate(ctx context.Context, email, password string) (TokenPair, error) {
	email = NormalizeEmail(email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.loginFailed(ctx, email, "unknown_user")
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.loginFailed(ctx, email, "bad_password")
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.rotate(ctx, user.ID, pair.AccessToken); err != nil {
		return TokenPair{}, err
	}

	metrics.RecordAuthEvent("login", nil)
	s.audit.LogSuccess(ctx, "auth.login", user.Email, "user", strconv.FormatInt(user.ID, 10), nil)
	return pair, nil
}

// Refresh issues a new access token for a valid refresh token. The refresh
// token itself is returned unchanged.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.jwt.Validate(refreshToken)
	if err != nil || claims.Type != auth.TokenTypeRefresh {
		metrics.RecordAuthEvent("refresh", ErrInvalidToken)
		return TokenPair{}, ErrInvalidToken
	}

	user, err := s.users.GetByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			metrics.RecordAuthEvent("refresh", ErrInvalidToken)
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}
	if !s.jwt.IsTokenValid(refreshToken, user.Email) {
		return TokenPair{}, ErrInvalidToken
	}

	access, err := s.jwt.Generate(user.Email, string(user.Role))
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate access token: %w", err)
	}
	if err := s.rotate(ctx, user.ID, access); err != nil {
		return TokenPair{}, err
	}

	metrics.RecordAuthEvent("refresh", nil)
	s.audit.LogSuccess(ctx, "auth.refresh", user.Email, "user", strconv.FormatInt(user.ID, 10), nil)
	return TokenPair{AccessToken: access, RefreshToken: refreshToken}, nil
}

// Logout revokes the presented access token. Unknown or empty tokens are
// ignored.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	if strings.TrimSpace(accessToken) == "" {
		return nil
	}
	stored, err := s.tokens.FindByValue(ctx, accessToken)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil
		}
		return err
	}
	if err := s.tokens.Revoke(ctx, stored.Value); err != nil && !errors.Is(err, ErrTokenNotFound) {
		return err
	}

	metrics.TokensRevokedTotal.Inc()
	metrics.RecordAuthEvent("logout", nil)
	s.audit.LogSuccess(ctx, "auth.logout", strconv.FormatInt(stored.UserID, 10), "token", strconv.FormatInt(stored.ID, 10), nil)
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, email string, params ChangePasswordParams) error {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return err
	}

	if err := auth.CheckPassword(user.PasswordHash, params.CurrentPassword); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			metrics.RecordAuthEvent("change_password", ErrWrongPassword)
			s.audit.LogFailure(ctx, "auth.change_password", user.Email, map[string]string{"reason": "wrong_password"})
			return ErrWrongPassword
		}
		return err
	}
	if params.NewPassword != params.ConfirmationPassword {
		metrics.RecordAuthEvent("change_password", ErrPasswordMismatch)
		return ErrPasswordMismatch
	}

	hash, err := auth.HashPassword(params.NewPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	metrics.RecordAuthEvent("change_password", nil)
	s.audit.LogSuccess(ctx, "auth.change_password", user.Email, "user", strconv.FormatInt(user.ID, 10), nil)

	if s.notifier != nil {
		if err := s.notifier.SendPasswordChanged(ctx, user.Email, user.FirstName); err != nil {
			s.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("password change email failed")
		}
	}
	return nil
}

func (s *Service) LoadUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.users.GetByEmail(ctx, NormalizeEmail(email))
}

// ResolveToken authenticates a bearer access token: the signature and
// expiry must be valid and the stored token row must still be active.
func (s *Service) ResolveToken(ctx context.Context, accessToken string) (*Principal, error) {
	claims, err := s.jwt.ValidateAccess(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	stored, err := s.tokens.FindByValue(ctx, accessToken)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !stored.Active(s.clock.Now()) {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if user.ID != stored.UserID {
		return nil, ErrInvalidToken
	}

	return &Principal{UserID: user.ID, Email: user.Email, Role: user.Role}, nil
}

func (s *Service) issuePair(user *User) (TokenPair, error) {
	access, err := s.jwt.Generate(user.Email, string(user.Role))
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate access token: %w", err)
	}
	refresh, err := s.jwt.GenerateRefresh(user.Email, string(user.Role))
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) rotate(ctx context.Context, userID int64, access string) error {
	revoked, err := s.tokens.Rotate(ctx, userID, s.newToken(userID, access))
	if err != nil {
		return fmt.Errorf("rotate tokens: %w", err)
	}
	metrics.TokensRevokedTotal.Add(float64(len(revoked)))
	return nil
}

func (s *Service) newToken(userID int64, value string) Token {
	return Token{
		Value:     value,
		Type:      TokenTypeBearer,
		UserID:    userID,
		ExpiresAt: s.clock.Now().Add(s.jwt.AccessExpiry()),
	}
}

func (s *Service) loginFailed(ctx context.Context, email, reason string) {
	metrics.RecordAuthEvent("login", ErrInvalidCredentials)
	s.audit.LogFailure(ctx, "auth.login", email, map[string]string{"reason": reason})
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
