package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/aryan0dhankhar/identityhub/internal/domain"
	"github.com/aryan0dhankhar/identityhub/internal/observability/metrics"
	"github.com/aryan0dhankhar/identityhub/internal/security/cipher"
	"github.com/aryan0dhankhar/identityhub/internal/security/token"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

const minPasswordLength = 8

// SigninThrottle limits failed signin attempts per username. A nil
// throttle disables throttling.
type SigninThrottle interface {
	Allowed(ctx context.Context, username string) bool
	RecordFailure(ctx context.Context, username string)
	Reset(ctx context.Context, username string)
}

// IdentityService implements signup, signin, and password change on top
// of the user directory, the credential cipher, and the token manager.
type IdentityService struct {
	directory domain.UserDirectory
	cipher    *cipher.Cipher
	tokens    *token.Manager
	throttle  SigninThrottle
	logger    *slog.Logger
}

// NewIdentityService creates an identity service.
func NewIdentityService(
	directory domain.UserDirectory,
	credCipher *cipher.Cipher,
	tokens *token.Manager,
	throttle SigninThrottle,
	logger *slog.Logger,
) *IdentityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityService{
		directory: directory,
		cipher:    credCipher,
		tokens:    tokens,
		throttle:  throttle,
		logger:    logger,
	}
}

// ValidateCredential checks the credential shape: username 3-30
// alphanumeric characters, password at least 8 characters. Returns a
// *ValidationError listing every violated constraint.
func ValidateCredential(username, password string) error {
	var violations []string
	if len(username) < 3 || len(username) > 30 || !usernamePattern.MatchString(username) {
		violations = append(violations, "username must be 3 to 30 alphanumeric characters")
	}
	if len(password) < minPasswordLength {
		violations = append(violations, "password must be at least 8 characters")
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// Signup validates the credential, rejects duplicates before any digest
// work, and creates the record with a digested password.
func (s *IdentityService) Signup(ctx context.Context, username, password string) (*domain.User, error) {
	if err := ValidateCredential(username, password); err != nil {
		metrics.ObserveSignup("invalid")
		return nil, err
	}

	existing, err := s.directory.FindByUsername(username)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		metrics.ObserveSignup("error")
		return nil, fmt.Errorf("signup: lookup username: %w", err)
	}
	if existing != nil {
		metrics.ObserveSignup("duplicate")
		return nil, ErrDuplicateUsername
	}

	digest, err := s.cipher.Digest(password)
	if err != nil {
		metrics.ObserveSignup("error")
		return nil, fmt.Errorf("signup: digest password: %w", err)
	}

	user := &domain.User{
		Username:       username,
		PasswordDigest: digest,
	}
	if err := s.directory.Create(user); err != nil {
		metrics.ObserveSignup("error")
		return nil, fmt.Errorf("signup: create user: %w", err)
	}

	s.logger.Info("user created", slog.String("user_id", user.ID), slog.String("username", user.Username))
	metrics.ObserveSignup("created")
	return user, nil
}

// Signin verifies a credential against the stored digest and issues a
// signed token. The not-found branch is distinct from the mismatch
// branch, so the response shape reveals username existence; retained as
// current behavior.
func (s *IdentityService) Signin(ctx context.Context, username, password string) (string, *domain.User, error) {
	if err := ValidateCredential(username, password); err != nil {
		metrics.ObserveSignin("invalid")
		return "", nil, err
	}

	if s.throttle != nil && !s.throttle.Allowed(ctx, username) {
		s.logger.Warn("signin throttled", slog.String("username", username))
		metrics.ObserveSignin("throttled")
		return "", nil, ErrSigninThrottled
	}

	user, err := s.directory.FindByUsername(username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.ObserveSignin("not_found")
			return "", nil, err
		}
		metrics.ObserveSignin("error")
		return "", nil, fmt.Errorf("signin: lookup username: %w", err)
	}

	digest, err := s.cipher.Digest(password)
	if err != nil {
		metrics.ObserveSignin("error")
		return "", nil, fmt.Errorf("signin: digest password: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(digest), []byte(user.PasswordDigest)) != 1 {
		if s.throttle != nil {
			s.throttle.RecordFailure(ctx, username)
		}
		s.logger.Info("signin failed with wrong password", slog.String("username", username))
		metrics.ObserveSignin("mismatch")
		return "", nil, ErrPasswordMismatch
	}

	signed, err := s.tokens.Issue(user)
	if err != nil {
		metrics.ObserveSignin("error")
		return "", nil, fmt.Errorf("signin: issue token: %w", err)
	}

	if s.throttle != nil {
		s.throttle.Reset(ctx, username)
	}
	s.logger.Info("user signed in", slog.String("user_id", user.ID), slog.String("username", user.Username))
	metrics.ObserveSignin("success")
	return signed, user, nil
}

// ChangePassword re-fetches the user behind the verified claim, checks
// the old password against the stored digest, and persists the digest of
// the new password.
func (s *IdentityService) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) (*domain.User, error) {
	user, err := s.directory.FindByUsername(username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.ObservePasswordChange("not_found")
			return nil, err
		}
		metrics.ObservePasswordChange("error")
		return nil, fmt.Errorf("change password: lookup username: %w", err)
	}

	oldDigest, err := s.cipher.Digest(oldPassword)
	if err != nil {
		metrics.ObservePasswordChange("error")
		return nil, fmt.Errorf("change password: digest old password: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(oldDigest), []byte(user.PasswordDigest)) != 1 {
		metrics.ObservePasswordChange("mismatch")
		return nil, ErrPasswordMismatch
	}

	if len(newPassword) < minPasswordLength {
		metrics.ObservePasswordChange("invalid")
		return nil, &ValidationError{Violations: []string{"password must be at least 8 characters"}}
	}

	newDigest, err := s.cipher.Digest(newPassword)
	if err != nil {
		metrics.ObservePasswordChange("error")
		return nil, fmt.Errorf("change password: digest new password: %w", err)
	}

	updated, err := s.directory.UpdatePassword(user.ID, newDigest)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.ObservePasswordChange("not_found")
			return nil, err
		}
		metrics.ObservePasswordChange("error")
		return nil, fmt.Errorf("change password: update digest: %w", err)
	}

	s.logger.Info("user changed password", slog.String("user_id", user.ID))
	metrics.ObservePasswordChange("success")
	return updated, nil
}
