package service

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"

	"storefront-backend/internal/config"
	"storefront-backend/internal/domain"
	"storefront-backend/internal/effect"
	"storefront-backend/internal/repository"
	"storefront-backend/internal/security"
	"storefront-backend/internal/token"
)

var (
	usernameRe  = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,64}$`)
	uppercaseRe = regexp.MustCompile(`[A-Z]`)
	lowercaseRe = regexp.MustCompile(`[a-z]`)
	digitRe     = regexp.MustCompile(`[0-9]`)
)

// AccountService owns the account lifecycle: Pending on registration, Active
// after exactly one successful email verification, password rotation through
// reset links or an authenticated change. Every transition that matters is a
// compare-and-set in the user repository; the proofs carried in links bind
// to the pre-transition state and die with it.
type AccountService struct {
	cfg        *config.Config
	users      repository.UserRepository
	wallets    repository.WalletRepository
	codec      *token.Codec
	dispatcher effect.Dispatcher
	jwtMgr     *security.JWTManager
	logger     *slog.Logger
}

func NewAccountService(
	cfg *config.Config,
	users repository.UserRepository,
	wallets repository.WalletRepository,
	codec *token.Codec,
	dispatcher effect.Dispatcher,
	jwtMgr *security.JWTManager,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		cfg:        cfg,
		users:      users,
		wallets:    wallets,
		codec:      codec,
		dispatcher: dispatcher,
		jwtMgr:     jwtMgr,
		logger:     logger,
	}
}

// Register creates a pending (inactive) account and queues the verification
// email carrying a fresh verify_email proof.
func (s *AccountService) Register(ctx context.Context, email, username, password string) (*domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if !usernameRe.MatchString(username) {
		return nil, fmt.Errorf("%w: username must be 3-64 chars of letters, digits, '_', '.' or '-'", ErrInvalidInput)
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{Email: email, Username: username, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	if err := s.wallets.Create(ctx, user.ID); err != nil {
		return nil, err
	}

	e := effect.New(effect.KindSendVerificationEmail, user.ID)
	e.Payload["email"] = user.Email
	e.Payload["username"] = user.Username
	e.Payload["uid"] = token.EncodeUID(user.ID)
	e.Payload["token"] = s.codec.Issue(user.ID, token.PurposeVerifyEmail, fingerprint(user))
	s.submit(ctx, e)

	s.logger.InfoContext(ctx, "account registered", "user_id", user.ID)
	return user, nil
}

// VerifyEmail consumes a verification link. The activate compare-and-set is
// what guarantees at most one Pending -> Active transition and at most one
// wallet-bonus effect under concurrent calls; every loser sees ErrInvalidLink.
func (s *AccountService) VerifyEmail(ctx context.Context, carrier, proof string) error {
	uid, err := token.DecodeUID(carrier)
	if err != nil {
		return ErrInvalidLink
	}
	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidLink
		}
		return err
	}
	if !s.codec.Verify(uid, token.PurposeVerifyEmail, fingerprint(user), proof) {
		return ErrInvalidLink
	}
	won, err := s.users.Activate(ctx, uid)
	if err != nil {
		return err
	}
	if !won {
		return ErrInvalidLink
	}

	e := effect.New(effect.KindCreditWalletBonus, uid)
	e.Amount = s.cfg.WalletBonusAmount
	e.Payload["reason"] = "verification_bonus"
	s.submit(ctx, e)

	s.logger.InfoContext(ctx, "email verified", "user_id", uid)
	return nil
}

// RequestPasswordReset queues a reset email for a known address. Identity
// state is never mutated here, so outstanding proofs stay valid until one of
// them is consumed.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return err
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUnknownEmail
		}
		return err
	}

	e := effect.New(effect.KindSendResetEmail, user.ID)
	e.Payload["email"] = user.Email
	e.Payload["username"] = user.Username
	e.Payload["uid"] = token.EncodeUID(user.ID)
	e.Payload["token"] = s.codec.Issue(user.ID, token.PurposeResetPassword, fingerprint(user))
	s.submit(ctx, e)

	s.logger.InfoContext(ctx, "password reset requested", "user_id", user.ID)
	return nil
}

// ConfirmPasswordReset consumes a reset link. Writing the new hash is a
// compare-and-set keyed on the old one, which simultaneously invalidates the
// consumed proof and every other outstanding reset proof for the user.
func (s *AccountService) ConfirmPasswordReset(ctx context.Context, carrier, proof, newPassword string) error {
	uid, err := token.DecodeUID(carrier)
	if err != nil {
		return ErrInvalidLink
	}
	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidLink
		}
		return err
	}
	if !s.codec.Verify(uid, token.PurposeResetPassword, fingerprint(user), proof) {
		return ErrInvalidLink
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	newHash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}
	won, err := s.users.ReplacePasswordHash(ctx, uid, user.PasswordHash, newHash)
	if err != nil {
		return err
	}
	if !won {
		return ErrInvalidLink
	}

	s.logger.InfoContext(ctx, "password reset confirmed", "user_id", uid)
	return nil
}

// ChangePassword rotates the password for an already authenticated-and-active
// caller; the access guard enforces that precondition at the HTTP layer.
func (s *AccountService) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := security.VerifyPassword(user.PasswordHash, currentPassword)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if currentPassword == newPassword {
		return fmt.Errorf("%w: new password must differ from current password", ErrInvalidInput)
	}
	newHash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}
	won, err := s.users.ReplacePasswordHash(ctx, userID, user.PasswordHash, newHash)
	if err != nil {
		return err
	}
	if !won {
		// Someone else rotated the hash between our read and write.
		return ErrInvalidCredentials
	}

	s.logger.InfoContext(ctx, "password changed", "user_id", userID)
	return nil
}

// Login authenticates an email/password pair and issues the access token the
// guard consumes. Unverified accounts cannot log in.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	ok, err := security.VerifyPassword(user.PasswordHash, password)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", nil, ErrInactiveAccount
	}
	access, err := s.jwtMgr.SignAccessToken(user.ID, s.cfg.JWTAccessTTL)
	if err != nil {
		return "", nil, err
	}
	return access, user, nil
}

func (s *AccountService) Profile(ctx context.Context, userID uint) (*domain.User, error) {
	return s.users.FindByID(ctx, userID)
}

// submit hands an effect to the dispatcher. A failed hand-off is logged and
// swallowed: the state transition that produced the effect is already
// committed and must not be rolled back or fail the request over a queue
// outage.
func (s *AccountService) submit(ctx context.Context, e effect.Effect) {
	if err := s.dispatcher.Submit(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "effect submission failed",
			"effect_id", e.ID, "kind", string(e.Kind), "user_id", e.UserID, "error", err)
	}
}

// fingerprint snapshots the identity fields a proof certifies. Activation
// flips IsActive and a password write replaces PasswordHash, so consuming a
// proof always changes its own derivation input.
func fingerprint(u *domain.User) []byte {
	sum := sha256.New()
	fmt.Fprintf(sum, "%d\x00%s\x00%s\x00%t", u.ID, u.Email, u.PasswordHash, u.IsActive)
	return sum.Sum(nil)
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 || !uppercaseRe.MatchString(password) ||
		!lowercaseRe.MatchString(password) || !digitRe.MatchString(password) {
		return ErrWeakPassword
	}
	return nil
}
