package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/libranet/apiserver/config"
	"github.com/libranet/apiserver/internal/auth"
	"github.com/libranet/apiserver/internal/mailer"
	"github.com/libranet/apiserver/internal/store"
	"github.com/libranet/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	cardNumberPrefix   = "LIB-"
	cardNumberAttempts = 5
	minNameLength      = 2
	minPasswordLength  = 6
	otpSubject         = "Your Library OTP Code"
)

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Address  string
	Role     types.Role
}

// UserService encapsulates registration, verification, and login.
type UserService struct {
	repos  Repositories
	tx     TxManager
	mailer mailer.Mailer
	tokens *auth.Issuer
	otpTTL time.Duration
	logger *slog.Logger
	now    Clock
}

func NewUserService(repos Repositories, tx TxManager, m mailer.Mailer, tokens *auth.Issuer, cfg config.LibraryConfig, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = mailer.NewLogMailer(logger)
	}
	otpTTL := cfg.OTPTTL
	if otpTTL <= 0 {
		otpTTL = 10 * time.Minute
	}
	return &UserService{
		repos:  repos,
		tx:     tx,
		mailer: m,
		tokens: tokens,
		otpTTL: otpTTL,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source.
func (s *UserService) SetClock(now Clock) {
	s.now = now
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	user, err := s.repos.Users.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, ErrUserNotFound
	}
	return user, err
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repos.Users.List(ctx)
}

// Register creates an unverified account and sends its first code.
// actor is the authenticated caller, or nil for public sign-up.
func (s *UserService) Register(ctx context.Context, in RegisterInput, actor *auth.Principal) (types.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if len([]rune(in.Name)) < minNameLength {
		return types.User{}, invalid("Name must be at least 2 characters")
	}
	if !validEmail(in.Email) {
		return types.User{}, invalid("A valid email is required")
	}
	if len(in.Password) < minPasswordLength {
		return types.User{}, invalid("Password must be at least 6 characters")
	}

	if in.Role == "" {
		in.Role = types.RolePatron
	}
	switch in.Role {
	case types.RolePatron:
	case types.RoleLibrarian:
		if actor == nil || actor.Role != types.RoleAdmin {
			return types.User{}, ErrForbidden
		}
	case types.RoleAdmin:
		return types.User{}, ErrForbidden
	default:
		return types.User{}, invalid("Role must be PATRON or LIBRARIAN")
	}

	if _, err := s.repos.Users.GetByEmail(ctx, in.Email); err == nil {
		return types.User{}, ErrEmailInUse
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	user := types.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hashed),
		Phone:        optionalString(in.Phone),
		Address:      optionalString(in.Address),
		Role:         in.Role,
	}
	created, err := s.createWithCardNumber(ctx, s.repos.Users, user)
	if err != nil {
		return types.User{}, err
	}

	if err := s.sendOTP(ctx, created); err != nil {
		s.logger.WarnContext(ctx, "initial otp not delivered", "user_id", created.ID, "error", err)
	}
	return created, nil
}

// CreateVerified stores an account that skips email verification. It
// backs the admin bootstrap command.
func (s *UserService) CreateVerified(ctx context.Context, in RegisterInput) (types.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if len([]rune(in.Name)) < minNameLength || !validEmail(in.Email) || len(in.Password) < minPasswordLength {
		return types.User{}, invalid("Name, a valid email, and a password of at least 6 characters are required")
	}
	if !in.Role.Valid() {
		return types.User{}, invalid("Unknown role")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}
	return s.createWithCardNumber(ctx, s.repos.Users, types.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hashed),
		Phone:        optionalString(in.Phone),
		Address:      optionalString(in.Address),
		Role:         in.Role,
		IsVerified:   true,
	})
}

func (s *UserService) createWithCardNumber(ctx context.Context, users UserRepository, user types.User) (types.User, error) {
	for attempt := 0; attempt < cardNumberAttempts; attempt++ {
		card, err := newCardNumber()
		if err != nil {
			return types.User{}, err
		}
		user.LibraryCardNumber = card

		created, err := users.Create(ctx, user)
		switch {
		case err == nil:
			return created, nil
		case store.IsConflictOn(err, store.ConstraintUserEmail):
			return types.User{}, ErrEmailInUse
		case store.IsConflictOn(err, store.ConstraintUserCardNumber):
			continue
		default:
			return types.User{}, err
		}
	}
	return types.User{}, fmt.Errorf("no free library card number after %d attempts", cardNumberAttempts)
}

// ResendOTP replaces any outstanding code for email with a fresh one and
// mails it.
func (s *UserService) ResendOTP(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return invalid("A valid email is required")
	}

	user, err := s.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}
	return s.sendOTP(ctx, user)
}

func (s *UserService) sendOTP(ctx context.Context, user types.User) error {
	code, err := newOTPCode()
	if err != nil {
		return err
	}

	var otp types.OTPVerification
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		if err := repos.OTPs.InvalidateForUser(ctx, user.ID); err != nil {
			return err
		}
		otp, err = repos.OTPs.Create(ctx, types.OTPVerification{
			UserID:    user.ID,
			Code:      code,
			ExpiresAt: s.now().Add(s.otpTTL),
		})
		return err
	})
	if err != nil {
		return err
	}

	body := fmt.Sprintf("Hello %s, your OTP code is %s. It expires in %d minutes.", user.Name, code, int(s.otpTTL.Minutes()))
	if err := s.mailer.Send(ctx, user.Email, otpSubject, body); err != nil {
		if consumeErr := s.repos.OTPs.Consume(ctx, otp.ID); consumeErr != nil {
			s.logger.ErrorContext(ctx, "failed to discard undelivered otp", "otp_id", otp.ID, "error", consumeErr)
		}
		return fmt.Errorf("deliver otp: %w", err)
	}
	return nil
}

// VerifyOTP marks the user verified and consumes the code in one
// transaction.
func (s *UserService) VerifyOTP(ctx context.Context, userID int, code string) error {
	code = strings.TrimSpace(code)
	if userID < 1 || !isOTPCode(code) {
		return invalid("userId and a 6-digit code are required")
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		otp, err := repos.OTPs.FindValid(ctx, userID, code, s.now())
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidOTP
			}
			return err
		}
		if err := repos.OTPs.Consume(ctx, otp.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidOTP
			}
			return err
		}
		if err := repos.Users.MarkVerified(ctx, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidOTP
			}
			return err
		}
		return nil
	})
}

// Login checks credentials and returns the user with a signed token.
// Unknown email and wrong password fail with the same error.
func (s *UserService) Login(ctx context.Context, email, password string, role types.Role) (types.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return types.User{}, "", invalid("Email and password are required")
	}

	user, err := s.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
			return types.User{}, "", ErrInvalidCredentials
		}
		return types.User{}, "", err
	}
	if role != "" && role != user.Role {
		return types.User{}, "", ErrRoleMismatch
	}
	if !user.IsVerified {
		return types.User{}, "", ErrEmailNotVerified
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return types.User{}, "", err
	}
	return user, token, nil
}

var (
	dummyHashOnce  sync.Once
	dummyHashValue []byte
)

// dummyHash keeps the unknown-email path as slow as a real comparison.
func dummyHash() []byte {
	dummyHashOnce.Do(func() {
		dummyHashValue, _ = bcrypt.GenerateFromPassword([]byte("libranet-dummy-password"), bcrypt.DefaultCost)
	})
	return dummyHashValue
}

func newOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func newCardNumber() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%06d", cardNumberPrefix, n.Int64()+100_000), nil
}

func isOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
