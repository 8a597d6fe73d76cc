package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/moxer-mmh/Tweeza/authz"
	"github.com/moxer-mmh/Tweeza/db"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

const (
	twoFactorIssuer = "Tweeza"
	smsCodeTTL      = 5 * time.Minute
	smsCodeDigits   = 6
)

// ErrInvalidCode is returned when a TOTP or SMS code does not verify
var ErrInvalidCode = fmt.Errorf("%w: invalid verification code", authz.ErrInvalidInput)

// CodeSender delivers one-time codes to a phone number
type CodeSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// LogCodeSender writes codes to the log instead of sending an SMS
type LogCodeSender struct {
	Logger *zap.Logger
}

func (s LogCodeSender) SendCode(ctx context.Context, phone, code string) error {
	s.Logger.Info("verification code issued", zap.String("phone", phone), zap.String("code", code))
	return nil
}

type TwoFactorService struct {
	users  UserRepository
	store  KeyValueStore
	sender CodeSender
	logger *zap.Logger
}

var _ SecondFactor = (*TwoFactorService)(nil)

func NewTwoFactorService(users UserRepository, store KeyValueStore, sender CodeSender, logger *zap.Logger) *TwoFactorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = LogCodeSender{Logger: logger}
	}
	return &TwoFactorService{users: users, store: store, sender: sender, logger: logger}
}

type TwoFactorSetup struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

type TwoFactorStatus struct {
	Enabled bool               `json:"enabled"`
	Method  db.TwoFactorMethod `json:"method,omitempty"`
	Phone   string             `json:"phone,omitempty"`
}

func smsCodeKey(userID string) string { return "2fa:sms:" + userID }

// Setup generates a new TOTP secret. 2FA stays disabled until VerifySetup.
func (s *TwoFactorService) Setup(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      twoFactorIssuer,
		AccountName: u.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp secret: %w", err)
	}

	u.TwoFactorSecret = key.Secret()
	u.TwoFactorEnabled = false
	u.TwoFactorMethod = db.TwoFactorTOTP
	if err := s.users.UpdateTwoFactor(ctx, u); err != nil {
		return nil, err
	}
	return &TwoFactorSetup{Secret: key.Secret(), URI: key.URL()}, nil
}

// VerifySetup enables TOTP once the user proves their authenticator works
func (s *TwoFactorService) VerifySetup(ctx context.Context, userID, code string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.TwoFactorSecret == "" {
		return fmt.Errorf("%w: two-factor setup has not been started", authz.ErrInvalidInput)
	}
	if !totp.Validate(strings.TrimSpace(code), u.TwoFactorSecret) {
		return ErrInvalidCode
	}

	u.TwoFactorEnabled = true
	u.TwoFactorMethod = db.TwoFactorTOTP
	if err := s.users.UpdateTwoFactor(ctx, u); err != nil {
		return err
	}
	s.logger.Info("two-factor enabled", zap.String("user_id", userID), zap.String("method", "totp"))
	return nil
}

// Enable switches 2FA on with the given method. TOTP needs a completed setup
// and a current code from the authenticator; SMS needs a valid phone, either
// passed in or already on the profile.
func (s *TwoFactorService) Enable(ctx context.Context, userID string, method db.TwoFactorMethod, phone, code string) error {
	if !method.Valid() {
		return fmt.Errorf("%w: method must be totp or sms", authz.ErrInvalidInput)
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	switch method {
	case db.TwoFactorTOTP:
		if u.TwoFactorSecret == "" {
			return fmt.Errorf("%w: run two-factor setup first", authz.ErrInvalidInput)
		}
		if !totp.Validate(strings.TrimSpace(code), u.TwoFactorSecret) {
			return ErrInvalidCode
		}
	case db.TwoFactorSMS:
		if phone = strings.TrimSpace(phone); phone == "" {
			phone = u.Phone
		}
		if !ValidPhone(phone) {
			return fmt.Errorf("%w: a valid phone is required for sms", authz.ErrInvalidInput)
		}
		u.Phone = phone
	}

	u.TwoFactorEnabled = true
	u.TwoFactorMethod = method
	if err := s.users.UpdateTwoFactor(ctx, u); err != nil {
		return err
	}
	s.logger.Info("two-factor enabled", zap.String("user_id", userID), zap.String("method", string(method)))
	return nil
}

func (s *TwoFactorService) Disable(ctx context.Context, userID string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	u.TwoFactorEnabled = false
	u.TwoFactorSecret = ""
	u.TwoFactorMethod = ""
	if err := s.users.UpdateTwoFactor(ctx, u); err != nil {
		return err
	}
	_ = s.store.Del(ctx, smsCodeKey(userID))
	return nil
}

// SendCode stores a fresh 6-digit code for five minutes and hands it to the sender
func (s *TwoFactorService) SendCode(ctx context.Context, userID string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.TwoFactorEnabled {
		return fmt.Errorf("%w: two-factor authentication is not enabled", authz.ErrInvalidInput)
	}
	if u.Phone == "" {
		return fmt.Errorf("%w: no phone on file", authz.ErrInvalidInput)
	}

	code, err := generateNumericCode(smsCodeDigits)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, smsCodeKey(userID), code, smsCodeTTL); err != nil {
		return fmt.Errorf("failed to store verification code: %w", err)
	}
	return s.sender.SendCode(ctx, u.Phone, code)
}

// Verify accepts a TOTP code for TOTP users, otherwise the pending SMS code.
// SMS codes are single use.
func (s *TwoFactorService) Verify(ctx context.Context, userID, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrInvalidCode
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if u.TwoFactorMethod == db.TwoFactorTOTP && u.TwoFactorSecret != "" {
		if totp.Validate(code, u.TwoFactorSecret) {
			return nil
		}
		return ErrInvalidCode
	}

	stored, err := s.store.Get(ctx, smsCodeKey(userID))
	if errors.Is(err, ErrKeyNotFound) {
		return ErrInvalidCode
	}
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return ErrInvalidCode
	}
	_ = s.store.Del(ctx, smsCodeKey(userID))
	return nil
}

func (s *TwoFactorService) Status(ctx context.Context, userID string) (*TwoFactorStatus, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &TwoFactorStatus{Enabled: u.TwoFactorEnabled, Method: u.TwoFactorMethod, Phone: u.Phone}, nil
}

func generateNumericCode(digits int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}
