package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/moxer-mmh/Tweeza/authz"
	"github.com/moxer-mmh/Tweeza/db"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// HashPassword creates a bcrypt hash of the password
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a bcrypt hash with a candidate password
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// OrgRegistrar creates organizations on behalf of a newly registered user
type OrgRegistrar interface {
	CreateOrg(ctx context.Context, id authz.Identity, input authz.CreateOrgInput) (*authz.Organization, error)
}

// SecondFactor checks and dispatches 2FA codes during login
type SecondFactor interface {
	SendCode(ctx context.Context, userID string) error
	Verify(ctx context.Context, userID, code string) error
}

type AuthService struct {
	users     UserRepository
	orgs      OrgRegistrar
	tokens    *TokenProvider
	twoFactor SecondFactor
	logger    *zap.Logger
}

func NewAuthService(users UserRepository, orgs OrgRegistrar, tokens *TokenProvider, twoFactor SecondFactor, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{users: users, orgs: orgs, tokens: tokens, twoFactor: twoFactor, logger: logger}
}

type RegisterRequest struct {
	Email     string   `json:"email" binding:"required"`
	Password  string   `json:"password" binding:"required"`
	FullName  string   `json:"full_name" binding:"required"`
	Phone     string   `json:"phone"`
	Location  string   `json:"location"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Role      string   `json:"role"` // worker, volunteer, beneficiary
}

type RegisterOrganizationRequest struct {
	RegisterRequest
	Organization authz.CreateOrgInput `json:"organization" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TwoFactorLoginRequest struct {
	ChallengeToken string `json:"challenge_token" binding:"required"`
	Code           string `json:"code" binding:"required"`
}

// AuthResult is returned by every login path. When RequiresTwoFactor is set
// only ChallengeToken is populated.
type AuthResult struct {
	User              *db.User            `json:"user,omitempty"`
	Token             string              `json:"token,omitempty"`
	ExpiresAt         *time.Time          `json:"expires_at,omitempty"`
	RequiresTwoFactor bool                `json:"requires_two_factor,omitempty"`
	TwoFactorMethod   db.TwoFactorMethod  `json:"two_factor_method,omitempty"`
	ChallengeToken    string              `json:"challenge_token,omitempty"`
	Organization      *authz.Organization `json:"organization,omitempty"`
}

// registrationRole resolves the requested self-service role. Privileged
// roles are never available here.
func registrationRole(name string) (authz.Role, error) {
	if strings.TrimSpace(name) == "" {
		return authz.RoleBeneficiary, nil
	}
	role, err := authz.ParseRole(name)
	if err != nil || role.Privileged() {
		return 0, fmt.Errorf("%w: role must be worker, volunteer or beneficiary", authz.ErrInvalidInput)
	}
	return role, nil
}

func newUser(req RegisterRequest) (*db.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", authz.ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", authz.ErrInvalidInput, minPasswordLength)
	}
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, fmt.Errorf("%w: full_name is required", authz.ErrInvalidInput)
	}
	phone := strings.TrimSpace(req.Phone)
	if phone != "" && !ValidPhone(phone) {
		return nil, fmt.Errorf("%w: phone must match +213XXXXXXXXX", authz.ErrInvalidInput)
	}
	if err := validateCoordinates(req.Latitude, req.Longitude); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return &db.User{
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		FullName:     name,
		Location:     req.Location,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
	}, nil
}

// Register creates a user with one self-service role (beneficiary by default)
// and signs them in.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	role, err := registrationRole(req.Role)
	if err != nil {
		return nil, err
	}
	u, err := newUser(req)
	if err != nil {
		return nil, err
	}
	if s.users.EmailExists(ctx, u.Email) {
		return nil, fmt.Errorf("%w: email already registered", authz.ErrAlreadyExists)
	}

	if err := s.users.Create(ctx, u, role); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID), zap.Stringer("role", role))
	return s.issue(u)
}

// RegisterOrganization creates a user together with an organization they
// administer. The user is removed again if the organization cannot be created.
func (s *AuthService) RegisterOrganization(ctx context.Context, req RegisterOrganizationRequest) (*AuthResult, error) {
	if strings.TrimSpace(req.Organization.Name) == "" {
		return nil, fmt.Errorf("%w: organization name is required", authz.ErrInvalidInput)
	}
	u, err := newUser(req.RegisterRequest)
	if err != nil {
		return nil, err
	}
	if s.users.EmailExists(ctx, u.Email) {
		return nil, fmt.Errorf("%w: email already registered", authz.ErrAlreadyExists)
	}

	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	org, err := s.orgs.CreateOrg(ctx, authz.Identity{UserID: u.ID, Email: u.Email}, req.Organization)
	if err != nil {
		if delErr := s.users.Delete(ctx, u.ID); delErr != nil {
			s.logger.Error("failed to roll back user after organization failure",
				zap.String("user_id", u.ID), zap.Error(delErr))
		}
		return nil, err
	}

	u.Roles = []authz.Role{authz.RoleAdmin}
	result, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	result.Organization = org
	return result, nil
}

// Login checks the password. Users with 2FA enabled get a challenge token
// to exchange through CompleteTwoFactorLogin.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if errors.Is(err, authz.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	if u.TwoFactorEnabled {
		if u.TwoFactorMethod == db.TwoFactorSMS {
			if err := s.twoFactor.SendCode(ctx, u.ID); err != nil {
				return nil, fmt.Errorf("failed to send verification code: %w", err)
			}
		}
		challenge, _, err := s.tokens.IssueChallenge(u.ID)
		if err != nil {
			return nil, err
		}
		return &AuthResult{
			RequiresTwoFactor: true,
			TwoFactorMethod:   u.TwoFactorMethod,
			ChallengeToken:    challenge,
		}, nil
	}

	return s.completeLogin(ctx, u)
}

// CompleteTwoFactorLogin exchanges a challenge token and a valid code for an
// access token.
func (s *AuthService) CompleteTwoFactorLogin(ctx context.Context, req TwoFactorLoginRequest) (*AuthResult, error) {
	userID, err := s.tokens.ValidateChallenge(req.ChallengeToken)
	if err != nil {
		return nil, err
	}
	if err := s.twoFactor.Verify(ctx, userID, req.Code); err != nil {
		if errors.Is(err, ErrInvalidCode) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, err
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.completeLogin(ctx, u)
}

func (s *AuthService) completeLogin(ctx context.Context, u *db.User) (*AuthResult, error) {
	if err := s.users.TouchLastLogin(ctx, u.ID); err != nil {
		s.logger.Warn("failed to record last login", zap.String("user_id", u.ID), zap.Error(err))
	}
	return s.issue(u)
}

func (s *AuthService) issue(u *db.User) (*AuthResult, error) {
	token, exp, err := s.tokens.IssueAccess(u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Token: token, ExpiresAt: &exp}, nil
}

// Authenticate validates an access token and returns the caller's identity
func (s *AuthService) Authenticate(token string) (authz.Identity, error) {
	claims, err := s.tokens.ValidateAccess(token)
	if err != nil {
		return authz.Identity{}, err
	}
	return authz.Identity{UserID: claims.Subject, Email: claims.Email}, nil
}
