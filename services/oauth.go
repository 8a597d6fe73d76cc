package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/moxer-mmh/Tweeza/authz"
	"github.com/moxer-mmh/Tweeza/db"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"

	oauthStateTTL = 10 * time.Minute
)

// ErrInvalidState is returned when the OAuth state is unknown, expired or reused
var ErrInvalidState = fmt.Errorf("%w: invalid or expired oauth state", ErrUnauthorized)

// OAuthProvider couples the oauth2 config with the profile endpoint
type OAuthProvider struct {
	Config     *oauth2.Config
	ProfileURL string

	// RequireVerifiedEmail refuses profiles whose email the provider has
	// not verified. Facebook only returns confirmed emails; Google says so
	// explicitly with verified_email.
	RequireVerifiedEmail bool
}

// OAuthProfile is the provider's view of the user
type OAuthProfile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	VerifiedEmail bool   `json:"verified_email"`
}

func GoogleProvider(clientID, clientSecret, redirectURL string) OAuthProvider {
	return OAuthProvider{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		ProfileURL:           "https://www.googleapis.com/oauth2/v2/userinfo",
		RequireVerifiedEmail: true,
	}
}

func FacebookProvider(clientID, clientSecret, redirectURL string) OAuthProvider {
	return OAuthProvider{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"email", "public_profile"},
			Endpoint:     facebook.Endpoint,
		},
		ProfileURL: "https://graph.facebook.com/me?fields=id,name,email",
	}
}

type OAuthService struct {
	providers map[string]OAuthProvider
	store     KeyValueStore
	users     UserRepository
	tokens    *TokenProvider
	logger    *zap.Logger
}

func NewOAuthService(providers map[string]OAuthProvider, store KeyValueStore, users UserRepository, tokens *TokenProvider, logger *zap.Logger) *OAuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuthService{providers: providers, store: store, users: users, tokens: tokens, logger: logger}
}

func oauthStateKey(state string) string { return "oauth:state:" + state }

func (s *OAuthService) provider(name string) (OAuthProvider, error) {
	p, ok := s.providers[strings.ToLower(name)]
	if !ok {
		return OAuthProvider{}, fmt.Errorf("%w: unsupported oauth provider %q", authz.ErrInvalidInput, name)
	}
	return p, nil
}

// AuthURL returns the provider consent URL with a fresh single-use state
func (s *OAuthService) AuthURL(ctx context.Context, providerName string) (string, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return "", err
	}
	state := uuid.New().String()
	if err := s.store.Set(ctx, oauthStateKey(state), strings.ToLower(providerName), oauthStateTTL); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	return p.Config.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Callback consumes the state, exchanges the code and signs the user in
func (s *OAuthService) Callback(ctx context.Context, providerName, state, code string) (*AuthResult, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	stored, err := s.store.Take(ctx, oauthStateKey(state))
	if errors.Is(err, ErrKeyNotFound) || (err == nil && stored != strings.ToLower(providerName)) {
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, err
	}

	token, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange failed: %v", ErrUnauthorized, err)
	}
	return s.signIn(ctx, providerName, p, token)
}

// LoginWithToken signs in with an access token obtained by a mobile client
func (s *OAuthService) LoginWithToken(ctx context.Context, providerName, accessToken string) (*AuthResult, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}
	if accessToken == "" {
		return nil, fmt.Errorf("%w: access_token is required", authz.ErrInvalidInput)
	}
	return s.signIn(ctx, providerName, p, &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
}

func (s *OAuthService) signIn(ctx context.Context, providerName string, p OAuthProvider, token *oauth2.Token) (*AuthResult, error) {
	profile, err := fetchProfile(ctx, p, token)
	if err != nil {
		return nil, err
	}

	u, err := s.resolveUser(ctx, strings.ToLower(providerName), p, profile, token)
	if err != nil {
		return nil, err
	}
	if err := s.users.TouchLastLogin(ctx, u.ID); err != nil {
		s.logger.Warn("failed to record last login", zap.String("user_id", u.ID), zap.Error(err))
	}

	access, exp, err := s.tokens.IssueAccess(u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Token: access, ExpiresAt: &exp}, nil
}

// resolveUser finds the user by connection, then by email (linking the
// connection), and otherwise creates a beneficiary account. Email matching
// and account creation need an email the provider has verified.
func (s *OAuthService) resolveUser(ctx context.Context, provider string, p OAuthProvider, profile *OAuthProfile, token *oauth2.Token) (*db.User, error) {
	conn := &db.OAuthConnection{
		Provider:       provider,
		ProviderUserID: profile.ID,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		exp := token.Expiry
		conn.ExpiresAt = &exp
	}

	u, err := s.users.GetByOAuth(ctx, provider, profile.ID)
	if err == nil {
		conn.UserID = u.ID
		return u, s.users.LinkOAuth(ctx, conn)
	}
	if !errors.Is(err, authz.ErrNotFound) {
		return nil, err
	}

	if profile.Email == "" {
		return nil, fmt.Errorf("%w: %s did not share an email address", authz.ErrInvalidInput, provider)
	}
	if p.RequireVerifiedEmail && !profile.VerifiedEmail {
		return nil, fmt.Errorf("%w: %s email address is not verified", ErrUnauthorized, provider)
	}

	u, err = s.users.GetByEmail(ctx, profile.Email)
	switch {
	case err == nil:
	case errors.Is(err, authz.ErrNotFound):
		u = &db.User{
			Email:    strings.ToLower(profile.Email),
			FullName: displayName(profile),
		}
		if err := s.users.Create(ctx, u, authz.RoleBeneficiary); err != nil {
			return nil, err
		}
		s.logger.Info("user created from oauth", zap.String("user_id", u.ID), zap.String("provider", provider))
	default:
		return nil, err
	}

	conn.UserID = u.ID
	if err := s.users.LinkOAuth(ctx, conn); err != nil {
		return nil, err
	}
	return u, nil
}

func fetchProfile(ctx context.Context, p OAuthProvider, token *oauth2.Token) (*OAuthProfile, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ProfileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch oauth profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: profile request returned %d", ErrUnauthorized, resp.StatusCode)
	}

	var profile OAuthProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode oauth profile: %w", err)
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("%w: profile has no id", ErrUnauthorized)
	}
	return &profile, nil
}

// displayName falls back to the title-cased local part of the email
func displayName(p *OAuthProfile) string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(p.Email, "@")
	local = strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(local)
	return cases.Title(language.Und).String(strings.ToLower(local))
}
