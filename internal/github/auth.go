package github

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthProvider defines the interface for GitHub authentication
type AuthProvider interface {
	GetInstallationToken(repo string) (*InstallationToken, error)
}

// InstallationToken represents a GitHub App installation access token
type InstallationToken struct {
	Token     string
	ExpiresAt time.Time
}

// AppAuth authenticates as a GitHub App and mints installation tokens.
// Tokens are cached per repository until shortly before expiry, so the
// plan and apply stages of one pull request share a token instead of
// hitting the App endpoints on every step.
type AppAuth struct {
	AppID      string
	PrivateKey string
	BaseURL    string // defaults to https://api.github.com

	mu    sync.Mutex
	cache map[string]*InstallationToken
}

const tokenExpiryMargin = 2 * time.Minute

// GetInstallationToken returns a valid installation access token for the
// repository, reusing a cached one when it has not expired.
func (a *AppAuth) GetInstallationToken(repo string) (*InstallationToken, error) {
	a.mu.Lock()
	if tok, ok := a.cache[repo]; ok && time.Until(tok.ExpiresAt) > tokenExpiryMargin {
		a.mu.Unlock()
		return tok, nil
	}
	a.mu.Unlock()

	jwtToken, err := a.generateJWT()
	if err != nil {
		return nil, err
	}

	installationID, err := a.lookupInstallationID(jwtToken, repo)
	if err != nil {
		return nil, err
	}

	tok, err := a.createAccessToken(jwtToken, installationID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.cache == nil {
		a.cache = make(map[string]*InstallationToken)
	}
	a.cache[repo] = tok
	a.mu.Unlock()

	return tok, nil
}

// generateJWT creates the short-lived App JWT used for installation lookups
func (a *AppAuth) generateJWT() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(a.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	appID, err := strconv.ParseInt(a.AppID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid app ID: %w", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(appID, 10),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	return signed, nil
}

func (a *AppAuth) baseURL() string {
	if a.BaseURL != "" {
		return strings.TrimSuffix(a.BaseURL, "/")
	}
	return "https://api.github.com"
}

// appAPI performs one authenticated request against the App endpoints
func (a *AppAuth) appAPI(method, path, jwtToken string, wantStatus int, out interface{}) error {
	req, err := http.NewRequest(method, a.baseURL()+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GitHub API error: %d - %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// lookupInstallationID retrieves the App installation id for a repository
func (a *AppAuth) lookupInstallationID(jwtToken, repo string) (int64, error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid repo format: %s (expected owner/repo)", repo)
	}

	var result struct {
		ID int64 `json:"id"`
	}
	path := fmt.Sprintf("/repos/%s/%s/installation", parts[0], parts[1])
	if err := a.appAPI(http.MethodGet, path, jwtToken, http.StatusOK, &result); err != nil {
		return 0, err
	}

	return result.ID, nil
}

// createAccessToken mints an installation access token
func (a *AppAuth) createAccessToken(jwtToken string, installationID int64) (*InstallationToken, error) {
	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	path := fmt.Sprintf("/app/installations/%d/access_tokens", installationID)
	if err := a.appAPI(http.MethodPost, path, jwtToken, http.StatusCreated, &result); err != nil {
		return nil, err
	}

	return &InstallationToken{Token: result.Token, ExpiresAt: result.ExpiresAt}, nil
}

// StaticTokenAuth satisfies AuthProvider with a fixed token. Used when the
// service runs with a PAT instead of App credentials.
type StaticTokenAuth struct {
	Token string
}

// GetInstallationToken returns the fixed token with a far-future expiry
func (s *StaticTokenAuth) GetInstallationToken(string) (*InstallationToken, error) {
	if s.Token == "" {
		return nil, fmt.Errorf("no token configured")
	}
	return &InstallationToken{Token: s.Token, ExpiresAt: time.Now().Add(24 * time.Hour)}, nil
}
