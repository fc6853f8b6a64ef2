package bitrix

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/b24bridge/smsbridge/internal/tenant"
	"github.com/b24bridge/smsbridge/pkg/logging"
)

// OAuth refreshes portal access tokens against the Bitrix24 OAuth server
// using the application profile.
type OAuth struct {
	clientID     string
	clientSecret string
	baseURL      string
	httpClient   *http.Client
	logger       *logging.Logger
}

// NewOAuth creates a token refresher. baseURL defaults to the public
// Bitrix24 OAuth server when empty.
func NewOAuth(clientID, clientSecret, baseURL string, logger *logging.Logger) *OAuth {
	if logger == nil {
		logger = logging.Default()
	}
	if baseURL == "" {
		baseURL = "https://oauth.bitrix.info"
	}
	return &OAuth{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: defaultTimeout},
		logger:       logger,
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	Expires          int64  `json:"expires"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Refresh exchanges a refresh token for a renewed token pair.
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (tenant.AuthToken, error) {
	if strings.TrimSpace(o.clientID) == "" || strings.TrimSpace(o.clientSecret) == "" {
		return tenant.AuthToken{}, fmt.Errorf("bitrix: oauth profile not configured")
	}

	query := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {o.clientID},
		"client_secret": {o.clientSecret},
		"refresh_token": {refreshToken},
	}
	refreshURL := fmt.Sprintf("%s/oauth/token/?%s", o.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, refreshURL, nil)
	if err != nil {
		return tenant.AuthToken{}, fmt.Errorf("bitrix: create refresh request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return tenant.AuthToken{}, fmt.Errorf("bitrix: refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tenant.AuthToken{}, fmt.Errorf("bitrix: read refresh response: %w", err)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return tenant.AuthToken{}, fmt.Errorf("bitrix: parse refresh response: %w", err)
	}
	if tok.Error != "" {
		o.logger.Error("token refresh rejected", "error", tok.Error, "description", tok.ErrorDescription)
		return tenant.AuthToken{}, fmt.Errorf("bitrix: token refresh: %s", tok.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return tenant.AuthToken{}, fmt.Errorf("bitrix: token refresh: status %d", resp.StatusCode)
	}

	expires := tok.Expires
	if expires == 0 {
		expires = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second).Unix()
	}
	return tenant.AuthToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expires:      expires,
	}, nil
}
