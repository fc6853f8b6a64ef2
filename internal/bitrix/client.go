package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/b24bridge/smsbridge/internal/crm"
	"github.com/b24bridge/smsbridge/internal/tenant"
	"github.com/b24bridge/smsbridge/pkg/logging"
)

const defaultTimeout = 20 * time.Second

// TokenRenewedHook is invoked after a successful token refresh so the
// caller can write the renewed token through the credential store.
type TokenRenewedHook func(ctx context.Context, domain, memberID string, token tenant.AuthToken)

// Client talks to one Bitrix24 portal over its REST API using OAuth
// tokens. An expired access token is refreshed transparently once per
// call and the renewed token is handed to the hook.
type Client struct {
	domain     string
	memberID   string
	httpClient *http.Client
	oauth      *OAuth
	onRenewed  TokenRenewedHook
	logger     *logging.Logger

	baseURL string

	mu    sync.Mutex
	token tenant.AuthToken
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the portal base URL, used in tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient builds a client for the resolved tenant.
func NewClient(t *tenant.Tenant, oauth *OAuth, onRenewed TokenRenewedHook, logger *logging.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if t == nil || strings.TrimSpace(t.Domain) == "" {
		return nil, errors.New("bitrix: missing portal domain")
	}
	if strings.TrimSpace(t.Credentials.AuthToken.AccessToken) == "" {
		return nil, errors.New("bitrix: missing access token")
	}
	c := &Client{
		domain:     t.Domain,
		memberID:   t.Credentials.MemberID,
		token:      t.Credentials.AuthToken,
		httpClient: &http.Client{Timeout: defaultTimeout},
		oauth:      oauth,
		onRenewed:  onRenewed,
		logger:     logger,
		baseURL:    "https://" + t.Domain,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Domain returns the portal domain the client is bound to.
func (c *Client) Domain() string {
	return c.domain
}

// apiError is a REST-level error returned inside the response envelope.
type apiError struct {
	Code        string
	Description string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("bitrix: api error %s: %s", e.Code, e.Description)
}

func (e *apiError) tokenExpired() bool {
	switch e.Code {
	case "expired_token", "invalid_token":
		return true
	default:
		return false
	}
}

type envelope struct {
	Result           json.RawMessage `json:"result"`
	Total            int             `json:"total"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// call performs one REST method invocation, refreshing the access token
// and retrying once when the portal reports it expired.
func (c *Client) call(ctx context.Context, method string, params map[string]any, out any) error {
	err := c.doCall(ctx, method, params, out)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.tokenExpired() && c.oauth != nil {
		c.logger.Info("access token expired, refreshing", "domain", c.domain, "method", method)
		if refreshErr := c.refreshToken(ctx); refreshErr != nil {
			return fmt.Errorf("bitrix: refresh after %s: %w", apiErr.Code, refreshErr)
		}
		return c.doCall(ctx, method, params, out)
	}
	return err
}

func (c *Client) doCall(ctx context.Context, method string, params map[string]any, out any) error {
	c.mu.Lock()
	accessToken := c.token.AccessToken
	c.mu.Unlock()

	payload := make(map[string]any, len(params)+1)
	for k, v := range params {
		payload[k] = v
	}
	payload["auth"] = accessToken

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bitrix: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/rest/%s.json", c.baseURL, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("bitrix: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bitrix: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bitrix: read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return fmt.Errorf("bitrix: status %d: unmarshal response: %s", resp.StatusCode, msg)
	}
	if env.Error != "" {
		return &apiError{Code: env.Error, Description: env.ErrorDescription}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bitrix: status %d calling %s", resp.StatusCode, method)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("bitrix: unmarshal result of %s: %w", method, err)
		}
	}
	return nil
}

func (c *Client) refreshToken(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := c.token.RefreshToken
	c.mu.Unlock()

	renewed, err := c.oauth.Refresh(ctx, refreshToken)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.token = renewed
	c.mu.Unlock()

	if c.onRenewed != nil {
		c.onRenewed(ctx, c.domain, c.memberID, renewed)
	}
	return nil
}

// ListContacts searches contacts by phone value, one unpaged page.
func (c *Client) ListContacts(ctx context.Context, filter crm.ContactFilter) ([]crm.Contact, error) {
	params := map[string]any{
		"order":  map[string]string{},
		"filter": map[string]any{"PHONE": filter.Phone},
		"select": []string{"ID", "NAME", "LAST_NAME", "PHONE", "ASSIGNED_BY_ID"},
		"start":  0,
	}
	var contacts []crm.Contact
	if err := c.call(ctx, "crm.contact.list", params, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// ListLeads searches a contact's leads by status set, newest first.
func (c *Client) ListLeads(ctx context.Context, filter crm.LeadFilter) ([]crm.Lead, error) {
	where := map[string]any{"CONTACT_ID": filter.ContactID}
	if len(filter.StatusIDs) > 0 {
		where["STATUS_ID"] = filter.StatusIDs
	}
	params := map[string]any{
		"order":  map[string]string{"DATE_CREATE": "DESC"},
		"filter": where,
		"select": []string{"ID", "TITLE", "DATE_CREATE", "STATUS_ID"},
		"start":  0,
	}
	var leads []crm.Lead
	if err := c.call(ctx, "crm.lead.list", params, &leads); err != nil {
		return nil, err
	}
	return leads, nil
}

// ListDeals searches a contact's deals by stage semantics, newest first.
func (c *Client) ListDeals(ctx context.Context, filter crm.DealFilter) ([]crm.Deal, error) {
	where := map[string]any{"CONTACT_ID": filter.ContactID}
	if filter.StageSemanticID != "" {
		where["STAGE_SEMANTIC_ID"] = filter.StageSemanticID
	}
	params := map[string]any{
		"order":  map[string]string{"DATE_CREATE": "DESC"},
		"filter": where,
		"select": []string{"ID", "TITLE", "DATE_CREATE", "STAGE_ID", "STAGE_SEMANTIC_ID"},
		"start":  0,
	}
	var deals []crm.Deal
	if err := c.call(ctx, "crm.deal.list", params, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}

// ListStatuses returns the portal's lead status dictionary.
func (c *Client) ListStatuses(ctx context.Context) ([]crm.Status, error) {
	params := map[string]any{
		"filter": map[string]any{"ENTITY_ID": "STATUS"},
	}
	var statuses []crm.Status
	if err := c.call(ctx, "crm.status.list", params, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// ListTimelineComments returns the comments on an entity's timeline.
func (c *Client) ListTimelineComments(ctx context.Context, kind crm.EntityKind, entityID string) ([]crm.TimelineComment, error) {
	params := map[string]any{
		"filter": map[string]any{"ENTITY_ID": entityID, "ENTITY_TYPE": string(kind)},
		"select": []string{"ID", "COMMENT"},
	}
	var comments []crm.TimelineComment
	if err := c.call(ctx, "crm.timeline.comment.list", params, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// AddTimelineComment appends a comment to an entity's timeline.
func (c *Client) AddTimelineComment(ctx context.Context, kind crm.EntityKind, entityID, comment string) error {
	params := map[string]any{
		"fields": map[string]any{
			"ENTITY_ID":   entityID,
			"ENTITY_TYPE": string(kind),
			"COMMENT":     comment,
		},
	}
	return c.call(ctx, "crm.timeline.comment.add", params, nil)
}

// Notify sends an instant system notification to a portal user.
func (c *Client) Notify(ctx context.Context, userID int, message string) error {
	params := map[string]any{
		"USER_ID": userID,
		"MESSAGE": message,
	}
	return c.call(ctx, "im.notify.system.add", params, nil)
}

var _ crm.Client = (*Client)(nil)
