package tenant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	// ErrDomainNotFound is returned when no portal domain is bound to a number.
	ErrDomainNotFound = errors.New("tenant: domain not found for number")
	// ErrCredentialsNotFound is returned when a bound domain has no stored credentials.
	ErrCredentialsNotFound = errors.New("tenant: credentials not found for domain")

	schemeRe = regexp.MustCompile(`^https?://`)
)

// AuthToken is the OAuth token triple stored per portal.
type AuthToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Expires      int64  `json:"expires"`
}

// ExpiresAt returns the token expiry as a time.
func (t AuthToken) ExpiresAt() time.Time {
	return time.Unix(t.Expires, 0)
}

// Credentials is one persisted credential record. Records are keyed by
// "{domain}_{member_id}"; MemberID is derived from the key and not part
// of the serialized record.
type Credentials struct {
	AuthToken        AuthToken `json:"auth_token"`
	DomainURL        string    `json:"domain_url"`
	ApplicationToken string    `json:"application_token"`
	MemberID         string    `json:"-"`
}

// Key returns the store key for the record.
func (c Credentials) Key() string {
	return fmt.Sprintf("%s_%s", c.DomainURL, c.MemberID)
}

// Tenant is a resolved portal: the domain bound to a destination number
// plus its active credential record.
type Tenant struct {
	Domain      string
	Credentials Credentials
}

// NormalizeDomain strips an optional scheme prefix from a portal domain.
func NormalizeDomain(domain string) string {
	return schemeRe.ReplaceAllString(domain, "")
}

// BindingStore persists the phone→domain map. Numbers are keyed exactly
// as submitted; lookups are exact-string matches.
type BindingStore interface {
	Bind(ctx context.Context, numbers []string, domain string) error
	DomainFor(ctx context.Context, number string) (string, error)
	All(ctx context.Context) (map[string]string, error)
}

// CredentialStore persists per-portal OAuth credentials. Save merges on
// write: unrelated records are preserved. UpdateToken replaces only the
// auth token of an existing record, atomically with respect to
// concurrent readers.
type CredentialStore interface {
	Save(ctx context.Context, creds Credentials) error
	ByDomain(ctx context.Context, domain string) (*Credentials, error)
	UpdateToken(ctx context.Context, domain, memberID string, token AuthToken) error
	Expiring(ctx context.Context, within time.Duration) ([]Credentials, error)
}
