package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/b24bridge/smsbridge/pkg/logging"
)

// Querier is the subset of pgxpool.Pool the store needs. Tests substitute
// a pgxmock pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists bindings and credentials in two tables. Upserts
// give the same merge-on-write and atomic-refresh semantics the file
// store provides with its rename dance.
type PostgresStore struct {
	db     Querier
	logger *logging.Logger
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(db Querier, logger *logging.Logger) *PostgresStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// EnsureSchema creates the two tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS phone_bindings (
			phone_number TEXT PRIMARY KEY,
			domain_url   TEXT NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS tenant_credentials (
			domain_url        TEXT NOT NULL,
			member_id         TEXT NOT NULL,
			access_token      TEXT NOT NULL,
			refresh_token     TEXT NOT NULL,
			expires           BIGINT NOT NULL DEFAULT 0,
			application_token TEXT,
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (domain_url, member_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("tenant: ensure schema: %w", err)
		}
	}
	return nil
}

// Bind upserts each number→domain pair, last write wins per number.
func (s *PostgresStore) Bind(ctx context.Context, numbers []string, domain string) error {
	domain = NormalizeDomain(domain)
	query := `
		INSERT INTO phone_bindings (phone_number, domain_url, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (phone_number) DO UPDATE SET
			domain_url = EXCLUDED.domain_url,
			updated_at = NOW()
	`
	for _, number := range numbers {
		number = strings.TrimSpace(number)
		if number == "" {
			continue
		}
		if _, err := s.db.Exec(ctx, query, number, domain); err != nil {
			return fmt.Errorf("tenant: bind number: %w", err)
		}
		s.logger.Info("number bound", "number", number, "domain", domain)
	}
	return nil
}

// DomainFor resolves a number to its bound domain by exact match.
func (s *PostgresStore) DomainFor(ctx context.Context, number string) (string, error) {
	var domain string
	query := `SELECT domain_url FROM phone_bindings WHERE phone_number = $1`
	err := s.db.QueryRow(ctx, query, number).Scan(&domain)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrDomainNotFound
	}
	if err != nil {
		return "", fmt.Errorf("tenant: binding lookup: %w", err)
	}
	return domain, nil
}

// All returns the full binding map.
func (s *PostgresStore) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.Query(ctx, `SELECT phone_number, domain_url FROM phone_bindings ORDER BY phone_number`)
	if err != nil {
		return nil, fmt.Errorf("tenant: list bindings: %w", err)
	}
	defer rows.Close()

	bindings := map[string]string{}
	for rows.Next() {
		var number, domain string
		if err := rows.Scan(&number, &domain); err != nil {
			return nil, fmt.Errorf("tenant: scan binding row: %w", err)
		}
		bindings[number] = domain
	}
	return bindings, rows.Err()
}

// Save upserts one credential record keyed by (domain_url, member_id).
func (s *PostgresStore) Save(ctx context.Context, creds Credentials) error {
	creds.DomainURL = NormalizeDomain(creds.DomainURL)
	query := `
		INSERT INTO tenant_credentials (
			domain_url, member_id, access_token, refresh_token, expires, application_token, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (domain_url, member_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires = EXCLUDED.expires,
			application_token = COALESCE(NULLIF(EXCLUDED.application_token, ''), tenant_credentials.application_token),
			updated_at = NOW()
	`
	_, err := s.db.Exec(ctx, query,
		creds.DomainURL,
		creds.MemberID,
		creds.AuthToken.AccessToken,
		creds.AuthToken.RefreshToken,
		creds.AuthToken.Expires,
		creds.ApplicationToken,
	)
	if err != nil {
		return fmt.Errorf("tenant: save credentials: %w", err)
	}
	s.logger.Info("credentials saved", "domain", creds.DomainURL, "member_id", creds.MemberID)
	return nil
}

// ByDomain returns the credential record for a domain.
func (s *PostgresStore) ByDomain(ctx context.Context, domain string) (*Credentials, error) {
	query := `
		SELECT domain_url, member_id, access_token, refresh_token, expires, COALESCE(application_token, '')
		FROM tenant_credentials
		WHERE domain_url = $1
		LIMIT 1
	`
	var creds Credentials
	err := s.db.QueryRow(ctx, query, domain).Scan(
		&creds.DomainURL,
		&creds.MemberID,
		&creds.AuthToken.AccessToken,
		&creds.AuthToken.RefreshToken,
		&creds.AuthToken.Expires,
		&creds.ApplicationToken,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenant: credential lookup: %w", err)
	}
	return &creds, nil
}

// UpdateToken replaces the auth token of an existing record. A missing
// record is not an error; the renewed token is dropped.
func (s *PostgresStore) UpdateToken(ctx context.Context, domain, memberID string, token AuthToken) error {
	domain = NormalizeDomain(domain)
	query := `
		UPDATE tenant_credentials
		SET access_token = $3, refresh_token = $4, expires = $5, updated_at = NOW()
		WHERE domain_url = $1 AND member_id = $2
	`
	tag, err := s.db.Exec(ctx, query, domain, memberID, token.AccessToken, token.RefreshToken, token.Expires)
	if err != nil {
		return fmt.Errorf("tenant: update token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Warn("token renewed for unknown record", "domain", domain, "member_id", memberID)
		return nil
	}
	s.logger.Info("auth token updated", "domain", domain, "member_id", memberID, "expires", token.Expires)
	return nil
}

// Expiring returns records whose token expires within the window.
func (s *PostgresStore) Expiring(ctx context.Context, within time.Duration) ([]Credentials, error) {
	query := `
		SELECT domain_url, member_id, access_token, refresh_token, expires, COALESCE(application_token, '')
		FROM tenant_credentials
		WHERE expires < $1
		ORDER BY expires ASC
	`
	threshold := time.Now().Add(within).Unix()
	rows, err := s.db.Query(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("tenant: query expiring credentials: %w", err)
	}
	defer rows.Close()

	var out []Credentials
	for rows.Next() {
		var creds Credentials
		if err := rows.Scan(
			&creds.DomainURL,
			&creds.MemberID,
			&creds.AuthToken.AccessToken,
			&creds.AuthToken.RefreshToken,
			&creds.AuthToken.Expires,
			&creds.ApplicationToken,
		); err != nil {
			return nil, fmt.Errorf("tenant: scan credentials row: %w", err)
		}
		out = append(out, creds)
	}
	return out, rows.Err()
}

var (
	_ BindingStore    = (*PostgresStore)(nil)
	_ CredentialStore = (*PostgresStore)(nil)
)
