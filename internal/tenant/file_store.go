package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/b24bridge/smsbridge/pkg/logging"
)

// FileStore persists bindings and credentials as JSON files, matching
// the on-disk layout the bridge has always used: a flat
// {number: domain} object and a {"{domain}_{member_id}": record} object.
// All read-modify-write cycles happen under a per-store mutex and land
// on disk via a temp-file rename, so concurrent webhook deliveries see
// either the pre- or post-write state, never a torn file.
type FileStore struct {
	bindingsPath string
	credsPath    string
	logger       *logging.Logger

	bindingsMu sync.Mutex
	credsMu    sync.Mutex
}

// NewFileStore creates a store over the two JSON files. Parent
// directories are created on demand.
func NewFileStore(bindingsPath, credsPath string, logger *logging.Logger) *FileStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &FileStore{
		bindingsPath: bindingsPath,
		credsPath:    credsPath,
		logger:       logger,
	}
}

// Bind persists each number→domain pair. Numbers are stored exactly as
// submitted after trimming; empty entries are skipped. Existing keys for
// other numbers are preserved, rebinding a number overwrites it.
func (s *FileStore) Bind(ctx context.Context, numbers []string, domain string) error {
	domain = NormalizeDomain(domain)
	s.bindingsMu.Lock()
	defer s.bindingsMu.Unlock()

	bindings, err := readJSONFile[map[string]string](s.bindingsPath)
	if err != nil {
		return fmt.Errorf("tenant: read bindings: %w", err)
	}
	if bindings == nil {
		bindings = map[string]string{}
	}
	for _, number := range numbers {
		number = strings.TrimSpace(number)
		if number == "" {
			continue
		}
		bindings[number] = domain
		s.logger.Info("number bound", "number", number, "domain", domain)
	}
	if err := writeJSONFile(s.bindingsPath, bindings); err != nil {
		return fmt.Errorf("tenant: write bindings: %w", err)
	}
	return nil
}

// DomainFor returns the domain bound to the number, by exact string match.
func (s *FileStore) DomainFor(ctx context.Context, number string) (string, error) {
	s.bindingsMu.Lock()
	defer s.bindingsMu.Unlock()

	bindings, err := readJSONFile[map[string]string](s.bindingsPath)
	if err != nil {
		return "", fmt.Errorf("tenant: read bindings: %w", err)
	}
	domain, ok := bindings[number]
	if !ok {
		return "", ErrDomainNotFound
	}
	return domain, nil
}

// All returns a copy of the current binding map.
func (s *FileStore) All(ctx context.Context) (map[string]string, error) {
	s.bindingsMu.Lock()
	defer s.bindingsMu.Unlock()

	bindings, err := readJSONFile[map[string]string](s.bindingsPath)
	if err != nil {
		return nil, fmt.Errorf("tenant: read bindings: %w", err)
	}
	if bindings == nil {
		bindings = map[string]string{}
	}
	return bindings, nil
}

// Save writes the credential record under "{domain}_{member_id}",
// preserving every other record in the file.
func (s *FileStore) Save(ctx context.Context, creds Credentials) error {
	creds.DomainURL = NormalizeDomain(creds.DomainURL)
	s.credsMu.Lock()
	defer s.credsMu.Unlock()

	records, err := readJSONFile[map[string]Credentials](s.credsPath)
	if err != nil {
		return fmt.Errorf("tenant: read credentials: %w", err)
	}
	if records == nil {
		records = map[string]Credentials{}
	}
	records[creds.Key()] = creds
	if err := writeJSONFile(s.credsPath, records); err != nil {
		return fmt.Errorf("tenant: write credentials: %w", err)
	}
	s.logger.Info("credentials saved", "domain", creds.DomainURL, "member_id", creds.MemberID)
	return nil
}

// ByDomain scans records for one whose domain_url matches. Linear scan;
// tenant cardinality is expected to stay small.
func (s *FileStore) ByDomain(ctx context.Context, domain string) (*Credentials, error) {
	s.credsMu.Lock()
	defer s.credsMu.Unlock()

	records, err := readJSONFile[map[string]Credentials](s.credsPath)
	if err != nil {
		return nil, fmt.Errorf("tenant: read credentials: %w", err)
	}
	for key, record := range records {
		if record.DomainURL != domain {
			continue
		}
		record.MemberID = memberIDFromKey(key, record.DomainURL)
		return &record, nil
	}
	return nil, ErrCredentialsNotFound
}

// UpdateToken replaces the auth token of an existing record. Missing
// records are left untouched, mirroring how a renewed token for an
// uninstalled portal is simply dropped.
func (s *FileStore) UpdateToken(ctx context.Context, domain, memberID string, token AuthToken) error {
	domain = NormalizeDomain(domain)
	s.credsMu.Lock()
	defer s.credsMu.Unlock()

	records, err := readJSONFile[map[string]Credentials](s.credsPath)
	if err != nil {
		return fmt.Errorf("tenant: read credentials: %w", err)
	}
	key := fmt.Sprintf("%s_%s", domain, memberID)
	record, ok := records[key]
	if !ok {
		s.logger.Warn("token renewed for unknown record", "domain", domain, "member_id", memberID)
		return nil
	}
	record.AuthToken = token
	records[key] = record
	if err := writeJSONFile(s.credsPath, records); err != nil {
		return fmt.Errorf("tenant: write credentials: %w", err)
	}
	s.logger.Info("auth token updated", "domain", domain, "member_id", memberID, "expires", token.Expires)
	return nil
}

// Expiring returns records whose token expires within the window.
func (s *FileStore) Expiring(ctx context.Context, within time.Duration) ([]Credentials, error) {
	s.credsMu.Lock()
	defer s.credsMu.Unlock()

	records, err := readJSONFile[map[string]Credentials](s.credsPath)
	if err != nil {
		return nil, fmt.Errorf("tenant: read credentials: %w", err)
	}
	threshold := time.Now().Add(within)
	var out []Credentials
	for key, record := range records {
		if record.AuthToken.ExpiresAt().After(threshold) {
			continue
		}
		record.MemberID = memberIDFromKey(key, record.DomainURL)
		out = append(out, record)
	}
	return out, nil
}

func memberIDFromKey(key, domain string) string {
	return strings.TrimPrefix(key, domain+"_")
}

func readJSONFile[T any](path string) (T, error) {
	var out T
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}

func writeJSONFile(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

var (
	_ BindingStore    = (*FileStore)(nil)
	_ CredentialStore = (*FileStore)(nil)
)
