package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/b24bridge/smsbridge/pkg/logging"
)

const (
	bindingsKey    = "smsbridge:bindings"
	credentialsKey = "smsbridge:credentials"
)

// RedisStore keeps bindings and credentials in two redis hashes. Field
// names match the file layout: the submitted number string and
// "{domain}_{member_id}" respectively.
type RedisStore struct {
	client *redis.Client
	logger *logging.Logger
}

// NewRedisStore wraps an existing redis client.
func NewRedisStore(client *redis.Client, logger *logging.Logger) *RedisStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisStore{client: client, logger: logger}
}

// Bind stores each number→domain pair as a hash field.
func (s *RedisStore) Bind(ctx context.Context, numbers []string, domain string) error {
	domain = NormalizeDomain(domain)
	pairs := make([]any, 0, len(numbers)*2)
	for _, number := range numbers {
		number = strings.TrimSpace(number)
		if number == "" {
			continue
		}
		pairs = append(pairs, number, domain)
		s.logger.Info("number bound", "number", number, "domain", domain)
	}
	if len(pairs) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, bindingsKey, pairs...).Err(); err != nil {
		return fmt.Errorf("tenant: redis bind: %w", err)
	}
	return nil
}

// DomainFor resolves a number to its bound domain.
func (s *RedisStore) DomainFor(ctx context.Context, number string) (string, error) {
	domain, err := s.client.HGet(ctx, bindingsKey, number).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrDomainNotFound
	}
	if err != nil {
		return "", fmt.Errorf("tenant: redis binding lookup: %w", err)
	}
	return domain, nil
}

// All returns the full binding map.
func (s *RedisStore) All(ctx context.Context) (map[string]string, error) {
	bindings, err := s.client.HGetAll(ctx, bindingsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("tenant: redis bindings: %w", err)
	}
	return bindings, nil
}

// Save upserts one credential record without touching the others.
func (s *RedisStore) Save(ctx context.Context, creds Credentials) error {
	creds.DomainURL = NormalizeDomain(creds.DomainURL)
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("tenant: marshal credentials: %w", err)
	}
	if err := s.client.HSet(ctx, credentialsKey, creds.Key(), data).Err(); err != nil {
		return fmt.Errorf("tenant: redis save credentials: %w", err)
	}
	s.logger.Info("credentials saved", "domain", creds.DomainURL, "member_id", creds.MemberID)
	return nil
}

// ByDomain scans all records for a matching domain_url.
func (s *RedisStore) ByDomain(ctx context.Context, domain string) (*Credentials, error) {
	records, err := s.client.HGetAll(ctx, credentialsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("tenant: redis credentials: %w", err)
	}
	for key, raw := range records {
		var record Credentials
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			s.logger.Error("skipping malformed credential record", "key", key, "error", err)
			continue
		}
		if record.DomainURL != domain {
			continue
		}
		record.MemberID = memberIDFromKey(key, record.DomainURL)
		return &record, nil
	}
	return nil, ErrCredentialsNotFound
}

// UpdateToken rewrites the auth token of an existing record inside a
// WATCH transaction so a concurrent refresh never interleaves with the
// read-modify-write.
func (s *RedisStore) UpdateToken(ctx context.Context, domain, memberID string, token AuthToken) error {
	domain = NormalizeDomain(domain)
	key := fmt.Sprintf("%s_%s", domain, memberID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, credentialsKey, key).Result()
		if errors.Is(err, redis.Nil) {
			s.logger.Warn("token renewed for unknown record", "domain", domain, "member_id", memberID)
			return nil
		}
		if err != nil {
			return err
		}
		var record Credentials
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return err
		}
		record.AuthToken = token
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, credentialsKey, key, data)
			return nil
		})
		return err
	}, credentialsKey)
	if err != nil {
		return fmt.Errorf("tenant: redis update token: %w", err)
	}
	return nil
}

// Expiring returns records whose token expires within the window.
func (s *RedisStore) Expiring(ctx context.Context, within time.Duration) ([]Credentials, error) {
	records, err := s.client.HGetAll(ctx, credentialsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("tenant: redis credentials: %w", err)
	}
	threshold := time.Now().Add(within)
	var out []Credentials
	for key, raw := range records {
		var record Credentials
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			continue
		}
		if record.AuthToken.ExpiresAt().After(threshold) {
			continue
		}
		record.MemberID = memberIDFromKey(key, record.DomainURL)
		out = append(out, record)
	}
	return out, nil
}

var (
	_ BindingStore    = (*RedisStore)(nil)
	_ CredentialStore = (*RedisStore)(nil)
)
