package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/b24bridge/smsbridge/pkg/logging"
)

// Resolver maps a destination phone number to its tenant.
type Resolver struct {
	bindings BindingStore
	creds    CredentialStore
	logger   *logging.Logger
}

// NewResolver constructs a resolver over the given stores.
func NewResolver(bindings BindingStore, creds CredentialStore, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{
		bindings: bindings,
		creds:    creds,
		logger:   logger,
	}
}

// Resolve looks up the destination number literally against the binding
// store, then finds the credential record whose domain_url equals the
// bound domain. The number is not normalized before lookup; bindings are
// keyed exactly as submitted.
func (r *Resolver) Resolve(ctx context.Context, destination string) (*Tenant, error) {
	domain, err := r.bindings.DomainFor(ctx, destination)
	if err != nil {
		if errors.Is(err, ErrDomainNotFound) {
			r.logger.Warn("no domain bound for number", "to", destination)
			return nil, err
		}
		return nil, fmt.Errorf("tenant: binding lookup: %w", err)
	}

	creds, err := r.creds.ByDomain(ctx, domain)
	if err != nil {
		if errors.Is(err, ErrCredentialsNotFound) {
			r.logger.Error("domain bound but credentials missing", "to", destination, "domain", domain)
			return nil, err
		}
		return nil, fmt.Errorf("tenant: credential lookup: %w", err)
	}

	return &Tenant{Domain: domain, Credentials: *creds}, nil
}
