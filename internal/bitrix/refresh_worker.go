package bitrix

import (
	"context"
	"time"

	"github.com/b24bridge/smsbridge/internal/tenant"
	"github.com/b24bridge/smsbridge/pkg/logging"
)

// RefreshWorker periodically renews portal tokens before they expire, so
// webhook deliveries rarely pay the in-line refresh cost.
type RefreshWorker struct {
	oauth         *OAuth
	store         tenant.CredentialStore
	logger        *logging.Logger
	interval      time.Duration
	refreshBefore time.Duration
}

// NewRefreshWorker creates a worker over the given credential store.
func NewRefreshWorker(oauth *OAuth, store tenant.CredentialStore, logger *logging.Logger) *RefreshWorker {
	if logger == nil {
		logger = logging.Default()
	}
	return &RefreshWorker{
		oauth:         oauth,
		store:         store,
		logger:        logger,
		interval:      1 * time.Hour,
		refreshBefore: 10 * time.Minute,
	}
}

// WithInterval sets the check interval.
func (w *RefreshWorker) WithInterval(interval time.Duration) *RefreshWorker {
	w.interval = interval
	return w
}

// WithRefreshBefore sets how long before expiry to refresh.
func (w *RefreshWorker) WithRefreshBefore(d time.Duration) *RefreshWorker {
	w.refreshBefore = d
	return w
}

// Start runs the worker. Blocks until the context is cancelled.
func (w *RefreshWorker) Start(ctx context.Context) {
	w.logger.Info("starting token refresh worker",
		"interval", w.interval.String(),
		"refresh_before", w.refreshBefore.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.refreshExpiring(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("token refresh worker shutting down")
			return
		case <-ticker.C:
			w.refreshExpiring(ctx)
		}
	}
}

// RunOnce performs a single refresh check.
func (w *RefreshWorker) RunOnce(ctx context.Context) {
	w.refreshExpiring(ctx)
}

func (w *RefreshWorker) refreshExpiring(ctx context.Context) {
	creds, err := w.store.Expiring(ctx, w.refreshBefore)
	if err != nil {
		w.logger.Error("failed to list expiring credentials", "error", err)
		return
	}
	if len(creds) == 0 {
		w.logger.Debug("no tokens need refresh")
		return
	}

	w.logger.Info("refreshing expiring tokens", "count", len(creds))

	for _, cred := range creds {
		renewed, err := w.oauth.Refresh(ctx, cred.AuthToken.RefreshToken)
		if err != nil {
			w.logger.Error("failed to refresh token",
				"domain", cred.DomainURL,
				"member_id", cred.MemberID,
				"error", err,
			)
			continue
		}
		if err := w.store.UpdateToken(ctx, cred.DomainURL, cred.MemberID, renewed); err != nil {
			w.logger.Error("failed to persist renewed token",
				"domain", cred.DomainURL,
				"member_id", cred.MemberID,
				"error", err,
			)
			continue
		}
		w.logger.Info("refreshed token", "domain", cred.DomainURL, "member_id", cred.MemberID)
	}
}
