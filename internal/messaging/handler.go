// Package messaging receives inbound-SMS callbacks from the gateway and
// turns each one into CRM timeline comments plus an instant notification
// for the responsible portal user.
package messaging

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/b24bridge/smsbridge/internal/crm"
	"github.com/b24bridge/smsbridge/internal/notify"
	"github.com/b24bridge/smsbridge/internal/observability/metrics"
	"github.com/b24bridge/smsbridge/internal/tenant"
	"github.com/b24bridge/smsbridge/pkg/logging"
)

var callbackTracer = otel.Tracer("smsbridge.internal.messaging.callback")

// ClientFactory builds a CRM client for a resolved tenant. Separated out
// so tests can swap the portal with a stub.
type ClientFactory func(t *tenant.Tenant) (crm.Client, error)

// Handler handles the gateway's SMS callback requests.
type Handler struct {
	tenants     *tenant.Resolver
	newClient   ClientFactory
	relatedMode crm.RelatedMode
	defaultUser int
	metrics     *metrics.BridgeMetrics
	logger      *logging.Logger
}

// NewHandler creates the callback handler.
func NewHandler(tenants *tenant.Resolver, factory ClientFactory, relatedMode crm.RelatedMode, defaultUser int, m *metrics.BridgeMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if tenants == nil {
		panic("messaging: tenant resolver cannot be nil")
	}
	if factory == nil {
		panic("messaging: client factory cannot be nil")
	}
	return &Handler{
		tenants:     tenants,
		newClient:   factory,
		relatedMode: relatedMode,
		defaultUser: defaultUser,
		metrics:     m,
		logger:      logger,
	}
}

// Callback handles POST /callback/sms requests.
//
// Outcomes: 400 for an unparseable or empty message, 404 when the
// destination number is bound to no portal, 500 when portal credentials
// are missing or the contact search fails outright, 200 once the message
// reached the contact's timeline. Related-entity writes and the instant
// notification are best effort and never change the response.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := callbackTracer.Start(r.Context(), "messaging.sms.callback")
	defer span.End()

	outcome := "error"
	defer func() {
		h.metrics.ObserveCallback(outcome, time.Since(start).Seconds())
	}()

	cb, err := ParseCallback(r)
	if err != nil {
		h.logger.Error("failed to parse sms callback", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		outcome = "bad_request"
		return
	}
	span.SetAttributes(
		attribute.String("smsbridge.sms.from", cb.From),
		attribute.String("smsbridge.sms.to", cb.To),
	)

	if cb.From == "" || cb.To == "" || strings.TrimSpace(cb.Text) == "" {
		err := errors.New("missing required sms fields")
		h.logger.Warn("invalid sms payload", "error", err, "from", cb.From, "to", cb.To)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		outcome = "bad_request"
		return
	}

	tnt, err := h.tenants.Resolve(ctx, cb.To)
	switch {
	case errors.Is(err, tenant.ErrDomainNotFound):
		h.logger.Warn("no portal bound to destination number", "to", cb.To)
		http.Error(w, "Unknown destination number", http.StatusNotFound)
		outcome = "unbound_number"
		return
	case err != nil:
		h.logger.Error("failed to resolve tenant", "error", err, "to", cb.To)
		http.Error(w, "Tenant resolution failed", http.StatusInternalServerError)
		span.RecordError(err)
		outcome = "tenant_error"
		return
	}
	span.SetAttributes(attribute.String("smsbridge.domain", tnt.Domain))

	client, err := h.newClient(tnt)
	if err != nil {
		h.logger.Error("failed to build portal client", "error", err, "domain", tnt.Domain)
		http.Error(w, "Portal client unavailable", http.StatusInternalServerError)
		span.RecordError(err)
		outcome = "client_error"
		return
	}

	contacts := crm.NewContactResolver(client, h.defaultUser, h.logger)
	contact, err := contacts.Resolve(ctx, cb.From)
	if errors.Is(err, crm.ErrContactNotFound) {
		h.logger.Info("no contact matched sender", "from", cb.From, "domain", tnt.Domain)
		http.Error(w, "Unknown sender", http.StatusNotFound)
		outcome = "unknown_sender"
		return
	}
	if err != nil {
		h.logger.Error("contact search failed", "error", err, "from", cb.From, "domain", tnt.Domain)
		http.Error(w, "Contact search failed", http.StatusInternalServerError)
		span.RecordError(err)
		outcome = "contact_error"
		return
	}
	span.SetAttributes(attribute.String("smsbridge.contact_id", contact.ID))

	related := crm.NewRelatedEntityFinder(client, h.relatedMode, h.logger).Find(ctx, contact.ID)

	composed, err := notify.Compose(cb.SMS(), related, contact.ID, tnt.Domain)
	if err != nil {
		h.logger.Warn("nothing to deliver", "error", err, "from", cb.From)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		outcome = "bad_request"
		return
	}

	h.deliver(ctx, client, contact, related, composed, contacts)

	h.logger.Info("sms callback accepted",
		"domain", tnt.Domain, "contact_id", contact.ID,
		"related_kind", related.Kind, "related_id", related.ID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
	outcome = "delivered"
}

// deliver performs the portal writes. Each write is independent: a failed
// one is logged and counted but never stops the rest.
func (h *Handler) deliver(ctx context.Context, client crm.Client, contact *crm.Contact, related crm.RelatedEntity, composed notify.Composition, contacts *crm.ContactResolver) {
	if err := client.AddTimelineComment(ctx, crm.KindContact, contact.ID, composed.Comment); err != nil {
		h.logger.Error("failed to comment on contact timeline", "error", err, "contact_id", contact.ID)
		h.metrics.ObservePortalWrite("contact_comment", "error")
	} else {
		h.metrics.ObservePortalWrite("contact_comment", "ok")
	}

	if related.Found() {
		if err := client.AddTimelineComment(ctx, related.Kind, related.ID, composed.Comment); err != nil {
			h.logger.Error("failed to comment on related timeline",
				"error", err, "kind", related.Kind, "entity_id", related.ID)
			h.metrics.ObservePortalWrite("related_comment", "error")
		} else {
			h.metrics.ObservePortalWrite("related_comment", "ok")
		}
	}

	userID := contacts.AssignedUserID(contact)
	if err := client.Notify(ctx, userID, composed.Notification); err != nil {
		h.logger.Error("failed to notify portal user", "error", err, "user_id", userID)
		h.metrics.ObservePortalWrite("notify", "error")
	} else {
		h.metrics.ObservePortalWrite("notify", "ok")
	}
}

// HealthCheck returns a simple health check response.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
