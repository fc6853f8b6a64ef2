package crm

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/b24bridge/smsbridge/internal/phone"
	"github.com/b24bridge/smsbridge/pkg/logging"
)

// ErrContactNotFound is returned when no phone variant matched a contact.
var ErrContactNotFound = errors.New("crm: contact not found")

// ErrContactLookup is returned when every variant lookup failed, so the
// portal never answered whether the sender is known.
var ErrContactLookup = errors.New("crm: contact lookup failed")

// ContactResolver finds the CRM contact behind a sender's phone number by
// trying each normalized variant of the number in order and stopping at
// the first match.
type ContactResolver struct {
	client            Client
	defaultAssignedID int
	logger            *logging.Logger
}

// NewContactResolver builds a resolver. defaultAssignedID is the portal
// user notified when a matched contact carries no assignee of its own.
func NewContactResolver(client Client, defaultAssignedID int, logger *logging.Logger) *ContactResolver {
	if logger == nil {
		logger = logging.Default()
	}
	if defaultAssignedID <= 0 {
		defaultAssignedID = 1
	}
	return &ContactResolver{
		client:            client,
		defaultAssignedID: defaultAssignedID,
		logger:            logger,
	}
}

// Resolve walks the variants of sender most-specific first and returns the
// first contact any variant matches. A variant whose lookup fails is logged
// and treated as matching nothing, so a transient error on one form does
// not mask a hit on a later one. ErrContactNotFound means at least one
// variant was searched and every search came back empty; when no variant
// could be searched at all the last error is surfaced wrapped in
// ErrContactLookup, since the sender may well exist.
func (r *ContactResolver) Resolve(ctx context.Context, sender string) (*Contact, error) {
	var lookupErr error
	searched := false
	for _, variant := range phone.Variants(sender) {
		contacts, err := r.client.ListContacts(ctx, ContactFilter{Phone: variant})
		if err != nil {
			r.logger.Warn("contact lookup failed for variant",
				"variant", variant, "error", err)
			lookupErr = err
			continue
		}
		searched = true
		if len(contacts) == 0 {
			continue
		}
		contact := contacts[0]
		r.logger.Debug("contact matched",
			"variant", variant, "contact_id", contact.ID)
		return &contact, nil
	}
	if !searched && lookupErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrContactLookup, lookupErr)
	}
	return nil, ErrContactNotFound
}

// AssignedUserID returns the portal user to notify about activity on the
// contact, falling back to the configured default when the contact has no
// parseable assignee.
func (r *ContactResolver) AssignedUserID(c *Contact) int {
	if c != nil && c.AssignedByID != "" {
		if id, err := strconv.Atoi(c.AssignedByID); err == nil && id > 0 {
			return id
		}
	}
	return r.defaultAssignedID
}
