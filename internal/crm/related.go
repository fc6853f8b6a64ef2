package crm

import (
	"context"
	"strings"

	"github.com/b24bridge/smsbridge/pkg/logging"
)

// RelatedMode selects how candidate leads and deals are narrowed down.
type RelatedMode string

const (
	// ModeLatestActive picks the most recent open lead or deal outright.
	ModeLatestActive RelatedMode = "latest-active"
	// ModeTaggedOnly additionally requires the entity's timeline to carry
	// a comment with the inbound-SMS marker, so replies thread onto the
	// conversation that was already receiving messages.
	ModeTaggedOnly RelatedMode = "tagged-only"
)

// smsMarker is the tag stamped into every timeline comment this service
// writes; ModeTaggedOnly keys off its presence.
const smsMarker = "[SMSAPI]"

// fallbackLeadStatuses is used when the portal's status dictionary cannot
// be read. It mirrors the stock Bitrix24 lead pipeline.
var fallbackLeadStatuses = []string{"NEW", "IN_PROCESS", "JUNK", "CONVERTED"}

// RelatedEntityFinder locates the open lead or deal an inbound SMS most
// plausibly belongs to. It is strictly best effort: every lookup failure
// degrades to "nothing related" rather than failing the caller, because a
// missing thread link must never block delivery of the notification.
type RelatedEntityFinder struct {
	client Client
	mode   RelatedMode
	logger *logging.Logger
}

func NewRelatedEntityFinder(client Client, mode RelatedMode, logger *logging.Logger) *RelatedEntityFinder {
	if logger == nil {
		logger = logging.Default()
	}
	if mode != ModeTaggedOnly {
		mode = ModeLatestActive
	}
	return &RelatedEntityFinder{client: client, mode: mode, logger: logger}
}

// Find returns the most recently created open lead or deal linked to the
// contact, or RelatedNone. When a lead and a deal carry the same creation
// timestamp the deal wins, since a deal means the conversation already
// progressed past qualification. Find never returns an error.
func (f *RelatedEntityFinder) Find(ctx context.Context, contactID string) RelatedEntity {
	lead := f.latestLead(ctx, contactID)
	deal := f.latestDeal(ctx, contactID)

	switch {
	case lead == nil && deal == nil:
		return RelatedNone
	case lead == nil:
		return RelatedEntity{Kind: KindDeal, ID: deal.ID, CreatedAt: deal.DateCreate.Time}
	case deal == nil:
		return RelatedEntity{Kind: KindLead, ID: lead.ID, CreatedAt: lead.DateCreate.Time}
	}

	if lead.DateCreate.Time.After(deal.DateCreate.Time) {
		return RelatedEntity{Kind: KindLead, ID: lead.ID, CreatedAt: lead.DateCreate.Time}
	}
	return RelatedEntity{Kind: KindDeal, ID: deal.ID, CreatedAt: deal.DateCreate.Time}
}

func (f *RelatedEntityFinder) latestLead(ctx context.Context, contactID string) *Lead {
	leads, err := f.client.ListLeads(ctx, LeadFilter{
		ContactID: contactID,
		StatusIDs: f.activeLeadStatuses(ctx),
	})
	if err != nil {
		f.logger.Warn("lead lookup failed", "contact_id", contactID, "error", err)
		return nil
	}
	for i := range leads {
		lead := &leads[i]
		if f.mode == ModeTaggedOnly && !f.hasMarkerComment(ctx, KindLead, lead.ID) {
			continue
		}
		return lead
	}
	return nil
}

func (f *RelatedEntityFinder) latestDeal(ctx context.Context, contactID string) *Deal {
	deals, err := f.client.ListDeals(ctx, DealFilter{
		ContactID:       contactID,
		StageSemanticID: "P",
	})
	if err != nil {
		f.logger.Warn("deal lookup failed", "contact_id", contactID, "error", err)
		return nil
	}
	for i := range deals {
		deal := &deals[i]
		if f.mode == ModeTaggedOnly && !f.hasMarkerComment(ctx, KindDeal, deal.ID) {
			continue
		}
		return deal
	}
	return nil
}

// activeLeadStatuses reads the portal's lead status dictionary and keeps
// the in-progress entries. On any failure, or when the dictionary carries
// no process-semantic statuses at all, the stock pipeline set is used.
func (f *RelatedEntityFinder) activeLeadStatuses(ctx context.Context) []string {
	statuses, err := f.client.ListStatuses(ctx)
	if err != nil {
		f.logger.Warn("status dictionary unavailable, using stock set", "error", err)
		return fallbackLeadStatuses
	}
	var active []string
	for _, s := range statuses {
		if s.Semantics == "" || s.Semantics == "P" {
			active = append(active, s.StatusID)
		}
	}
	if len(active) == 0 {
		return fallbackLeadStatuses
	}
	return active
}

func (f *RelatedEntityFinder) hasMarkerComment(ctx context.Context, kind EntityKind, entityID string) bool {
	comments, err := f.client.ListTimelineComments(ctx, kind, entityID)
	if err != nil {
		f.logger.Warn("timeline lookup failed", "kind", kind, "entity_id", entityID, "error", err)
		return false
	}
	for _, c := range comments {
		if strings.Contains(c.Comment, smsMarker) {
			return true
		}
	}
	return false
}
