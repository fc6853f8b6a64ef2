package crm

import (
	"context"
	"strings"
	"time"
)

// Time unmarshals the portal's RFC3339 creation timestamps. An empty or
// null value decodes to the zero time.
type Time struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// Multifield is one entry of a CRM multi-value field such as PHONE.
type Multifield struct {
	ID        string `json:"ID"`
	ValueType string `json:"VALUE_TYPE"`
	Value     string `json:"VALUE"`
}

// Contact is a CRM contact as returned by an entity search.
type Contact struct {
	ID           string       `json:"ID"`
	Name         string       `json:"NAME"`
	LastName     string       `json:"LAST_NAME"`
	AssignedByID string       `json:"ASSIGNED_BY_ID"`
	Phone        []Multifield `json:"PHONE"`
}

// Lead is a CRM lead as returned by an entity search.
type Lead struct {
	ID         string `json:"ID"`
	Title      string `json:"TITLE"`
	DateCreate Time   `json:"DATE_CREATE"`
	StatusID   string `json:"STATUS_ID"`
}

// Deal is a CRM deal as returned by an entity search.
type Deal struct {
	ID              string `json:"ID"`
	Title           string `json:"TITLE"`
	DateCreate      Time   `json:"DATE_CREATE"`
	StageID         string `json:"STAGE_ID"`
	StageSemanticID string `json:"STAGE_SEMANTIC_ID"`
}

// Status is one entry of the portal's status/stage dictionary.
type Status struct {
	ID       string `json:"ID"`
	EntityID string `json:"ENTITY_ID"`
	StatusID string `json:"STATUS_ID"`
	Name     string `json:"NAME"`
	// Semantics classifies the status: "P" process, "S" success, "F" failure.
	Semantics string `json:"SEMANTICS"`
}

// TimelineComment is one comment on an entity's timeline.
type TimelineComment struct {
	ID      string `json:"ID"`
	Comment string `json:"COMMENT"`
}

// ContactFilter narrows a contact search.
type ContactFilter struct {
	Phone string
}

// LeadFilter narrows a lead search to one contact's leads.
type LeadFilter struct {
	ContactID string
	StatusIDs []string
}

// DealFilter narrows a deal search to one contact's deals.
type DealFilter struct {
	ContactID       string
	StageSemanticID string
}

// EntityKind names the CRM entity types the bridge writes to.
type EntityKind string

const (
	KindContact EntityKind = "contact"
	KindLead    EntityKind = "lead"
	KindDeal    EntityKind = "deal"
)

// RelatedEntity is the outcome of a related-entity search: the lead or
// deal an inbound SMS should be attached to, or nothing.
type RelatedEntity struct {
	Kind      EntityKind
	ID        string
	CreatedAt time.Time
}

// Found reports whether the search produced an entity.
func (r RelatedEntity) Found() bool {
	return r.Kind != "" && r.ID != ""
}

// RelatedNone is the empty search outcome.
var RelatedNone = RelatedEntity{}

// Client is the CRM capability the pipeline depends on: entity search,
// timeline writes, instant notifications, and status metadata. The
// production implementation lives in internal/bitrix.
type Client interface {
	ListContacts(ctx context.Context, filter ContactFilter) ([]Contact, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]Lead, error)
	ListDeals(ctx context.Context, filter DealFilter) ([]Deal, error)
	ListStatuses(ctx context.Context) ([]Status, error)
	ListTimelineComments(ctx context.Context, kind EntityKind, entityID string) ([]TimelineComment, error)
	AddTimelineComment(ctx context.Context, kind EntityKind, entityID, comment string) error
	Notify(ctx context.Context, userID int, message string) error
}
