package crm

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubClient lets each test script the portal's behavior per method.
type stubClient struct {
	contacts func(ContactFilter) ([]Contact, error)
	leads    func(LeadFilter) ([]Lead, error)
	deals    func(DealFilter) ([]Deal, error)
	statuses func() ([]Status, error)
	comments func(EntityKind, string) ([]TimelineComment, error)
}

func (s *stubClient) ListContacts(_ context.Context, f ContactFilter) ([]Contact, error) {
	if s.contacts == nil {
		return nil, nil
	}
	return s.contacts(f)
}

func (s *stubClient) ListLeads(_ context.Context, f LeadFilter) ([]Lead, error) {
	if s.leads == nil {
		return nil, nil
	}
	return s.leads(f)
}

func (s *stubClient) ListDeals(_ context.Context, f DealFilter) ([]Deal, error) {
	if s.deals == nil {
		return nil, nil
	}
	return s.deals(f)
}

func (s *stubClient) ListStatuses(context.Context) ([]Status, error) {
	if s.statuses == nil {
		return nil, nil
	}
	return s.statuses()
}

func (s *stubClient) ListTimelineComments(_ context.Context, kind EntityKind, id string) ([]TimelineComment, error) {
	if s.comments == nil {
		return nil, nil
	}
	return s.comments(kind, id)
}

func (s *stubClient) AddTimelineComment(context.Context, EntityKind, string, string) error {
	return nil
}

func (s *stubClient) Notify(context.Context, int, string) error { return nil }

func TestResolveFirstVariantWins(t *testing.T) {
	var tried []string
	client := &stubClient{
		contacts: func(f ContactFilter) ([]Contact, error) {
			tried = append(tried, f.Phone)
			if f.Phone == "+48506502706" {
				return []Contact{{ID: "12", Name: "Jan"}}, nil
			}
			return nil, nil
		},
	}
	r := NewContactResolver(client, 1, nil)

	contact, err := r.Resolve(context.Background(), "+48 506 502 706")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if contact.ID != "12" {
		t.Errorf("got contact %+v", contact)
	}
	// The raw form misses; the plus-prefixed digit form hits second.
	if len(tried) != 2 || tried[0] != "+48 506 502 706" || tried[1] != "+48506502706" {
		t.Errorf("unexpected variant order %v", tried)
	}
}

func TestResolveVariantErrorSkipped(t *testing.T) {
	client := &stubClient{
		contacts: func(f ContactFilter) ([]Contact, error) {
			if f.Phone == "+48506502706" {
				return nil, errors.New("boom")
			}
			if f.Phone == "48506502706" {
				return []Contact{{ID: "7"}}, nil
			}
			return nil, nil
		},
	}
	r := NewContactResolver(client, 1, nil)

	contact, err := r.Resolve(context.Background(), "+48506502706")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if contact.ID != "7" {
		t.Errorf("got contact %+v", contact)
	}
}

func TestResolveNotFound(t *testing.T) {
	r := NewContactResolver(&stubClient{}, 1, nil)
	_, err := r.Resolve(context.Background(), "+48506502706")
	if !errors.Is(err, ErrContactNotFound) {
		t.Errorf("expected ErrContactNotFound, got %v", err)
	}
}

func TestResolveAllVariantsFailing(t *testing.T) {
	client := &stubClient{
		contacts: func(ContactFilter) ([]Contact, error) {
			return nil, errors.New("portal unreachable")
		},
	}
	r := NewContactResolver(client, 1, nil)

	_, err := r.Resolve(context.Background(), "+48506502706")
	if !errors.Is(err, ErrContactLookup) {
		t.Errorf("expected ErrContactLookup, got %v", err)
	}
	if errors.Is(err, ErrContactNotFound) {
		t.Errorf("a failed lookup must not read as not-found")
	}
}

func TestAssignedUserID(t *testing.T) {
	r := NewContactResolver(&stubClient{}, 42, nil)

	if got := r.AssignedUserID(&Contact{AssignedByID: "7"}); got != 7 {
		t.Errorf("got %d, want 7", got)
	}
	if got := r.AssignedUserID(&Contact{AssignedByID: ""}); got != 42 {
		t.Errorf("got %d, want default 42", got)
	}
	if got := r.AssignedUserID(&Contact{AssignedByID: "not-a-number"}); got != 42 {
		t.Errorf("got %d, want default 42", got)
	}
	if got := r.AssignedUserID(nil); got != 42 {
		t.Errorf("got %d, want default 42", got)
	}
}

func mkTime(s string) Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return Time{Time: ts}
}
