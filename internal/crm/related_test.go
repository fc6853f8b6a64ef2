package crm

import (
	"context"
	"errors"
	"testing"
)

func TestFindNothingRelated(t *testing.T) {
	f := NewRelatedEntityFinder(&stubClient{}, ModeLatestActive, nil)
	got := f.Find(context.Background(), "12")
	if got.Found() {
		t.Errorf("expected none, got %+v", got)
	}
}

func TestFindAllLookupsFailing(t *testing.T) {
	client := &stubClient{
		leads:    func(LeadFilter) ([]Lead, error) { return nil, errors.New("down") },
		deals:    func(DealFilter) ([]Deal, error) { return nil, errors.New("down") },
		statuses: func() ([]Status, error) { return nil, errors.New("down") },
	}
	f := NewRelatedEntityFinder(client, ModeLatestActive, nil)
	got := f.Find(context.Background(), "12")
	if got.Found() {
		t.Errorf("expected none when every lookup fails, got %+v", got)
	}
}

func TestFindLatestLead(t *testing.T) {
	client := &stubClient{
		leads: func(f LeadFilter) ([]Lead, error) {
			return []Lead{{ID: "31", Title: "Inbound", DateCreate: mkTime("2026-02-10T12:00:00Z")}}, nil
		},
	}
	f := NewRelatedEntityFinder(client, ModeLatestActive, nil)
	got := f.Find(context.Background(), "12")
	if got.Kind != KindLead || got.ID != "31" {
		t.Errorf("got %+v", got)
	}
}

func TestFindNewerLeadBeatsOlderDeal(t *testing.T) {
	client := &stubClient{
		leads: func(LeadFilter) ([]Lead, error) {
			return []Lead{{ID: "31", DateCreate: mkTime("2026-02-10T12:00:00Z")}}, nil
		},
		deals: func(DealFilter) ([]Deal, error) {
			return []Deal{{ID: "90", DateCreate: mkTime("2026-02-01T09:00:00Z")}}, nil
		},
	}
	f := NewRelatedEntityFinder(client, ModeLatestActive, nil)
	got := f.Find(context.Background(), "12")
	if got.Kind != KindLead || got.ID != "31" {
		t.Errorf("got %+v", got)
	}
}

func TestFindDealWinsTimestampTie(t *testing.T) {
	client := &stubClient{
		leads: func(LeadFilter) ([]Lead, error) {
			return []Lead{{ID: "31", DateCreate: mkTime("2026-02-10T12:00:00Z")}}, nil
		},
		deals: func(DealFilter) ([]Deal, error) {
			return []Deal{{ID: "90", DateCreate: mkTime("2026-02-10T12:00:00Z")}}, nil
		},
	}
	f := NewRelatedEntityFinder(client, ModeLatestActive, nil)
	got := f.Find(context.Background(), "12")
	if got.Kind != KindDeal || got.ID != "90" {
		t.Errorf("deal should win the tie, got %+v", got)
	}
}

func TestFindUsesPortalStatusDictionary(t *testing.T) {
	var gotStatuses []string
	client := &stubClient{
		statuses: func() ([]Status, error) {
			return []Status{
				{StatusID: "NEW", Semantics: "P"},
				{StatusID: "CUSTOM_7", Semantics: "P"},
				{StatusID: "WON", Semantics: "S"},
			}, nil
		},
		leads: func(f LeadFilter) ([]Lead, error) {
			gotStatuses = f.StatusIDs
			return nil, nil
		},
	}
	f := NewRelatedEntityFinder(client, ModeLatestActive, nil)
	f.Find(context.Background(), "12")

	if len(gotStatuses) != 2 || gotStatuses[0] != "NEW" || gotStatuses[1] != "CUSTOM_7" {
		t.Errorf("expected in-progress statuses only, got %v", gotStatuses)
	}
}

func TestFindStatusFallbackOnError(t *testing.T) {
	var gotStatuses []string
	client := &stubClient{
		statuses: func() ([]Status, error) { return nil, errors.New("down") },
		leads: func(f LeadFilter) ([]Lead, error) {
			gotStatuses = f.StatusIDs
			return nil, nil
		},
	}
	f := NewRelatedEntityFinder(client, ModeLatestActive, nil)
	f.Find(context.Background(), "12")

	want := []string{"NEW", "IN_PROCESS", "JUNK", "CONVERTED"}
	if len(gotStatuses) != len(want) {
		t.Fatalf("got %v, want %v", gotStatuses, want)
	}
	for i := range want {
		if gotStatuses[i] != want[i] {
			t.Errorf("got %v, want %v", gotStatuses, want)
			break
		}
	}
}

func TestFindTaggedOnlySkipsUnmarked(t *testing.T) {
	client := &stubClient{
		leads: func(LeadFilter) ([]Lead, error) {
			return []Lead{
				{ID: "31", DateCreate: mkTime("2026-02-10T12:00:00Z")},
				{ID: "28", DateCreate: mkTime("2026-02-05T12:00:00Z")},
			}, nil
		},
		comments: func(kind EntityKind, id string) ([]TimelineComment, error) {
			if kind == KindLead && id == "28" {
				return []TimelineComment{{ID: "1", Comment: "📩 [SMSAPI] Inbound SMS"}}, nil
			}
			return []TimelineComment{{ID: "2", Comment: "called back, no answer"}}, nil
		},
	}
	f := NewRelatedEntityFinder(client, ModeTaggedOnly, nil)
	got := f.Find(context.Background(), "12")
	if got.Kind != KindLead || got.ID != "28" {
		t.Errorf("expected the tagged lead, got %+v", got)
	}
}

func TestFindTaggedOnlyTimelineErrorTreatedAsUnmarked(t *testing.T) {
	client := &stubClient{
		leads: func(LeadFilter) ([]Lead, error) {
			return []Lead{{ID: "31", DateCreate: mkTime("2026-02-10T12:00:00Z")}}, nil
		},
		comments: func(EntityKind, string) ([]TimelineComment, error) {
			return nil, errors.New("down")
		},
	}
	f := NewRelatedEntityFinder(client, ModeTaggedOnly, nil)
	got := f.Find(context.Background(), "12")
	if got.Found() {
		t.Errorf("expected none, got %+v", got)
	}
}
