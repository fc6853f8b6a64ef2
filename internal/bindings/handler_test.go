package bindings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/b24bridge/smsbridge/internal/tenant"
)

func newTestStore(t *testing.T) *tenant.FileStore {
	t.Helper()
	dir := t.TempDir()
	return tenant.NewFileStore(
		filepath.Join(dir, "bindings.json"),
		filepath.Join(dir, "auth.json"),
		nil,
	)
}

func TestBindingsPostAndRender(t *testing.T) {
	store := newTestStore(t)
	h := NewHandler(store, "", nil)

	form := url.Values{
		"numbers": {"48500100200, 48500100201"},
		"domain":  {"example.bitrix24.com"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/bindings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Bindings(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %q", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "48500100200") || !strings.Contains(body, "48500100201") {
		t.Errorf("table missing bound numbers: %q", body)
	}
	if !strings.Contains(body, "example.bitrix24.com") {
		t.Errorf("table missing domain: %q", body)
	}

	domain, err := store.DomainFor(context.Background(), "48500100201")
	if err != nil {
		t.Fatalf("DomainFor: %v", err)
	}
	if domain != "example.bitrix24.com" {
		t.Errorf("got domain %q", domain)
	}
}

func TestBindingsStripsScheme(t *testing.T) {
	store := newTestStore(t)
	h := NewHandler(store, "", nil)

	form := url.Values{
		"numbers": {"48500100200"},
		"domain":  {"https://example.bitrix24.com"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/bindings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Bindings(rec, req)

	domain, err := store.DomainFor(context.Background(), "48500100200")
	if err != nil {
		t.Fatalf("DomainFor: %v", err)
	}
	if domain != "example.bitrix24.com" {
		t.Errorf("scheme should be stripped, got %q", domain)
	}
}

func TestBindingsMissingFields(t *testing.T) {
	h := NewHandler(newTestStore(t), "", nil)

	form := url.Values{"numbers": {""}, "domain": {"example.bitrix24.com"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/bindings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Bindings(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
}

func TestBindingsTokenGuard(t *testing.T) {
	h := NewHandler(newTestStore(t), "secret", nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/bindings", nil)
	rec := httptest.NewRecorder()
	h.Bindings(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status %d, want 401 without token", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/bindings", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.Bindings(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status %d, want 200 with token", rec.Code)
	}
}

func TestBindingsTokenRequiresBearerPrefix(t *testing.T) {
	h := NewHandler(newTestStore(t), "secret", nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/bindings", nil)
	req.Header.Set("Authorization", "secret")
	rec := httptest.NewRecorder()
	h.Bindings(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status %d, want 401 for a bare token without the Bearer prefix", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/bindings", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.Bindings(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status %d, want 401 for a wrong token", rec.Code)
	}
}

func TestSplitNumbers(t *testing.T) {
	got := SplitNumbers(" 48500100200,48500100201;  48500100202\n48500100203 ")
	want := []string{"48500100200", "48500100201", "48500100202", "48500100203"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
			break
		}
	}
}
