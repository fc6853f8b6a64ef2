// Package bindings serves the administrative page that maps gateway
// phone numbers onto CRM portal domains.
package bindings

import (
	"crypto/subtle"
	"html/template"
	"net/http"
	"sort"
	"strings"

	"github.com/b24bridge/smsbridge/internal/tenant"
	"github.com/b24bridge/smsbridge/pkg/logging"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head><title>Number bindings</title></head>
<body>
<h1>Number bindings</h1>
<form method="post">
<label>Numbers <input type="text" name="numbers" placeholder="+48 500 100 200, 48500100201"></label>
<label>Domain <input type="text" name="domain" placeholder="example.bitrix24.com"></label>
<button type="submit">Bind</button>
</form>
<table border="1">
<tr><th>Number</th><th>Domain</th></tr>
{{range .Rows}}<tr><td>{{.Number}}</td><td>{{.Domain}}</td></tr>
{{end}}</table>
</body>
</html>`

type row struct {
	Number string
	Domain string
}

type pageData struct {
	Rows []row
}

// Handler serves the binding form and table.
type Handler struct {
	store  tenant.BindingStore
	token  string
	tmpl   *template.Template
	logger *logging.Logger
}

// NewHandler builds the admin handler. token, when non-empty, must be
// presented as a bearer token on every request.
func NewHandler(store tenant.BindingStore, token string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if store == nil {
		panic("bindings: store cannot be nil")
	}
	return &Handler{
		store:  store,
		token:  token,
		tmpl:   template.Must(template.New("bindings").Parse(pageTemplate)),
		logger: logger,
	}
}

// Bindings handles GET and POST /admin/bindings.
func (h *Handler) Bindings(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		numbers := SplitNumbers(r.FormValue("numbers"))
		domain := tenant.NormalizeDomain(r.FormValue("domain"))
		if len(numbers) == 0 || domain == "" {
			http.Error(w, "numbers and domain are required", http.StatusBadRequest)
			return
		}
		if err := h.store.Bind(r.Context(), numbers, domain); err != nil {
			h.logger.Error("failed to persist bindings", "error", err, "domain", domain)
			http.Error(w, "Failed to persist bindings", http.StatusInternalServerError)
			return
		}
		h.logger.Info("numbers bound", "domain", domain, "count", len(numbers))
	}

	h.renderTable(w, r)
}

func (h *Handler) renderTable(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.All(r.Context())
	if err != nil {
		h.logger.Error("failed to read bindings", "error", err)
		http.Error(w, "Failed to read bindings", http.StatusInternalServerError)
		return
	}

	rows := make([]row, 0, len(all))
	for number, domain := range all {
		rows = append(rows, row{Number: number, Domain: domain})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Number < rows[j].Number })

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.Execute(w, pageData{Rows: rows}); err != nil {
		h.logger.Error("failed to render bindings page", "error", err)
	}
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) == 1
}

// SplitNumbers breaks the free-text numbers field on whitespace, commas
// and semicolons. The split pieces are stored verbatim; bindings are
// exact-string keyed.
func SplitNumbers(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	numbers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			numbers = append(numbers, p)
		}
	}
	return numbers
}
