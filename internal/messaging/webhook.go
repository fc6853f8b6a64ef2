package messaging

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/b24bridge/smsbridge/internal/notify"
)

// Callback is the raw inbound-SMS payload the gateway posts to us.
// The gateway uses the sms_* field names; the bare aliases are accepted
// so hand-crafted test callbacks keep working.
type Callback struct {
	From string `json:"sms_from"`
	To   string `json:"sms_to"`
	Text string `json:"sms_text"`
	// Date is the carrier timestamp as unix seconds, 0 when absent.
	Date int64 `json:"sms_date"`
}

type callbackAliases struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// ParseCallback reads an SMS callback from either an urlencoded form or a
// JSON body, whichever the gateway sent.
func ParseCallback(r *http.Request) (*Callback, error) {
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return parseJSONCallback(r)
	}
	return parseFormCallback(r)
}

func parseFormCallback(r *http.Request) (*Callback, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("messaging: parse form: %w", err)
	}
	cb := &Callback{
		From: firstValue(r, "sms_from", "from"),
		To:   firstValue(r, "sms_to", "to"),
		Text: firstValue(r, "sms_text", "message"),
	}
	if raw := firstValue(r, "sms_date"); raw != "" {
		if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cb.Date = epoch
		}
	}
	return cb, nil
}

func parseJSONCallback(r *http.Request) (*Callback, error) {
	body := http.MaxBytesReader(nil, r.Body, 1<<20)
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("messaging: read body: %w", err)
	}
	var cb Callback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("messaging: decode json: %w", err)
	}
	var aliases callbackAliases
	_ = json.Unmarshal(raw, &aliases)
	if cb.From == "" {
		cb.From = aliases.From
	}
	if cb.To == "" {
		cb.To = aliases.To
	}
	if cb.Text == "" {
		cb.Text = aliases.Message
	}
	return &cb, nil
}

func firstValue(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(r.Form.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// SMS converts the callback into the message the composer renders.
func (c *Callback) SMS() notify.SMS {
	sms := notify.SMS{From: c.From, To: c.To, Body: c.Text}
	if c.Date > 0 {
		sms.Date = time.Unix(c.Date, 0).UTC()
	}
	return sms
}
