// Package notify renders the timeline comment and the instant notification
// written into the portal for each inbound SMS.
package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/b24bridge/smsbridge/internal/crm"
)

// ErrEmptyBody is returned when the message carries no text to deliver.
var ErrEmptyBody = errors.New("notify: empty message body")

// header opens every comment and notification this service writes. The
// tag inside it is what the tagged-only related-entity mode searches for.
const header = "📩 [SMSAPI] Inbound SMS"

// SMS is one inbound message after webhook parsing.
type SMS struct {
	From string
	To   string
	Body string
	// Date is the carrier timestamp, zero when the webhook omitted it.
	Date time.Time
}

// Composition is the rendered pair of texts for one message.
type Composition struct {
	// Comment goes onto CRM timelines verbatim.
	Comment string
	// Notification is the instant-message text: the comment plus a link
	// to the entity the message was threaded onto.
	Notification string
}

// Compose renders both texts. related selects the link target; when
// nothing related was found the link falls back to the matched contact's
// page. ErrEmptyBody is returned when the body trims to nothing, so the
// caller can reject the message before any portal write happens. A
// non-empty body is rendered exactly as received, whitespace included.
func Compose(sms SMS, related crm.RelatedEntity, contactID, domain string) (Composition, error) {
	if strings.TrimSpace(sms.Body) == "" {
		return Composition{}, ErrEmptyBody
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	fmt.Fprintf(&b, "From: %s\n", sms.From)
	if !sms.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", sms.Date.Format("2006-01-02 15:04:05"))
	}
	b.WriteString("\n")
	b.WriteString(sms.Body)
	comment := b.String()

	link := EntityLink(domain, related.Kind, related.ID)
	if !related.Found() {
		link = EntityLink(domain, crm.KindContact, contactID)
	}

	return Composition{Comment: comment, Notification: comment + "\n" + link}, nil
}

// EntityLink builds the portal detail-page URL for an entity.
func EntityLink(domain string, kind crm.EntityKind, id string) string {
	return fmt.Sprintf("https://%s/crm/%s/details/%s/", domain, kind, id)
}
