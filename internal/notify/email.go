// Package notify delivers new-listing digests by email.
package notify

import (
	"crypto/tls"
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jordan-wright/email"

	"github.com/lotwatch/lotwatch/internal/listing"
	"github.com/lotwatch/lotwatch/internal/logger"
)

// SMTPConfig holds mail delivery settings. Incomplete settings disable the
// notifier rather than failing the run.
type SMTPConfig struct {
	Server    string
	Port      int
	User      string
	Password  string
	Recipient string
}

func (c SMTPConfig) complete() bool {
	return c.Server != "" && c.Port != 0 && c.User != "" && c.Password != "" && c.Recipient != ""
}

// Notifier sends one digest email per run covering every new listing.
type Notifier struct {
	cfg     SMTPConfig
	enabled bool
}

// New creates a Notifier. With incomplete SMTP settings the notifier is
// disabled: Send becomes a no-op and the condition is logged once here.
func New(cfg SMTPConfig) *Notifier {
	n := &Notifier{cfg: cfg, enabled: cfg.complete()}
	if !n.enabled {
		logger.Warn("smtp settings incomplete, notifications disabled")
	}
	return n
}

// Enabled reports whether the notifier will actually send mail.
func (n *Notifier) Enabled() bool {
	return n.enabled
}

// Verify dials the SMTP server and authenticates, without sending.
func (n *Notifier) Verify() error {
	if !n.enabled {
		return fmt.Errorf("notifier disabled")
	}
	c, err := smtp.Dial(n.addr())
	if err != nil {
		return fmt.Errorf("failed to reach smtp server: %w", err)
	}
	defer c.Close()
	if err := c.StartTLS(&tls.Config{ServerName: n.cfg.Server}); err != nil {
		return fmt.Errorf("failed to start tls: %w", err)
	}
	if err := c.Auth(n.auth()); err != nil {
		return fmt.Errorf("smtp authentication failed: %w", err)
	}
	return c.Quit()
}

// Send delivers one digest covering all listings. A disabled notifier
// returns an error so callers know the digest went nowhere; they log it
// and carry on.
func (n *Notifier) Send(listings []listing.Listing) error {
	if !n.enabled {
		return fmt.Errorf("notifier disabled")
	}
	if len(listings) == 0 {
		return nil
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("lotwatch <%s>", n.cfg.User)
	mail.To = []string{n.cfg.Recipient}
	mail.Subject = fmt.Sprintf("New car listings found (%d new)", len(listings))
	mail.HTML = []byte(digestBody(listings))

	if err := mail.Send(n.addr(), n.auth()); err != nil {
		return fmt.Errorf("failed to send digest: %w", err)
	}
	logger.Info("digest sent", "listings", len(listings), "to", n.cfg.Recipient)
	return nil
}

func (n *Notifier) addr() string {
	return fmt.Sprintf("%s:%d", n.cfg.Server, n.cfg.Port)
}

func (n *Notifier) auth() smtp.Auth {
	return smtp.PlainAuth("", n.cfg.User, n.cfg.Password, n.cfg.Server)
}

// digestBody renders the HTML digest: one block per listing with title,
// price, mileage, location, transmission, source tag, status and link.
func digestBody(listings []listing.Listing) string {
	var b strings.Builder
	b.WriteString(`<html><head><style>
body { font-family: Arial, sans-serif; margin: 20px; }
.listing { border: 1px solid #ddd; margin: 10px 0; padding: 15px; border-radius: 5px; background-color: #f9f9f9; }
.title { font-weight: bold; font-size: 16px; color: #333; }
.price { font-size: 18px; color: #2e7d32; font-weight: bold; }
.details { color: #666; margin: 5px 0; }
.source { display: inline-block; padding: 2px 8px; border-radius: 3px; font-size: 12px; font-weight: bold; background-color: #e3f2fd; color: #1976d2; }
.url a { color: #1976d2; text-decoration: none; }
</style></head><body>`)
	fmt.Fprintf(&b, "<h2>New car listings found</h2><p>%d new listings match your search:</p>", len(listings))

	for _, l := range listings {
		fmt.Fprintf(&b, `<div class="listing"><div class="title">%s</div><div class="price">%s</div>`,
			html.EscapeString(l.Title), priceString(l.Price))
		fmt.Fprintf(&b, `<div class="details"><strong>Year:</strong> %s | <strong>Mileage:</strong> %s | <strong>Location:</strong> %s</div>`,
			yearString(l.Year), mileageString(l.Mileage), html.EscapeString(orNA(l.Location)))
		fmt.Fprintf(&b, `<div class="details"><strong>Transmission:</strong> %s | <strong>Status:</strong> %s | <span class="source">%s</span></div>`,
			html.EscapeString(orNA(l.Transmission)), html.EscapeString(l.Status), html.EscapeString(l.Source))
		fmt.Fprintf(&b, `<div class="url"><a href="%s">View listing</a></div></div>`, html.EscapeString(l.URL))
	}

	b.WriteString(`<hr><p><em>Automated notification from lotwatch.</em></p></body></html>`)
	return b.String()
}

func priceString(p *int) string {
	if p == nil {
		return "Price N/A"
	}
	return "$" + humanize.Comma(int64(*p))
}

func mileageString(m *int) string {
	if m == nil {
		return "N/A"
	}
	return humanize.Comma(int64(*m)) + " miles"
}

func yearString(y *int) string {
	if y == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d", *y)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
