package alerts

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailTransport sends events over SMTP. Only the dispatch contract
// matters here; delivery retries are the mail system's problem.
type EmailTransport struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
}

// EmailConfig configures the SMTP transport.
type EmailConfig struct {
	Host     string
	Port     int
	From     string
	To       []string
	Username string
	Password string
}

// NewEmailTransport creates an SMTP transport.
func NewEmailTransport(cfg EmailConfig) (*EmailTransport, error) {
	if cfg.Host == "" || cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("email transport requires host, from and at least one recipient")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &EmailTransport{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth: auth,
		from: cfg.From,
		to:   cfg.To,
	}, nil
}

// Name identifies the transport in logs.
func (t *EmailTransport) Name() string {
	return "email"
}

// Send emails one event.
func (t *EmailTransport) Send(ctx context.Context, event *Event) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", t.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(t.to, ", "))
	fmt.Fprintf(&msg, "Subject: [webtrap] %s (%s)\r\n", event.Category, event.Severity)
	msg.WriteString("\r\n")
	fmt.Fprintf(&msg, "%s\n\nidentity: %s\nevent: %s\ntime: %s\n",
		event.Summary, event.Identity, event.ID, event.Timestamp.Format("2006-01-02 15:04:05 MST"))
	for k, v := range event.Details {
		fmt.Fprintf(&msg, "%s: %v\n", k, v)
	}

	if err := smtp.SendMail(t.addr, t.auth, t.from, t.to, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
