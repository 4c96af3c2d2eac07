package leads

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/brokerage/internal/errors"
	"github.com/conneroisu/brokerage/internal/logging"
)

// Message is a notification email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Mailer delivers notification messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Notification builds the message sent to the agency for lead.
func Notification(lead *Lead, formTitle, from, to string) Message {
	if formTitle == "" {
		formTitle = lead.FormID
	}

	keys := make([]string, 0, len(lead.Fields))
	for k := range lead.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "New %s submission\n\n", formTitle)
	for _, k := range keys {
		if lead.Fields[k] == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", k, lead.Fields[k])
	}
	fmt.Fprintf(&b, "\nLead ID: %s\nReceived: %s\n", lead.ID, lead.CreatedAt.Format(time.RFC1123))

	subject := "New website lead: " + formTitle
	if name := leadName(lead.Fields); name != "" {
		subject += " from " + name
	}

	return Message{
		From:    from,
		To:      []string{to},
		Subject: subject,
		Body:    b.String(),
	}
}

func leadName(fields map[string]string) string {
	if name := fields["name"]; name != "" {
		return name
	}
	return strings.TrimSpace(fields["first_name"] + " " + fields["last_name"])
}

// LogMailer writes messages to the log instead of sending them. It is the
// development default.
type LogMailer struct {
	logger logging.Logger
}

// NewLogMailer returns a LogMailer writing to logger.
func NewLogMailer(logger logging.Logger) *LogMailer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogMailer{logger: logger.WithComponent("mailer")}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.Info(ctx, "notification email",
		"from", msg.From,
		"to", strings.Join(msg.To, ","),
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}

// SMTPConfig configures an SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// SMTPMailer sends messages through an SMTP relay, using STARTTLS when the
// server offers it.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer returns a mailer for cfg.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return mailError("connecting to mail server", err, addr)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return mailError("starting smtp session", err, addr)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig(m.cfg.Host)); err != nil {
			return mailError("starting tls", err, addr)
		}
	}
	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return mailError("authenticating", err, addr)
		}
	}

	if err := client.Mail(msg.From); err != nil {
		return mailError("setting sender", err, addr)
	}
	for _, to := range msg.To {
		if err := client.Rcpt(to); err != nil {
			return mailError("adding recipient", err, addr)
		}
	}

	w, err := client.Data()
	if err != nil {
		return mailError("opening message body", err, addr)
	}
	if _, err := w.Write(formatMessage(msg, time.Now())); err != nil {
		w.Close()
		return mailError("writing message", err, addr)
	}
	if err := w.Close(); err != nil {
		return mailError("finishing message", err, addr)
	}

	return client.Quit()
}

func tlsConfig(host string) *tls.Config {
	return &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
}

func mailError(msg string, cause error, addr string) error {
	return errors.Wrap(cause, errors.ErrorTypeInternal, errors.ErrCodeMailFailed, msg).WithContext("addr", addr)
}

// formatMessage renders msg as an RFC 5322 message with CRLF line endings.
func formatMessage(msg Message, now time.Time) []byte {
	var b strings.Builder
	header := func(k, v string) {
		b.WriteString(k + ": " + stripCRLF(v) + "\r\n")
	}

	header("From", msg.From)
	header("To", strings.Join(msg.To, ", "))
	header("Subject", msg.Subject)
	header("Date", now.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	b.WriteString("\r\n")

	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	return []byte(b.String())
}

// stripCRLF keeps submitted values from injecting extra headers.
func stripCRLF(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
