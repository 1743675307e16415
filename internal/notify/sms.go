package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// smsBodyWarnLen is the rough single-SMS limit; carriers may truncate or
// split longer messages and there is no client-side fix.
const smsBodyWarnLen = 160

// SMSSender delivers messages as email to a carrier's SMS gateway address
// (e.g. 1234567890@vtext.com).
type SMSSender struct {
	recipient string // gateway email address
	sender    string
	password  string
	host      string
	port      int
	logger    *slog.Logger

	// sendMail is swappable for tests; defaults to smtp.SendMail.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMSSender creates an SMS notifier. Returns nil when any required
// setting is missing (notifications via SMS disabled).
func NewSMSSender(recipient, sender, password, host string, port int, logger *slog.Logger) *SMSSender {
	if recipient == "" || sender == "" || password == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMSSender{
		recipient: recipient,
		sender:    sender,
		password:  password,
		host:      host,
		port:      port,
		logger:    logger,
		sendMail:  smtp.SendMail,
	}
}

// Send emails the message to the SMS gateway. The SMTP dialog uses STARTTLS
// and plain auth, which is what the Gmail submission port expects.
func (s *SMSSender) Send(ctx context.Context, subject, body string) error {
	if s == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(body) > smsBodyWarnLen {
		s.logger.Warn("SMS body exceeds single-message length, gateway may truncate", "len", len(body))
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.sender)
	fmt.Fprintf(&msg, "To: %s\r\n", s.recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	auth := smtp.PlainAuth("", s.sender, s.password, s.host)
	if err := s.sendMail(addr, auth, s.sender, []string{s.recipient}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send SMS via %s: %w", addr, err)
	}

	s.logger.Info("SMS notification sent", "to", s.recipient, "subject", subject)
	return nil
}
