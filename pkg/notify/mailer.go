// Package notify implements the Notification stage: for every ClientVuln
// with status=recorded and no report yet, it renders an HTML summary and
// emails it to the project's contact.
package notify

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
)

// MailerConfig configures the SMTP relay used to send notifications. No
// third-party library in the corpus wraps net/smtp with anything VulnSentinel
// needs beyond what the standard library already provides (auth, STARTTLS),
// so the mailer talks to the relay directly.
type MailerConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Mailer sends rendered notification emails over SMTP.
type Mailer struct {
	cfg MailerConfig
}

// NewMailer builds a Mailer from cfg.
func NewMailer(cfg MailerConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Send delivers an HTML email to a single recipient. Multiple recipients are
// not needed: each ClientVuln notifies exactly one project contact.
func (m *Mailer) Send(to, subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}

	headers := map[string]string{
		"From":         m.cfg.From,
		"To":           to,
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": `text/html; charset="UTF-8"`,
	}
	var b strings.Builder
	for k, v := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("\r\n")
	b.WriteString(htmlBody)

	if m.cfg.Port == 465 {
		return m.sendImplicitTLS(addr, auth, to, []byte(b.String()))
	}
	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(b.String()))
}

// sendImplicitTLS handles the legacy SMTPS port (465), which expects TLS
// established before any SMTP handshake rather than an in-band STARTTLS
// upgrade — smtp.SendMail only supports the latter.
func (m *Mailer) sendImplicitTLS(addr string, auth smtp.Auth, to string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.cfg.Host})
	if err != nil {
		return fmt.Errorf("dial smtp tls: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}
