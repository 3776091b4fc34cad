// Package mail delivers OTP codes and security alerts by email.
package mail

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Mailer sends authentication mail. Delivery is best-effort; callers decide
// whether a failure is fatal for their flow.
type Mailer interface {
	SendOtpCode(ctx context.Context, to, name, code string) error
	SendLoginAlert(ctx context.Context, to, name, ip string) error
}

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	host string
	port string
	user string
	pass string
	from string
}

// NewSMTPMailer creates an SMTP-backed mailer.
func NewSMTPMailer(host, port, user, pass, from string) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, user: user, pass: pass, from: from}
}

// SendOtpCode emails the one-time login code.
func (m *SMTPMailer) SendOtpCode(ctx context.Context, to, name, code string) error {
	subject := "Classigoo - Your OTP for authentication"
	body := fmt.Sprintf(
		"Hi %s,\r\n"+
			"We have received a one time password generation request from your email address. "+
			"Please use the code below to complete your authentication. "+
			"Your code is valid for the next 5 minutes.\r\n\r\n"+
			"Your one time login code is: %s\r\n\r\n"+
			"If it wasn't you who requested this code, then avoid this email.\r\n\r\n"+
			"Regards,\r\nTeam Classigoo",
		displayName(name), code)
	return m.send(to, subject, body)
}

// SendLoginAlert emails the new-login security notice.
func (m *SMTPMailer) SendLoginAlert(ctx context.Context, to, name, ip string) error {
	subject := fmt.Sprintf("Classigoo - New login detected from %s", ip)
	body := fmt.Sprintf(
		"Hi %s,\r\n"+
			"A new login to your account was detected from %s. "+
			"If this was you, no action is needed. "+
			"Otherwise please visit the security center to review logged-in devices.\r\n\r\n"+
			"Regards,\r\nTeam Classigoo",
		displayName(name), ip)
	return m.send(to, subject, body)
}

func (m *SMTPMailer) send(to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}
	addr := m.host + ":" + m.port
	if err := smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", maskAddr(to), err)
	}
	return nil
}

// LogMailer logs instead of sending; used in dev mode and tests.
type LogMailer struct{}

// SendOtpCode logs the code delivery.
func (LogMailer) SendOtpCode(ctx context.Context, to, name, code string) error {
	log.Printf("mail (dev): otp code for %s: %s", maskAddr(to), code)
	return nil
}

// SendLoginAlert logs the alert delivery.
func (LogMailer) SendLoginAlert(ctx context.Context, to, name, ip string) error {
	log.Printf("mail (dev): login alert for %s from %s", maskAddr(to), ip)
	return nil
}

func displayName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

// maskAddr redacts the local part of an address for logs and errors.
func maskAddr(addr string) string {
	at := strings.Index(addr, "@")
	if at <= 0 {
		return "****"
	}
	if at <= 2 {
		return "**" + addr[at:]
	}
	return addr[:2] + strings.Repeat("*", at-2) + addr[at:]
}
