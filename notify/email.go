// Package notify delivers the daily summary by email.
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"stream-tracker/config"
	"stream-tracker/models"
	"stream-tracker/services"
	"stream-tracker/utils"
)

// ErrNotConfigured is returned when sender credentials are missing.
var ErrNotConfigured = errors.New("notify: sender email or password not set")

const dialTimeout = 30 * time.Second

// EmailNotifier sends the summary over SMTP with STARTTLS and PLAIN auth.
type EmailNotifier struct {
	cfg     *config.Config
	logger  *utils.Logger
	summary *services.SummaryService
}

// NewEmailNotifier creates a notifier from cfg.
func NewEmailNotifier(cfg *config.Config, logger *utils.Logger) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, logger: logger, summary: services.NewSummaryService(logger)}
}

// recipient defaults to the sender, as a report to self.
func (n *EmailNotifier) recipient() string {
	if n.cfg.SummaryRecipient != "" {
		return n.cfg.SummaryRecipient
	}
	return n.cfg.SenderEmail
}

// SendSummary renders report and mails it.
func (n *EmailNotifier) SendSummary(ctx context.Context, report *models.SummaryReport) error {
	if !n.cfg.EmailEnabled() {
		n.logger.Warn("[notify] Skipping email: SENDER_EMAIL or SENDER_PASSWORD not set")
		return ErrNotConfigured
	}
	subject := "Stream Tracker Daily Summary - " + models.FormatDay(report.Day)
	msg := buildMessage(n.cfg.SenderEmail, n.recipient(), subject, n.summary.Render(report))
	if err := n.send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send summary: %w", err)
	}
	n.logger.Info("[notify] Summary sent to %s", n.recipient())
	return nil
}

func buildMessage(from, to, subject, body string) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return msg.String()
}

func (n *EmailNotifier) send(ctx context.Context, msg string) error {
	host := n.cfg.SMTPServer
	addr := net.JoinHostPort(host, fmt.Sprint(n.cfg.SMTPPort))

	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.StartTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}); err != nil {
		return fmt.Errorf("start tls: %w", err)
	}
	if err := client.Auth(smtp.PlainAuth("", n.cfg.SenderEmail, n.cfg.SenderPassword, host)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(n.cfg.SenderEmail); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(n.recipient()); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	_ = client.Quit()
	return nil
}
