// Package email delivers login challenge codes. Codes are sent directly (log or
// SMTP) or queued on Kafka for the mailer worker.
package email

import (
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strconv"
	"time"

	"packtrack/internal/config"
)

// ErrUnsupportedEvent is returned for events a sender can't render
var ErrUnsupportedEvent = errors.New("unsupported email event")

// Sender sends emails
type Sender interface {
	SendMFACode(email, code string, ttl time.Duration) error
	SendEvent(event Event) error
}

// Config holds email configuration
type Config struct {
	Mode     string // "log" or "smtp"
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

// NewConfig reads email configuration from the environment
func NewConfig() *Config {
	port, _ := strconv.Atoi(config.GetEnvOrDefault("SMTP_PORT", "587"))

	return &Config{
		Mode:     config.GetEnvOrDefault("EMAIL_MODE", "log"),
		Host:     config.GetEnvOrDefault("SMTP_HOST", ""),
		Port:     port,
		User:     config.GetEnvOrDefault("SMTP_USER", ""),
		Password: config.GetEnvOrDefault("SMTP_PASSWORD", ""),
		From:     config.GetEnvOrDefault("SMTP_FROM", "noreply@packtrack.app"),
		FromName: config.GetEnvOrDefault("SMTP_FROM_NAME", "PackTrack"),
	}
}

// NewSender creates a sender based on configuration
func NewSender(cfg *Config) Sender {
	if cfg.Mode == "smtp" {
		return &smtpSender{config: cfg, send: smtp.SendMail}
	}
	return &logSender{}
}

func dispatch(s Sender, event Event) error {
	switch event.EventType {
	case EventTypeMFACode:
		code, ttl, ok := event.mfaCode()
		if !ok {
			return fmt.Errorf("invalid mfa_code data: %w", ErrUnsupportedEvent)
		}
		return s.SendMFACode(event.Recipient, code, ttl)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedEvent, event.EventType)
	}
}

// logSender writes codes to the log (development mode)
type logSender struct{}

func (s *logSender) SendMFACode(email, code string, ttl time.Duration) error {
	slog.Info("[DEV] MFA code", "email", email, "code", code, "expires_in", ttl.String())
	return nil
}

func (s *logSender) SendEvent(event Event) error {
	return dispatch(s, event)
}

// smtpSender sends emails via SMTP (production mode)
type smtpSender struct {
	config *Config
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (s *smtpSender) SendMFACode(email, code string, ttl time.Duration) error {
	message := fmt.Sprintf("From: %s <%s>\r\n", s.config.FromName, s.config.From)
	message += fmt.Sprintf("To: %s\r\n", email)
	message += "Subject: Your PackTrack login code\r\n"
	message += "MIME-Version: 1.0\r\n"
	message += "Content-Type: text/html; charset=UTF-8\r\n"
	message += "\r\n"
	message += buildMFABody(code, ttl)

	var auth smtp.Auth
	if s.config.User != "" {
		auth = smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	if err := s.send(addr, auth, s.config.From, []string{email}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	slog.Info("MFA code sent via SMTP", "email", email)
	return nil
}

func (s *smtpSender) SendEvent(event Event) error {
	return dispatch(s, event)
}

func buildMFABody(code string, ttl time.Duration) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="margin: 0 0 16px;">Your login code</h2>
    <div style="border: 2px solid #2f855a; border-radius: 8px; padding: 20px; text-align: center;">
        <span style="font-size: 32px; font-weight: bold; letter-spacing: 8px;">%s</span>
    </div>
    <p style="font-size: 14px; color: #666;">This code expires in <strong>%s</strong>.</p>
    <p style="font-size: 14px; color: #666;">If you didn't try to log in, you can ignore this email.</p>
</body>
</html>
`, code, humanDuration(ttl))
}

func humanDuration(d time.Duration) string {
	if d <= 0 {
		return "a few minutes"
	}
	if m := int(d.Minutes()); m >= 1 && d%time.Minute == 0 {
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
