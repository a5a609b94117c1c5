package dispatch

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/model"
)

// EmailConfig holds SMTP settings for the email channel.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// EmailChannel delivers alerts over SMTP.
type EmailChannel struct {
	logger *zap.Logger
	config EmailConfig
}

// NewEmailChannel creates the email channel.
func NewEmailChannel(logger *zap.Logger, config EmailConfig) *EmailChannel {
	return &EmailChannel{
		logger: logger.Named("email"),
		config: config,
	}
}

func (c *EmailChannel) Name() string { return "email" }

// Send formats and sends one alert email to every configured
// recipient.
func (c *EmailChannel) Send(ctx context.Context, entry *model.AlertQueueEntry) error {
	if c.config.Host == "" || c.config.From == "" || len(c.config.To) == 0 {
		return ErrNotConfigured
	}

	var auth smtp.Auth
	if c.config.Username != "" {
		auth = smtp.PlainAuth("", c.config.Username, c.config.Password, c.config.Host)
	}

	subject := fmt.Sprintf("[%s] %s alert: %s",
		strings.ToUpper(string(entry.Priority)), entry.Type, entry.SubjectID)
	msg := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n"+
		"\r\n"+
		"Subject: %s %s\r\n"+
		"Raised: %s\r\n"+
		"Attempt: %d\r\n",
		c.config.From,
		strings.Join(c.config.To, ", "),
		subject,
		entry.Message,
		entry.SubjectKind, entry.SubjectID,
		entry.CreatedAt.Format(time.RFC3339),
		entry.RetryCount+1)

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	if err := smtp.SendMail(addr, auth, c.config.From, c.config.To, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	c.logger.Info("Alert email sent",
		zap.String("entry_id", entry.ID),
		zap.Int("recipients", len(c.config.To)))
	return nil
}
