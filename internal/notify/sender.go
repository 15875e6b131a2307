package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/kmun/registration-service/internal/config"
)

// Message is a rendered email ready for delivery.
type Message struct {
	Provider string
	To       string
	Subject  string
	HTML     string
	Text     string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers through one SMTP account per provider.
type SMTPSender struct {
	senderName      string
	defaultProvider string
	providers       map[string]config.SMTPConfig
}

// NewSender returns an SMTP sender when at least one provider has a host and
// credentials, and a logging sender otherwise.
func NewSender(cfg config.NotificationConfig, logger *zap.Logger) Sender {
	configured := map[string]config.SMTPConfig{}
	for name, p := range cfg.Providers {
		if p.Host != "" && p.Username != "" {
			configured[name] = p
		}
	}
	if len(configured) == 0 {
		logger.Warn("no SMTP provider configured; notifications will only be logged")
		return NewLogSender(logger)
	}
	return &SMTPSender{senderName: cfg.SenderName, defaultProvider: cfg.DefaultProvider, providers: configured}
}

// Send builds a multipart message and delivers it.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	provider, cfg, err := s.provider(msg.Provider)
	if err != nil {
		return err
	}

	m := mail.NewMsg()
	if err := m.FromFormat(s.senderName, cfg.From); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}

	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("smtp client for %s: %w", provider, err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send via %s: %w", provider, err)
	}
	return nil
}

func (s *SMTPSender) provider(name string) (string, config.SMTPConfig, error) {
	if name == "" {
		name = s.defaultProvider
	}
	if cfg, ok := s.providers[name]; ok {
		return name, cfg, nil
	}
	if cfg, ok := s.providers[s.defaultProvider]; ok {
		return s.defaultProvider, cfg, nil
	}
	for fallback, cfg := range s.providers {
		return fallback, cfg, nil
	}
	return "", config.SMTPConfig{}, fmt.Errorf("no smtp provider available for %q", name)
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the envelope. Bodies are omitted since they may carry credentials.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("notification delivered to log",
		zap.String("provider", msg.Provider),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}
