package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/adminkit/apiserver/config"
	"gopkg.in/gomail.v2"
)

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	cfg    config.MailConfig
	logger *slog.Logger
}

func NewSMTPSender(cfg config.MailConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger}
}

// Configured reports whether an SMTP host is set.
func (s *SMTPSender) Configured() bool {
	return strings.TrimSpace(s.cfg.SMTPHost) != ""
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if !s.Configured() {
		return errors.New("smtp host is not configured")
	}
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	d := gomail.NewDialer(s.cfg.SMTPHost, s.cfg.SMTPPort, s.cfg.SMTPUser, s.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	s.logger.Info("email sent", slog.String("to", msg.To), slog.String("subject", msg.Subject))
	return nil
}
