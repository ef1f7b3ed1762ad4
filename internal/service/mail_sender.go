package service

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"referralhub/internal/config"
)

type MailSender interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

type smtpSender struct {
	cfg    config.SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPSender(cfg config.SMTPConfig) (MailSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("smtp port must be greater than 0")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, fmt.Errorf("smtp from_email is required")
	}
	if _, err := mail.ParseAddress(cfg.FromEmail); err != nil {
		return nil, fmt.Errorf("invalid smtp from_email: %w", err)
	}

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.SkipTLSVerify {
		d.TLSConfig = &tls.Config{ServerName: cfg.Host, InsecureSkipVerify: true}
	}
	return &smtpSender{cfg: cfg, dialer: d}, nil
}

func (s *smtpSender) Send(ctx context.Context, to string, subject string, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("recipient email is required")
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return fmt.Errorf("invalid recipient email: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	if strings.TrimSpace(s.cfg.FromName) != "" {
		m.SetAddressHeader("From", s.cfg.FromEmail, s.cfg.FromName)
	} else {
		m.SetHeader("From", s.cfg.FromEmail)
	}
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// logSender writes mails to the log instead of delivering them. Used when SMTP is not configured.
type logSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) MailSender {
	return &logSender{logger: logger}
}

func (s *logSender) Send(_ context.Context, to string, subject string, body string) error {
	s.logger.Info("mail not sent, smtp disabled",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}
