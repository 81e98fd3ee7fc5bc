package service

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/Joshh0TX/JB-Fitness/internal/config"
	"github.com/sirupsen/logrus"
)

// EmailSender delivers out-of-band messages. The OTP code only ever leaves
// the process through this interface.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

const OTPEmailSubject = "JBFitness Sign-in Verification Code"

// OTPEmailBody builds the verification message sent on login and resend.
func OTPEmailBody(username, code string) string {
	if username == "" {
		username = "there"
	}
	return fmt.Sprintf("Hi %s, your JBFitness verification code is %s. It expires in 10 minutes.", username, code)
}

type SMTPSender struct {
	cfg    *config.SMTPConfig
	logger *logrus.Logger
}

func NewSMTPSender(cfg *config.SMTPConfig, logger *logrus.Logger) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		logger: logger,
	}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if s.cfg.Host == "" || s.cfg.From == "" {
		return fmt.Errorf("email service is not configured")
	}

	msg := []byte("From: " + s.cfg.From + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" +
		body + "\r\n")

	addr := s.cfg.Host + ":" + s.cfg.Port

	var auth smtp.Auth
	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		s.logger.WithError(err).WithField("to", to).Error("Failed to send email")
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}
