package mailer

import (
	"fmt"
	"net/smtp"

	"go.uber.org/zap"

	"github.com/noah-isme/seatdesk-api/pkg/config"
)

// Mailer sends transactional mail. With empty SMTP credentials it logs the
// message instead, which keeps local development working without a relay.
type Mailer struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
}

// New constructs a Mailer.
func New(cfg config.SMTPConfig, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{cfg: cfg, logger: logger}
}

// SendOTP delivers a signup verification code to the given address.
func (m *Mailer) SendOTP(toEmail, toName, code string) error {
	if m.cfg.Username == "" || m.cfg.Password == "" {
		m.logger.Warn("smtp credentials not configured, otp not sent",
			zap.String("email", toEmail),
			zap.String("code", code),
		)
		return nil
	}

	subject := "Your SeatDesk verification code"
	body := fmt.Sprintf(
		"Hello %s,\r\n\r\nYour verification code is %s. It expires shortly.\r\n\r\nIf you did not sign up for SeatDesk, ignore this message.\r\n",
		toName, code,
	)
	return m.send(toEmail, subject, body)
}

func (m *Mailer) send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	msg := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s",
		m.cfg.FromName, m.cfg.FromEmail, to, subject, body)

	if err := smtp.SendMail(addr, auth, m.cfg.FromEmail, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
