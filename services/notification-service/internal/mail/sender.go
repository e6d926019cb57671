package mail

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers plain text mail. Without credentials it talks to an
// unauthenticated relay such as Mailpit.
type SMTPSender struct {
	dialer   dialer
	from     string
	fromName string
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "no-reply@clinicazen.local"
	}
	fromName := cfg.FromName
	if fromName == "" {
		fromName = "Clínica Zen"
	}
	return &SMTPSender{
		dialer:   gomail.NewDialer(strings.TrimSpace(cfg.Host), cfg.Port, cfg.Username, cfg.Password),
		from:     from,
		fromName: fromName,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("send %q: empty recipient", msg.Subject)
	}
	if err := s.dialer.DialAndSend(s.build(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

func (s *SMTPSender) build(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetAddressHeader("To", msg.To, msg.ToName)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	return m
}
