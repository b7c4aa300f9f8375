package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

// ErrDeliveryDisabled signals that SMTP delivery is disabled via configuration.
// Callers treat it as a soft failure: the invitation link still works, it just
// has to be shared out of band.
var ErrDeliveryDisabled = errors.New("mail: delivery disabled")

// Message is a single outbound email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Mailer sends outbound email on behalf of the application.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSettings holds everything the SMTP mailer needs at runtime.
type SMTPSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

type dialFunc func(ctx context.Context, cfg SMTPSettings) (net.Conn, client, error)
type authFunc func(c client, cfg SMTPSettings) error

type smtpMailer struct {
	cfg  SMTPSettings
	dial dialFunc
	auth authFunc
}

// NewSMTPMailer validates the settings and returns a plain-text SMTP mailer.
func NewSMTPMailer(cfg SMTPSettings) (Mailer, error) {
	if cfg.Enabled {
		if strings.TrimSpace(cfg.Host) == "" {
			return nil, errors.New("mail: host is required when enabled")
		}
		if cfg.Port == 0 {
			return nil, errors.New("mail: port is required when enabled")
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &smtpMailer{cfg: cfg, dial: defaultDial, auth: defaultAuth}, nil
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled {
		return ErrDeliveryDisabled
	}

	recipients := dedupeAddresses(msg.To)
	if len(recipients) == 0 {
		return errors.New("mail: at least one recipient is required")
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = m.cfg.From
	}
	if from == "" {
		return errors.New("mail: sender address is required")
	}

	if _, err := mail.ParseAddress(from); err != nil {
		return fmt.Errorf("mail: invalid from address: %w", err)
	}
	for _, rcpt := range recipients {
		if _, err := mail.ParseAddress(rcpt); err != nil {
			return fmt.Errorf("mail: invalid recipient address %q: %w", rcpt, err)
		}
	}

	conn, c, err := m.dial(ctx, m.cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer c.Close()

	if err := m.auth(c, m.cfg); err != nil {
		return err
	}

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("mail: mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("mail: rcpt to %s: %w", rcpt, err)
		}
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("mail: data command: %w", err)
	}
	if _, err := io.WriteString(wc, formatMessage(from, recipients, msg.Subject, msg.Body)); err != nil {
		_ = wc.Close()
		return fmt.Errorf("mail: write body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("mail: close data writer: %w", err)
	}

	return c.Quit()
}

type client interface {
	Mail(string) error
	Rcpt(string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
	StartTLS(*tls.Config) error
	Auth(smtp.Auth) error
	Extension(string) (bool, string)
}

func defaultDial(ctx context.Context, cfg SMTPSettings) (net.Conn, client, error) {
	address := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dialer := &net.Dialer{Timeout: cfg.Timeout}

	var (
		conn net.Conn
		err  error
	)

	if cfg.UseTLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", address, &tls.Config{ServerName: cfg.Host})
	} else if ctx != nil {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.Dial("tcp", address)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("mail: dial %s: %w", address, err)
	}

	c, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("mail: new client: %w", err)
	}

	if !cfg.UseTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
				_ = c.Close()
				_ = conn.Close()
				return nil, nil, fmt.Errorf("mail: start tls: %w", err)
			}
		}
	}

	return conn, c, nil
}

func defaultAuth(c client, cfg SMTPSettings) error {
	if strings.TrimSpace(cfg.Username) == "" {
		return nil
	}
	if err := c.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
		return fmt.Errorf("mail: auth: %w", err)
	}
	return nil
}

func dedupeAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	var result []string
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, exists := seen[addr]; exists {
			continue
		}
		seen[addr] = struct{}{}
		result = append(result, addr)
	}
	return result
}

func formatMessage(from string, to []string, subject, body string) string {
	headers := []string{
		fmt.Sprintf("From: %s", from),
		fmt.Sprintf("To: %s", strings.Join(to, ", ")),
		fmt.Sprintf("Subject: %s", sanitizeHeader(subject)),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
	}

	return strings.Join(headers, "\r\n") + body
}

func sanitizeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return value
}
