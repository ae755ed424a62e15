package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const (
	defaultSMTPTimeout = 10 * time.Second
	implicitTLSPort    = 465
)

// SMTPSettings configure the SMTP transport.
type SMTPSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// UseTLS requires STARTTLS, or implicit TLS on port 465.
	UseTLS  bool
	Timeout time.Duration
}

// Validate reports missing settings. Disabled settings are always valid.
func (s SMTPSettings) Validate() error {
	if !s.Enabled {
		return nil
	}
	if strings.TrimSpace(s.Host) == "" {
		return errors.New("mail: smtp host is required when enabled")
	}
	if s.Port <= 0 {
		return errors.New("mail: smtp port is required when enabled")
	}
	return nil
}

// session is the subset of *smtp.Client used to deliver one message.
type session interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

type dialFunc func(ctx context.Context, cfg SMTPSettings) (session, error)

// SMTPMailer delivers each message over a fresh SMTP connection.
type SMTPMailer struct {
	cfg  SMTPSettings
	dial dialFunc
	now  func() time.Time
}

// NewSMTPMailer validates cfg. A disabled mailer answers every Send with ErrSMTPDisabled.
func NewSMTPMailer(cfg SMTPSettings) (*SMTPMailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	return &SMTPMailer{cfg: cfg, dial: dialSMTP, now: time.Now}, nil
}

// Send delivers msg. Messages without From use the configured sender.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled {
		return ErrSMTPDisabled
	}

	d, err := newDraft(m.cfg.From, msg, m.now())
	if err != nil {
		return err
	}

	s, err := m.dial(ctx, m.cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Mail(d.from); err != nil {
		return fmt.Errorf("mail: MAIL FROM: %w", err)
	}
	for _, rcpt := range d.to {
		if err := s.Rcpt(rcpt); err != nil {
			return fmt.Errorf("mail: RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := s.Data()
	if err != nil {
		return fmt.Errorf("mail: DATA: %w", err)
	}
	if err := d.writeTo(w); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mail: end DATA: %w", err)
	}
	return s.Quit()
}

// clientSession closes the connection early when the send context ends.
type clientSession struct {
	*smtp.Client
	stop func() bool
}

func (s clientSession) Close() error {
	s.stop()
	return s.Client.Close()
}

func dialSMTP(ctx context.Context, cfg SMTPSettings) (session, error) {
	address := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	tlsConfig := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	dialer := &net.Dialer{Timeout: cfg.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if cfg.Port == implicitTLSPort {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, fmt.Errorf("mail: dial %s: %w", address, err)
	}

	deadline := time.Now().Add(cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mail: smtp handshake: %w", err)
	}
	s := clientSession{Client: client, stop: context.AfterFunc(ctx, func() { _ = conn.Close() })}

	if cfg.Port != implicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("mail: STARTTLS: %w", err)
			}
		} else if cfg.UseTLS {
			_ = s.Close()
			return nil, errors.New("mail: server does not offer STARTTLS")
		}
	}

	if strings.TrimSpace(cfg.Username) != "" && cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("mail: auth: %w", err)
		}
	}
	return s, nil
}
