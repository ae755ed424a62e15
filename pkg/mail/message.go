package mail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

var (
	// ErrSMTPDisabled is returned by Send when delivery is switched off.
	ErrSMTPDisabled = errors.New("mail: smtp delivery disabled")
	// ErrNoRecipients is returned for messages without a usable To address.
	ErrNoRecipients = errors.New("mail: at least one recipient is required")
)

// Message is an outbound email. TextBody, HTMLBody or both may be set.
type Message struct {
	From        string
	To          []string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Attachment is a file carried alongside the message body.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// draft is a composed message together with its SMTP envelope.
type draft struct {
	from  string
	to    []string
	email *gomail.Message
}

func newDraft(defaultFrom string, msg Message, now time.Time) (*draft, error) {
	sender, err := parseSender(defaultFrom, msg.From)
	if err != nil {
		return nil, err
	}
	recipients, err := parseRecipients(msg.To)
	if err != nil {
		return nil, err
	}

	email := gomail.NewMessage()
	d := &draft{from: sender.Address, email: email}

	to := make([]string, len(recipients))
	for i, addr := range recipients {
		to[i] = email.FormatAddress(addr.Address, addr.Name)
		d.to = append(d.to, addr.Address)
	}
	email.SetAddressHeader("From", sender.Address, sender.Name)
	email.SetHeader("To", to...)
	email.SetHeader("Subject", singleLine(msg.Subject))
	email.SetHeader("Message-ID", messageID(sender.Address))
	email.SetDateHeader("Date", now)

	switch {
	case msg.HTMLBody == "":
		email.SetBody("text/plain", msg.TextBody)
	case msg.TextBody == "":
		email.SetBody("text/html", msg.HTMLBody)
	default:
		email.SetBody("text/plain", msg.TextBody)
		email.AddAlternative("text/html", msg.HTMLBody)
	}

	for _, att := range msg.Attachments {
		attach(email, att)
	}
	return d, nil
}

// writeTo renders the RFC 5322 message.
func (d *draft) writeTo(w io.Writer) error {
	if _, err := d.email.WriteTo(w); err != nil {
		return fmt.Errorf("mail: write message: %w", err)
	}
	return nil
}

func parseSender(defaultFrom, from string) (*mail.Address, error) {
	from = strings.TrimSpace(from)
	if from == "" {
		from = strings.TrimSpace(defaultFrom)
	}
	if from == "" {
		return nil, errors.New("mail: sender address is required")
	}
	sender, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("mail: invalid from address: %w", err)
	}
	return sender, nil
}

// parseRecipients drops blanks and repeats of the same mailbox, ignoring case.
func parseRecipients(raw []string) ([]*mail.Address, error) {
	var out []*mail.Address
	seen := make(map[string]struct{}, len(raw))
	for _, value := range raw {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		addr, err := mail.ParseAddress(value)
		if err != nil {
			return nil, fmt.Errorf("mail: invalid recipient address %q: %w", value, err)
		}
		key := strings.ToLower(addr.Address)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	if len(out) == 0 {
		return nil, ErrNoRecipients
	}
	return out, nil
}

func attach(email *gomail.Message, att Attachment) {
	name := singleLine(att.Filename)
	settings := []gomail.FileSetting{
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(att.Data)
			return err
		}),
	}
	if att.ContentType != "" {
		settings = append(settings, gomail.SetHeader(map[string][]string{
			"Content-Type": {mime.FormatMediaType(att.ContentType, map[string]string{"name": name})},
		}))
	}
	email.Attach(name, settings...)
}

func messageID(sender string) string {
	domain := "localhost"
	if at := strings.LastIndexByte(sender, '@'); at >= 0 && at < len(sender)-1 {
		domain = sender[at+1:]
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}

func singleLine(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}
