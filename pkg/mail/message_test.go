package mail

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var composeTime = time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)

func render(t *testing.T, msg Message) []byte {
	t.Helper()
	d, err := newDraft("LicenseWatch <noreply@example.com>", msg, composeTime)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, d.writeTo(&buf))
	return buf.Bytes()
}

func TestComposePlainText(t *testing.T) {
	msg := Message{To: []string{"owner@example.com"}, Subject: "Subject\r\nBcc: x@example.com", TextBody: "Expires on 2025-01-11"}
	payload := render(t, msg)

	parsed, err := mail.ReadMessage(bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "Subject  Bcc: x@example.com", parsed.Header.Get("Subject"))
	require.Empty(t, parsed.Header.Get("Bcc"))
	require.Equal(t, `"LicenseWatch" <noreply@example.com>`, parsed.Header.Get("From"))
	require.Equal(t, "owner@example.com", parsed.Header.Get("To"))
	require.True(t, strings.HasSuffix(parsed.Header.Get("Message-ID"), "@example.com>"))
	require.Equal(t, "text/plain; charset=UTF-8", parsed.Header.Get("Content-Type"))

	date, err := parsed.Header.Date()
	require.NoError(t, err)
	require.True(t, date.Equal(composeTime))

	body, err := io.ReadAll(parsed.Body)
	require.NoError(t, err)
	require.Equal(t, "Expires on 2025-01-11", string(body))
}

func TestComposeAlternativeWithAttachment(t *testing.T) {
	data := bytes.Repeat([]byte{0x1, 0x2, 0x3}, 100)
	msg := Message{
		To:       []string{"it@example.com"},
		Subject:  "Daily digest",
		TextBody: "plain body",
		HTMLBody: "<p>html body</p>",
		Attachments: []Attachment{{
			Filename:    "expiring_licenses.xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        data,
		}},
	}
	payload := render(t, msg)

	parsed, err := mail.ReadMessage(bytes.NewReader(payload))
	require.NoError(t, err)
	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/mixed", mediaType)

	parts := multipart.NewReader(parsed.Body, params["boundary"])

	body, err := parts.NextPart()
	require.NoError(t, err)
	altType, altParams, err := mime.ParseMediaType(body.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/alternative", altType)

	alt := multipart.NewReader(body, altParams["boundary"])
	var variants []string
	for {
		part, err := alt.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(part)
		require.NoError(t, err)
		variants = append(variants, string(content))
	}
	require.Equal(t, []string{"plain body", "<p>html body</p>"}, variants)

	attachment, err := parts.NextPart()
	require.NoError(t, err)
	require.Equal(t, "expiring_licenses.xlsx", attachment.FileName())
	raw, err := io.ReadAll(attachment)
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\r\n") {
		require.LessOrEqual(t, len(line), 76)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(raw), "\r\n", ""))
	require.NoError(t, err)
	require.Equal(t, data, decoded)
}

func TestComposeHTMLOnly(t *testing.T) {
	msg := Message{To: []string{"a@example.com"}, HTMLBody: "<b>café</b>"}
	payload := render(t, msg)
	require.Contains(t, string(payload), "Content-Type: text/html; charset=UTF-8")
	require.Contains(t, string(payload), "Content-Transfer-Encoding: quoted-printable")
	require.Contains(t, string(payload), "caf=C3=A9")
}

func TestNewDraftDeduplicatesRecipients(t *testing.T) {
	d, err := newDraft("noreply@example.com", Message{
		To: []string{"alice@example.com", "Bob <bob@example.com>", " ALICE@example.com ", "", "bob@example.com"},
	}, composeTime)
	require.NoError(t, err)
	require.Equal(t, "noreply@example.com", d.from)
	require.Equal(t, []string{"alice@example.com", "bob@example.com"}, d.to)

	var buf bytes.Buffer
	require.NoError(t, d.writeTo(&buf))
	parsed, err := mail.ReadMessage(&buf)
	require.NoError(t, err)
	to, err := parsed.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 2)
	require.Equal(t, "Bob", to[1].Name)
}
