package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"strings"
	texttemplate "text/template"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/licensewatch/pkg/logger"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

var templateFuncs = map[string]any{
	"formatDate": formatDate,
}

// TemplateSender renders named templates and delivers them through a Mailer.
// Send never returns an error; delivery failures are logged and reported as false.
type TemplateSender struct {
	mailer Mailer
	from   string
	html   *htmltemplate.Template
	text   *texttemplate.Template
	log    *zap.Logger
}

// NewTemplateSender parses the embedded templates. An optional fsys overrides them.
func NewTemplateSender(mailer Mailer, from string, fsys ...fs.FS) (*TemplateSender, error) {
	if mailer == nil {
		return nil, errors.New("mail: mailer is required")
	}

	var source fs.FS = templateFS
	if len(fsys) > 0 && fsys[0] != nil {
		source = fsys[0]
	}

	html, err := htmltemplate.New("").Funcs(htmltemplate.FuncMap(templateFuncs)).ParseFS(source, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("mail: parse html templates: %w", err)
	}
	text, err := texttemplate.New("").Funcs(texttemplate.FuncMap(templateFuncs)).ParseFS(source, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("mail: parse text templates: %w", err)
	}

	return &TemplateSender{
		mailer: mailer,
		from:   strings.TrimSpace(from),
		html:   html,
		text:   text,
		log:    logger.WithModule("mail"),
	}, nil
}

// Render executes the html and text variants of templateName.
func (s *TemplateSender) Render(templateName string, vars map[string]any) (string, string, error) {
	var htmlBuf, textBuf bytes.Buffer
	if err := s.html.ExecuteTemplate(&htmlBuf, templateName+".html", vars); err != nil {
		return "", "", fmt.Errorf("mail: render %s.html: %w", templateName, err)
	}
	if err := s.text.ExecuteTemplate(&textBuf, templateName+".txt", vars); err != nil {
		return "", "", fmt.Errorf("mail: render %s.txt: %w", templateName, err)
	}
	return htmlBuf.String(), textBuf.String(), nil
}

// Send renders templateName with vars and delivers it to every address in to.
func (s *TemplateSender) Send(ctx context.Context, to []string, subject, templateName string, vars map[string]any) bool {
	return s.SendWithAttachments(ctx, to, subject, templateName, vars)
}

// SendWithAttachments behaves like Send and attaches the supplied files.
func (s *TemplateSender) SendWithAttachments(ctx context.Context, to []string, subject, templateName string, vars map[string]any, attachments ...Attachment) bool {
	html, text, err := s.Render(templateName, vars)
	if err != nil {
		s.log.Error("failed to render email", zap.String("template", templateName), zap.Error(err))
		return false
	}

	err = s.mailer.Send(ctx, Message{
		From:        s.from,
		To:          to,
		Subject:     subject,
		TextBody:    text,
		HTMLBody:    html,
		Attachments: attachments,
	})
	if err != nil {
		s.log.Warn("failed to send email",
			zap.String("template", templateName),
			zap.Strings("to", to),
			zap.Error(err),
		)
		return false
	}
	return true
}

func formatDate(value any) string {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format("2006-01-02")
	case *time.Time:
		if v == nil {
			return ""
		}
		return v.UTC().Format("2006-01-02")
	case fmt.Stringer:
		return v.String()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
