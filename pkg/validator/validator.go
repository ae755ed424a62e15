package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	PasswordMinLength = 8
	PasswordMaxLength = 40

	// DateLayout is the calendar-date form accepted for license expiry.
	DateLayout = "2006-01-02"

	serviceTagMaxLength = 100
	totpDigits          = 6
)

var (
	serviceTagPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

	// rules are the domain tags available in validate struct tags.
	rules = map[string]validator.Func{
		"password":   func(fl validator.FieldLevel) bool { return ValidPassword(fl.Field().String()) },
		"servicetag": func(fl validator.FieldLevel) bool { return ValidServiceTag(fl.Field().String()) },
		"expirydate": func(fl validator.FieldLevel) bool {
			_, err := ParseDate(fl.Field().String())
			return err == nil
		},
		"totp": func(fl validator.FieldLevel) bool { return ValidTOTPCode(fl.Field().String()) },
	}

	once     sync.Once
	validate *validator.Validate
)

// ErrInvalidDate is returned by ParseDate for unrecognised input.
var ErrInvalidDate = errors.New("date must be YYYY-MM-DD or RFC 3339")

// ValidationError is one field that failed a rule.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

// ValidationErrors lists every failing field of a struct.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	var b strings.Builder
	for i, failure := range v {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s failed on %s", failure.Field, failure.Tag)
		if failure.Param != "" {
			b.WriteString("=" + failure.Param)
		}
	}
	return b.String()
}

// ValidateStruct applies the validate tags of s. Field names in the result
// follow the json tags.
func ValidateStruct(s any) error {
	err := engine().Struct(s)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	failures := make(ValidationErrors, len(fieldErrs))
	for i, fe := range fieldErrs {
		failures[i] = ValidationError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()}
	}
	return failures
}

// ValidPassword reports whether the password length is within the accepted range.
func ValidPassword(password string) bool {
	n := utf8.RuneCountInString(password)
	return n >= PasswordMinLength && n <= PasswordMaxLength
}

// ValidServiceTag reports whether tag is a plausible hardware service tag.
func ValidServiceTag(tag string) bool {
	return len(tag) <= serviceTagMaxLength && serviceTagPattern.MatchString(tag)
}

// ValidTOTPCode reports whether code looks like a six digit authenticator code.
func ValidTOTPCode(code string) bool {
	if len(code) != totpDigits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseDate reads a license expiry as a calendar date or an RFC 3339
// timestamp, returning it in UTC.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{DateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// RegisterValidation adds a custom rule to the shared validator.
func RegisterValidation(tag string, fn validator.Func) error {
	return engine().RegisterValidation(tag, fn)
}

func engine() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
		for tag, fn := range rules {
			if err := validate.RegisterValidation(tag, fn); err != nil {
				panic(fmt.Sprintf("validator: register %q: %v", tag, err))
			}
		}
	})
	return validate
}

func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return field.Name
	}
	return name
}
