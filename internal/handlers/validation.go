package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/licensewatch/pkg/errors"
	"github.com/charlesng35/licensewatch/pkg/response"
	appValidator "github.com/charlesng35/licensewatch/pkg/validator"
)

const invalidPayload = "invalid request payload"

// fieldError is one entry of the details list returned with a validation failure.
type fieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

var ruleMessages = map[string]func(field, param string) string{
	"required": func(f, _ string) string { return f + " is required" },
	"email":    func(f, _ string) string { return f + " must be a valid email address" },
	"min":      func(f, p string) string { return fmt.Sprintf("%s must be at least %s characters", f, p) },
	"max":      func(f, p string) string { return fmt.Sprintf("%s must be at most %s characters", f, p) },
	"uuid4":    func(f, _ string) string { return f + " must be a valid UUID" },
	"oneof":    func(f, p string) string { return fmt.Sprintf("%s must be one of: %s", f, p) },
	"password": func(f, _ string) string {
		return fmt.Sprintf("%s must be between %d and %d characters", f, appValidator.PasswordMinLength, appValidator.PasswordMaxLength)
	},
	"servicetag": func(f, _ string) string {
		return f + " may only contain letters, digits, '-', '_' and '.'"
	},
	"expirydate": func(f, _ string) string { return f + " must be YYYY-MM-DD or RFC 3339" },
	"totp":       func(f, _ string) string { return f + " must be a 6 digit code" },
}

// bindAndValidate decodes the JSON body into dest and applies its validate tags.
// On failure it writes a 400 listing every offending field and returns false.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		message, details := describeValidationError(err)
		response.ErrorWithDetails(c, appErrors.NewBadRequest(message), details)
		return false
	}
	return true
}

func describeValidationError(err error) (string, []fieldError) {
	var failures appValidator.ValidationErrors
	if !errors.As(err, &failures) || len(failures) == 0 {
		return invalidPayload, nil
	}

	details := make([]fieldError, 0, len(failures))
	messages := make([]string, 0, len(failures))
	for _, failure := range failures {
		field := prettifyFieldName(failure.Field)
		message := ruleMessage(field, failure.Tag, failure.Param)
		details = append(details, fieldError{Field: failure.Field, Rule: failure.Tag, Message: message})
		messages = append(messages, message)
	}
	return strings.Join(messages, "; "), details
}

func ruleMessage(field, rule, param string) string {
	if format, ok := ruleMessages[rule]; ok {
		return format(field, param)
	}
	if param != "" {
		return fmt.Sprintf("%s failed validation: %s=%s", field, rule, param)
	}
	return fmt.Sprintf("%s failed validation: %s", field, rule)
}

// prettifyFieldName turns a json field name such as service_tag into "service tag".
func prettifyFieldName(name string) string {
	if name == "" {
		return "field"
	}
	return strings.ToLower(strings.ReplaceAll(name, "_", " "))
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBoolQuery(c *gin.Context, key string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return err == nil && parsed
}
