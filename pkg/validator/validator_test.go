package validator

import (
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type registerPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"password"`
	FullName string `json:"full_name" validate:"max=255"`
}

type devicePayload struct {
	ServiceTag string `json:"service_tag" validate:"required,servicetag"`
}

func TestValidateStructSuccess(t *testing.T) {
	err := ValidateStruct(registerPayload{
		Email:    "owner@example.com",
		Password: "correct-horse",
		FullName: "Device Owner",
	})
	require.NoError(t, err)
}

func TestValidateStructFailures(t *testing.T) {
	err := ValidateStruct(registerPayload{
		Email:    "invalid",
		Password: "short",
	})
	require.Error(t, err)

	vErrs, ok := err.(ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	require.Len(t, vErrs, 2)

	fields := []string{vErrs[0].Field, vErrs[1].Field}
	require.ElementsMatch(t, []string{"email", "password"}, fields)
	require.Contains(t, vErrs.Error(), "email failed on email")
}

func TestValidPasswordBounds(t *testing.T) {
	require.False(t, ValidPassword(strings.Repeat("a", 7)))
	require.True(t, ValidPassword(strings.Repeat("a", 8)))
	require.True(t, ValidPassword(strings.Repeat("a", 40)))
	require.False(t, ValidPassword(strings.Repeat("a", 41)))
}

func TestServiceTagRule(t *testing.T) {
	require.NoError(t, ValidateStruct(devicePayload{ServiceTag: "ABC123-X"}))
	require.Error(t, ValidateStruct(devicePayload{ServiceTag: " spaced tag"}))
	require.Error(t, ValidateStruct(devicePayload{ServiceTag: strings.Repeat("A", 101)}))
}

func TestExpiryDateAndTOTPRules(t *testing.T) {
	type payload struct {
		Expires string `json:"expiration_date" validate:"required,expirydate"`
		Code    string `json:"code" validate:"omitempty,totp"`
	}

	require.NoError(t, ValidateStruct(payload{Expires: "2025-03-01", Code: "012345"}))
	require.NoError(t, ValidateStruct(payload{Expires: "2025-03-01T10:00:00+02:00"}))

	err := ValidateStruct(payload{Expires: "next tuesday", Code: "12a456"})
	var failures ValidationErrors
	require.ErrorAs(t, err, &failures)
	require.Equal(t, ValidationErrors{
		{Field: "expiration_date", Tag: "expirydate"},
		{Field: "code", Tag: "totp"},
	}, failures)
}

func TestParseDate(t *testing.T) {
	day, err := ParseDate(" 2025-03-01 ")
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), day)

	stamp, err := ParseDate("2025-03-01T10:00:00+02:00")
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), stamp)

	_, err = ParseDate("01/03/2025")
	require.ErrorIs(t, err, ErrInvalidDate)
}

func TestValidTOTPCode(t *testing.T) {
	require.True(t, ValidTOTPCode("000000"))
	require.False(t, ValidTOTPCode("12345"))
	require.False(t, ValidTOTPCode("１２３４５６"))
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("urgency", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "low", "medium", "high":
			return true
		}
		return false
	})
	require.NoError(t, err)

	type custom struct {
		Value string `validate:"urgency"`
	}

	require.NoError(t, ValidateStruct(custom{Value: "high"}))
	require.Error(t, ValidateStruct(custom{Value: "urgent"}))
}
