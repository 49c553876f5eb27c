package middleware

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type registrationPayload struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func decodePayload(t *testing.T, body string) error {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/users/register", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")

	var payload registrationPayload
	return DecodeAndValidate(req, &payload)
}

func TestProperty_MissingRequiredFieldsAreRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("a payload validates iff every required field is present", prop.ForAll(
		func(includeName, includeEmail, includePassword bool) bool {
			fields := []string{}
			if includeName {
				fields = append(fields, `"name":"Jo Smith"`)
			}
			if includeEmail {
				fields = append(fields, `"email":"jo@example.com"`)
			}
			if includePassword {
				fields = append(fields, `"password":"correct-horse"`)
			}

			err := decodePayload(t, "{"+strings.Join(fields, ",")+"}")

			allPresent := includeName && includeEmail && includePassword
			if allPresent {
				return err == nil
			}
			return err != nil
		},
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestFormatValidationErrorsNamesTheFields(t *testing.T) {
	err := decodePayload(t, `{"name":"Jo Smith","email":"not-an-email","password":"short"}`)
	if err == nil {
		t.Fatal("expected validation to fail")
	}

	fieldErrors := FormatValidationErrors(err)
	if len(fieldErrors) != 2 {
		t.Fatalf("got %d field errors, want 2: %+v", len(fieldErrors), fieldErrors)
	}

	byField := map[string]string{}
	for _, fe := range fieldErrors {
		byField[fe.Field] = fe.Message
	}
	if byField["Email"] != "Invalid email format" {
		t.Errorf("email message = %q", byField["Email"])
	}
	if byField["Password"] != "Value is too short" {
		t.Errorf("password message = %q", byField["Password"])
	}
}

func TestFormatValidationErrorsIgnoresDecodeErrors(t *testing.T) {
	err := decodePayload(t, `{"name":`)
	if err == nil {
		t.Fatal("expected a decode error")
	}

	if fieldErrors := FormatValidationErrors(err); len(fieldErrors) != 0 {
		t.Errorf("decode errors must not produce field errors, got %+v", fieldErrors)
	}
}

func TestMalformedJSONFailsBeforeValidation(t *testing.T) {
	if err := decodePayload(t, `not json at all`); err == nil {
		t.Fatal("expected malformed body to fail")
	}
}
