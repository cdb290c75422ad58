package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ErrEmptyBody is returned when a request requiring a body has none.
var ErrEmptyBody = errors.New("request body is empty")

// DecodeJSON decodes the request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrEmptyBody
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// ValidateRequest validates v with the shared struct validator. Types
// implementing their own Validate method are validated with that instead.
func ValidateRequest(v any) error {
	if custom, ok := v.(interface{ Validate() error }); ok {
		return custom.Validate()
	}
	return validate.Struct(v)
}
