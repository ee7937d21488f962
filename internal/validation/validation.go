// Package validation holds the request schemas accepted by the HTTP API.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/prn-tf/truly/internal/domain"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonFieldName)
	_ = validate.RegisterValidation("username", validateUsername)
	_ = validate.RegisterValidation("maxbytes", validateMaxBytes)
}

// jsonFieldName reports fields by their JSON name so messages match the request body.
func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

// validateUsername checks the public handle shape.
func validateUsername(fl validator.FieldLevel) bool {
	return domain.ValidUsername(fl.Field().String())
}

// validateMaxBytes bounds the byte length of a string, unlike max which counts runes.
func validateMaxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

// SignUpRequest is the body of POST /api/sign-up.
type SignUpRequest struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,maxbytes=72"`
}

// Validate checks the request against its schema.
func (r *SignUpRequest) Validate() error {
	r.Username = domain.NormalizeUsername(r.Username)
	r.Email = domain.NormalizeEmail(r.Email)
	return check(r, map[string]error{
		"username": domain.ErrInvalidUsername,
		"email":    domain.ErrInvalidEmail,
		"password.maxbytes": domain.ErrPasswordTooLong,
		"password":          domain.ErrInvalidPassword,
	})
}

// VerifyCodeRequest is the body of POST /api/verify-code.
type VerifyCodeRequest struct {
	Username string `json:"username" validate:"required"`
	Code     string `json:"code" validate:"required,len=6,number"`
}

// Validate checks the request against its schema.
func (r *VerifyCodeRequest) Validate() error {
	r.Username = domain.NormalizeUsername(r.Username)
	r.Code = strings.TrimSpace(r.Code)
	return check(r, map[string]error{
		"code": domain.NewValidationError("verification code must be 6 digits"),
	})
}

// SignInRequest is the body of POST /api/sign-in.
// Identifier is either the username or the email.
type SignInRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// Validate checks the request against its schema.
func (r *SignInRequest) Validate() error {
	r.Identifier = strings.TrimSpace(r.Identifier)
	return check(r, map[string]error{
		"identifier": domain.ErrMissingCredentials,
		"password":   domain.ErrMissingCredentials,
	})
}

// SendMessageRequest is the body of POST /api/send-message.
type SendMessageRequest struct {
	Username string `json:"username" validate:"required"`
	Content  string `json:"content" validate:"required,min=2,max=300"`
}

// Validate checks the request against its schema.
// Lengths are counted in characters, not bytes.
func (r *SendMessageRequest) Validate() error {
	r.Username = domain.NormalizeUsername(r.Username)
	return check(r, map[string]error{
		"content.required": domain.ErrMessageTooShort,
		"content.min":      domain.ErrMessageTooShort,
		"content.max":      domain.ErrMessageTooLong,
	})
}

// AcceptMessagesRequest is the body of POST /api/accept-messages.
type AcceptMessagesRequest struct {
	AcceptMessages *bool `json:"acceptMessages" validate:"required"`
}

// Validate checks the request against its schema.
func (r *AcceptMessagesRequest) Validate() error {
	return check(r, map[string]error{
		"acceptMessages": domain.NewValidationError("acceptMessages must be a boolean"),
	})
}

// UsernameQuery is the query of GET /api/check-username-unique.
type UsernameQuery struct {
	Username string `json:"username" validate:"required,username"`
}

// Validate checks the query against its schema.
func (q *UsernameQuery) Validate() error {
	q.Username = domain.NormalizeUsername(q.Username)
	return check(q, map[string]error{
		"username": domain.ErrInvalidUsername,
	})
}

// check validates v and converts the first failure into a domain validation error.
// overrides are looked up by "field.tag" first, then by "field".
func check(v interface{}, overrides map[string]error) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.NewValidationError("invalid request")
	}

	fe := verrs[0]
	if mapped, ok := overrides[fe.Field()+"."+fe.Tag()]; ok {
		return mapped
	}
	if mapped, ok := overrides[fe.Field()]; ok {
		return mapped
	}
	return domain.NewValidationError(describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", fe.Field(), fe.Param())
	case "number":
		return fmt.Sprintf("%s must contain only digits", fe.Field())
	case "email":
		return domain.ErrInvalidEmail.Error()
	case "username":
		return domain.ErrInvalidUsername.Error()
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
