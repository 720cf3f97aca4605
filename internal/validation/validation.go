package validation

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// ErrInvalid is matched by every *Errors value.
var ErrInvalid = errors.New("validation failed")

// Errors maps a field path (json name, dotted for nested fields) to a message.
type Errors struct {
	Fields map[string]string
}

func (e *Errors) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrInvalid.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", key, e.Fields[key]))
	}
	return ErrInvalid.Error() + ": " + strings.Join(parts, "; ")
}

func (e *Errors) Unwrap() error {
	return ErrInvalid
}

// Has reports whether field failed.
func (e *Errors) Has(field string) bool {
	if e == nil {
		return false
	}
	_, ok := e.Fields[field]
	return ok
}

// Validator runs the form rules. It never performs I/O.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

var (
	stripPolicy     *bluemonday.Policy
	stripPolicyOnce sync.Once
)

// New builds a Validator. now is consulted for the scheduled-date rule.
func New(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	v := &Validator{validate: validator.New(validator.WithRequiredStructEnabled()), now: now}

	v.validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})

	mustRegister(v.validate.RegisterValidation("richmin", validateRichMin))
	mustRegister(v.validate.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return IsCategory(fl.Field().String())
	}))
	mustRegister(v.validate.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		return IsStatus(fl.Field().String())
	}))

	v.validate.RegisterStructValidation(v.articleRules, ArticleForm{})
	v.validate.RegisterStructValidation(userRules, UserForm{})
	return v
}

func mustRegister(err error) {
	if err != nil {
		panic(err)
	}
}

// Validate checks form and returns *Errors, or nil when every rule passes.
func (v *Validator) Validate(form any) error {
	err := v.validate.Struct(form)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validation: %w", err)
	}

	out := &Errors{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		field := fieldPath(fe.Namespace())
		if _, exists := out.Fields[field]; exists {
			continue
		}
		out.Fields[field] = message(field, fe)
	}
	return out
}

// EffectiveLength counts the characters a reader sees: tags removed, entities
// decoded and whitespace runs collapsed.
func EffectiveLength(body string) int {
	return utf8.RuneCountInString(PlainText(body))
}

// PlainText strips every tag from body.
func PlainText(body string) string {
	stripPolicyOnce.Do(func() {
		stripPolicy = bluemonday.StrictPolicy()
	})
	text := html.UnescapeString(stripPolicy.Sanitize(body))
	return strings.Join(strings.Fields(text), " ")
}

func validateRichMin(fl validator.FieldLevel) bool {
	var min int
	if _, err := fmt.Sscanf(fl.Param(), "%d", &min); err != nil {
		return false
	}
	return EffectiveLength(fl.Field().String()) >= min
}

// fieldPath drops the root struct name and any slice index:
// ArticleForm.domain[0] -> domain.
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		namespace = namespace[idx+1:]
	}
	if idx := strings.Index(namespace, "["); idx >= 0 {
		namespace = namespace[:idx]
	}
	return namespace
}

func message(field string, fe validator.FieldError) string {
	if text, ok := fieldMessages[field+"."+fe.Tag()]; ok {
		return text
	}
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "max":
		return fmt.Sprintf("Maximum %s characters", fe.Param())
	case "min":
		if fe.Kind() == reflect.Int || fe.Kind() == reflect.Ptr {
			return fmt.Sprintf("Minimum %s", fe.Param())
		}
		return fmt.Sprintf("Minimum %s characters", fe.Param())
	case "richmin":
		return fmt.Sprintf("Minimum %s characters", fe.Param())
	case "email":
		return "Invalid email"
	case "url":
		return "Enter a valid URL"
	case "oneof":
		return "Unsupported value"
	default:
		return "Invalid value"
	}
}

var fieldMessages = map[string]string{
	"title.required":       "Title is required",
	"title.max":            "Maximum 200 characters",
	"excerpt.max":          "Maximum 300 characters",
	"content.required":     "Content is required",
	"content.richmin":      "Minimum 100 characters",
	"category.required":    "Category is required",
	"category.category":    "Unknown category",
	"domain.required":      "Select at least one domain",
	"domain.min":           "Select at least one domain",
	"status.required":      "Status is required",
	"status.status":        "Unknown status",
	"scheduledAt.required": "Pick a publication date",
	"scheduledAt.future":   "Publication date must be in the future",
	"username.required":    "Username is required",
	"username.min":         "Minimum 3 characters",
	"email.required":       "Email is required",
	"password.required":    "Password is required",
	"password.min":         "Minimum 6 characters",
	"name.required":        "Domain name is required",
	"url.required":         "Domain URL is required",
	"login.required":       "Email or username is required",
	"count.min":            "Count must be between 1 and 50",
	"count.max":            "Count must be between 1 and 50",
	"text.required":        "Comment text is required",
}
