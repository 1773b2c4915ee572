package fracas

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// ValidationError describes a single invalid field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Tag     string `json:"tag"`
}

// ValidationErrors is a collection of invalid fields of a request
type ValidationErrors []ValidationError

// Error implements the error interface
func (v ValidationErrors) Error() string {
	messages := make([]string, 0, len(v))
	for _, err := range v {
		messages = append(messages, err.Message)
	}
	return strings.Join(messages, "; ")
}

// ByField returns messages keyed by field name, for rendering next to form inputs
func (v ValidationErrors) ByField() map[string]string {
	res := make(map[string]string, len(v))
	for _, err := range v {
		if _, ok := res[err.Field]; !ok {
			res[err.Field] = err.Message
		}
	}
	return res
}

// fieldError makes a single-field validation error
func fieldError(field, tag, msg string) ValidationErrors {
	return ValidationErrors{{Field: field, Tag: tag, Message: msg}}
}

// Validator checks request structs by their validate tags
type Validator struct {
	validate *validator.Validate
	parser   cron.Parser
}

// NewValidator makes validator with field names taken from json tags and domain-specific tags registered
func NewValidator(parser cron.Parser) *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	res := &Validator{validate: v, parser: parser}
	err := registerTags(v, []customTag{{"notblank", validateNotBlank}, {"cronspec", res.validateCronSpec}})
	if err != nil {
		panic(err) // tags are static, a failure here is a programming error
	}
	return res
}

type customTag struct {
	tag string
	fn  validator.Func
}

// registerTags adds custom validation tags, fails on the first tag validator refuses
func registerTags(v *validator.Validate, tags []customTag) error {
	for _, t := range tags {
		if err := v.RegisterValidation(t.tag, t.fn); err != nil {
			return fmt.Errorf("failed to register validation %q: %w", t.tag, err)
		}
	}
	return nil
}

// Validate checks the struct, returns ValidationErrors for invalid fields
func (v *Validator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate: %w", err)
	}
	res := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		res = append(res, ValidationError{Field: fe.Field(), Message: msgForTag(fe), Tag: fe.Tag()})
	}
	return res
}

func msgForTag(fe validator.FieldError) string {
	field := fe.Field()

	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "cronspec":
		return fmt.Sprintf("%s must be a valid cron schedule, e.g. \"0 6 * * 1\" or \"@monthly\"", field)
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func (v *Validator) validateCronSpec(fl validator.FieldLevel) bool {
	_, err := v.parser.Parse(fl.Field().String())
	return err == nil
}
