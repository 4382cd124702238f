// Package validator configures the validator engine behind gin's binding
// and turns its raw errors into field-keyed messages fit for a Problem
// response.
package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var trans ut.Translator

// InitValidator registers json tag names and english translations on the
// engine gin binds with. Call once at startup.
func InitValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	english := en.New()
	trans, _ = ut.New(english, english).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)
}

// ParseValidationError flattens binding errors into field -> message.
// Non-validation errors (malformed JSON and the like) collapse to a
// single body entry.
func ParseValidationError(err error) map[string]string {
	fields := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if ok := asValidationErrors(err, &validationErrors); !ok {
		fields["body"] = "Invalid request body format."
		return fields
	}

	for _, e := range validationErrors {
		fields[fieldName(e)] = messageFor(e)
	}
	return fields
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}

// fieldName strips the top-level struct name from the namespace so nested
// fields read as "parameters.max_tokens" rather than
// "GenerateRequest.parameters.max_tokens".
func fieldName(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i != -1 {
		return ns[i+1:]
	}
	return ns
}

func messageFor(e validator.FieldError) string {
	switch e.Tag() {
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", strings.ReplaceAll(e.Param(), " ", ", "))
	case "required":
		return "is required"
	default:
		if trans != nil {
			return e.Translate(trans)
		}
		return fmt.Sprintf("failed %s validation", e.Tag())
	}
}
