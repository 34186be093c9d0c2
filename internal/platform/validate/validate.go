// Package validate plugs go-playground/validator into echo so handlers can
// call c.Validate on bound request bodies.
package validate

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var tenDigits = regexp.MustCompile(`^\d{10}$`)

// FieldError reports the request fields that failed validation, named by
// their json tags.
type FieldError struct {
	Fields []string
	Tags   []string
}

func (e *FieldError) Error() string {
	return "invalid fields: " + strings.Join(e.Fields, ", ")
}

// Has reports whether field failed any rule.
func (e *FieldError) Has(field string) bool {
	for _, f := range e.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Failed reports whether field failed the given rule.
func (e *FieldError) Failed(field, tag string) bool {
	for i, f := range e.Fields {
		if f == field && e.Tags[i] == tag {
			return true
		}
	}
	return false
}

type Validator struct {
	v *validator.Validate
}

// New returns a validator that names fields by json tag and knows the
// "phone10" rule.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("phone10", func(fl validator.FieldLevel) bool {
		return tenDigits.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// Validate implements echo.Validator.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fe := &FieldError{}
	for _, f := range verrs {
		fe.Fields = append(fe.Fields, f.Field())
		fe.Tags = append(fe.Tags, f.Tag())
	}
	return fe
}

// AsFieldError unwraps err into a *FieldError.
func AsFieldError(err error) (*FieldError, bool) {
	var fe *FieldError
	ok := errors.As(err, &fe)
	return fe, ok
}
