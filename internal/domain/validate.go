package domain

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	phonePattern = regexp.MustCompile(`^[+]?[1-9]\d{0,15}$`)

	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator with the library's custom tags:
// category, member_status, role, phone, isbn_code and not_future_year.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		mustRegister(v, "category", func(fl validator.FieldLevel) bool {
			return Category(fl.Field().String()).Valid()
		})
		mustRegister(v, "member_status", func(fl validator.FieldLevel) bool {
			return MemberStatus(fl.Field().String()).Valid()
		})
		mustRegister(v, "role", func(fl validator.FieldLevel) bool {
			return Role(fl.Field().String()).Valid()
		})
		mustRegister(v, "phone", func(fl validator.FieldLevel) bool {
			return phonePattern.MatchString(fl.Field().String())
		})
		mustRegister(v, "isbn_code", func(fl validator.FieldLevel) bool {
			return validISBN(fl.Field().String())
		})
		mustRegister(v, "not_future_year", func(fl validator.FieldLevel) bool {
			return fl.Field().Int() <= int64(time.Now().Year())
		})
		validate = v
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

// validISBN accepts ISBN-10 and ISBN-13 with optional hyphens or spaces.
func validISBN(s string) bool {
	digits := strings.NewReplacer("-", "", " ", "").Replace(s)
	switch len(digits) {
	case 10:
		for i, r := range digits {
			if r >= '0' && r <= '9' {
				continue
			}
			if i == 9 && (r == 'X' || r == 'x') {
				continue
			}
			return false
		}
		return true
	case 13:
		for _, r := range digits {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	}
	return false
}

// Validate checks s against its validate tags and returns a KindValidation
// error listing the failing fields.
func Validate(s interface{}) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Kind: KindValidation, Message: "validation failed", Err: err}
	}

	fields := make(map[string]string, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
		names = append(names, fe.Field())
	}
	return &Error{
		Kind:    KindValidation,
		Message: "validation failed: " + strings.Join(names, ", "),
		Fields:  fields,
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "category":
		return "must be one of the catalog categories"
	case "member_status":
		return "must be active, inactive or suspended"
	case "role":
		return "must be admin, librarian or member"
	case "phone":
		return "must be a valid phone number"
	case "isbn_code":
		return "must be a 10 or 13 digit ISBN"
	case "not_future_year":
		return "cannot be in the future"
	default:
		return "is invalid"
	}
}
