// Валидация тел запросов API через go-playground/validator.
package ldapauth

import (
	"errors"
	"regexp"
	"unicode/utf8"

	"github.com/aisa-it/ldapauth/internal/ldapauth/apierrors"
	"github.com/go-playground/validator"
)

var (
	usernameRe = regexp.MustCompile(`^[a-z0-9_-]+$`)
	fullNameRe = regexp.MustCompile(`^[A-Za-zА-Яа-яёЁ .'-]+$`)
)

type RequestValidator struct {
	validator *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New()
	if err := v.RegisterValidation("username", usernameValidator); err != nil {
		return nil
	}
	if err := v.RegisterValidation("fullName", userFullNameValidator); err != nil {
		return nil
	}
	return &RequestValidator{v}
}

func (rv *RequestValidator) Validate(i interface{}) error {
	if err := rv.validator.Struct(i); err != nil {
		_, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil
		}
		return err
	}
	return nil
}

// Имя пользователя в том же алфавите, что и имена, полученные из каталога
func usernameValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	lenStr := utf8.RuneCountInString(value)
	if !usernameRe.MatchString(value) {
		return false
	}
	return lenStr >= 2 && lenStr <= 100
}

func userFullNameValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	lenStr := utf8.RuneCountInString(value)
	if !fullNameRe.MatchString(value) {
		return false
	}
	return lenStr >= 1 && lenStr <= 100
}

// validationError ошибка API для результата Validate.
func validationError(err error) apierrors.DefinedError {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			if fe.Field() == "Username" {
				return apierrors.ErrInvalidUsername
			}
		}
	}
	return apierrors.ErrGeneric.WithMessage(err.Error())
}
