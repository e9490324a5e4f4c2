package api

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sanosuguru/go-reservation-engine/internal/pkg/errs"
)

// CustomValidator はリクエストボディを検証し、違反を ValidationError として返す
type CustomValidator struct {
	validator *validator.Validate
}

func NewValidator() *CustomValidator {
	v := validator.New()
	// メッセージには JSON のフィールド名を使う
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &CustomValidator{validator: v}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	err := cv.validator.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errs.Mark(errs.Wrap(err, "入力が不正です"), errs.ErrValidation)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errs.Mark(errs.New(strings.Join(msgs, ", ")), errs.ErrValidation)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " は必須です"
	case "min":
		return fe.Field() + " は " + fe.Param() + " 件以上必要です"
	case "gte":
		return fe.Field() + " は " + fe.Param() + " 以上である必要があります"
	case "lte":
		return fe.Field() + " は " + fe.Param() + " 以下である必要があります"
	}
	return fe.Field() + " が不正です"
}
