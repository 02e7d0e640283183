package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// fieldError 单个字段的校验错误。
type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// validateStruct 校验请求体，返回按字段整理后的错误列表。
func validateStruct(v *validator.Validate, s any) []fieldError {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []fieldError{{Field: "body", Message: err.Error()}}
	}

	out := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		var msg string
		switch fe.Tag() {
		case "required":
			msg = fmt.Sprintf("%s is required", field)
		case "max":
			msg = fmt.Sprintf("%s must be at most %s", field, fe.Param())
		case "gte":
			msg = fmt.Sprintf("%s must be >= %s", field, fe.Param())
		case "lte":
			msg = fmt.Sprintf("%s must be <= %s", field, fe.Param())
		default:
			msg = fmt.Sprintf("%s is invalid", field)
		}
		out = append(out, fieldError{
			Field:   strings.ToLower(field[:1]) + field[1:],
			Message: msg,
		})
	}
	return out
}
