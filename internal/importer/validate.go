package importer

import (
	"reflect"
	"strings"

	"github.com/Tchindavaldo/yuunna-backend/internal/model"

	"github.com/go-playground/validator/v10"
)

// placeholderImage 淘宝懒加载占位图。
const placeholderImage = "blank.gif"

// productRules 入库前的字段校验规则。
var productRules = map[string]string{
	"TitleOriginal": "required",
	"Price":         "gt=0",
	"ImageURL":      "required,min=20,notplaceholder",
	"SourceLink":    "required",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notplaceholder", func(fl validator.FieldLevel) bool {
		return fl.Field().Kind() == reflect.String && !strings.Contains(fl.Field().String(), placeholderImage)
	})
	v.RegisterStructValidationMapRules(productRules, model.Product{})
	return v
}
