package validator

import (
	"errors"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/stemsi/exstem-assessment/internal/i18n"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// uni holds the en and zh translators for validation errors.
var (
	uni       *ut.UniversalTranslator
	setupOnce sync.Once
)

// customTags are the domain rules registered on top of the stock validators.
var customTags = []struct {
	tag string
	fn  govalidator.Func
	en  string
	zh  string
}{
	{
		tag: "exam_role",
		fn:  func(fl govalidator.FieldLevel) bool { return slices.Contains(model.Roles, fl.Field().String()) },
		en:  "{0} must be one of frontend, backend, fullstack, tester",
		zh:  "{0}必须是 frontend、backend、fullstack、tester 之一",
	},
	{
		tag: "exam_language",
		fn:  func(fl govalidator.FieldLevel) bool { return slices.Contains(model.Languages, fl.Field().String()) },
		en:  "{0} must be one of typescript, javascript, java, python",
		zh:  "{0}必须是 typescript、javascript、java、python 之一",
	},
	{
		tag: "cheat_event",
		fn:  func(fl govalidator.FieldLevel) bool { return model.CheatEventType(fl.Field().String()).Valid() },
		en:  "{0} is not a known event type",
		zh:  "{0}不是已知的事件类型",
	},
}

// Setup registers the custom tags and the en/zh translations on Gin's
// binding engine. Safe to call more than once.
func Setup() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*govalidator.Validate)
		if !ok {
			return
		}
		Register(v)
	})
}

// Register configures v. Setup calls it for Gin's engine; tests call it on
// a fresh validator.
func Register(v *govalidator.Validate) {
	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	enLocale := en.New()
	uni = ut.New(enLocale, enLocale, zh.New())
	enTrans, _ := uni.GetTranslator("en")
	zhTrans, _ := uni.GetTranslator("zh")
	_ = en_translations.RegisterDefaultTranslations(v, enTrans)
	_ = zh_translations.RegisterDefaultTranslations(v, zhTrans)

	for _, ct := range customTags {
		_ = v.RegisterValidation(ct.tag, ct.fn)
		registerMessage(v, enTrans, ct.tag, ct.en)
		registerMessage(v, zhTrans, ct.tag, ct.zh)
	}
}

func registerMessage(v *govalidator.Validate, trans ut.Translator, tag, text string) {
	_ = v.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error { return ut.Add(tag, text, true) },
		func(ut ut.Translator, fe govalidator.FieldError) string {
			msg, err := ut.T(tag, fe.Field())
			if err != nil {
				return fe.Error()
			}
			return msg
		},
	)
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name to message in the given language. Non-validation errors come
// back under "detail".
func TranslateErrors(err error, lang string) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		trans := translator(lang)
		for _, fe := range ve {
			if trans == nil {
				fields[fe.Field()] = fe.Error()
				continue
			}
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

func translator(lang string) ut.Translator {
	if uni == nil {
		return nil
	}
	trans, _ := uni.FindTranslator(lang, "en")
	return trans
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst any) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err, i18n.Negotiate(c.GetHeader("Accept-Language")))
	}
	return nil
}
