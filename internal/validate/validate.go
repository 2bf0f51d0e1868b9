// Package validate checks request payloads and renders the failures as
// field -> message maps.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/pavelanni/feedback/internal/model"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

// custom validation tags
const (
	notBlankTag       = "notblank"
	userRoleTag       = "user_role"
	questionTypeTag   = "question_type"
	programmeLevelTag = "programme_level"
)

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, notBlank)
	_ = validate.RegisterValidation(userRoleTag, func(fl validator.FieldLevel) bool {
		return model.UserRole(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation(questionTypeTag, func(fl validator.FieldLevel) bool {
		return model.QuestionType(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation(programmeLevelTag, func(fl validator.FieldLevel) bool {
		switch model.ProgrammeLevel(fl.Field().String()) {
		case model.LevelUG, model.LevelPG, model.LevelIPG, model.LevelFYUG:
			return true
		}
		return false
	})

	registerFn := func(ut.Translator) error { return nil }
	for _, tag := range []string{notBlankTag, userRoleTag, questionTypeTag, programmeLevelTag} {
		_ = validate.RegisterTranslation(tag, translator, registerFn, translateCustom)
	}
}

func translateCustom(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case notBlankTag:
		return "this field cannot be blank"
	case userRoleTag:
		return "must be one of admin, department_head, teacher"
	case questionTypeTag:
		return "must be one of mcq, descriptive"
	case programmeLevelTag:
		return "must be one of UG, PG, IPG, FYUG"
	}
	return fe.Error()
}

func notBlank(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}

// Struct validates v against its `validate` tags.
func Struct(v any) error {
	return validate.Struct(v)
}

// Fields converts a validation error into a field -> message map. It returns
// nil when err is not a validation error.
func Fields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Translate(translator)
	}
	return out
}

// Questions checks an imported question set. Multiple-choice questions need
// at least one option; descriptive questions take none.
func Questions(qis []model.QuestionImport) error {
	if len(qis) == 0 {
		return errors.New("no questions")
	}
	for i, qi := range qis {
		if err := Struct(qi); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
		switch {
		case qi.Type == model.QuestionMCQ && len(qi.Options) == 0:
			return fmt.Errorf("question %d: multiple-choice question has no options", i+1)
		case qi.Type == model.QuestionDescriptive && len(qi.Options) > 0:
			return fmt.Errorf("question %d: descriptive question cannot have options", i+1)
		}
	}
	return nil
}
