package validate

import (
	"errors"
	"testing"

	"github.com/pavelanni/feedback/internal/model"
)

type courseReq struct {
	Name  string `json:"name" validate:"notblank"`
	Code  string `json:"code" validate:"required,max=10"`
	Level string `json:"level" validate:"programme_level"`
}

type userReq struct {
	Username string `json:"username" validate:"required,min=3"`
	Role     string `json:"role" validate:"user_role"`
	Type     string `json:"type" validate:"omitempty,question_type"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name       string
		v          any
		wantFields []string
	}{
		{"valid course", courseReq{Name: "Algebra", Code: "MAT101", Level: "UG"}, nil},
		{"blank name", courseReq{Name: "   ", Code: "MAT101", Level: "PG"}, []string{"name"}},
		{"bad level and long code", courseReq{Name: "x", Code: "ABCDEFGHIJK", Level: "MBA"}, []string{"code", "level"}},
		{"valid user", userReq{Username: "rao", Role: "teacher"}, nil},
		{"bad role and type", userReq{Username: "ra", Role: "student", Type: "essay"}, []string{"username", "role", "type"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.v)
			fields := Fields(err)
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if len(fields) != len(tt.wantFields) {
				t.Fatalf("expected fields %v, got %v", tt.wantFields, fields)
			}
			for _, f := range tt.wantFields {
				if fields[f] == "" {
					t.Errorf("expected a message for %q, got %v", f, fields)
				}
			}
		})
	}
}

func TestMessages(t *testing.T) {
	fields := Fields(Struct(courseReq{Name: "", Code: "", Level: "UG"}))
	if fields["name"] != "this field cannot be blank" {
		t.Errorf("unexpected name message %q", fields["name"])
	}
	if fields["code"] != "code is a required field" {
		t.Errorf("unexpected code message %q", fields["code"])
	}
}

func TestFieldsIgnoresOtherErrors(t *testing.T) {
	if Fields(errors.New("boom")) != nil {
		t.Error("expected nil for a non-validation error")
	}
	if Fields(nil) != nil {
		t.Error("expected nil for a nil error")
	}
}

func TestQuestions(t *testing.T) {
	weight := 9
	tests := []struct {
		name    string
		qs      []model.QuestionImport
		wantErr bool
	}{
		{"empty set", nil, true},
		{"valid", []model.QuestionImport{
			{Text: "Pace?", Type: model.QuestionMCQ, Options: []model.OptionImport{{Label: "a", Answer: "Good"}}},
			{Text: "Comments", Type: model.QuestionDescriptive},
		}, false},
		{"mcq without options", []model.QuestionImport{{Text: "Pace?", Type: model.QuestionMCQ}}, true},
		{"descriptive with options", []model.QuestionImport{
			{Text: "Comments", Type: model.QuestionDescriptive, Options: []model.OptionImport{{Label: "a", Answer: "x"}}},
		}, true},
		{"blank option answer", []model.QuestionImport{
			{Text: "Pace?", Type: model.QuestionMCQ, Options: []model.OptionImport{{Label: "a", Answer: " "}}},
		}, true},
		{"weight out of range", []model.QuestionImport{
			{Text: "Pace?", Type: model.QuestionMCQ, Options: []model.OptionImport{{Label: "a", Answer: "Good", Weight: &weight}}},
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Questions(tt.qs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Questions() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
