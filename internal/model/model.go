package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level (distinct from Role, which is a
// catalog designation attached to a teacher).
type UserRole string

const (
	// UserRoleAdmin sees and manages everything.
	UserRoleAdmin UserRole = "admin"
	// UserRoleDepartmentHead reports on their own assignments and manages the
	// courses and programmes of their department.
	UserRoleDepartmentHead UserRole = "department_head"
	// UserRoleTeacher reports on their own assignments.
	UserRoleTeacher UserRole = "teacher"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleDepartmentHead, UserRoleTeacher:
		return true
	}
	return false
}

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	TeacherID    *int64    `json:"teacher_id,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Caller is the identity a report is computed for. It is resolved once per
// request from the authenticated user.
type Caller struct {
	Role      UserRole
	TeacherID *int64
}

// IsAdmin reports whether the caller sees every assignment.
func (c Caller) IsAdmin() bool {
	return c.Role == UserRoleAdmin
}

// Caller returns the reporting identity of the user.
func (u *User) Caller() Caller {
	return Caller{Role: u.Role, TeacherID: u.TeacherID}
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// ProgrammeLevel is the academic level of a programme.
type ProgrammeLevel string

const (
	LevelUG   ProgrammeLevel = "UG"
	LevelPG   ProgrammeLevel = "PG"
	LevelIPG  ProgrammeLevel = "IPG"
	LevelFYUG ProgrammeLevel = "FYUG"
)

// Department is an academic department.
type Department struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Role is a catalog designation such as "HOD" or "Principal".
type Role struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Programme is a degree programme offered by a department.
type Programme struct {
	ID           int64          `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	DepartmentID int64          `json:"department_id" db:"department_id"`
	Level        ProgrammeLevel `json:"level" db:"level"`
}

// Course belongs to a department and a programme.
type Course struct {
	ID           int64  `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	Code         string `json:"code" db:"code"`
	Credit       int    `json:"credit" db:"credit"`
	DepartmentID int64  `json:"department_id" db:"department_id"`
	ProgrammeID  int64  `json:"programme_id" db:"programme_id"`
}

// Batch is one academic-year intake of a course.
type Batch struct {
	ID           int64  `json:"id" db:"id"`
	CourseID     int64  `json:"course_id" db:"course_id"`
	AcademicYear string `json:"academic_year" db:"academic_year"`
	Part         string `json:"part" db:"part"`
	Active       bool   `json:"active" db:"active"`
}

// Teacher is a member of staff feedback can be collected about.
type Teacher struct {
	ID             int64  `json:"id" db:"id"`
	Name           string `json:"name" db:"name"`
	DepartmentID   int64  `json:"department_id" db:"department_id"`
	Designation    string `json:"designation" db:"designation"`
	Gender         string `json:"gender" db:"gender"`
	RoleID         int64  `json:"role_id" db:"role_id"`
	FeedbackActive bool   `json:"feedback_active" db:"feedback_active"`
}

// TeacherBatch assigns a teacher to a course, batch and department. It is the
// target a feedback submission is about.
type TeacherBatch struct {
	ID             int64 `json:"id" db:"id"`
	TeacherID      int64 `json:"teacher_id" db:"teacher_id"`
	CourseID       int64 `json:"course_id" db:"course_id"`
	BatchID        int64 `json:"batch_id" db:"batch_id"`
	DepartmentID   int64 `json:"department_id" db:"department_id"`
	FeedbackActive bool  `json:"feedback_active" db:"feedback_active"`
}

// Assignment is a TeacherBatch joined with the names of everything it refers to.
type Assignment struct {
	TeacherBatch
	TeacherName    string `json:"teacher_name" db:"teacher_name"`
	RoleName       string `json:"role_name" db:"role_name"`
	CourseName     string `json:"course_name" db:"course_name"`
	CourseCode     string `json:"course_code" db:"course_code"`
	ProgrammeName  string `json:"programme_name" db:"programme_name"`
	DepartmentName string `json:"department_name" db:"department_name"`
	AcademicYear   string `json:"academic_year" db:"academic_year"`
	Part           string `json:"part" db:"part"`
	BatchActive    bool   `json:"batch_active" db:"batch_active"`
}

// Open reports whether the assignment currently accepts feedback.
func (a Assignment) Open() bool {
	return a.FeedbackActive && a.BatchActive
}

// QuestionType distinguishes multiple-choice from descriptive questions.
type QuestionType string

const (
	QuestionMCQ         QuestionType = "mcq"
	QuestionDescriptive QuestionType = "descriptive"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	return t == QuestionMCQ || t == QuestionDescriptive
}

// Question is a feedback question.
type Question struct {
	ID      int64        `json:"id" db:"id"`
	Text    string       `json:"text" db:"text"`
	Type    QuestionType `json:"type" db:"type"`
	Active  bool         `json:"active" db:"active"`
	Options []Option     `json:"options,omitempty" db:"-"`
}

// Option is a labelled choice of a multiple-choice question. Weight, when set,
// is the option's value on the 1-5 rating scale.
type Option struct {
	ID         int64  `json:"id" db:"id"`
	QuestionID int64  `json:"question_id" db:"question_id"`
	Label      string `json:"label" db:"label"`
	Answer     string `json:"answer" db:"answer"`
	Weight     *int   `json:"weight,omitempty" db:"weight"`
}

// HasOption reports whether optionID belongs to q.
func (q Question) HasOption(optionID int64) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// Response is one persisted answer to one question of one submission.
type Response struct {
	ID               int64     `json:"id" db:"id"`
	QuestionID       int64     `json:"question_id" db:"question_id"`
	OptionID         *int64    `json:"option_id,omitempty" db:"option_id"`
	Text             *string   `json:"text,omitempty" db:"text"`
	SessionToken     string    `json:"session_token" db:"session_token"`
	SubmissionNumber int       `json:"submission_number" db:"submission_number"`
	TeacherBatchID   *int64    `json:"teacher_batch_id,omitempty" db:"teacher_batch_id"`
	SubmittedAt      time.Time `json:"submitted_at" db:"submitted_at"`
}

// QuestionImport is used for loading questions from JSON.
type QuestionImport struct {
	Text    string         `json:"text" validate:"notblank"`
	Type    QuestionType   `json:"type" validate:"question_type"`
	Active  *bool          `json:"active,omitempty"`
	Options []OptionImport `json:"options,omitempty" validate:"dive"`
}

// OptionImport is one option of an imported question.
type OptionImport struct {
	Label  string `json:"label" validate:"notblank"`
	Answer string `json:"answer" validate:"notblank"`
	Weight *int   `json:"weight,omitempty" validate:"omitempty,min=1,max=5"`
}

// Question converts the import record to a question, defaulting to active.
func (qi QuestionImport) Question() Question {
	q := Question{Text: qi.Text, Type: qi.Type, Active: true}
	if qi.Active != nil {
		q.Active = *qi.Active
	}
	for _, oi := range qi.Options {
		q.Options = append(q.Options, Option{Label: oi.Label, Answer: oi.Answer, Weight: oi.Weight})
	}
	return q
}
