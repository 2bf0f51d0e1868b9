package model

import "time"

// ReportFilter narrows a report. Nil fields do not filter.
type ReportFilter struct {
	DepartmentID *int64 `json:"department_id,omitempty"`
	TeacherID    *int64 `json:"teacher_id,omitempty"`
	CourseID     *int64 `json:"course_id,omitempty"`
	BatchID      *int64 `json:"batch_id,omitempty"`
}

// AnswerRow is one response joined with its question and option text.
type AnswerRow struct {
	ResponseID       int64     `json:"response_id" db:"response_id"`
	SessionToken     string    `json:"-" db:"session_token"`
	SubmissionNumber int       `json:"submission_number" db:"submission_number"`
	TeacherBatchID   *int64    `json:"teacher_batch_id,omitempty" db:"teacher_batch_id"`
	QuestionID       int64     `json:"question_id" db:"question_id"`
	QuestionText     string    `json:"question_text" db:"question_text"`
	QuestionType     string    `json:"question_type" db:"question_type"`
	OptionID         *int64    `json:"option_id,omitempty" db:"option_id"`
	OptionAnswer     *string   `json:"option_answer,omitempty" db:"option_answer"`
	OptionWeight     *int      `json:"option_weight,omitempty" db:"option_weight"`
	Text             *string   `json:"text,omitempty" db:"text"`
	SubmittedAt      time.Time `json:"submitted_at" db:"submitted_at"`
}

// SubmissionGroup is every response sharing one session token: one submission.
type SubmissionGroup struct {
	SubmissionNumber int         `json:"submission_number"`
	TeacherBatchID   *int64      `json:"teacher_batch_id,omitempty"`
	SubmittedAt      time.Time   `json:"submitted_at"`
	Answers          []AnswerRow `json:"answers"`
}

// SubmissionReport groups the responses in scope by submission.
type SubmissionReport struct {
	Submissions          []SubmissionGroup `json:"submissions"`
	TotalSubmissions     int               `json:"total_submissions"`
	TotalResponses       int               `json:"total_responses"`
	AnswersPerSubmission float64           `json:"answers_per_submission"`
}

// OptionCount is how often one option was chosen.
type OptionCount struct {
	OptionID int64  `json:"option_id"`
	Label    string `json:"label"`
	Answer   string `json:"answer"`
	Count    int    `json:"count"`
}

// TextAnswer is one non-empty descriptive reply.
type TextAnswer struct {
	Text             string    `json:"text"`
	SubmissionNumber int       `json:"submission_number"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// QuestionSummary summarises the answers to one active question.
type QuestionSummary struct {
	QuestionID int64         `json:"question_id"`
	Text       string        `json:"text"`
	Type       QuestionType  `json:"type"`
	Options    []OptionCount `json:"options,omitempty"`
	Answers    []TextAnswer  `json:"answers,omitempty"`
	Responses  int           `json:"responses"`
}

// Count returns the count recorded for the option with the given answer text.
func (s QuestionSummary) Count(answer string) int {
	for _, o := range s.Options {
		if o.Answer == answer {
			return o.Count
		}
	}
	return 0
}

// RatingRow is the approximate rating of one assignment. Assignments sharing
// teacher, course, batch and department are merged into one row.
type RatingRow struct {
	TeacherBatchIDs []int64 `json:"teacher_batch_ids"`
	TeacherID       int64   `json:"teacher_id"`
	TeacherName     string  `json:"teacher_name"`
	RoleName        string  `json:"role_name"`
	DepartmentName  string  `json:"department_name"`
	CourseName      string  `json:"course_name"`
	ProgrammeName   string  `json:"programme_name"`
	Batch           string  `json:"batch"`
	Submissions     int     `json:"submissions"`
	Responses       int     `json:"responses"`
	Rated           int     `json:"rated"`
	Average         float64 `json:"average"`
	HasData         bool    `json:"has_data"`
}

// TeacherRating rolls the assignment ratings up per teacher.
type TeacherRating struct {
	TeacherID   int64   `json:"teacher_id"`
	TeacherName string  `json:"teacher_name"`
	Responses   int     `json:"responses"`
	Rated       int     `json:"rated"`
	Average     float64 `json:"average"`
	HasData     bool    `json:"has_data"`
}

// RatingReport is the teacher report.
type RatingReport struct {
	Assignments []RatingRow     `json:"assignments"`
	Teachers    []TeacherRating `json:"teachers"`
}

// Digest is a generated summary of the descriptive answers for one assignment.
type Digest struct {
	TeacherBatchID int64  `json:"teacher_batch_id"`
	Comments       int    `json:"comments"`
	Summary        string `json:"summary"`
}

// FeedbackExport is the top-level JSON structure written by the export command.
type FeedbackExport struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Assignments []Assignment      `json:"assignments"`
	Questions   []QuestionSummary `json:"questions"`
	Submissions SubmissionReport  `json:"submissions"`
	Ratings     RatingReport      `json:"ratings"`
}
