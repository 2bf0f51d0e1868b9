package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pavelanni/feedback/internal/metrics"
	"github.com/pavelanni/feedback/internal/model"
	"github.com/pavelanni/feedback/internal/store"
)

var (
	ErrSessionExpired       = errors.New("feedback session expired")
	ErrDuplicateSubmission  = errors.New("feedback already submitted")
	ErrIncompleteSubmission = errors.New("feedback incomplete")
	ErrInvalidTarget        = errors.New("feedback not open for this target")
)

// Status is the outcome of a submission attempt.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusDuplicate      Status = "duplicate"
	StatusIncomplete     Status = "incomplete"
	StatusInvalidTarget  Status = "invalid_target"
	StatusSessionExpired Status = "session_expired"
)

// Result reports the outcome of Submit. Validation failures are results, not
// errors, and echo the submitted answers so the form can be redisplayed.
type Result struct {
	Status           Status                 `json:"status"`
	SubmissionNumber int                    `json:"submission_number,omitempty"`
	MissingQuestion  int64                  `json:"missing_question,omitempty"`
	Missing          []int64                `json:"missing,omitempty"`
	Answers          map[int64]model.Answer `json:"answers,omitempty"`
}

// Err returns the sentinel error matching the result's status, or nil on success.
func (r Result) Err() error {
	switch r.Status {
	case StatusSuccess:
		return nil
	case StatusDuplicate:
		return ErrDuplicateSubmission
	case StatusIncomplete:
		return ErrIncompleteSubmission
	case StatusInvalidTarget:
		return ErrInvalidTarget
	}
	return ErrSessionExpired
}

// Form is what a respondent needs to fill in feedback for one target.
type Form struct {
	Target      model.Assignment `json:"target"`
	Token       string           `json:"token,omitempty"`
	MCQ         []model.Question `json:"mcq"`
	Descriptive []model.Question `json:"descriptive"`
	// Done is set when this browser already submitted feedback for the target.
	Done bool `json:"done"`
}

// Service runs the submission workflow against a store.
type Service struct {
	store *store.Store
}

func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// Begin returns the active questions for a target and makes sure the session
// holds a submission token. It returns ErrInvalidTarget when the target does
// not exist or is closed.
func (svc *Service) Begin(ctx context.Context, sess Session, targetID int64) (Form, error) {
	a, err := svc.openAssignment(ctx, targetID)
	if err != nil {
		return Form{}, err
	}
	form := Form{Target: a}

	if _, done, err := sess.Get(ctx, doneKey(targetID)); err != nil {
		return Form{}, fmt.Errorf("read session: %w", err)
	} else if done {
		form.Done = true
		return form, nil
	}

	token, ok, err := sess.Get(ctx, tokenKey)
	if err != nil {
		return Form{}, fmt.Errorf("read session: %w", err)
	}
	if !ok || token == "" {
		token = uuid.NewString()
	}
	// Writing the token back on every visit keeps an active session from
	// expiring.
	if err := sess.Set(ctx, tokenKey, token); err != nil {
		return Form{}, fmt.Errorf("write session: %w", err)
	}
	form.Token = token

	qs, err := svc.store.ListQuestions(ctx, true)
	if err != nil {
		return Form{}, err
	}
	form.MCQ, form.Descriptive = partition(qs)
	return form, nil
}

// BeginForTeacher resolves a bare teacher target to that teacher's single open
// assignment and begins a submission for it. The teacher's own feedback flag
// must be on as well.
func (svc *Service) BeginForTeacher(ctx context.Context, sess Session, teacherID int64) (Form, error) {
	t, err := svc.store.GetTeacher(ctx, teacherID)
	if errors.Is(err, store.ErrNotFound) {
		return Form{}, ErrInvalidTarget
	}
	if err != nil {
		return Form{}, err
	}
	if !t.FeedbackActive {
		return Form{}, ErrInvalidTarget
	}

	as, err := svc.store.ListAssignments(ctx, model.ReportFilter{TeacherID: &teacherID})
	if err != nil {
		return Form{}, err
	}
	var open []model.Assignment
	for _, a := range as {
		if a.Open() {
			open = append(open, a)
		}
	}
	if len(open) != 1 {
		return Form{}, ErrInvalidTarget
	}
	return svc.Begin(ctx, sess, open[0].ID)
}

// Submit validates and records one respondent's answers for a target. The
// returned error is non-nil only for storage failures.
func (svc *Service) Submit(ctx context.Context, sess Session, targetID int64, token string, answers map[int64]model.Answer) (Result, error) {
	res, err := svc.submit(ctx, sess, targetID, token, answers)
	if err != nil {
		slog.Error("feedback submission failed", "target_id", targetID, "error", err)
		return Result{}, err
	}
	if res.Status != StatusSuccess {
		res.Answers = answers
	}
	metrics.ObserveSubmission(string(res.Status))
	slog.Info("feedback submission", "target_id", targetID, "status", res.Status, "submission_number", res.SubmissionNumber)
	return res, nil
}

func (svc *Service) submit(ctx context.Context, sess Session, targetID int64, token string, answers map[int64]model.Answer) (Result, error) {
	if token == "" {
		return Result{Status: StatusSessionExpired}, nil
	}

	// A repeat of a recorded submission is a duplicate even after the
	// session token has been cleared.
	dup, err := svc.store.HasSubmission(ctx, token, targetID)
	if err != nil {
		return Result{}, err
	}
	if !dup {
		if _, dup, err = sess.Get(ctx, doneKey(targetID)); err != nil {
			return Result{}, fmt.Errorf("read session: %w", err)
		}
	}
	if dup {
		return Result{Status: StatusDuplicate}, nil
	}

	held, ok, err := sess.Get(ctx, tokenKey)
	if err != nil {
		return Result{}, fmt.Errorf("read session: %w", err)
	}
	if !ok || held != token {
		return Result{Status: StatusSessionExpired}, nil
	}

	qs, err := svc.store.ListQuestions(ctx, true)
	if err != nil {
		return Result{}, err
	}
	var missing []int64
	rows := make([]store.SubmittedAnswer, 0, len(qs))
	for _, q := range qs {
		a, ok := answers[q.ID]
		if !ok || !a.Fits(q) {
			missing = append(missing, q.ID)
			continue
		}
		rows = append(rows, toRow(q.ID, a))
	}
	if len(missing) > 0 {
		return Result{Status: StatusIncomplete, MissingQuestion: missing[0], Missing: missing}, nil
	}

	if _, err := svc.openAssignment(ctx, targetID); err != nil {
		if errors.Is(err, ErrInvalidTarget) {
			return Result{Status: StatusInvalidTarget}, nil
		}
		return Result{}, err
	}

	n, err := svc.store.InsertSubmission(ctx, store.Submission{
		Token:          token,
		TeacherBatchID: targetID,
		Answers:        rows,
	})
	if errors.Is(err, store.ErrAlreadySubmitted) {
		return Result{Status: StatusDuplicate}, nil
	}
	if err != nil {
		return Result{}, err
	}

	if err := sess.Delete(ctx, tokenKey); err != nil {
		return Result{}, fmt.Errorf("clear session token: %w", err)
	}
	if err := sess.Set(ctx, doneKey(targetID), "1"); err != nil {
		return Result{}, fmt.Errorf("write session: %w", err)
	}
	return Result{Status: StatusSuccess, SubmissionNumber: n}, nil
}

func (svc *Service) openAssignment(ctx context.Context, targetID int64) (model.Assignment, error) {
	a, err := svc.store.GetAssignment(ctx, targetID)
	if errors.Is(err, store.ErrNotFound) {
		return a, ErrInvalidTarget
	}
	if err != nil {
		return a, err
	}
	if !a.Open() {
		return a, ErrInvalidTarget
	}
	return a, nil
}

func partition(qs []model.Question) (mcq, descriptive []model.Question) {
	mcq, descriptive = []model.Question{}, []model.Question{}
	for _, q := range qs {
		if q.Type == model.QuestionMCQ {
			mcq = append(mcq, q)
		} else {
			descriptive = append(descriptive, q)
		}
	}
	return mcq, descriptive
}

func toRow(questionID int64, a model.Answer) store.SubmittedAnswer {
	row := store.SubmittedAnswer{QuestionID: questionID}
	if a.Kind == model.AnswerOption {
		id := a.OptionID
		row.OptionID = &id
	} else {
		text := a.Text
		row.Text = &text
	}
	return row
}
