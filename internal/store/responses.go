package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pavelanni/feedback/internal/model"
)

// ErrAlreadySubmitted is returned when responses already carry the token for
// the same target.
var ErrAlreadySubmitted = errors.New("already submitted")

// Submission is one respondent's complete answer set for one target.
type Submission struct {
	Token          string
	TeacherBatchID int64
	Answers        []SubmittedAnswer
	At             time.Time
}

// SubmittedAnswer is a validated answer ready to persist. Exactly one of
// OptionID and Text is set.
type SubmittedAnswer struct {
	QuestionID int64
	OptionID   *int64
	Text       *string
}

// HasSubmission reports whether any response carries token for the target.
func (s *Store) HasSubmission(ctx context.Context, token string, teacherBatchID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM responses WHERE session_token = ? AND teacher_batch_id = ?)`,
		token, teacherBatchID,
	).Scan(&exists)
	return exists, err
}

// InsertSubmission stores every answer of a submission and assigns it the next
// submission number of its target, all in one transaction. It returns
// ErrAlreadySubmitted if the token was already used for the target.
func (s *Store) InsertSubmission(ctx context.Context, sub Submission) (int, error) {
	if sub.At.IsZero() {
		sub.At = time.Now()
	}
	var number int
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM responses WHERE session_token = ? AND teacher_batch_id = ?)`,
			sub.Token, sub.TeacherBatchID,
		).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrAlreadySubmitted
		}

		last, err := lastSubmissionNumber(ctx, tx, sub.TeacherBatchID)
		if err != nil {
			return err
		}
		number = last + 1
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO submission_counters (teacher_batch_id, last_number) VALUES (?, ?)
			 ON CONFLICT(teacher_batch_id) DO UPDATE SET last_number = excluded.last_number`,
			sub.TeacherBatchID, number,
		); err != nil {
			return err
		}

		for _, a := range sub.Answers {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO responses (question_id, option_id, text, session_token, submission_number, teacher_batch_id, submitted_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				a.QuestionID, a.OptionID, a.Text, sub.Token, number, sub.TeacherBatchID, sub.At.UTC(),
			)
			if err != nil {
				if errors.Is(mapConstraint(err), ErrConflict) {
					return ErrAlreadySubmitted
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadySubmitted) {
			return 0, err
		}
		return 0, fmt.Errorf("insert submission: %w", err)
	}
	return number, nil
}

// lastSubmissionNumber reads the target's counter. Targets that predate the
// counter start from the number of distinct tokens already recorded.
func lastSubmissionNumber(ctx context.Context, tx *sqlx.Tx, teacherBatchID int64) (int, error) {
	var last int
	err := tx.QueryRowContext(ctx,
		`SELECT last_number FROM submission_counters WHERE teacher_batch_id = ?`, teacherBatchID,
	).Scan(&last)
	if err == nil {
		return last, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT session_token) FROM responses WHERE teacher_batch_id = ?`, teacherBatchID,
	).Scan(&last)
	return last, err
}

// CountSubmissions returns the number of distinct submissions recorded for a target.
func (s *Store) CountSubmissions(ctx context.Context, teacherBatchID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT session_token) FROM responses WHERE teacher_batch_id = ?`, teacherBatchID,
	).Scan(&n)
	return n, err
}

// InsertLegacyResponse stores a response that is not linked to any assignment,
// as imported from older data.
func (s *Store) InsertLegacyResponse(ctx context.Context, r model.Response) (int64, error) {
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = time.Now()
	}
	return s.insert(ctx,
		`INSERT INTO responses (question_id, option_id, text, session_token, submission_number, teacher_batch_id, submitted_at)
		 VALUES (?, ?, ?, ?, ?, NULL, ?)`,
		r.QuestionID, r.OptionID, r.Text, r.SessionToken, r.SubmissionNumber, r.SubmittedAt.UTC(),
	)
}

// AnswerRows returns the responses matching f, oldest first. Responses with no
// assignment are included only when includeUnassigned is set and f is empty.
func (s *Store) AnswerRows(ctx context.Context, f model.ReportFilter, includeUnassigned bool) ([]model.AnswerRow, error) {
	conds, args := filterConds(f)
	if !includeUnassigned || len(conds) > 0 {
		conds = append(conds, "r.teacher_batch_id IS NOT NULL")
	}
	query := `
	SELECT r.id AS response_id, r.session_token, r.submission_number, r.teacher_batch_id,
		r.question_id, q.text AS question_text, q.type AS question_type,
		r.option_id, o.answer AS option_answer, o.weight AS option_weight,
		r.text, r.submitted_at
	FROM responses r
	JOIN questions q ON q.id = r.question_id
	LEFT JOIN question_options o ON o.id = r.option_id
	LEFT JOIN teacher_batches tb ON tb.id = r.teacher_batch_id` + joinConds(conds) + `
	ORDER BY r.submitted_at, r.id`

	var rows []model.AnswerRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("answer rows: %w", err)
	}
	return rows, nil
}
