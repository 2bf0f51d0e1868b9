package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pavelanni/feedback/internal/model"
)

// CreateQuestion stores a question together with its options.
func (s *Store) CreateQuestion(ctx context.Context, q model.Question) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		id, err = createQuestion(ctx, tx, q)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("create question: %w", err)
	}
	return id, nil
}

// ImportQuestions stores a batch of questions read from source and records
// the file's hash, all or nothing.
func (s *Store) ImportQuestions(ctx context.Context, source, hash string, qs []model.Question) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, q := range qs {
			if _, err := createQuestion(ctx, tx, q); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO imported_files (path, hash) VALUES (?, ?)
			 ON CONFLICT(path) DO UPDATE SET hash = ?`,
			source, hash, hash,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("import questions from %s: %w", source, err)
	}
	return nil
}

func createQuestion(ctx context.Context, tx *sqlx.Tx, q model.Question) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO questions (text, type, active) VALUES (?, ?, ?)`,
		q.Text, q.Type, q.Active,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, o := range q.Options {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO question_options (question_id, label, answer, weight) VALUES (?, ?, ?, ?)`,
			id, o.Label, o.Answer, o.Weight,
		); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// AddOption appends an option to a multiple-choice question.
func (s *Store) AddOption(ctx context.Context, o model.Option) (int64, error) {
	return s.insert(ctx,
		`INSERT INTO question_options (question_id, label, answer, weight) VALUES (?, ?, ?, ?)`,
		o.QuestionID, o.Label, o.Answer, o.Weight,
	)
}

// SetOptionWeight records the rating-scale value of an option. A nil weight
// clears it.
func (s *Store) SetOptionWeight(ctx context.Context, optionID int64, weight *int) error {
	return checkAffected(s.db.ExecContext(ctx,
		`UPDATE question_options SET weight = ? WHERE id = ?`, weight, optionID))
}

// GetQuestion returns a question by ID, with its options.
func (s *Store) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	var q model.Question
	if err := s.get(ctx, &q, `SELECT id, text, type, active FROM questions WHERE id = ?`, id); err != nil {
		return q, err
	}
	qs := []model.Question{q}
	if err := s.attachOptions(ctx, qs); err != nil {
		return q, err
	}
	return qs[0], nil
}

// ListQuestions returns all questions, or only the active ones, with options
// ordered by label.
func (s *Store) ListQuestions(ctx context.Context, activeOnly bool) ([]model.Question, error) {
	query := `SELECT id, text, type, active FROM questions`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	var qs []model.Question
	if err := s.db.SelectContext(ctx, &qs, query+` ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if err := s.attachOptions(ctx, qs); err != nil {
		return nil, err
	}
	return qs, nil
}

func (s *Store) attachOptions(ctx context.Context, qs []model.Question) error {
	if len(qs) == 0 {
		return nil
	}
	ids := make([]int64, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	query, args, err := sqlx.In(
		`SELECT id, question_id, label, answer, weight FROM question_options
		 WHERE question_id IN (?) ORDER BY question_id, label, id`, ids)
	if err != nil {
		return err
	}
	var opts []model.Option
	if err := s.db.SelectContext(ctx, &opts, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("list options: %w", err)
	}
	byQuestion := make(map[int64][]model.Option, len(qs))
	for _, o := range opts {
		byQuestion[o.QuestionID] = append(byQuestion[o.QuestionID], o)
	}
	for i := range qs {
		qs[i].Options = byQuestion[qs[i].ID]
	}
	return nil
}

// UpdateQuestionText changes the wording of a question. Its type never changes.
func (s *Store) UpdateQuestionText(ctx context.Context, id int64, text string) error {
	return checkAffected(s.db.ExecContext(ctx, `UPDATE questions SET text = ? WHERE id = ?`, text, id))
}

// SetQuestionActive shows or hides a question on the feedback form.
func (s *Store) SetQuestionActive(ctx context.Context, id int64, active bool) error {
	return checkAffected(s.db.ExecContext(ctx, `UPDATE questions SET active = ? WHERE id = ?`, active, id))
}

// DeleteQuestions removes questions in bulk, together with their options and
// every response given to them. It returns the number of questions removed.
func (s *Store) DeleteQuestions(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM questions WHERE id IN (?)`, ids)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete questions: %w", err)
	}
	return res.RowsAffected()
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}
