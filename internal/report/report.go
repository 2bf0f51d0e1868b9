// Package report computes role-scoped feedback reports from stored responses.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pavelanni/feedback/internal/model"
	"github.com/pavelanni/feedback/internal/store"
)

// ErrDigestUnavailable is returned by Digest when no summarizer is configured.
var ErrDigestUnavailable = errors.New("comment digest not configured")

// Summarizer condenses free-text comments about one assignment.
type Summarizer interface {
	Summarize(ctx context.Context, subject string, comments []string) (string, error)
}

// Service answers report queries for a caller.
type Service struct {
	store      *store.Store
	scale      Scale
	summarizer Summarizer
}

// NewService creates a report service. A nil scale uses DefaultScale; a nil
// summarizer disables digests.
func NewService(s *store.Store, scale Scale, summarizer Summarizer) *Service {
	if scale == nil {
		scale = DefaultScale
	}
	return &Service{store: s, scale: scale, summarizer: summarizer}
}

// Scope is a filter after the caller's permissions have been applied.
type Scope struct {
	Filter model.ReportFilter
	// Empty is set when nothing can be visible to the caller.
	Empty bool
	// Unassigned includes responses that are linked to no assignment.
	Unassigned bool
}

// ResolveScope narrows f to what caller may see. Administrators see every
// assignment. Everyone else sees only the assignments of their own teacher
// record, and a filter naming another teacher yields an empty scope.
func ResolveScope(caller model.Caller, f model.ReportFilter) Scope {
	if caller.IsAdmin() {
		return Scope{Filter: f, Unassigned: f == (model.ReportFilter{})}
	}
	if caller.TeacherID == nil {
		return Scope{Filter: f, Empty: true}
	}
	if f.TeacherID != nil && *f.TeacherID != *caller.TeacherID {
		return Scope{Filter: f, Empty: true}
	}
	id := *caller.TeacherID
	f.TeacherID = &id
	return Scope{Filter: f}
}

func (svc *Service) rows(ctx context.Context, sc Scope) ([]model.AnswerRow, error) {
	if sc.Empty {
		return nil, nil
	}
	return svc.store.AnswerRows(ctx, sc.Filter, sc.Unassigned)
}

type submissionKey struct {
	token  string
	target int64
}

func keyOf(r model.AnswerRow) submissionKey {
	k := submissionKey{token: r.SessionToken}
	if r.TeacherBatchID != nil {
		k.target = *r.TeacherBatchID
	}
	return k
}

// Submissions groups the responses in scope into submissions, ordered by
// their earliest answer.
func (svc *Service) Submissions(ctx context.Context, caller model.Caller, f model.ReportFilter) (model.SubmissionReport, error) {
	rows, err := svc.rows(ctx, ResolveScope(caller, f))
	if err != nil {
		return model.SubmissionReport{}, err
	}
	return groupSubmissions(rows), nil
}

func groupSubmissions(rows []model.AnswerRow) model.SubmissionReport {
	rep := model.SubmissionReport{Submissions: []model.SubmissionGroup{}}
	index := make(map[submissionKey]int)
	for _, r := range rows {
		k := keyOf(r)
		i, ok := index[k]
		if !ok {
			i = len(rep.Submissions)
			index[k] = i
			rep.Submissions = append(rep.Submissions, model.SubmissionGroup{
				SubmissionNumber: r.SubmissionNumber,
				TeacherBatchID:   r.TeacherBatchID,
				SubmittedAt:      r.SubmittedAt,
			})
		}
		g := &rep.Submissions[i]
		if r.SubmittedAt.Before(g.SubmittedAt) {
			g.SubmittedAt = r.SubmittedAt
		}
		g.Answers = append(g.Answers, r)
	}
	sort.SliceStable(rep.Submissions, func(i, j int) bool {
		return rep.Submissions[i].SubmittedAt.Before(rep.Submissions[j].SubmittedAt)
	})
	rep.TotalSubmissions = len(rep.Submissions)
	rep.TotalResponses = len(rows)
	if rep.TotalSubmissions > 0 {
		rep.AnswersPerSubmission = float64(rep.TotalResponses) / float64(rep.TotalSubmissions)
	}
	return rep
}

// Questions summarises the responses in scope per active question. Every
// defined option is listed, including those nobody chose.
func (svc *Service) Questions(ctx context.Context, caller model.Caller, f model.ReportFilter) ([]model.QuestionSummary, error) {
	qs, err := svc.store.ListQuestions(ctx, true)
	if err != nil {
		return nil, err
	}
	rows, err := svc.rows(ctx, ResolveScope(caller, f))
	if err != nil {
		return nil, err
	}
	return summarizeQuestions(qs, rows), nil
}

func summarizeQuestions(qs []model.Question, rows []model.AnswerRow) []model.QuestionSummary {
	byQuestion := make(map[int64][]model.AnswerRow, len(qs))
	for _, r := range rows {
		byQuestion[r.QuestionID] = append(byQuestion[r.QuestionID], r)
	}

	out := make([]model.QuestionSummary, 0, len(qs))
	for _, q := range qs {
		qrows := byQuestion[q.ID]
		sum := model.QuestionSummary{QuestionID: q.ID, Text: q.Text, Type: q.Type, Responses: len(qrows)}
		switch q.Type {
		case model.QuestionMCQ:
			counts := make(map[int64]int, len(q.Options))
			for _, r := range qrows {
				if r.OptionID != nil {
					counts[*r.OptionID]++
				}
			}
			sum.Options = make([]model.OptionCount, 0, len(q.Options))
			for _, o := range q.Options {
				sum.Options = append(sum.Options, model.OptionCount{
					OptionID: o.ID, Label: o.Label, Answer: o.Answer, Count: counts[o.ID],
				})
			}
		case model.QuestionDescriptive:
			sum.Answers = []model.TextAnswer{}
			for _, r := range qrows {
				if r.Text == nil || strings.TrimSpace(*r.Text) == "" {
					continue
				}
				sum.Answers = append(sum.Answers, model.TextAnswer{
					Text: *r.Text, SubmissionNumber: r.SubmissionNumber, SubmittedAt: r.SubmittedAt,
				})
			}
		}
		out = append(out, sum)
	}
	return out
}

type assignmentKey struct {
	teacher, course, batch, department int64
}

type tally struct {
	tokens    map[string]struct{}
	responses int
	rated     int
	total     int
}

func (t *tally) add(r model.AnswerRow, scale Scale) {
	if t.tokens == nil {
		t.tokens = make(map[string]struct{})
	}
	t.tokens[r.SessionToken] = struct{}{}
	if r.OptionID == nil {
		return
	}
	t.responses++
	answer := ""
	if r.OptionAnswer != nil {
		answer = *r.OptionAnswer
	}
	if v, ok := scale.Rate(r.OptionWeight, answer); ok {
		t.rated++
		t.total += v
	}
}

func (t *tally) average() (float64, bool) {
	if t.rated == 0 {
		return 0, false
	}
	return float64(t.total) / float64(t.rated), true
}

// Ratings computes the approximate rating of every assignment in scope and
// rolls them up per teacher. Assignments sharing teacher, course, batch and
// department are reported as one row.
func (svc *Service) Ratings(ctx context.Context, caller model.Caller, f model.ReportFilter) (model.RatingReport, error) {
	rep := model.RatingReport{Assignments: []model.RatingRow{}, Teachers: []model.TeacherRating{}}
	sc := ResolveScope(caller, f)
	if sc.Empty {
		return rep, nil
	}
	as, err := svc.store.ListAssignments(ctx, sc.Filter)
	if err != nil {
		return rep, err
	}
	rows, err := svc.store.AnswerRows(ctx, sc.Filter, false)
	if err != nil {
		return rep, err
	}
	return buildRatings(as, rows, svc.scale), nil
}

func buildRatings(as []model.Assignment, rows []model.AnswerRow, scale Scale) model.RatingReport {
	rep := model.RatingReport{Assignments: []model.RatingRow{}, Teachers: []model.TeacherRating{}}

	groupOf := make(map[int64]int, len(as))
	index := make(map[assignmentKey]int)
	var tallies []*tally
	for _, a := range as {
		k := assignmentKey{a.TeacherID, a.CourseID, a.BatchID, a.DepartmentID}
		i, ok := index[k]
		if !ok {
			i = len(rep.Assignments)
			index[k] = i
			rep.Assignments = append(rep.Assignments, model.RatingRow{
				TeacherID:      a.TeacherID,
				TeacherName:    a.TeacherName,
				RoleName:       a.RoleName,
				DepartmentName: a.DepartmentName,
				CourseName:     a.CourseName,
				ProgrammeName:  a.ProgrammeName,
				Batch:          strings.TrimSpace(a.AcademicYear + " " + a.Part),
			})
			tallies = append(tallies, &tally{})
		}
		rep.Assignments[i].TeacherBatchIDs = append(rep.Assignments[i].TeacherBatchIDs, a.ID)
		groupOf[a.ID] = i
	}

	teacherIndex := make(map[int64]int)
	var teacherTallies []*tally
	for _, row := range rep.Assignments {
		if _, ok := teacherIndex[row.TeacherID]; !ok {
			teacherIndex[row.TeacherID] = len(rep.Teachers)
			rep.Teachers = append(rep.Teachers, model.TeacherRating{TeacherID: row.TeacherID, TeacherName: row.TeacherName})
			teacherTallies = append(teacherTallies, &tally{})
		}
	}

	for _, r := range rows {
		if r.TeacherBatchID == nil {
			continue
		}
		i, ok := groupOf[*r.TeacherBatchID]
		if !ok {
			continue
		}
		tallies[i].add(r, scale)
		teacherTallies[teacherIndex[rep.Assignments[i].TeacherID]].add(r, scale)
	}

	for i := range rep.Assignments {
		t := tallies[i]
		row := &rep.Assignments[i]
		row.Submissions = len(t.tokens)
		row.Responses = t.responses
		row.Rated = t.rated
		row.Average, row.HasData = t.average()
	}
	for i := range rep.Teachers {
		t := teacherTallies[i]
		tr := &rep.Teachers[i]
		tr.Responses = t.responses
		tr.Rated = t.rated
		tr.Average, tr.HasData = t.average()
	}
	return rep
}

// Digest summarises the descriptive answers given for one assignment. It
// returns store.ErrNotFound when the assignment is outside the caller's scope.
func (svc *Service) Digest(ctx context.Context, caller model.Caller, targetID int64) (model.Digest, error) {
	d := model.Digest{TeacherBatchID: targetID}
	sc := ResolveScope(caller, model.ReportFilter{})
	if sc.Empty {
		return d, store.ErrNotFound
	}
	a, err := svc.store.GetAssignment(ctx, targetID)
	if err != nil {
		return d, err
	}
	if sc.Filter.TeacherID != nil && a.TeacherID != *sc.Filter.TeacherID {
		return d, store.ErrNotFound
	}
	if svc.summarizer == nil {
		return d, ErrDigestUnavailable
	}

	f := model.ReportFilter{TeacherID: &a.TeacherID, CourseID: &a.CourseID, BatchID: &a.BatchID, DepartmentID: &a.DepartmentID}
	rows, err := svc.store.AnswerRows(ctx, f, false)
	if err != nil {
		return d, err
	}
	var comments []string
	for _, r := range rows {
		if r.TeacherBatchID == nil || *r.TeacherBatchID != targetID {
			continue
		}
		if r.Text != nil && strings.TrimSpace(*r.Text) != "" {
			comments = append(comments, *r.Text)
		}
	}
	d.Comments = len(comments)
	if len(comments) == 0 {
		return d, nil
	}

	subject := fmt.Sprintf("%s, %s (%s), %s %s", a.TeacherName, a.CourseName, a.CourseCode, a.AcademicYear, a.Part)
	d.Summary, err = svc.summarizer.Summarize(ctx, subject, comments)
	if err != nil {
		return d, fmt.Errorf("summarize comments for assignment %d: %w", targetID, err)
	}
	return d, nil
}

// Export collects every report for an administrator into one document.
func (svc *Service) Export(ctx context.Context, f model.ReportFilter) (model.FeedbackExport, error) {
	admin := model.Caller{Role: model.UserRoleAdmin}
	exp := model.FeedbackExport{GeneratedAt: time.Now().UTC()}
	var err error
	if exp.Assignments, err = svc.store.ListAssignments(ctx, f); err != nil {
		return exp, err
	}
	if exp.Questions, err = svc.Questions(ctx, admin, f); err != nil {
		return exp, err
	}
	if exp.Submissions, err = svc.Submissions(ctx, admin, f); err != nil {
		return exp, err
	}
	if exp.Ratings, err = svc.Ratings(ctx, admin, f); err != nil {
		return exp, err
	}
	return exp, nil
}
