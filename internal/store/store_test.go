package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pavelanni/feedback/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixture holds the ids of a minimal catalog with one open assignment.
type fixture struct {
	departmentID int64
	roleID       int64
	programmeID  int64
	courseID     int64
	batchID      int64
	teacherID    int64
	targetID     int64
}

func seedCatalog(t *testing.T, s *Store) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture
	var err error
	must := func(step string) {
		t.Helper()
		if err != nil {
			t.Fatalf("%s: %v", step, err)
		}
	}
	f.departmentID, err = s.CreateDepartment(ctx, model.Department{Name: "Physics"})
	must("CreateDepartment")
	f.roleID, err = s.CreateRole(ctx, model.Role{Name: "Assistant Professor"})
	must("CreateRole")
	f.programmeID, err = s.CreateProgramme(ctx, model.Programme{Name: "BSc Physics", DepartmentID: f.departmentID, Level: model.LevelUG})
	must("CreateProgramme")
	f.courseID, err = s.CreateCourse(ctx, model.Course{Name: "Mechanics", Code: "PHY101", Credit: 4, DepartmentID: f.departmentID, ProgrammeID: f.programmeID})
	must("CreateCourse")
	f.batchID, err = s.CreateBatch(ctx, model.Batch{CourseID: f.courseID, AcademicYear: "2025-2026", Part: "I", Active: true})
	must("CreateBatch")
	f.teacherID, err = s.CreateTeacher(ctx, model.Teacher{Name: "A. Rao", DepartmentID: f.departmentID, RoleID: f.roleID, FeedbackActive: true})
	must("CreateTeacher")
	f.targetID, err = s.CreateTeacherBatch(ctx, model.TeacherBatch{
		TeacherID: f.teacherID, CourseID: f.courseID, BatchID: f.batchID, DepartmentID: f.departmentID, FeedbackActive: true,
	})
	must("CreateTeacherBatch")
	return f
}

func intPtr(v int) *int { return &v }

func insertTestQuestions(t *testing.T, s *Store) (mcq, descriptive model.Question) {
	t.Helper()
	ctx := context.Background()
	mcqID, err := s.CreateQuestion(ctx, model.Question{
		Text:   "How clear were the lectures?",
		Type:   model.QuestionMCQ,
		Active: true,
		Options: []model.Option{
			{Label: "a", Answer: "Excellent", Weight: intPtr(5)},
			{Label: "b", Answer: "Good"},
			{Label: "c", Answer: "Average"},
		},
	})
	if err != nil {
		t.Fatalf("CreateQuestion mcq: %v", err)
	}
	descID, err := s.CreateQuestion(ctx, model.Question{Text: "Any comments?", Type: model.QuestionDescriptive, Active: true})
	if err != nil {
		t.Fatalf("CreateQuestion descriptive: %v", err)
	}
	if mcq, err = s.GetQuestion(ctx, mcqID); err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if descriptive, err = s.GetQuestion(ctx, descID); err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	return mcq, descriptive
}

func TestCatalogCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seedCatalog(t, s)

	d, err := s.GetDepartment(ctx, f.departmentID)
	if err != nil {
		t.Fatalf("GetDepartment: %v", err)
	}
	if d.Name != "Physics" {
		t.Errorf("expected 'Physics', got %q", d.Name)
	}

	if err := s.UpdateDepartment(ctx, model.Department{ID: f.departmentID, Name: "Applied Physics"}); err != nil {
		t.Fatalf("UpdateDepartment: %v", err)
	}
	d, _ = s.GetDepartment(ctx, f.departmentID)
	if d.Name != "Applied Physics" {
		t.Errorf("expected renamed department, got %q", d.Name)
	}

	// Not found.
	if _, err := s.GetDepartment(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateDepartment(ctx, model.Department{ID: 9999, Name: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on update, got %v", err)
	}

	// Duplicate name.
	if _, err := s.CreateDepartment(ctx, model.Department{Name: "Applied Physics"}); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	// Missing parent.
	_, err = s.CreateCourse(ctx, model.Course{Name: "X", Code: "X1", DepartmentID: 9999, ProgrammeID: f.programmeID})
	if !errors.Is(err, ErrInvalidReference) {
		t.Errorf("expected ErrInvalidReference, got %v", err)
	}

	c, err := s.GetCourse(ctx, f.courseID)
	if err != nil {
		t.Fatalf("GetCourse: %v", err)
	}
	if c.Code != "PHY101" || c.Credit != 4 {
		t.Errorf("unexpected course %+v", c)
	}

	b, err := s.GetBatch(ctx, f.batchID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if !b.Active || b.AcademicYear != "2025-2026" {
		t.Errorf("unexpected batch %+v", b)
	}

	tch, err := s.GetTeacher(ctx, f.teacherID)
	if err != nil {
		t.Fatalf("GetTeacher: %v", err)
	}
	tch.Designation = "Reader"
	if err := s.UpdateTeacher(ctx, tch); err != nil {
		t.Fatalf("UpdateTeacher: %v", err)
	}
	tch, _ = s.GetTeacher(ctx, f.teacherID)
	if tch.Designation != "Reader" {
		t.Errorf("expected designation 'Reader', got %q", tch.Designation)
	}
}

func TestListByDepartment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seedCatalog(t, s)

	otherDept, _ := s.CreateDepartment(ctx, model.Department{Name: "Chemistry"})
	otherProg, _ := s.CreateProgramme(ctx, model.Programme{Name: "MSc Chemistry", DepartmentID: otherDept, Level: model.LevelPG})
	if _, err := s.CreateCourse(ctx, model.Course{Name: "Organic", Code: "CHE201", DepartmentID: otherDept, ProgrammeID: otherProg}); err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}

	tests := []struct {
		name       string
		department *int64
		wantProgs  int
		wantCourse int
	}{
		{"all", nil, 2, 2},
		{"physics", &f.departmentID, 1, 1},
		{"chemistry", &otherDept, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps, err := s.ListProgrammes(ctx, tt.department)
			if err != nil {
				t.Fatalf("ListProgrammes: %v", err)
			}
			if len(ps) != tt.wantProgs {
				t.Errorf("expected %d programmes, got %d", tt.wantProgs, len(ps))
			}
			cs, err := s.ListCourses(ctx, tt.department)
			if err != nil {
				t.Fatalf("ListCourses: %v", err)
			}
			if len(cs) != tt.wantCourse {
				t.Errorf("expected %d courses, got %d", tt.wantCourse, len(cs))
			}
		})
	}
}

func TestAssignments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seedCatalog(t, s)

	a, err := s.GetAssignment(ctx, f.targetID)
	if err != nil {
		t.Fatalf("GetAssignment: %v", err)
	}
	if a.TeacherName != "A. Rao" || a.CourseCode != "PHY101" || a.DepartmentName != "Physics" {
		t.Errorf("unexpected assignment %+v", a)
	}
	if !a.Open() {
		t.Error("expected assignment to be open")
	}

	// The same tuple cannot be assigned twice.
	_, err = s.CreateTeacherBatch(ctx, model.TeacherBatch{
		TeacherID: f.teacherID, CourseID: f.courseID, BatchID: f.batchID, DepartmentID: f.departmentID,
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	if err := s.SetTeacherBatchActive(ctx, f.targetID, false); err != nil {
		t.Fatalf("SetTeacherBatchActive: %v", err)
	}
	a, _ = s.GetAssignment(ctx, f.targetID)
	if a.Open() {
		t.Error("expected assignment to be closed")
	}

	other := int64(9999)
	tests := []struct {
		name   string
		filter model.ReportFilter
		want   int
	}{
		{"no filter", model.ReportFilter{}, 1},
		{"by teacher", model.ReportFilter{TeacherID: &f.teacherID}, 1},
		{"by department and course", model.ReportFilter{DepartmentID: &f.departmentID, CourseID: &f.courseID}, 1},
		{"no match", model.ReportFilter{BatchID: &other}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			as, err := s.ListAssignments(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListAssignments: %v", err)
			}
			if len(as) != tt.want {
				t.Errorf("expected %d assignments, got %d", tt.want, len(as))
			}
		})
	}
}

func TestQuestionCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Empty DB should return zero count and empty list.
	count, err := s.QuestionCount(ctx)
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 questions, got %d", count)
	}

	mcq, desc := insertTestQuestions(t, s)
	if len(mcq.Options) != 3 {
		t.Fatalf("expected 3 options, got %d", len(mcq.Options))
	}
	if mcq.Options[0].Answer != "Excellent" || mcq.Options[0].Weight == nil || *mcq.Options[0].Weight != 5 {
		t.Errorf("unexpected first option %+v", mcq.Options[0])
	}
	if mcq.Options[1].Weight != nil {
		t.Errorf("expected nil weight, got %v", *mcq.Options[1].Weight)
	}
	if len(desc.Options) != 0 {
		t.Errorf("expected no options on descriptive question, got %d", len(desc.Options))
	}

	if err := s.SetQuestionActive(ctx, desc.ID, false); err != nil {
		t.Fatalf("SetQuestionActive: %v", err)
	}
	active, err := s.ListQuestions(ctx, true)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(active) != 1 || active[0].ID != mcq.ID {
		t.Errorf("expected only the mcq question active, got %+v", active)
	}
	all, _ := s.ListQuestions(ctx, false)
	if len(all) != 2 {
		t.Errorf("expected 2 questions, got %d", len(all))
	}

	if err := s.UpdateQuestionText(ctx, mcq.ID, "How clear was the teaching?"); err != nil {
		t.Fatalf("UpdateQuestionText: %v", err)
	}
	q, _ := s.GetQuestion(ctx, mcq.ID)
	if q.Text != "How clear was the teaching?" {
		t.Errorf("expected updated text, got %q", q.Text)
	}

	if err := s.SetOptionWeight(ctx, mcq.Options[1].ID, intPtr(4)); err != nil {
		t.Fatalf("SetOptionWeight: %v", err)
	}
	q, _ = s.GetQuestion(ctx, mcq.ID)
	if q.Options[1].Weight == nil || *q.Options[1].Weight != 4 {
		t.Errorf("expected weight 4, got %v", q.Options[1].Weight)
	}

	if _, err := s.GetQuestion(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	n, err := s.DeleteQuestions(ctx, []int64{mcq.ID, desc.ID, 9999})
	if err != nil {
		t.Fatalf("DeleteQuestions: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}
	count, _ = s.QuestionCount(ctx)
	if count != 0 {
		t.Errorf("expected 0 questions after delete, got %d", count)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Missing file returns empty string.
	hash, err := s.GetImportedFileHash(ctx, "/some/path.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash(ctx, "/some/path.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, _ = s.GetImportedFileHash(ctx, "/some/path.json")
	if hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	// Update existing.
	if err := s.SetImportedFileHash(ctx, "/some/path.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash(ctx, "/some/path.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}

func TestImportQuestionsIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	good := []model.Question{
		{Text: "Pace?", Type: model.QuestionMCQ, Active: true, Options: []model.Option{{Label: "a", Answer: "Good"}}},
		{Text: "Comments", Type: model.QuestionDescriptive, Active: true},
	}
	bad := append([]model.Question{}, good...)
	bad = append(bad, model.Question{Text: "Essay", Type: "essay", Active: true})

	if err := s.ImportQuestions(ctx, "bad.json", "h1", bad); err == nil {
		t.Fatal("expected the invalid question type to fail the import")
	}
	if n, _ := s.QuestionCount(ctx); n != 0 {
		t.Fatalf("expected a failed import to leave no questions, got %d", n)
	}
	if hash, _ := s.GetImportedFileHash(ctx, "bad.json"); hash != "" {
		t.Errorf("expected no recorded hash, got %q", hash)
	}

	if err := s.ImportQuestions(ctx, "good.json", "h2", good); err != nil {
		t.Fatalf("ImportQuestions: %v", err)
	}
	if n, _ := s.QuestionCount(ctx); n != 2 {
		t.Errorf("expected 2 questions, got %d", n)
	}
	if hash, _ := s.GetImportedFileHash(ctx, "good.json"); hash != "h2" {
		t.Errorf("expected hash h2, got %q", hash)
	}
}
