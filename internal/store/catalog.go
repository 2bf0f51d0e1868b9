package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/pavelanni/feedback/internal/model"
)

// CreateDepartment inserts a department.
func (s *Store) CreateDepartment(ctx context.Context, d model.Department) (int64, error) {
	return s.insert(ctx, `INSERT INTO departments (name) VALUES (?)`, d.Name)
}

// GetDepartment returns a department by ID.
func (s *Store) GetDepartment(ctx context.Context, id int64) (model.Department, error) {
	var d model.Department
	err := s.get(ctx, &d, `SELECT id, name FROM departments WHERE id = ?`, id)
	return d, err
}

// ListDepartments returns all departments ordered by name.
func (s *Store) ListDepartments(ctx context.Context) ([]model.Department, error) {
	var ds []model.Department
	err := s.db.SelectContext(ctx, &ds, `SELECT id, name FROM departments ORDER BY name`)
	return ds, err
}

// UpdateDepartment renames a department.
func (s *Store) UpdateDepartment(ctx context.Context, d model.Department) error {
	return checkAffected(s.db.ExecContext(ctx, `UPDATE departments SET name = ? WHERE id = ?`, d.Name, d.ID))
}

// DeleteDepartment removes a department and everything that belongs to it.
func (s *Store) DeleteDepartment(ctx context.Context, id int64) error {
	return checkAffected(s.db.ExecContext(ctx, `DELETE FROM departments WHERE id = ?`, id))
}

// CreateRole inserts a catalog role.
func (s *Store) CreateRole(ctx context.Context, r model.Role) (int64, error) {
	return s.insert(ctx, `INSERT INTO roles (name) VALUES (?)`, r.Name)
}

// ListRoles returns all catalog roles.
func (s *Store) ListRoles(ctx context.Context) ([]model.Role, error) {
	var rs []model.Role
	err := s.db.SelectContext(ctx, &rs, `SELECT id, name FROM roles ORDER BY name`)
	return rs, err
}

// UpdateRole renames a catalog role.
func (s *Store) UpdateRole(ctx context.Context, r model.Role) error {
	return checkAffected(s.db.ExecContext(ctx, `UPDATE roles SET name = ? WHERE id = ?`, r.Name, r.ID))
}

// DeleteRole removes a catalog role.
func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	return checkAffected(s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, id))
}

// CreateProgramme inserts a programme.
func (s *Store) CreateProgramme(ctx context.Context, p model.Programme) (int64, error) {
	return s.insert(ctx,
		`INSERT INTO programmes (name, department_id, level) VALUES (?, ?, ?)`,
		p.Name, p.DepartmentID, p.Level,
	)
}

// GetProgramme returns a programme by ID.
func (s *Store) GetProgramme(ctx context.Context, id int64) (model.Programme, error) {
	var p model.Programme
	err := s.get(ctx, &p, `SELECT id, name, department_id, level FROM programmes WHERE id = ?`, id)
	return p, err
}

// ListProgrammes returns programmes, optionally restricted to one department.
func (s *Store) ListProgrammes(ctx context.Context, departmentID *int64) ([]model.Programme, error) {
	query := `SELECT id, name, department_id, level FROM programmes`
	var args []any
	if departmentID != nil {
		query += ` WHERE department_id = ?`
		args = append(args, *departmentID)
	}
	var ps []model.Programme
	err := s.db.SelectContext(ctx, &ps, query+` ORDER BY name`, args...)
	return ps, err
}

// UpdateProgramme updates a programme.
func (s *Store) UpdateProgramme(ctx context.Context, p model.Programme) error {
	return checkAffected(s.db.ExecContext(ctx,
		`UPDATE programmes SET name = ?, department_id = ?, level = ? WHERE id = ?`,
		p.Name, p.DepartmentID, p.Level, p.ID,
	))
}

// DeleteProgramme removes a programme.
func (s *Store) DeleteProgramme(ctx context.Context, id int64) error {
	return checkAffected(s.db.ExecContext(ctx, `DELETE FROM programmes WHERE id = ?`, id))
}

// CreateCourse inserts a course.
func (s *Store) CreateCourse(ctx context.Context, c model.Course) (int64, error) {
	return s.insert(ctx,
		`INSERT INTO courses (name, code, credit, department_id, programme_id) VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.Code, c.Credit, c.DepartmentID, c.ProgrammeID,
	)
}

// GetCourse returns a course by ID.
func (s *Store) GetCourse(ctx context.Context, id int64) (model.Course, error) {
	var c model.Course
	err := s.get(ctx, &c,
		`SELECT id, name, code, credit, department_id, programme_id FROM courses WHERE id = ?`, id)
	return c, err
}

// ListCourses returns courses, optionally restricted to one department.
func (s *Store) ListCourses(ctx context.Context, departmentID *int64) ([]model.Course, error) {
	query := `SELECT id, name, code, credit, department_id, programme_id FROM courses`
	var args []any
	if departmentID != nil {
		query += ` WHERE department_id = ?`
		args = append(args, *departmentID)
	}
	var cs []model.Course
	err := s.db.SelectContext(ctx, &cs, query+` ORDER BY code`, args...)
	return cs, err
}

// UpdateCourse updates a course.
func (s *Store) UpdateCourse(ctx context.Context, c model.Course) error {
	return checkAffected(s.db.ExecContext(ctx,
		`UPDATE courses SET name = ?, code = ?, credit = ?, department_id = ?, programme_id = ? WHERE id = ?`,
		c.Name, c.Code, c.Credit, c.DepartmentID, c.ProgrammeID, c.ID,
	))
}

// DeleteCourse removes a course.
func (s *Store) DeleteCourse(ctx context.Context, id int64) error {
	return checkAffected(s.db.ExecContext(ctx, `DELETE FROM courses WHERE id = ?`, id))
}

// CreateBatch inserts a batch.
func (s *Store) CreateBatch(ctx context.Context, b model.Batch) (int64, error) {
	return s.insert(ctx,
		`INSERT INTO batches (course_id, academic_year, part, active) VALUES (?, ?, ?, ?)`,
		b.CourseID, b.AcademicYear, b.Part, b.Active,
	)
}

// GetBatch returns a batch by ID.
func (s *Store) GetBatch(ctx context.Context, id int64) (model.Batch, error) {
	var b model.Batch
	err := s.get(ctx, &b, `SELECT id, course_id, academic_year, part, active FROM batches WHERE id = ?`, id)
	return b, err
}

// ListBatches returns all batches, newest academic year first.
func (s *Store) ListBatches(ctx context.Context) ([]model.Batch, error) {
	var bs []model.Batch
	err := s.db.SelectContext(ctx, &bs,
		`SELECT id, course_id, academic_year, part, active FROM batches ORDER BY academic_year DESC, part, id`)
	return bs, err
}

// UpdateBatch updates a batch.
func (s *Store) UpdateBatch(ctx context.Context, b model.Batch) error {
	return checkAffected(s.db.ExecContext(ctx,
		`UPDATE batches SET course_id = ?, academic_year = ?, part = ?, active = ? WHERE id = ?`,
		b.CourseID, b.AcademicYear, b.Part, b.Active, b.ID,
	))
}

// DeleteBatch removes a batch.
func (s *Store) DeleteBatch(ctx context.Context, id int64) error {
	return checkAffected(s.db.ExecContext(ctx, `DELETE FROM batches WHERE id = ?`, id))
}

const teacherColumns = `id, name, department_id, designation, gender, role_id, feedback_active`

// CreateTeacher inserts a teacher.
func (s *Store) CreateTeacher(ctx context.Context, t model.Teacher) (int64, error) {
	return s.insert(ctx,
		`INSERT INTO teachers (name, department_id, designation, gender, role_id, feedback_active)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Name, t.DepartmentID, t.Designation, t.Gender, t.RoleID, t.FeedbackActive,
	)
}

// GetTeacher returns a teacher by ID.
func (s *Store) GetTeacher(ctx context.Context, id int64) (model.Teacher, error) {
	var t model.Teacher
	err := s.get(ctx, &t, `SELECT `+teacherColumns+` FROM teachers WHERE id = ?`, id)
	return t, err
}

// ListTeachers returns teachers, optionally restricted to one department.
func (s *Store) ListTeachers(ctx context.Context, departmentID *int64) ([]model.Teacher, error) {
	query := `SELECT ` + teacherColumns + ` FROM teachers`
	var args []any
	if departmentID != nil {
		query += ` WHERE department_id = ?`
		args = append(args, *departmentID)
	}
	var ts []model.Teacher
	err := s.db.SelectContext(ctx, &ts, query+` ORDER BY name`, args...)
	return ts, err
}

// UpdateTeacher updates a teacher.
func (s *Store) UpdateTeacher(ctx context.Context, t model.Teacher) error {
	return checkAffected(s.db.ExecContext(ctx,
		`UPDATE teachers SET name = ?, department_id = ?, designation = ?, gender = ?, role_id = ?, feedback_active = ?
		 WHERE id = ?`,
		t.Name, t.DepartmentID, t.Designation, t.Gender, t.RoleID, t.FeedbackActive, t.ID,
	))
}

// DeleteTeacher removes a teacher and their assignments. Responses recorded
// against those assignments are kept, detached from their target.
func (s *Store) DeleteTeacher(ctx context.Context, id int64) error {
	return checkAffected(s.db.ExecContext(ctx, `DELETE FROM teachers WHERE id = ?`, id))
}

// CreateTeacherBatch assigns a teacher to a course, batch and department.
// Assigning the same tuple twice returns ErrConflict.
func (s *Store) CreateTeacherBatch(ctx context.Context, tb model.TeacherBatch) (int64, error) {
	return s.insert(ctx,
		`INSERT INTO teacher_batches (teacher_id, course_id, batch_id, department_id, feedback_active)
		 VALUES (?, ?, ?, ?, ?)`,
		tb.TeacherID, tb.CourseID, tb.BatchID, tb.DepartmentID, tb.FeedbackActive,
	)
}

// SetTeacherBatchActive opens or closes an assignment for feedback.
func (s *Store) SetTeacherBatchActive(ctx context.Context, id int64, active bool) error {
	return checkAffected(s.db.ExecContext(ctx,
		`UPDATE teacher_batches SET feedback_active = ? WHERE id = ?`, active, id))
}

// DeleteTeacherBatch removes an assignment.
func (s *Store) DeleteTeacherBatch(ctx context.Context, id int64) error {
	return checkAffected(s.db.ExecContext(ctx, `DELETE FROM teacher_batches WHERE id = ?`, id))
}

const assignmentQuery = `
	SELECT tb.id, tb.teacher_id, tb.course_id, tb.batch_id, tb.department_id, tb.feedback_active,
		t.name AS teacher_name, r.name AS role_name,
		c.name AS course_name, c.code AS course_code, p.name AS programme_name,
		d.name AS department_name,
		b.academic_year, b.part, b.active AS batch_active
	FROM teacher_batches tb
	JOIN teachers t ON t.id = tb.teacher_id
	JOIN roles r ON r.id = t.role_id
	JOIN courses c ON c.id = tb.course_id
	JOIN programmes p ON p.id = c.programme_id
	JOIN departments d ON d.id = tb.department_id
	JOIN batches b ON b.id = tb.batch_id`

// GetAssignment returns a TeacherBatch with the names it refers to.
func (s *Store) GetAssignment(ctx context.Context, id int64) (model.Assignment, error) {
	var a model.Assignment
	err := s.get(ctx, &a, assignmentQuery+` WHERE tb.id = ?`, id)
	return a, err
}

// ListAssignments returns the assignments matching every non-nil filter field.
func (s *Store) ListAssignments(ctx context.Context, f model.ReportFilter) ([]model.Assignment, error) {
	conds, args := filterConds(f)
	var as []model.Assignment
	err := s.db.SelectContext(ctx, &as, assignmentQuery+joinConds(conds)+` ORDER BY t.name, c.code, b.academic_year, tb.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return as, nil
}

// filterConds builds the conditions over the teacher_batches alias tb for
// every non-nil filter field.
func filterConds(f model.ReportFilter) ([]string, []any) {
	var conds []string
	var args []any
	add := func(col string, v *int64) {
		if v != nil {
			conds = append(conds, "tb."+col+" = ?")
			args = append(args, *v)
		}
	}
	add("department_id", f.DepartmentID)
	add("teacher_id", f.TeacherID)
	add("course_id", f.CourseID)
	add("batch_id", f.BatchID)
	return conds, args
}

func joinConds(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
