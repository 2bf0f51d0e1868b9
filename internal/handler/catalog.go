package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/feedback/internal/model"
)

func (h *Handler) adminRoutes(r chi.Router) {
	// Department heads manage the courses and programmes of their own department.
	r.Group(func(r chi.Router) {
		r.Use(requireRole(model.UserRoleAdmin, model.UserRoleDepartmentHead))
		r.Get("/programmes", h.handleListProgrammes)
		r.Post("/programmes", h.handleCreateProgramme)
		r.Put("/programmes/{programmeID}", h.handleUpdateProgramme)
		r.Get("/courses", h.handleListCourses)
		r.Post("/courses", h.handleCreateCourse)
		r.Put("/courses/{courseID}", h.handleUpdateCourse)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireRole(model.UserRoleAdmin))

		r.Get("/departments", h.handleListDepartments)
		r.Post("/departments", h.handleCreateDepartment)
		r.Put("/departments/{departmentID}", h.handleUpdateDepartment)
		r.Delete("/departments/{departmentID}", h.handleDeleteDepartment)

		r.Get("/roles", h.handleListRoles)
		r.Post("/roles", h.handleCreateRole)
		r.Put("/roles/{roleID}", h.handleUpdateRole)
		r.Delete("/roles/{roleID}", h.handleDeleteRole)

		r.Delete("/programmes/{programmeID}", h.handleDeleteProgramme)
		r.Delete("/courses/{courseID}", h.handleDeleteCourse)

		r.Get("/batches", h.handleListBatches)
		r.Post("/batches", h.handleCreateBatch)
		r.Put("/batches/{batchID}", h.handleUpdateBatch)
		r.Delete("/batches/{batchID}", h.handleDeleteBatch)

		r.Get("/teachers", h.handleListTeachers)
		r.Post("/teachers", h.handleCreateTeacher)
		r.Put("/teachers/{teacherID}", h.handleUpdateTeacher)
		r.Delete("/teachers/{teacherID}", h.handleDeleteTeacher)

		r.Get("/assignments", h.handleListAssignments)
		r.Post("/assignments", h.handleCreateAssignment)
		r.Put("/assignments/{assignmentID}/active", h.handleSetAssignmentActive)
		r.Delete("/assignments/{assignmentID}", h.handleDeleteAssignment)

		r.Get("/questions", h.handleListQuestions)
		r.Post("/questions", h.handleCreateQuestion)
		r.Post("/questions/upload", h.handleUploadQuestions)
		r.Post("/questions/delete", h.handleDeleteQuestions)
		r.Put("/questions/{questionID}", h.handleUpdateQuestionText)
		r.Put("/questions/{questionID}/active", h.handleSetQuestionActive)
		r.Post("/questions/{questionID}/options", h.handleAddOption)
		r.Put("/options/{optionID}/weight", h.handleSetOptionWeight)

		r.Get("/users", h.handleListUsers)
		r.Post("/users", h.handleCreateUser)
		r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
		r.Put("/users/{userID}/teacher", h.handleLinkUserTeacher)
	})
}

// managedDepartment returns the department a department head may manage, or
// nil for administrators. It reports false after writing an error response.
func (h *Handler) managedDepartment(w http.ResponseWriter, r *http.Request) (*int64, bool) {
	u := model.UserFromContext(r.Context())
	if u.Role == model.UserRoleAdmin {
		return nil, true
	}
	if u.TeacherID == nil {
		writeError(w, http.StatusForbidden, "account is not linked to a teacher")
		return nil, false
	}
	t, err := h.store.GetTeacher(r.Context(), *u.TeacherID)
	if err != nil {
		storeError(w, "failed to resolve department", err)
		return nil, false
	}
	return &t.DepartmentID, true
}

func inDepartment(dept *int64, id int64) bool {
	return dept == nil || *dept == id
}

type nameRequest struct {
	Name string `json:"name" validate:"notblank"`
}

type activeRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func created(w http.ResponseWriter, id int64) {
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	ds, err := h.store.ListDepartments(r.Context())
	if err != nil {
		storeError(w, "failed to list departments", err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (h *Handler) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.store.CreateDepartment(r.Context(), model.Department{Name: req.Name})
	if err != nil {
		storeError(w, "failed to create department", err)
		return
	}
	created(w, id)
}

func (h *Handler) handleUpdateDepartment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "departmentID")
	if !ok {
		return
	}
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.store.UpdateDepartment(r.Context(), model.Department{ID: id, Name: req.Name}); err != nil {
		storeError(w, "failed to update department", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteDepartment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "departmentID")
	if !ok {
		return
	}
	if err := h.store.DeleteDepartment(r.Context(), id); err != nil {
		storeError(w, "failed to delete department", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	rs, err := h.store.ListRoles(r.Context())
	if err != nil {
		storeError(w, "failed to list roles", err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (h *Handler) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.store.CreateRole(r.Context(), model.Role{Name: req.Name})
	if err != nil {
		storeError(w, "failed to create role", err)
		return
	}
	created(w, id)
}

func (h *Handler) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "roleID")
	if !ok {
		return
	}
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.store.UpdateRole(r.Context(), model.Role{ID: id, Name: req.Name}); err != nil {
		storeError(w, "failed to update role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.store.DeleteRole(r.Context(), id); err != nil {
		storeError(w, "failed to delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type programmeRequest struct {
	Name         string               `json:"name" validate:"notblank"`
	DepartmentID int64                `json:"department_id" validate:"required"`
	Level        model.ProgrammeLevel `json:"level" validate:"programme_level"`
}

func (h *Handler) handleListProgrammes(w http.ResponseWriter, r *http.Request) {
	dept, ok := h.managedDepartment(w, r)
	if !ok {
		return
	}
	ps, err := h.store.ListProgrammes(r.Context(), dept)
	if err != nil {
		storeError(w, "failed to list programmes", err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *Handler) handleCreateProgramme(w http.ResponseWriter, r *http.Request) {
	dept, ok := h.managedDepartment(w, r)
	if !ok {
		return
	}
	var req programmeRequest
	if !decode(w, r, &req) {
		return
	}
	if !inDepartment(dept, req.DepartmentID) {
		writeError(w, http.StatusForbidden, "outside your department")
		return
	}
	id, err := h.store.CreateProgramme(r.Context(), model.Programme{
		Name:         req.Name,
		DepartmentID: req.DepartmentID,
		Level:        req.Level,
	})
	if err != nil {
		storeError(w, "failed to create programme", err)
		return
	}
	created(w, id)
}

func (h *Handler) handleUpdateProgramme(w http.ResponseWriter, r *http.Request) {
	dept, ok := h.managedDepartment(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "programmeID")
	if !ok {
		return
	}
	var req programmeRequest
	if !decode(w, r, &req) {
		return
	}
	existing, err := h.store.GetProgramme(r.Context(), id)
	if err != nil {
		storeError(w, "failed to get programme", err)
		return
	}
	if !inDepartment(dept, existing.DepartmentID) || !inDepartment(dept, req.DepartmentID) {
		writeError(w, http.StatusForbidden, "outside your department")
		return
	}
	err = h.store.UpdateProgramme(r.Context(), model.Programme{
		ID:           id,
		Name:         req.Name,
		DepartmentID: req.DepartmentID,
		Level:        req.Level,
	})
	if err != nil {
		storeError(w, "failed to update programme", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteProgramme(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "programmeID")
	if !ok {
		return
	}
	if err := h.store.DeleteProgramme(r.Context(), id); err != nil {
		storeError(w, "failed to delete programme", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type courseRequest struct {
	Name         string `json:"name" validate:"notblank"`
	Code         string `json:"code" validate:"notblank,max=20"`
	Credit       int    `json:"credit" validate:"min=0,max=40"`
	DepartmentID int64  `json:"department_id" validate:"required"`
	ProgrammeID  int64  `json:"programme_id" validate:"required"`
}

func (req courseRequest) course(id int64) model.Course {
	return model.Course{
		ID:           id,
		Name:         req.Name,
		Code:         req.Code,
		Credit:       req.Credit,
		DepartmentID: req.DepartmentID,
		ProgrammeID:  req.ProgrammeID,
	}
}

func (h *Handler) handleListCourses(w http.ResponseWriter, r *http.Request) {
	dept, ok := h.managedDepartment(w, r)
	if !ok {
		return
	}
	cs, err := h.store.ListCourses(r.Context(), dept)
	if err != nil {
		storeError(w, "failed to list courses", err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *Handler) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	dept, ok := h.managedDepartment(w, r)
	if !ok {
		return
	}
	var req courseRequest
	if !decode(w, r, &req) {
		return
	}
	if !inDepartment(dept, req.DepartmentID) {
		writeError(w, http.StatusForbidden, "outside your department")
		return
	}
	id, err := h.store.CreateCourse(r.Context(), req.course(0))
	if err != nil {
		storeError(w, "failed to create course", err)
		return
	}
	created(w, id)
}

func (h *Handler) handleUpdateCourse(w http.ResponseWriter, r *http.Request) {
	dept, ok := h.managedDepartment(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "courseID")
	if !ok {
		return
	}
	var req courseRequest
	if !decode(w, r, &req) {
		return
	}
	existing, err := h.store.GetCourse(r.Context(), id)
	if err != nil {
		storeError(w, "failed to get course", err)
		return
	}
	if !inDepartment(dept, existing.DepartmentID) || !inDepartment(dept, req.DepartmentID) {
		writeError(w, http.StatusForbidden, "outside your department")
		return
	}
	if err := h.store.UpdateCourse(r.Context(), req.course(id)); err != nil {
		storeError(w, "failed to update course", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "courseID")
	if !ok {
		return
	}
	if err := h.store.DeleteCourse(r.Context(), id); err != nil {
		storeError(w, "failed to delete course", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type batchRequest struct {
	CourseID     int64  `json:"course_id" validate:"required"`
	AcademicYear string `json:"academic_year" validate:"notblank"`
	Part         string `json:"part"`
	Active       *bool  `json:"active"`
}

func (h *Handler) handleListBatches(w http.ResponseWriter, r *http.Request) {
	bs, err := h.store.ListBatches(r.Context())
	if err != nil {
		storeError(w, "failed to list batches", err)
		return
	}
	writeJSON(w, http.StatusOK, bs)
}

func (h *Handler) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.store.CreateBatch(r.Context(), model.Batch{
		CourseID:     req.CourseID,
		AcademicYear: req.AcademicYear,
		Part:         req.Part,
		Active:       boolOr(req.Active, true),
	})
	if err != nil {
		storeError(w, "failed to create batch", err)
		return
	}
	created(w, id)
}

func (h *Handler) handleUpdateBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "batchID")
	if !ok {
		return
	}
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	err := h.store.UpdateBatch(r.Context(), model.Batch{
		ID:           id,
		CourseID:     req.CourseID,
		AcademicYear: req.AcademicYear,
		Part:         req.Part,
		Active:       boolOr(req.Active, true),
	})
	if err != nil {
		storeError(w, "failed to update batch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "batchID")
	if !ok {
		return
	}
	if err := h.store.DeleteBatch(r.Context(), id); err != nil {
		storeError(w, "failed to delete batch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type teacherRequest struct {
	Name           string `json:"name" validate:"notblank"`
	DepartmentID   int64  `json:"department_id" validate:"required"`
	Designation    string `json:"designation"`
	Gender         string `json:"gender"`
	RoleID         int64  `json:"role_id" validate:"required"`
	FeedbackActive *bool  `json:"feedback_active"`
}

func (req teacherRequest) teacher(id int64) model.Teacher {
	return model.Teacher{
		ID:             id,
		Name:           req.Name,
		DepartmentID:   req.DepartmentID,
		Designation:    req.Designation,
		Gender:         req.Gender,
		RoleID:         req.RoleID,
		FeedbackActive: boolOr(req.FeedbackActive, true),
	}
}

func (h *Handler) handleListTeachers(w http.ResponseWriter, r *http.Request) {
	dept, err := queryID(r, "department_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ts, err := h.store.ListTeachers(r.Context(), dept)
	if err != nil {
		storeError(w, "failed to list teachers", err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (h *Handler) handleCreateTeacher(w http.ResponseWriter, r *http.Request) {
	var req teacherRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.store.CreateTeacher(r.Context(), req.teacher(0))
	if err != nil {
		storeError(w, "failed to create teacher", err)
		return
	}
	created(w, id)
}

func (h *Handler) handleUpdateTeacher(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "teacherID")
	if !ok {
		return
	}
	var req teacherRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.store.UpdateTeacher(r.Context(), req.teacher(id)); err != nil {
		storeError(w, "failed to update teacher", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteTeacher(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "teacherID")
	if !ok {
		return
	}
	if err := h.store.DeleteTeacher(r.Context(), id); err != nil {
		storeError(w, "failed to delete teacher", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignmentRequest struct {
	TeacherID      int64 `json:"teacher_id" validate:"required"`
	CourseID       int64 `json:"course_id" validate:"required"`
	BatchID        int64 `json:"batch_id" validate:"required"`
	DepartmentID   int64 `json:"department_id" validate:"required"`
	FeedbackActive *bool `json:"feedback_active"`
}

func (h *Handler) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	f, err := reportFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	as, err := h.store.ListAssignments(r.Context(), f)
	if err != nil {
		storeError(w, "failed to list assignments", err)
		return
	}
	writeJSON(w, http.StatusOK, as)
}

func (h *Handler) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req assignmentRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.store.CreateTeacherBatch(r.Context(), model.TeacherBatch{
		TeacherID:      req.TeacherID,
		CourseID:       req.CourseID,
		BatchID:        req.BatchID,
		DepartmentID:   req.DepartmentID,
		FeedbackActive: boolOr(req.FeedbackActive, true),
	})
	if err != nil {
		storeError(w, "failed to create assignment", err)
		return
	}
	created(w, id)
}

func (h *Handler) handleSetAssignmentActive(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "assignmentID")
	if !ok {
		return
	}
	var req activeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.store.SetTeacherBatchActive(r.Context(), id, *req.Active); err != nil {
		storeError(w, "failed to toggle assignment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "assignmentID")
	if !ok {
		return
	}
	if err := h.store.DeleteTeacherBatch(r.Context(), id); err != nil {
		storeError(w, "failed to delete assignment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
