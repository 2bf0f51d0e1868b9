package handler

import (
	"errors"
	"log/slog"
	"net/http"

	appI18n "github.com/pavelanni/feedback/internal/i18n"
	"github.com/pavelanni/feedback/internal/model"
	"github.com/pavelanni/feedback/internal/report"
	"github.com/pavelanni/feedback/internal/store"
)

// reportFilter reads the department/teacher/course/batch query parameters.
func reportFilter(r *http.Request) (model.ReportFilter, error) {
	var f model.ReportFilter
	var err error
	if f.DepartmentID, err = queryID(r, "department_id"); err != nil {
		return f, err
	}
	if f.TeacherID, err = queryID(r, "teacher_id"); err != nil {
		return f, err
	}
	if f.CourseID, err = queryID(r, "course_id"); err != nil {
		return f, err
	}
	if f.BatchID, err = queryID(r, "batch_id"); err != nil {
		return f, err
	}
	return f, nil
}

func caller(r *http.Request) model.Caller {
	return model.UserFromContext(r.Context()).Caller()
}

func (h *Handler) handleSubmissionsReport(w http.ResponseWriter, r *http.Request) {
	f, err := reportFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := h.reports.Submissions(r.Context(), caller(r), f)
	if err != nil {
		storeError(w, "submissions report failed", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleQuestionsReport(w http.ResponseWriter, r *http.Request) {
	f, err := reportFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := h.reports.Questions(r.Context(), caller(r), f)
	if err != nil {
		storeError(w, "questions report failed", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleRatingsReport(w http.ResponseWriter, r *http.Request) {
	f, err := reportFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := h.reports.Ratings(r.Context(), caller(r), f)
	if err != nil {
		storeError(w, "ratings report failed", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleDigest(w http.ResponseWriter, r *http.Request) {
	targetID, ok := urlID(w, r, "targetID")
	if !ok {
		return
	}
	d, err := h.reports.Digest(r.Context(), caller(r), targetID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, d)
	case errors.Is(err, report.ErrDigestUnavailable):
		writeError(w, http.StatusServiceUnavailable, appI18n.T(r.Context(), "DigestUnavailable"))
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		slog.Error("digest failed", "target_id", targetID, "error", err)
		writeError(w, http.StatusBadGateway, "summary service failed")
	}
}
