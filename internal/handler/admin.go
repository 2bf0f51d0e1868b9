package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/feedback/internal/model"
	"github.com/pavelanni/feedback/internal/validate"
)

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		storeError(w, "failed to list users", err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Username    string         `json:"username" validate:"required,min=3,max=64"`
	DisplayName string         `json:"display_name"`
	Password    string         `json:"password" validate:"required,min=8"`
	Role        model.UserRole `json:"role" validate:"user_role"`
	TeacherID   *int64         `json:"teacher_id" validate:"omitempty,gt=0"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decode(w, r, &req) {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	id, err := h.store.CreateUser(r.Context(), model.User{
		Username:     req.Username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		TeacherID:    req.TeacherID,
		Active:       true,
	})
	if err != nil {
		storeError(w, "failed to create user", err)
		return
	}
	created(w, id)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "userID")
	if !ok {
		return
	}
	if me := model.UserFromContext(r.Context()); me.ID == id {
		writeError(w, http.StatusConflict, "cannot disable your own account")
		return
	}
	if err := h.store.ToggleUserActive(r.Context(), id); err != nil {
		storeError(w, "failed to toggle user active", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type linkTeacherRequest struct {
	TeacherID *int64 `json:"teacher_id" validate:"omitempty,gt=0"`
}

func (h *Handler) handleLinkUserTeacher(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "userID")
	if !ok {
		return
	}
	var req linkTeacherRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.store.LinkUserTeacher(r.Context(), id, req.TeacherID); err != nil {
		storeError(w, "failed to link teacher", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := h.store.ListQuestions(r.Context(), r.URL.Query().Get("active") == "1")
	if err != nil {
		storeError(w, "failed to list questions", err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req model.QuestionImport
	if !decode(w, r, &req) {
		return
	}
	if err := validate.Questions([]model.QuestionImport{req}); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	id, err := h.store.CreateQuestion(r.Context(), req.Question())
	if err != nil {
		storeError(w, "failed to create question", err)
		return
	}
	created(w, id)
}

type textRequest struct {
	Text string `json:"text" validate:"notblank"`
}

func (h *Handler) handleUpdateQuestionText(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "questionID")
	if !ok {
		return
	}
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.store.UpdateQuestionText(r.Context(), id, req.Text); err != nil {
		storeError(w, "failed to update question", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetQuestionActive(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "questionID")
	if !ok {
		return
	}
	var req activeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.store.SetQuestionActive(r.Context(), id, *req.Active); err != nil {
		storeError(w, "failed to toggle question", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type deleteQuestionsRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

func (h *Handler) handleDeleteQuestions(w http.ResponseWriter, r *http.Request) {
	var req deleteQuestionsRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := h.store.DeleteQuestions(r.Context(), req.IDs)
	if err != nil {
		storeError(w, "failed to delete questions", err)
		return
	}
	slog.Info("deleted questions", "requested", len(req.IDs), "deleted", n)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (h *Handler) handleAddOption(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "questionID")
	if !ok {
		return
	}
	var req model.OptionImport
	if !decode(w, r, &req) {
		return
	}
	q, err := h.store.GetQuestion(r.Context(), id)
	if err != nil {
		storeError(w, "failed to get question", err)
		return
	}
	if q.Type != model.QuestionMCQ {
		writeError(w, http.StatusUnprocessableEntity, "only multiple-choice questions have options")
		return
	}
	optID, err := h.store.AddOption(r.Context(), model.Option{
		QuestionID: id,
		Label:      req.Label,
		Answer:     req.Answer,
		Weight:     req.Weight,
	})
	if err != nil {
		storeError(w, "failed to add option", err)
		return
	}
	created(w, optID)
}

type weightRequest struct {
	Weight *int `json:"weight" validate:"omitempty,min=1,max=5"`
}

func (h *Handler) handleSetOptionWeight(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "optionID")
	if !ok {
		return
	}
	var req weightRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.store.SetOptionWeight(r.Context(), id, req.Weight); err != nil {
		storeError(w, "failed to set option weight", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadQuestions imports a questions JSON file. Re-uploading a file
// with unchanged content is a no-op.
func (h *Handler) handleUploadQuestions(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}

	file, header, err := r.FormFile("questions_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	storedHash, err := h.store.GetImportedFileHash(r.Context(), header.Filename)
	if err != nil {
		storeError(w, "failed to check import status", err)
		return
	}
	if storedHash == hash {
		writeJSON(w, http.StatusOK, map[string]any{"imported": 0, "unchanged": true})
		return
	}

	var imports []model.QuestionImport
	if err := json.Unmarshal(data, &imports); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := validate.Questions(imports); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	qs := make([]model.Question, 0, len(imports))
	for _, qi := range imports {
		qs = append(qs, qi.Question())
	}
	if err := h.store.ImportQuestions(r.Context(), header.Filename, hash, qs); err != nil {
		storeError(w, "failed to import questions", err)
		return
	}

	slog.Info("uploaded questions via admin", "filename", header.Filename, "count", len(qs))
	writeJSON(w, http.StatusCreated, map[string]any{"imported": len(qs), "unchanged": false})
}
