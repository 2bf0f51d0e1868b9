package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pavelanni/feedback/internal/feedback"
	appI18n "github.com/pavelanni/feedback/internal/i18n"
	"github.com/pavelanni/feedback/internal/model"
	"github.com/pavelanni/feedback/internal/store"
)

const visitorCookieName = "visitor"

type visitorCtxKey struct{}

// visitorMiddleware gives every anonymous respondent a stable visitor id so
// that submission state survives between the form and the submit request.
func (h *Handler) visitorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(visitorCookieName); err == nil {
			if parsed, err := uuid.Parse(c.Value); err == nil {
				id = parsed.String()
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		// Re-sent on every request so the cookie expires after inactivity.
		http.SetCookie(w, &http.Cookie{
			Name:     visitorCookieName,
			Value:    id,
			Path:     h.cookiePath(),
			MaxAge:   int(store.VisitorTTL.Seconds()),
			HttpOnly: true,
			Secure:   h.config.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
		ctx := context.WithValue(r.Context(), visitorCtxKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// storeSession keeps a visitor's submission state in the database.
type storeSession struct {
	store     *store.Store
	visitorID string
}

func (s storeSession) Get(ctx context.Context, key string) (string, bool, error) {
	return s.store.GetVisitorValue(ctx, s.visitorID, key)
}

func (s storeSession) Set(ctx context.Context, key, value string) error {
	return s.store.SetVisitorValue(ctx, s.visitorID, key, value)
}

func (s storeSession) Delete(ctx context.Context, key string) error {
	return s.store.DeleteVisitorValue(ctx, s.visitorID, key)
}

func (h *Handler) session(r *http.Request) feedback.Session {
	id, _ := r.Context().Value(visitorCtxKey{}).(string)
	return storeSession{store: h.store, visitorID: id}
}

type formResponse struct {
	feedback.Form
	Message string `json:"message,omitempty"`
}

func (h *Handler) handleBeginFeedback(w http.ResponseWriter, r *http.Request) {
	targetID, ok := urlID(w, r, "targetID")
	if !ok {
		return
	}
	form, err := h.feedback.Begin(r.Context(), h.session(r), targetID)
	h.writeForm(w, r, form, err)
}

func (h *Handler) handleBeginTeacherFeedback(w http.ResponseWriter, r *http.Request) {
	teacherID, ok := urlID(w, r, "teacherID")
	if !ok {
		return
	}
	form, err := h.feedback.BeginForTeacher(r.Context(), h.session(r), teacherID)
	h.writeForm(w, r, form, err)
}

func (h *Handler) writeForm(w http.ResponseWriter, r *http.Request, form feedback.Form, err error) {
	if errors.Is(err, feedback.ErrInvalidTarget) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"status":  string(feedback.StatusInvalidTarget),
			"message": appI18n.Status(r.Context(), string(feedback.StatusInvalidTarget), 0),
		})
		return
	}
	if err != nil {
		slog.Error("failed to begin feedback", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	resp := formResponse{Form: form}
	if form.Done {
		resp.Message = appI18n.Status(r.Context(), string(feedback.StatusDuplicate), 0)
	} else {
		resp.Message = appI18n.Tp(r.Context(), "QuestionsAvailable", len(form.MCQ)+len(form.Descriptive))
	}
	writeJSON(w, http.StatusOK, resp)
}

// submitRequest keeps answers raw so that one malformed answer is reported
// against its question instead of failing the whole request.
type submitRequest struct {
	Token   string                    `json:"token"`
	Answers map[int64]json.RawMessage `json:"answers"`
}

// parseAnswers splits raw answers into those that decode and those that don't.
func parseAnswers(raw map[int64]json.RawMessage) (map[int64]model.Answer, map[int64]json.RawMessage) {
	answers := make(map[int64]model.Answer, len(raw))
	var rejected map[int64]json.RawMessage
	for id, data := range raw {
		var a model.Answer
		if err := json.Unmarshal(data, &a); err != nil {
			if rejected == nil {
				rejected = make(map[int64]json.RawMessage)
			}
			rejected[id] = data
			continue
		}
		answers[id] = a
	}
	return answers, rejected
}

type submitResponse struct {
	feedback.Result
	// Rejected echoes answers that could not be read, as sent.
	Rejected map[int64]json.RawMessage `json:"rejected,omitempty"`
	Message  string                    `json:"message"`
}

var submitStatusCodes = map[feedback.Status]int{
	feedback.StatusSuccess:        http.StatusCreated,
	feedback.StatusDuplicate:      http.StatusConflict,
	feedback.StatusIncomplete:     http.StatusUnprocessableEntity,
	feedback.StatusInvalidTarget:  http.StatusNotFound,
	feedback.StatusSessionExpired: http.StatusBadRequest,
}

func (h *Handler) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	targetID, ok := urlID(w, r, "targetID")
	if !ok {
		return
	}
	var req submitRequest
	if !decode(w, r, &req) {
		return
	}

	answers, rejected := parseAnswers(req.Answers)
	res, err := h.feedback.Submit(r.Context(), h.session(r), targetID, req.Token, answers)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if res.Status == feedback.StatusSuccess {
		rejected = nil
	}

	msg := appI18n.Status(r.Context(), string(res.Status), res.SubmissionNumber)
	if res.Status == feedback.StatusIncomplete {
		msg = strings.Join([]string{msg, appI18n.Tp(r.Context(), "MissingQuestions", len(res.Missing))}, " ")
	}
	writeJSON(w, submitStatusCodes[res.Status], submitResponse{Result: res, Rejected: rejected, Message: msg})
}
