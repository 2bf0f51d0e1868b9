package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/pavelanni/feedback/internal/feedback"
	appI18n "github.com/pavelanni/feedback/internal/i18n"
	"github.com/pavelanni/feedback/internal/model"
	"github.com/pavelanni/feedback/internal/report"
	"github.com/pavelanni/feedback/internal/store"
)

type testEnv struct {
	store     *store.Store
	srv       *httptest.Server
	dept      int64
	otherDept int64
	programme int64
	teacher   int64
	target    int64
	q1        model.Question
	q2        model.Question
}

// newTestEnv seeds a Physics department with one open assignment, a
// multiple-choice question Q1 and a descriptive question Q2, and three
// logins: admin, a teacher (rao) and a department head (das).
func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	ctx := context.Background()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	e := &testEnv{store: s}
	e.dept, _ = s.CreateDepartment(ctx, model.Department{Name: "Physics"})
	e.otherDept, _ = s.CreateDepartment(ctx, model.Department{Name: "Chemistry"})
	role, _ := s.CreateRole(ctx, model.Role{Name: "Assistant Professor"})
	e.programme, _ = s.CreateProgramme(ctx, model.Programme{Name: "BSc Physics", DepartmentID: e.dept, Level: model.LevelUG})
	course, _ := s.CreateCourse(ctx, model.Course{Name: "Mechanics", Code: "PHY101", DepartmentID: e.dept, ProgrammeID: e.programme})
	batch, _ := s.CreateBatch(ctx, model.Batch{CourseID: course, AcademicYear: "2025-2026", Part: "I", Active: true})
	e.teacher, _ = s.CreateTeacher(ctx, model.Teacher{Name: "A. Rao", DepartmentID: e.dept, RoleID: role, FeedbackActive: true})
	head, _ := s.CreateTeacher(ctx, model.Teacher{Name: "S. Das", DepartmentID: e.dept, RoleID: role, FeedbackActive: true})
	e.target, err = s.CreateTeacherBatch(ctx, model.TeacherBatch{TeacherID: e.teacher, CourseID: course, BatchID: batch, DepartmentID: e.dept, FeedbackActive: true})
	if err != nil {
		t.Fatalf("CreateTeacherBatch: %v", err)
	}

	q1ID, _ := s.CreateQuestion(ctx, model.Question{
		Text: "How clear were the lectures?", Type: model.QuestionMCQ, Active: true,
		Options: []model.Option{{Label: "a", Answer: "Excellent"}, {Label: "b", Answer: "Good"}},
	})
	q2ID, _ := s.CreateQuestion(ctx, model.Question{Text: "Any comments?", Type: model.QuestionDescriptive, Active: true})
	e.q1, _ = s.GetQuestion(ctx, q1ID)
	e.q2, _ = s.GetQuestion(ctx, q2ID)

	createUser(t, s, "admin", model.UserRoleAdmin, nil)
	createUser(t, s, "rao", model.UserRoleTeacher, &e.teacher)
	createUser(t, s, "das", model.UserRoleDepartmentHead, &head)

	h := New(s, feedback.NewService(s), report.NewService(s, nil, nil), cfg)
	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	h.Routes(r)
	e.srv = httptest.NewServer(r)
	t.Cleanup(func() {
		e.srv.Close()
		s.Close()
	})
	return e
}

func unlimited() Config {
	return Config{SubmitRate: rate.Inf, SubmitBurst: 1}
}

func createUser(t *testing.T, s *store.Store, username string, role model.UserRole, teacherID *int64) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(username+"-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	_, err = s.CreateUser(context.Background(), model.User{
		Username: username, DisplayName: username, PasswordHash: string(hash),
		Role: role, TeacherID: teacherID, Active: true,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
}

// client is a browser-like HTTP client that keeps cookies and echoes the
// CSRF cookie on unsafe requests.
type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func (e *testEnv) client(t *testing.T) *client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &client{t: t, base: e.srv.URL, http: &http.Client{Jar: jar}}
}

func (c *client) cookie(name string) string {
	u, _ := url.Parse(c.base)
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func (c *client) send(req *http.Request, out any) int {
	c.t.Helper()
	if req.Method != http.MethodGet {
		if c.cookie(csrfCookieName) == "" {
			c.do(http.MethodGet, "/csrf", nil, nil)
		}
		req.Header.Set(csrfHeaderName, c.cookie(csrfCookieName))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			c.t.Fatalf("%s %s: decode %q: %v", req.Method, req.URL.Path, data, err)
		}
	}
	return resp.StatusCode
}

func (c *client) do(method, path string, body, out any) int {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *client) login(username string) {
	c.t.Helper()
	status := c.do(http.MethodPost, "/login", map[string]string{"username": username, "password": username + "-password"}, nil)
	if status != http.StatusOK {
		c.t.Fatalf("login %s: status %d", username, status)
	}
}

func answers(pairs ...any) map[string]any {
	m := map[string]any{}
	for i := 0; i+1 < len(pairs); i += 2 {
		m[strconv.FormatInt(pairs[i].(int64), 10)] = pairs[i+1]
	}
	return m
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t, unlimited())
	var body map[string]string
	if status := e.client(t).do(http.MethodGet, "/healthz", nil, &body); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestCSRFRequired(t *testing.T) {
	e := newTestEnv(t, unlimited())

	resp, err := http.Post(e.srv.URL+"/login", "application/json", strings.NewReader(`{"username":"admin","password":"admin-password"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", resp.StatusCode)
	}

	c := e.client(t)
	c.do(http.MethodGet, "/csrf", nil, nil)
	req, _ := http.NewRequest(http.MethodPost, e.srv.URL+"/logout", nil)
	req.Header.Set(csrfHeaderName, "forged")
	resp, err = c.http.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for mismatched token, got %d", resp.StatusCode)
	}
}

func TestLoginLogout(t *testing.T) {
	e := newTestEnv(t, unlimited())
	c := e.client(t)

	var errBody map[string]string
	status := c.do(http.MethodPost, "/login", map[string]string{"username": "admin", "password": "wrong"}, &errBody)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if errBody["error"] != "Invalid username or password." {
		t.Errorf("unexpected message %q", errBody["error"])
	}

	if status := c.do(http.MethodGet, "/me", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 before login, got %d", status)
	}

	c.login("rao")
	var me model.User
	if status := c.do(http.MethodGet, "/me", nil, &me); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if me.Username != "rao" || me.TeacherID == nil || *me.TeacherID != e.teacher {
		t.Errorf("unexpected user %+v", me)
	}

	if status := c.do(http.MethodPost, "/logout", nil, nil); status != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", status)
	}
	if status := c.do(http.MethodGet, "/me", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", status)
	}
}

func TestDisabledAccount(t *testing.T) {
	e := newTestEnv(t, unlimited())
	u, _ := e.store.GetUserByUsername(context.Background(), "rao")
	if err := e.store.ToggleUserActive(context.Background(), u.ID); err != nil {
		t.Fatal(err)
	}

	var body map[string]string
	status := e.client(t).do(http.MethodPost, "/login", map[string]string{"username": "rao", "password": "rao-password"}, &body)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
	if body["error"] != "This account has been disabled." {
		t.Errorf("unexpected message %q", body["error"])
	}
}

func TestFeedbackFlow(t *testing.T) {
	e := newTestEnv(t, unlimited())
	c := e.client(t)
	path := "/feedback/" + strconv.FormatInt(e.target, 10)

	var form formResponse
	if status := c.do(http.MethodGet, path, nil, &form); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if form.Token == "" || form.Done {
		t.Fatalf("expected a fresh form, got %+v", form.Form)
	}
	if len(form.MCQ) != 1 || len(form.Descriptive) != 1 {
		t.Fatalf("expected 1 mcq and 1 descriptive question, got %d/%d", len(form.MCQ), len(form.Descriptive))
	}
	if form.Message != "2 questions to answer." {
		t.Errorf("unexpected message %q", form.Message)
	}

	var res submitResponse
	status := c.do(http.MethodPost, path, map[string]any{
		"token":   form.Token,
		"answers": answers(e.q1.ID, e.q1.Options[0].ID),
	}, &res)
	if status != http.StatusUnprocessableEntity || res.Status != feedback.StatusIncomplete {
		t.Fatalf("expected incomplete, got %d %+v", status, res)
	}
	if res.MissingQuestion != e.q2.ID {
		t.Errorf("expected missing question %d, got %d", e.q2.ID, res.MissingQuestion)
	}
	if _, ok := res.Answers[e.q1.ID]; !ok {
		t.Error("expected the submitted answers to be echoed back")
	}
	if res.Message != "Please answer every question before submitting. 1 question is unanswered." {
		t.Errorf("unexpected message %q", res.Message)
	}

	full := map[string]any{
		"token":   form.Token,
		"answers": answers(e.q1.ID, e.q1.Options[0].ID, e.q2.ID, "Great pace"),
	}
	res = submitResponse{}
	if status := c.do(http.MethodPost, path, full, &res); status != http.StatusCreated {
		t.Fatalf("expected 201, got %d %+v", status, res)
	}
	if res.SubmissionNumber != 1 {
		t.Errorf("expected submission #1, got %d", res.SubmissionNumber)
	}
	if res.Message != "Thank you! Your feedback was recorded as submission #1." {
		t.Errorf("unexpected message %q", res.Message)
	}

	res = submitResponse{}
	if status := c.do(http.MethodPost, path, full, &res); status != http.StatusConflict || res.Status != feedback.StatusDuplicate {
		t.Fatalf("expected duplicate, got %d %+v", status, res)
	}

	form = formResponse{}
	c.do(http.MethodGet, path, nil, &form)
	if !form.Done || form.Token != "" {
		t.Errorf("expected the form to report done without a token, got %+v", form.Form)
	}

	n, err := e.store.CountSubmissions(context.Background(), e.target)
	if err != nil || n != 1 {
		t.Errorf("expected 1 stored submission, got %d (%v)", n, err)
	}
}

func TestFeedbackSessionExpired(t *testing.T) {
	e := newTestEnv(t, unlimited())
	c := e.client(t)
	path := "/feedback/" + strconv.FormatInt(e.target, 10)

	var res submitResponse
	status := c.do(http.MethodPost, path, map[string]any{
		"token":   "not-issued",
		"answers": answers(e.q1.ID, e.q1.Options[0].ID, e.q2.ID, "ok"),
	}, &res)
	if status != http.StatusBadRequest || res.Status != feedback.StatusSessionExpired {
		t.Fatalf("expected session_expired, got %d %+v", status, res)
	}
}

func TestFeedbackMalformedAnswer(t *testing.T) {
	e := newTestEnv(t, unlimited())
	c := e.client(t)
	path := "/feedback/" + strconv.FormatInt(e.target, 10)

	var form formResponse
	c.do(http.MethodGet, path, nil, &form)

	var res submitResponse
	status := c.do(http.MethodPost, path, map[string]any{
		"token": form.Token,
		"answers": answers(
			e.q1.ID, e.q1.Options[0].ID,
			e.q2.ID, map[string]any{"kind": "essay", "text": "Too fast"},
		),
	}, &res)
	if status != http.StatusUnprocessableEntity || res.Status != feedback.StatusIncomplete {
		t.Fatalf("expected incomplete, got %d %+v", status, res)
	}
	if res.MissingQuestion != e.q2.ID {
		t.Errorf("expected missing question %d, got %d", e.q2.ID, res.MissingQuestion)
	}
	if _, ok := res.Answers[e.q1.ID]; !ok {
		t.Error("expected the readable answer to be echoed back")
	}
	if raw, ok := res.Rejected[e.q2.ID]; !ok || !strings.Contains(string(raw), "Too fast") {
		t.Errorf("expected the unreadable answer echoed as sent, got %s", raw)
	}

	n, _ := e.store.CountSubmissions(context.Background(), e.target)
	if n != 0 {
		t.Errorf("expected nothing stored, got %d", n)
	}
}

func TestFeedbackInvalidTarget(t *testing.T) {
	e := newTestEnv(t, unlimited())
	c := e.client(t)

	var body map[string]string
	if status := c.do(http.MethodGet, "/feedback/999", nil, &body); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if body["status"] != "invalid_target" {
		t.Errorf("unexpected body %v", body)
	}

	if status := c.do(http.MethodGet, "/feedback/abc", nil, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed id, got %d", status)
	}

	var form formResponse
	status := c.do(http.MethodGet, "/feedback/teacher/"+strconv.FormatInt(e.teacher, 10), nil, &form)
	if status != http.StatusOK || form.Target.ID != e.target {
		t.Fatalf("expected the teacher's open assignment, got %d %+v", status, form.Target)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	e := newTestEnv(t, Config{SubmitRate: rate.Every(time.Hour), SubmitBurst: 1})
	c := e.client(t)
	path := "/feedback/" + strconv.FormatInt(e.target, 10)
	body := map[string]any{"token": "x", "answers": map[string]any{}}

	if status := c.do(http.MethodPost, path, body, nil); status == http.StatusTooManyRequests {
		t.Fatal("first request should not be limited")
	}
	var errBody map[string]string
	if status := c.do(http.MethodPost, path, body, &errBody); status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", status)
	}
	if errBody["error"] == "" {
		t.Error("expected a rate-limit message")
	}
}

func TestReportsAreScoped(t *testing.T) {
	e := newTestEnv(t, unlimited())
	ctx := context.Background()

	anon := e.client(t)
	path := "/feedback/" + strconv.FormatInt(e.target, 10)
	var form formResponse
	anon.do(http.MethodGet, path, nil, &form)
	anon.do(http.MethodPost, path, map[string]any{
		"token":   form.Token,
		"answers": answers(e.q1.ID, e.q1.Options[1].ID, e.q2.ID, "Clear examples"),
	}, nil)

	text := "old paper form"
	if _, err := e.store.InsertLegacyResponse(ctx, model.Response{QuestionID: e.q2.ID, Text: &text, SessionToken: "legacy", SubmissionNumber: 1, SubmittedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	if status := e.client(t).do(http.MethodGet, "/reports/submissions", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous report access, got %d", status)
	}

	admin := e.client(t)
	admin.login("admin")
	var all model.SubmissionReport
	if status := admin.do(http.MethodGet, "/reports/submissions", nil, &all); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if all.TotalSubmissions != 2 {
		t.Errorf("admin: expected 2 submissions including the unassigned one, got %d", all.TotalSubmissions)
	}

	teacher := e.client(t)
	teacher.login("rao")
	var own model.SubmissionReport
	teacher.do(http.MethodGet, "/reports/submissions", nil, &own)
	if own.TotalSubmissions != 1 {
		t.Errorf("teacher: expected 1 submission, got %d", own.TotalSubmissions)
	}

	var ratings model.RatingReport
	teacher.do(http.MethodGet, "/reports/ratings", nil, &ratings)
	if len(ratings.Teachers) != 1 || ratings.Teachers[0].Average != 4 {
		t.Errorf("teacher: expected one rating averaging 4 (Good), got %+v", ratings.Teachers)
	}

	head := e.client(t)
	head.login("das")
	var none model.SubmissionReport
	head.do(http.MethodGet, "/reports/submissions?teacher_id="+strconv.FormatInt(e.teacher, 10), nil, &none)
	if none.TotalSubmissions != 0 {
		t.Errorf("department head: expected no access to another teacher, got %d", none.TotalSubmissions)
	}

	var qs []model.QuestionSummary
	admin.do(http.MethodGet, "/reports/questions?batch_id=1", nil, &qs)
	if len(qs) != 2 || qs[0].Count("Good") != 1 {
		t.Errorf("unexpected question summary %+v", qs)
	}

	if status := admin.do(http.MethodGet, "/reports/submissions?teacher_id=x", nil, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed filter, got %d", status)
	}
}

func TestDigestUnavailable(t *testing.T) {
	e := newTestEnv(t, unlimited())
	c := e.client(t)
	c.login("admin")

	if status := c.do(http.MethodGet, "/reports/digest/"+strconv.FormatInt(e.target, 10), nil, nil); status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
	if status := c.do(http.MethodGet, "/reports/digest/999", nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestAdminRequiresRole(t *testing.T) {
	e := newTestEnv(t, unlimited())
	c := e.client(t)
	c.login("rao")

	if status := c.do(http.MethodGet, "/admin/departments", nil, nil); status != http.StatusForbidden {
		t.Fatalf("teacher: expected 403, got %d", status)
	}
	if status := c.do(http.MethodGet, "/admin/courses", nil, nil); status != http.StatusForbidden {
		t.Fatalf("teacher: expected 403 for courses, got %d", status)
	}
}

func TestAdminCatalog(t *testing.T) {
	e := newTestEnv(t, unlimited())
	c := e.client(t)
	c.login("admin")

	var errBody struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if status := c.do(http.MethodPost, "/admin/departments", map[string]string{"name": "  "}, &errBody); status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	if errBody.Fields["name"] == "" {
		t.Errorf("expected a name error, got %+v", errBody)
	}

	var id map[string]int64
	if status := c.do(http.MethodPost, "/admin/departments", map[string]string{"name": "Biology"}, &id); status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if status := c.do(http.MethodPost, "/admin/departments", map[string]string{"name": "Biology"}, nil); status != http.StatusConflict {
		t.Fatalf("expected 409 for a duplicate name, got %d", status)
	}
	if status := c.do(http.MethodDelete, "/admin/departments/"+strconv.FormatInt(id["id"], 10), nil, nil); status != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", status)
	}
	if status := c.do(http.MethodDelete, "/admin/departments/9999", nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}

	assign := "/admin/assignments/" + strconv.FormatInt(e.target, 10) + "/active"
	if status := c.do(http.MethodPut, assign, map[string]bool{"active": false}, nil); status != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", status)
	}
	anon := e.client(t)
	if status := anon.do(http.MethodGet, "/feedback/"+strconv.FormatInt(e.target, 10), nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected a closed assignment to be rejected, got %d", status)
	}
}

func TestDepartmentHeadScope(t *testing.T) {
	e := newTestEnv(t, unlimited())
	c := e.client(t)
	c.login("das")

	course := map[string]any{"name": "Optics", "code": "PHY201", "credit": 4, "department_id": e.otherDept, "programme_id": e.programme}
	if status := c.do(http.MethodPost, "/admin/courses", course, nil); status != http.StatusForbidden {
		t.Fatalf("expected 403 outside the department, got %d", status)
	}

	course["department_id"] = e.dept
	if status := c.do(http.MethodPost, "/admin/courses", course, nil); status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}

	var courses []model.Course
	c.do(http.MethodGet, "/admin/courses", nil, &courses)
	if len(courses) != 2 {
		t.Errorf("expected 2 Physics courses, got %d", len(courses))
	}

	if status := c.do(http.MethodDelete, "/admin/courses/"+strconv.FormatInt(courses[0].ID, 10), nil, nil); status != http.StatusForbidden {
		t.Fatalf("expected department heads not to delete courses, got %d", status)
	}
}

func TestAdminUsers(t *testing.T) {
	e := newTestEnv(t, unlimited())
	c := e.client(t)
	c.login("admin")

	bad := map[string]any{"username": "sen", "password": "short", "role": "student"}
	var errBody struct {
		Fields map[string]string `json:"fields"`
	}
	if status := c.do(http.MethodPost, "/admin/users", bad, &errBody); status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	if errBody.Fields["password"] == "" || errBody.Fields["role"] == "" {
		t.Errorf("expected password and role errors, got %v", errBody.Fields)
	}

	good := map[string]any{"username": "sen", "password": "long-enough", "role": "teacher"}
	var id map[string]int64
	if status := c.do(http.MethodPost, "/admin/users", good, &id); status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}

	path := "/admin/users/" + strconv.FormatInt(id["id"], 10)
	if status := c.do(http.MethodPut, path+"/teacher", map[string]any{"teacher_id": e.teacher}, nil); status != http.StatusConflict {
		t.Fatalf("expected 409 linking an already linked teacher, got %d", status)
	}
	if status := c.do(http.MethodPost, path+"/toggle", nil, nil); status != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", status)
	}
	u, _ := e.store.GetUserByID(context.Background(), id["id"])
	if u.Active {
		t.Error("expected the user to be disabled")
	}

	var me model.User
	c.do(http.MethodGet, "/me", nil, &me)
	if status := c.do(http.MethodPost, "/admin/users/"+strconv.FormatInt(me.ID, 10)+"/toggle", nil, nil); status != http.StatusConflict {
		t.Fatalf("expected 409 disabling yourself, got %d", status)
	}
}

func TestAdminQuestions(t *testing.T) {
	e := newTestEnv(t, unlimited())
	c := e.client(t)
	c.login("admin")

	q := map[string]any{"text": "Rate the lab sessions", "type": "mcq"}
	if status := c.do(http.MethodPost, "/admin/questions", q, nil); status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for an mcq without options, got %d", status)
	}
	q["options"] = []map[string]any{{"label": "a", "answer": "Excellent", "weight": 5}}
	var id map[string]int64
	if status := c.do(http.MethodPost, "/admin/questions", q, &id); status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}

	qPath := "/admin/questions/" + strconv.FormatInt(id["id"], 10)
	if status := c.do(http.MethodPost, qPath+"/options", map[string]any{"label": "b", "answer": "Good"}, nil); status != http.StatusCreated {
		t.Fatalf("expected 201 adding an option, got %d", status)
	}
	descPath := "/admin/questions/" + strconv.FormatInt(e.q2.ID, 10)
	if status := c.do(http.MethodPost, descPath+"/options", map[string]any{"label": "a", "answer": "x"}, nil); status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 adding an option to a descriptive question, got %d", status)
	}
	if status := c.do(http.MethodPut, descPath+"/active", map[string]bool{"active": false}, nil); status != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", status)
	}
	weight := "/admin/options/" + strconv.FormatInt(e.q1.Options[0].ID, 10) + "/weight"
	if status := c.do(http.MethodPut, weight, map[string]int{"weight": 9}, nil); status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for an out-of-range weight, got %d", status)
	}

	var active []model.Question
	c.do(http.MethodGet, "/admin/questions?active=1", nil, &active)
	if len(active) != 2 {
		t.Errorf("expected 2 active questions, got %d", len(active))
	}

	var deleted map[string]int64
	c.do(http.MethodPost, "/admin/questions/delete", map[string]any{"ids": []int64{id["id"], e.q2.ID}}, &deleted)
	if deleted["deleted"] != 2 {
		t.Errorf("expected 2 deleted, got %v", deleted)
	}
}

func TestUploadQuestions(t *testing.T) {
	e := newTestEnv(t, unlimited())
	c := e.client(t)
	c.login("admin")

	file := `[
		{"text": "Was the syllabus covered?", "type": "mcq", "options": [{"label": "a", "answer": "Yes"}, {"label": "b", "answer": "No"}]},
		{"text": "What should change?", "type": "descriptive"}
	]`
	upload := func() (int, map[string]any) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, _ := mw.CreateFormFile("questions_file", "extra.json")
		fw.Write([]byte(file))
		mw.Close()
		req, _ := http.NewRequest(http.MethodPost, e.srv.URL+"/admin/questions/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		var out map[string]any
		return c.send(req, &out), out
	}

	status, out := upload()
	if status != http.StatusCreated || out["imported"] != float64(2) {
		t.Fatalf("expected 2 imported, got %d %v", status, out)
	}
	status, out = upload()
	if status != http.StatusOK || out["unchanged"] != true {
		t.Fatalf("expected an unchanged re-upload, got %d %v", status, out)
	}

	n, _ := e.store.QuestionCount(context.Background())
	if n != 4 {
		t.Errorf("expected 4 questions, got %d", n)
	}
}
