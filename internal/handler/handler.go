package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/prep-work/backend/internal/i18n"
	"github.com/prep-work/backend/internal/model"
	"github.com/prep-work/backend/internal/session"
	"github.com/prep-work/backend/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	sessions *session.Registry
	config   model.AppConfig
}

// New creates a new Handler.
func New(s *store.Store, reg *session.Registry, cfg model.AppConfig) *Handler {
	return &Handler{store: s, sessions: reg, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/login", h.handleLogin)
	r.Post("/api/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/api/courses", h.handleListCourses)
		r.Post("/api/courses/{courseID}/toggle", h.handleToggleEnrollment)
		r.Get("/api/assignments", h.handleListAssignments)
		r.Get("/api/submissions", h.handleListSubmissions)

		r.Route("/api/assignments/{assignmentID}/session", func(r chi.Router) {
			r.Post("/", h.handleGetSession)
			r.Get("/", h.handleGetSession)
			r.Post("/start", h.handleStart)
			r.Post("/reset", h.handleReset)
			r.Post("/next", h.handleNext)
			r.Post("/previous", h.handlePrevious)
			r.Post("/goto", h.handleGoto)
			r.Post("/answer", h.handleAnswer)
			r.Post("/messages", h.handleSendMessage)
			r.Post("/submit", h.handleSubmit)
		})

		r.Route("/api/admin/users", func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/", h.handleListUsers)
			r.Post("/", h.handleCreateUser)
			r.Post("/{userID}/toggle", h.handleToggleUserActive)
		})
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	respondJSON(w, status, errorResponse{Error: appI18n.T(r.Context(), msgID)})
}

// respondSessionError maps state machine errors to localized notifications.
// Precondition and boundary violations are 400s; races with a pending reply
// or a concurrent reset are 409s; everything else means the tutor backend
// let us down.
func (h *Handler) respondSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrNotStarted):
		h.respondError(w, r, http.StatusBadRequest, "AssignmentNotStarted")
	case errors.Is(err, session.ErrAlreadyStarted):
		h.respondError(w, r, http.StatusBadRequest, "AssignmentAlreadyStarted")
	case errors.Is(err, session.ErrAtFirstQuestion):
		h.respondError(w, r, http.StatusBadRequest, "AtFirstQuestion")
	case errors.Is(err, session.ErrAtLastQuestion):
		h.respondError(w, r, http.StatusBadRequest, "AtLastQuestion")
	case errors.Is(err, session.ErrNoQuestions):
		h.respondError(w, r, http.StatusBadRequest, "NoQuestions")
	case errors.Is(err, session.ErrEmptyMessage):
		h.respondError(w, r, http.StatusBadRequest, "EmptyMessage")
	case errors.Is(err, session.ErrQuestionAnswered):
		h.respondError(w, r, http.StatusBadRequest, "QuestionAnswered")
	case errors.Is(err, session.ErrReplyPending):
		h.respondError(w, r, http.StatusConflict, "ReplyPending")
	case errors.Is(err, session.ErrSessionReset):
		h.respondError(w, r, http.StatusConflict, "SessionReset")
	default:
		slog.Error("tutor exchange failed", "error", err)
		h.respondError(w, r, http.StatusBadGateway, "TutorUnavailable")
	}
}

// sessionFor resolves the signed-in user's session for the assignment in the
// URL, creating it from the question bank on first use.
func (h *Handler) sessionFor(w http.ResponseWriter, r *http.Request) (*session.Session, *model.User, bool) {
	user := model.UserFromContext(r.Context())
	if user == nil {
		h.respondError(w, r, http.StatusUnauthorized, "Unauthorized")
		return nil, nil, false
	}
	assignmentID, err := strconv.ParseInt(chi.URLParam(r, "assignmentID"), 10, 64)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "InvalidAssignment")
		return nil, nil, false
	}
	sess, err := h.sessions.GetOrCreate(user.ID, assignmentID)
	if err != nil {
		slog.Error("failed to build session", "user", user.ID, "assignment", assignmentID, "error", err)
		h.respondError(w, r, http.StatusInternalServerError, "SessionLoadFailed")
		return nil, nil, false
	}
	return sess, user, true
}

func (h *Handler) handleListCourses(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	courses, err := h.store.ListCoursesForUser(user.ID)
	if err != nil {
		slog.Error("list courses", "user", user.ID, "error", err)
		h.respondError(w, r, http.StatusInternalServerError, "Internal")
		return
	}
	if courses == nil {
		courses = []model.CourseStatus{}
	}
	respondJSON(w, http.StatusOK, courses)
}

func (h *Handler) handleToggleEnrollment(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	courseID, err := strconv.ParseInt(chi.URLParam(r, "courseID"), 10, 64)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	enrolled, err := h.store.ToggleEnrollment(user.ID, courseID)
	if err != nil {
		slog.Error("toggle enrollment", "user", user.ID, "course", courseID, "error", err)
		h.respondError(w, r, http.StatusInternalServerError, "Internal")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"course_id": courseID, "enrolled": enrolled})
}

// handleListAssignments lists the assignments of the user's enrolled courses
// with their submission status.
func (h *Handler) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	assignments, err := h.store.ListAssignmentsForUser(user.ID)
	if err != nil {
		slog.Error("list assignments", "user", user.ID, "error", err)
		h.respondError(w, r, http.StatusInternalServerError, "Internal")
		return
	}

	statuses := make([]model.AssignmentStatus, 0, len(assignments))
	for _, a := range assignments {
		submitted, err := h.store.HasSubmission(user.ID, a.ID)
		if err != nil {
			slog.Error("check submission status", "assignment", a.ID, "error", err)
			h.respondError(w, r, http.StatusInternalServerError, "Internal")
			return
		}
		statuses = append(statuses, model.AssignmentStatus{Assignment: a, Submitted: submitted})
	}
	respondJSON(w, http.StatusOK, statuses)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.sessionFor(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.sessionFor(w, r)
	if !ok {
		return
	}
	if err := sess.Start(r.Context()); err != nil {
		h.respondSessionError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.sessionFor(w, r)
	if !ok {
		return
	}
	if err := sess.Reset(); err != nil {
		h.respondSessionError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.sessionFor(w, r)
	if !ok {
		return
	}
	if err := sess.Next(r.Context()); err != nil {
		h.respondSessionError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handlePrevious(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.sessionFor(w, r)
	if !ok {
		return
	}
	if err := sess.Previous(r.Context()); err != nil {
		h.respondSessionError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleGoto(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.sessionFor(w, r)
	if !ok {
		return
	}
	var req struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	if err := sess.SetIndex(r.Context(), req.Index); err != nil {
		h.respondSessionError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.sessionFor(w, r)
	if !ok {
		return
	}
	if err := sess.AnswerAndAdvance(r.Context()); err != nil {
		h.respondSessionError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.sessionFor(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	if _, err := sess.SendMessage(r.Context(), req.Content); err != nil {
		h.respondSessionError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, user, ok := h.sessionFor(w, r)
	if !ok {
		return
	}
	sub, err := sess.BuildSubmission(user.ID)
	if err != nil {
		h.respondSessionError(w, r, err)
		return
	}
	id, err := h.store.InsertSubmission(sub)
	if err != nil {
		slog.Error("persist submission", "user", user.ID, "assignment", sub.AssignmentID, "error", err)
		h.respondError(w, r, http.StatusInternalServerError, "SubmissionFailed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":       appI18n.T(r.Context(), "SubmissionSaved"),
		"submission_id": id,
	})
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	subs, err := h.store.ListSubmissionsForUser(user.ID)
	if err != nil {
		slog.Error("list submissions", "user", user.ID, "error", err)
		h.respondError(w, r, http.StatusInternalServerError, "Internal")
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	respondJSON(w, http.StatusOK, subs)
}
