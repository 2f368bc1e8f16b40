package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appI18n "github.com/prep-work/backend/internal/i18n"
	"github.com/prep-work/backend/internal/model"
	"github.com/prep-work/backend/internal/session"
	"github.com/prep-work/backend/internal/store"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, session.NewRegistry(st, nil), model.AppConfig{})
}

func createUser(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/users", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.handleCreateUser(w, req)
	return w
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	h := newTestHandler(t)

	w := createUser(t, h, `{"username":"eve","email":"eve@example.com","password":"pw","role":"superuser"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	u, err := h.store.GetUserByUsername("eve")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u != nil {
		t.Error("user was created despite the unknown role")
	}
}

func TestCreateUserDefaultsToStudent(t *testing.T) {
	h := newTestHandler(t)

	w := createUser(t, h, `{"username":"mia","email":"mia@example.com","password":"pw"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	u, err := h.store.GetUserByUsername("mia")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u == nil || u.Role != model.UserRoleStudent {
		t.Errorf("unexpected user: %+v", u)
	}
}

func TestCreateUserInstructorRole(t *testing.T) {
	h := newTestHandler(t)

	w := createUser(t, h, `{"username":"ned","email":"ned@example.com","password":"pw","role":"instructor"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	u, _ := h.store.GetUserByUsername("ned")
	if u == nil || u.Role != model.UserRoleInstructor {
		t.Errorf("unexpected user: %+v", u)
	}
}

func TestCreateUserRequiresEmail(t *testing.T) {
	h := newTestHandler(t)

	w := createUser(t, h, `{"username":"omar","password":"pw"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
