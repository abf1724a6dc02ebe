package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/lumenedu/lumen/core"
	"github.com/lumenedu/lumen/core/material"
	"github.com/lumenedu/lumen/core/session"
	"github.com/lumenedu/lumen/core/user"
	"github.com/lumenedu/lumen/portal"
	"github.com/lumenedu/lumen/services/identity/idfake"
	logsvc "github.com/lumenedu/lumen/services/logger"
)

// fixedAssistant answers every question the same way.
type fixedAssistant struct{ reply string }

func (f fixedAssistant) Ask(_ context.Context, _ string) string { return f.reply }

func newTestServer(t *testing.T) (Server, *idfake.Store, *session.Controller) {
	t.Helper()
	store := idfake.New()
	logger := logsvc.NewConsoleLogger(log.New(ioutil.Discard, "", 0))

	ctrl := session.NewController(store, logger)
	if err := ctrl.Init(context.Background()); err != nil {
		t.Fatalf("initializing controller: %v", err)
	}
	t.Cleanup(ctrl.Close)

	conf := &core.Config{Env: "TEST", TestMode: true}
	srv := NewServer(&Options{
		DisableReqLogs: true,
		Conf:           conf,
		Logger:         logger,
		Ctrl:           ctrl,
		Store:          store,
		CompletionSvc:  fixedAssistant{reply: "Here is your answer."},
	})
	return srv, store, ctrl
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	wantCode int
	extra    func(t *testing.T, rec *httptest.ResponseRecorder)
}

func (tt httpTest) run(t *testing.T, srv http.Handler) {
	t.Run(tt.name, func(t *testing.T) {
		rec := request(t, srv, tt.method, tt.path, tt.body)
		assert.Equal(t, tt.wantCode, rec.Code)
		if tt.extra != nil {
			tt.extra(t, rec)
		}
	})
}

func request(t *testing.T, srv http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling body: %v", err)
		}
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeGate(t *testing.T, rec *httptest.ResponseRecorder) GateResponse {
	t.Helper()
	var resp GateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding gate response: %v", err)
	}
	return resp
}

func decodeErrMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	return resp
}

// loginAs registers, confirms and signs in an account through the
// facade, leaving the controller authenticated.
func loginAs(t *testing.T, srv http.Handler, store *idfake.Store, reg user.Registration) {
	t.Helper()
	rec := request(t, srv, http.MethodPost, "/v1/session/register", reg)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status %d: %s", rec.Code, rec.Body.String())
	}
	store.Confirm(reg.Email)

	rec = request(t, srv, http.MethodPost, "/v1/session/login", LoginRequest{Email: reg.Email, Password: reg.Password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d: %s", rec.Code, rec.Body.String())
	}
}

func teacherRegistration() user.Registration {
	return user.Registration{
		Name:            "Jane Poe",
		Email:           "jane@test.cd",
		Password:        "s3cret~pwd",
		PasswordConfirm: "s3cret~pwd",
		Role:            user.RoleTeacher,
	}
}

func TestServer_Gate(t *testing.T) {
	srv, _, _ := newTestServer(t)

	httpTest{
		name:     "unauthenticated resolves to login",
		method:   http.MethodGet,
		path:     "/",
		wantCode: http.StatusOK,
		extra: func(t *testing.T, rec *httptest.ResponseRecorder) {
			resp := decodeGate(t, rec)
			assert.Equal(t, portal.ViewLogin, resp.View)
			assert.Equal(t, "unauthenticated", resp.State)
			assert.Nil(t, resp.User)
		},
	}.run(t, srv)
}

func TestServer_UnknownPathRedirectsHome(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, path := range []string{"/no/such/page", "/v1/nope", "/admin"} {
		rec := request(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code, path)
		assert.Equal(t, "/", rec.Header().Get("Location"), path)
	}
}

func TestServer_SessionFlow(t *testing.T) {
	srv, store, _ := newTestServer(t)
	reg := teacherRegistration()

	tests := []httpTest{
		{
			name:     "register",
			method:   http.MethodPost,
			path:     "/v1/session/register",
			body:     reg,
			wantCode: http.StatusCreated,
			extra: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var resp SuccessResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("decoding: %v", err)
				}
				assert.Equal(t, "Registration successful! Please check your email to confirm your account.", resp.Success)
			},
		},
		{
			name:     "login before confirmation",
			method:   http.MethodPost,
			path:     "/v1/session/login",
			body:     LoginRequest{Email: reg.Email, Password: reg.Password},
			wantCode: http.StatusBadRequest,
			extra: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, "Email not confirmed", decodeErrMap(t, rec)["error"])
			},
		},
		{
			name:     "login after confirmation",
			method:   http.MethodPost,
			path:     "/v1/session/login",
			body:     LoginRequest{Email: "  Jane@Test.CD ", Password: reg.Password},
			wantCode: http.StatusOK,
			extra: func(t *testing.T, rec *httptest.ResponseRecorder) {
				resp := decodeGate(t, rec)
				assert.Equal(t, portal.ViewTeacher, resp.View)
				assert.Equal(t, "authenticated", resp.State)
				if assert.NotNil(t, resp.User) {
					assert.Equal(t, "jane@test.cd", resp.User.Email)
					assert.Equal(t, user.RoleTeacher, resp.User.Role)
				}
			},
		},
		{
			name:     "gate reflects the session",
			method:   http.MethodGet,
			path:     "/",
			wantCode: http.StatusOK,
			extra: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, portal.ViewTeacher, decodeGate(t, rec).View)
			},
		},
		{
			name:     "logout",
			method:   http.MethodPost,
			path:     "/v1/session/logout",
			wantCode: http.StatusNoContent,
		},
		{
			name:     "gate is back to login",
			method:   http.MethodGet,
			path:     "/",
			wantCode: http.StatusOK,
			extra: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, portal.ViewLogin, decodeGate(t, rec).View)
			},
		},
	}
	for i, tt := range tests {
		tt.run(t, srv)
		if i == 1 { // confirmation happens between the two login attempts
			store.Confirm(reg.Email)
		}
	}
}

func TestServer_LoginValidation(t *testing.T) {
	srv, store, _ := newTestServer(t)

	httpTest{
		name:     "missing fields are reported per field",
		method:   http.MethodPost,
		path:     "/v1/session/login",
		body:     LoginRequest{Email: "not-an-email"},
		wantCode: http.StatusBadRequest,
		extra: func(t *testing.T, rec *httptest.ResponseRecorder) {
			resp := decodeErrMap(t, rec)
			assert.Contains(t, resp, "email")
			assert.Contains(t, resp, "password")
		},
	}.run(t, srv)

	assert.Equal(t, 0, store.Calls("SignIn"), "invalid input never reaches the store")
}

func TestServer_RegisterValidation(t *testing.T) {
	srv, store, _ := newTestServer(t)

	reg := teacherRegistration()
	reg.Role = user.RoleStudent // student fields missing

	httpTest{
		name:     "student fields are required",
		method:   http.MethodPost,
		path:     "/v1/session/register",
		body:     reg,
		wantCode: http.StatusBadRequest,
		extra: func(t *testing.T, rec *httptest.ResponseRecorder) {
			resp := decodeErrMap(t, rec)
			assert.Contains(t, resp, "student_id")
			assert.Contains(t, resp, "major")
			assert.Contains(t, resp, "academic_year")
		},
	}.run(t, srv)

	assert.Equal(t, 0, store.Calls("SignUp"))
}

func TestServer_ViewGating(t *testing.T) {
	srv, store, _ := newTestServer(t)

	// unauthenticated: every dashboard route redirects home
	for _, path := range []string{"/v1/materials", "/v1/profiles", "/v1/assistant"} {
		rec := request(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code, path)
	}

	// a teacher must not reach the admin or student views
	loginAs(t, srv, store, teacherRegistration())
	for _, path := range []string{"/v1/profiles", "/v1/assistant"} {
		rec := request(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code, path)
	}
	rec := request(t, srv, http.MethodGet, "/v1/materials", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_TeacherMaterials(t *testing.T) {
	srv, store, _ := newTestServer(t)
	loginAs(t, srv, store, teacherRegistration())

	tests := []httpTest{
		{
			name:     "empty list on mount",
			method:   http.MethodGet,
			path:     "/v1/materials",
			wantCode: http.StatusOK,
			extra: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var materials []material.Material
				if err := json.Unmarshal(rec.Body.Bytes(), &materials); err != nil {
					t.Fatalf("decoding: %v", err)
				}
				assert.Empty(t, materials)
			},
		},
		{
			name:     "publish",
			method:   http.MethodPost,
			path:     "/v1/materials",
			body:     material.NewMaterial{Content: "chapter 1"},
			wantCode: http.StatusCreated,
			extra: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var row material.Material
				if err := json.Unmarshal(rec.Body.Bytes(), &row); err != nil {
					t.Fatalf("decoding: %v", err)
				}
				assert.NotEmpty(t, row.ID)
				assert.Equal(t, "chapter 1", row.Content)
			},
		},
		{
			name:     "published row is listed",
			method:   http.MethodGet,
			path:     "/v1/materials",
			wantCode: http.StatusOK,
			extra: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var materials []material.Material
				if err := json.Unmarshal(rec.Body.Bytes(), &materials); err != nil {
					t.Fatalf("decoding: %v", err)
				}
				if assert.Len(t, materials, 1) {
					assert.Equal(t, "chapter 1", materials[0].Content)
				}
			},
		},
		{
			name:     "blank content is rejected",
			method:   http.MethodPost,
			path:     "/v1/materials",
			body:     material.NewMaterial{Content: "   "},
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		tt.run(t, srv)
	}

	// the mounted dashboard reads the list exactly once
	assert.Equal(t, 1, store.Calls("ListMaterials"))
}

func TestServer_AdminProfiles(t *testing.T) {
	srv, store, _ := newTestServer(t)

	store.SeedProfile(user.Profile{ID: "s1", Name: "Bob", Role: user.RoleStudent})

	admin := teacherRegistration()
	admin.Email = "admin@test.cd"
	admin.Role = user.RoleAdmin
	loginAs(t, srv, store, admin)
	adminID := store.AccountID(admin.Email)

	tests := []httpTest{
		{
			name:     "list profiles",
			method:   http.MethodGet,
			path:     "/v1/profiles",
			wantCode: http.StatusOK,
			extra: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var profiles []user.Profile
				if err := json.Unmarshal(rec.Body.Bytes(), &profiles); err != nil {
					t.Fatalf("decoding: %v", err)
				}
				assert.Len(t, profiles, 2)
			},
		},
		{
			name:     "self-delete is rejected",
			method:   http.MethodDelete,
			path:     "/v1/profiles/" + adminID,
			wantCode: http.StatusBadRequest,
			extra: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Contains(t, decodeErrMap(t, rec), "id")
			},
		},
		{
			name:     "delete another profile",
			method:   http.MethodDelete,
			path:     "/v1/profiles/s1",
			wantCode: http.StatusNoContent,
		},
	}
	for _, tt := range tests {
		tt.run(t, srv)
	}

	assert.Equal(t, 1, store.Calls("DeleteProfile"), "only the allowed delete reaches the store")
}

func TestServer_StudentAssistant(t *testing.T) {
	srv, store, _ := newTestServer(t)

	student := teacherRegistration()
	student.Email = "bob@test.cd"
	student.Role = user.RoleStudent
	student.StudentID = "S-001"
	student.Major = "Physics"
	student.AcademicYear = "2024"
	loginAs(t, srv, store, student)

	tests := []httpTest{
		{
			name:     "ask",
			method:   http.MethodPost,
			path:     "/v1/assistant",
			body:     portal.Question{Content: "What is gravity?"},
			wantCode: http.StatusOK,
			extra: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var reply portal.Message
				if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
					t.Fatalf("decoding: %v", err)
				}
				assert.Equal(t, portal.AuthorAssistant, reply.Author)
				assert.Equal(t, "Here is your answer.", reply.Content)
			},
		},
		{
			name:     "transcript holds the exchange",
			method:   http.MethodGet,
			path:     "/v1/assistant",
			wantCode: http.StatusOK,
			extra: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var transcript []portal.Message
				if err := json.Unmarshal(rec.Body.Bytes(), &transcript); err != nil {
					t.Fatalf("decoding: %v", err)
				}
				if assert.Len(t, transcript, 2) {
					assert.Equal(t, portal.AuthorUser, transcript[0].Author)
					assert.Equal(t, "What is gravity?", transcript[0].Content)
				}
			},
		},
		{
			name:     "blank question is rejected",
			method:   http.MethodPost,
			path:     "/v1/assistant",
			body:     portal.Question{Content: "   "},
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		tt.run(t, srv)
	}
}

func TestServer_DashboardsUnmountOnIdentityChange(t *testing.T) {
	srv, store, ctrl := newTestServer(t)

	teacher := teacherRegistration()
	loginAs(t, srv, store, teacher)

	rec := request(t, srv, http.MethodPost, "/v1/materials", material.NewMaterial{Content: "chapter 1"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	// switch identities
	request(t, srv, http.MethodPost, "/v1/session/logout", nil)
	other := teacherRegistration()
	other.Email = "other@test.cd"
	loginAs(t, srv, store, other)
	assert.Equal(t, session.StateAuthenticated, ctrl.State())

	rec = request(t, srv, http.MethodGet, "/v1/materials", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var materials []material.Material
	if err := json.Unmarshal(rec.Body.Bytes(), &materials); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	assert.Empty(t, materials, "no list state survives across users")
}
