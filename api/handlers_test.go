package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"gumboard-api/domain"
)

type serviceCall struct {
	method  string
	actorID string
	boardID string
	noteID  string
	itemID  string
	cursor  int
	update  domain.UpdateNoteInput
	create  domain.CreateNoteInput
	command domain.TaskCommand
}

type mockService struct {
	mu    sync.Mutex
	calls []serviceCall
	note  *domain.Note
	cs    domain.ChangeSet
	split domain.SplitResult
	err   error
}

func (m *mockService) record(c serviceCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

func (m *mockService) lastCall(t *testing.T) serviceCall {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		t.Fatalf("expected a service call")
	}
	return m.calls[len(m.calls)-1]
}

func (m *mockService) UpdateNote(_ context.Context, actorID, boardID, noteID string, in domain.UpdateNoteInput) (*domain.Note, domain.ChangeSet, error) {
	m.record(serviceCall{method: "update", actorID: actorID, boardID: boardID, noteID: noteID, update: in})
	return m.note, m.cs, m.err
}

func (m *mockService) CreateNote(_ context.Context, actorID, boardID string, in domain.CreateNoteInput) (*domain.Note, error) {
	m.record(serviceCall{method: "create", actorID: actorID, boardID: boardID, create: in})
	return m.note, m.err
}

func (m *mockService) SplitItem(_ context.Context, actorID, boardID, noteID, itemID string, cursor int) (*domain.Note, domain.SplitResult, error) {
	m.record(serviceCall{method: "split", actorID: actorID, boardID: boardID, noteID: noteID, itemID: itemID, cursor: cursor})
	return m.note, m.split, m.err
}

func (m *mockService) ApplyTaskCommand(_ context.Context, actorID, boardID, noteID string, cmd domain.TaskCommand) (*domain.Note, error) {
	m.record(serviceCall{method: "task", actorID: actorID, boardID: boardID, noteID: noteID, command: cmd})
	return m.note, m.err
}

type mockReader struct {
	note *domain.Note
	err  error
}

func (m mockReader) GetNote(context.Context, string, string) (*domain.Note, error) {
	return m.note, m.err
}

type mockAuth struct {
	user domain.User
	err  error
}

func (m mockAuth) ActorFromAuthHeader(string) (domain.User, error) {
	if m.err != nil {
		return domain.User{}, m.err
	}
	return m.user, nil
}

type mockUsers struct {
	mu    sync.Mutex
	users []domain.User
	err   error
}

func (m *mockUsers) EnsureUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, u)
	return m.err
}

type mockPinger struct{ err error }

func (m mockPinger) PingContext(context.Context) error { return m.err }

func sampleNote() *domain.Note {
	return &domain.Note{
		ID:      "n1",
		BoardID: "b1",
		ChecklistItems: []domain.ChecklistItem{
			{ID: "a", Content: "Ship", Checked: true, Order: 0},
			{ID: "b", Content: "Test", Order: 1},
		},
	}
}

func newTestServer(svc *mockService, users *mockUsers) *echo.Echo {
	logger, _ := test.NewNullLogger()
	d := Deps{
		Service: svc,
		Notes:   mockReader{note: sampleNote()},
		Auth:    mockAuth{user: domain.User{ID: "u1", Name: "Ada"}},
		Logger:  logger,
	}
	if users != nil {
		d.Users = users
	}
	e := echo.New()
	e.JSONSerializer = SonicSerializer{}
	Register(e, d)
	return e
}

func doRequest(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestPutNotePassesChecklistToService(t *testing.T) {
	svc := &mockService{note: sampleNote()}
	users := &mockUsers{}
	e := newTestServer(svc, users)

	body := `{"checklistItems":[{"id":"a","content":"Ship","checked":true,"order":0},{"id":"b","content":"Test","order":1}]}`
	rec := doRequest(e, http.MethodPut, "/api/boards/b1/notes/n1", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	call := svc.lastCall(t)
	if call.method != "update" || call.actorID != "u1" || call.boardID != "b1" || call.noteID != "n1" {
		t.Fatalf("unexpected call %+v", call)
	}
	if call.update.Checklist == nil || len(*call.update.Checklist) != 2 {
		t.Fatalf("expected checklist of 2 items, got %#v", call.update.Checklist)
	}
	if !(*call.update.Checklist)[0].Checked {
		t.Fatalf("expected first item checked")
	}

	var resp noteResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Note == nil || resp.Note.ID != "n1" || len(resp.Note.ChecklistItems) != 2 {
		t.Fatalf("unexpected response %+v", resp.Note)
	}

	if len(users.users) != 1 || users.users[0].Name != "Ada" {
		t.Fatalf("expected actor profile recorded, got %+v", users.users)
	}
}

func TestPutNoteArchivesWithoutChecklist(t *testing.T) {
	svc := &mockService{note: sampleNote()}
	e := newTestServer(svc, nil)

	rec := doRequest(e, http.MethodPut, "/api/boards/b1/notes/n1", `{"archivedAt":"2026-01-02T03:04:05Z"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	call := svc.lastCall(t)
	if !call.update.ArchivedAt.Set || call.update.ArchivedAt.Time == nil || call.update.ArchivedAt.Time.Year() != 2026 {
		t.Fatalf("expected archivedAt set, got %+v", call.update.ArchivedAt)
	}
	if call.update.Checklist != nil {
		t.Fatalf("expected checklist untouched")
	}
}

func TestHandlersErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "validation",
			err:        &domain.ValidationError{Field: "checklistItems.order", Err: domain.ErrInvalidOrder},
			wantStatus: http.StatusBadRequest,
			wantBody:   "checklistItems.order",
		},
		{
			name:       "not found",
			err:        fmt.Errorf("note n1: %w", domain.ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantBody:   "not found",
		},
		{
			name:       "internal",
			err:        errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{err: tt.err}
			e := newTestServer(svc, nil)

			rec := doRequest(e, http.MethodPut, "/api/boards/b1/notes/n1", `{"checklistItems":[]}`)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			var resp errorResponse
			if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if !strings.Contains(resp.Error, tt.wantBody) {
				t.Fatalf("error %q does not contain %q", resp.Error, tt.wantBody)
			}
			if tt.name == "internal" && strings.Contains(resp.Error, "connection reset") {
				t.Fatalf("internal error leaked: %q", resp.Error)
			}
		})
	}
}

func TestHandlersRejectUnauthenticated(t *testing.T) {
	svc := &mockService{note: sampleNote()}
	logger, _ := test.NewNullLogger()
	e := echo.New()
	Register(e, Deps{
		Service: svc,
		Notes:   mockReader{note: sampleNote()},
		Auth:    mockAuth{err: errMissingAuthorization},
		Logger:  logger,
	})

	routes := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/api/boards/b1/notes/n1", ""},
		{http.MethodPut, "/api/boards/b1/notes/n1", `{}`},
		{http.MethodPost, "/api/boards/b1/notes", `{"content":"x"}`},
		{http.MethodPost, "/api/boards/b1/notes/n1/checklist/a/split", `{"cursor":1}`},
		{http.MethodPost, "/api/boards/b1/notes/n1/tasks", `{"type":"add","content":"x"}`},
	}
	for _, r := range routes {
		rec := doRequest(e, r.method, r.path, r.body)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", r.method, r.path, rec.Code)
		}
	}
	if len(svc.calls) != 0 {
		t.Fatalf("service must not be called without auth, got %+v", svc.calls)
	}
}

func TestPutNoteRejectsBadBodies(t *testing.T) {
	svc := &mockService{note: sampleNote()}
	e := newTestServer(svc, nil)

	big := `{"content":"` + strings.Repeat("x", noteBodyMaxSize) + `"}`
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "empty", body: "", wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `{"checklistItems":`, wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"checklistItems":[],"title":"x"}`, wantStatus: http.StatusBadRequest},
		{name: "too large", body: big, wantStatus: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(e, http.MethodPut, "/api/boards/b1/notes/n1", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
	if len(svc.calls) != 0 {
		t.Fatalf("service must not be called for rejected bodies")
	}
}

func TestPostNoteCreates(t *testing.T) {
	svc := &mockService{note: &domain.Note{ID: "n2", BoardID: "b1", Content: "Plan"}}
	e := newTestServer(svc, nil)

	rec := doRequest(e, http.MethodPost, "/api/boards/b1/notes", `{"content":"Plan","checklistItems":[{"content":"one"}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	call := svc.lastCall(t)
	if call.method != "create" || call.create.Content != "Plan" || len(call.create.Checklist) != 1 {
		t.Fatalf("unexpected call %+v", call)
	}
}

func TestPostSplit(t *testing.T) {
	svc := &mockService{
		note: sampleNote(),
		split: domain.SplitResult{
			Original: domain.ChecklistItem{ID: "a", Content: "Sh", Order: 0},
			Created:  domain.ChecklistItem{ID: "c", Content: "ip", Order: 1},
		},
	}
	e := newTestServer(svc, nil)

	rec := doRequest(e, http.MethodPost, "/api/boards/b1/notes/n1/checklist/a/split", `{"cursor":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	call := svc.lastCall(t)
	if call.method != "split" || call.itemID != "a" || call.cursor != 2 {
		t.Fatalf("unexpected call %+v", call)
	}
	var resp splitResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Original.Content != "Sh" || resp.Created.Content != "ip" {
		t.Fatalf("unexpected split response %+v", resp)
	}
}

func TestPostSplitRequiresCursor(t *testing.T) {
	svc := &mockService{note: sampleNote()}
	e := newTestServer(svc, nil)

	for _, body := range []string{`{}`, `{"cursor":1,"extra":true}`} {
		rec := doRequest(e, http.MethodPost, "/api/boards/b1/notes/n1/checklist/a/split", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
	if len(svc.calls) != 0 {
		t.Fatalf("service must not be called")
	}
}

func TestPostTaskCommand(t *testing.T) {
	svc := &mockService{note: sampleNote()}
	e := newTestServer(svc, nil)

	rec := doRequest(e, http.MethodPost, "/api/boards/b1/notes/n1/tasks", `{"type":"mark","itemId":"b"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	call := svc.lastCall(t)
	if call.command.Type != domain.TaskMark || call.command.ItemID != "b" {
		t.Fatalf("unexpected command %+v", call.command)
	}
}

func TestGetNote(t *testing.T) {
	svc := &mockService{}
	e := newTestServer(svc, nil)

	rec := doRequest(e, http.MethodGet, "/api/boards/b1/notes/n1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp noteResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Note == nil || resp.Note.ID != "n1" {
		t.Fatalf("unexpected note %+v", resp.Note)
	}
}

func TestEnsureUserFailureDoesNotFailRequest(t *testing.T) {
	svc := &mockService{note: sampleNote()}
	users := &mockUsers{err: errors.New("db down")}
	e := newTestServer(svc, users)

	rec := doRequest(e, http.MethodPut, "/api/boards/b1/notes/n1", `{"done":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name   string
		pinger Pinger
		want   int
	}{
		{name: "no backend", want: http.StatusOK},
		{name: "healthy", pinger: mockPinger{}, want: http.StatusOK},
		{name: "down", pinger: mockPinger{err: errors.New("refused")}, want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			Register(e, Deps{Health: tt.pinger})
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
