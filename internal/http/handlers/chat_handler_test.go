package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/venturing/go-livechat-backend/internal/domain"
	"github.com/venturing/go-livechat-backend/internal/services"
)

// fakeRequestSvc returns canned results per method.
type fakeRequestSvc struct {
	createErr error
	acceptErr error
	cancelErr error
}

func (f *fakeRequestSvc) Create(ctx context.Context, in services.CreateRequestInput) (*domain.ChatRequest, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &domain.ChatRequest{ID: "r1", VisitorID: "v1", Status: domain.RequestPending}, nil
}

func (f *fakeRequestSvc) Accept(ctx context.Context, requestID, agentID, agentName string) (*domain.ChatSession, error) {
	if f.acceptErr != nil {
		return nil, f.acceptErr
	}
	return &domain.ChatSession{ID: "s1", AgentID: agentID}, nil
}

func (f *fakeRequestSvc) Reject(ctx context.Context, requestID, agentID string) error { return nil }

func (f *fakeRequestSvc) Cancel(ctx context.Context, requestID, visitorID string) error {
	return f.cancelErr
}

func (f *fakeRequestSvc) ListPending(ctx context.Context) ([]domain.ChatRequest, error) {
	return nil, nil
}

func (f *fakeRequestSvc) ListRejected(ctx context.Context) ([]domain.ChatRequest, error) {
	return nil, nil
}

func (f *fakeRequestSvc) Categories(ctx context.Context) ([]domain.ChatCategory, error) {
	return nil, nil
}

func (f *fakeRequestSvc) Subcategories(ctx context.Context, categoryID uint) ([]domain.ChatSubcategory, error) {
	return nil, nil
}

func newHandlerEngine(svc RequestService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(svc, nil, nil, nil)
	r := gin.New()
	r.POST("/chat/request", h.CreateChatRequest)
	r.POST("/chat/request/cancel", h.CancelChatRequest)
	r.POST("/chat/requests/:id/accept", h.AcceptChatRequest)
	return r
}

func post(r *gin.Engine, path, body, uid string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("X-User-ID", uid)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateChatRequest_ErrorMapping(t *testing.T) {
	valid := `{"name":"Alice","category_id":1,"message":"something long enough to pass binding"}`

	cases := []struct {
		name       string
		svcErr     error
		body       string
		wantStatus int
		wantCode   string
	}{
		{"created", nil, valid, http.StatusCreated, ""},
		{"bad json", nil, `{`, http.StatusBadRequest, "bad_request"},
		{"short message", services.ErrMessageTooShort, valid, http.StatusBadRequest, "validation_failed"},
		{"unknown category", services.ErrCategoryNotFound, valid, http.StatusBadRequest, "validation_failed"},
		{"missing subcategory", services.ErrSubcategoryRequired, valid, http.StatusBadRequest, "validation_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newHandlerEngine(&fakeRequestSvc{createErr: tc.svcErr})
			w := post(r, "/chat/request", tc.body, "")
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.wantStatus, w.Body.String())
			}
			if tc.wantCode != "" && !strings.Contains(w.Body.String(), tc.wantCode) {
				t.Fatalf("body = %s, want code %s", w.Body.String(), tc.wantCode)
			}
		})
	}
}

func TestAcceptChatRequest_ConflictCodes(t *testing.T) {
	cases := []struct {
		name       string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{"won", nil, http.StatusCreated, ""},
		{"taken", services.ErrRequestTaken, http.StatusConflict, "request_taken"},
		{"expired", services.ErrRequestExpired, http.StatusConflict, "request_expired"},
		{"missing", services.ErrRequestNotFound, http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newHandlerEngine(&fakeRequestSvc{acceptErr: tc.svcErr})
			w := post(r, "/chat/requests/r1/accept", "", "agent-1")
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if tc.wantCode != "" && !strings.Contains(w.Body.String(), tc.wantCode) {
				t.Fatalf("body = %s, want code %s", w.Body.String(), tc.wantCode)
			}
		})
	}

	// Without an agent identity the accept is refused outright.
	r := newHandlerEngine(&fakeRequestSvc{})
	if w := post(r, "/chat/requests/r1/accept", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous accept = %d", w.Code)
	}
}

func TestCancelChatRequest_TooLate(t *testing.T) {
	r := newHandlerEngine(&fakeRequestSvc{cancelErr: services.ErrCancelTooLate})
	w := post(r, "/chat/request/cancel", `{"request_id":"r1","participant_id":"v1"}`, "")
	if w.Code != http.StatusConflict || !strings.Contains(w.Body.String(), "cancel_too_late") {
		t.Fatalf("late cancel = %d %s", w.Code, w.Body.String())
	}
}
