package livechat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientCreateRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/request" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var in CreateRequestInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if in.Name != "Alice" {
			t.Errorf("name = %q, want Alice", in.Name)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(ChatRequest{ID: "req-42", VisitorID: "v-42", Status: "pending"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	req, err := c.CreateRequest(context.Background(), CreateRequestInput{
		Name:       "Alice",
		CategoryID: 1,
		Message:    "I need help with my account setup please",
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if req.ID != "req-42" || req.VisitorID != "v-42" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestClientSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer s3cr3t" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode([]ChatRequest{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "s3cr3t")
	if _, err := c.PendingRequests(context.Background()); err != nil {
		t.Fatalf("PendingRequests: %v", err)
	}
}

func TestClientAcceptConflictIsStateConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"code": CodeRequestTaken, "message": "request already resolved"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	_, err := c.AcceptRequest(context.Background(), "req-1", "Dana")
	var sc *StateConflict
	if !errors.As(err, &sc) {
		t.Fatalf("err = %v, want *StateConflict", err)
	}
	if sc.Code != CodeRequestTaken {
		t.Fatalf("code = %q, want %q", sc.Code, CodeRequestTaken)
	}
	if !IsConflict(err) {
		t.Fatal("IsConflict should report true")
	}
}

func TestClientCancelTooLate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"code": CodeCancelTooLate})
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").CancelRequest(context.Background(), "req-1", "v-1")
	var sc *StateConflict
	if !errors.As(err, &sc) || sc.Code != CodeCancelTooLate {
		t.Fatalf("err = %v, want cancel_too_late StateConflict", err)
	}
}

func TestClientUnauthorizedIsAuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "stale").PendingRequests(context.Background())
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("err = %v, want ErrAuthExpired", err)
	}
}

func TestClientServerErrorIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"code": "internal_error", "message": "boom"})
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").RejectRequest(context.Background(), "req-1")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
}

func TestClientConnectionRefusedIsTransportError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "")
	_, err := c.Categories(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
}

func TestClientReadsAggregates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat/sessions/total":
			json.NewEncoder(w).Encode(map[string]int64{"total": 17})
		case "/chat/sessions/sess-1/messages":
			json.NewEncoder(w).Encode(messagesPage{Messages: []ChatMessage{{ID: "m1", Text: "hi"}}})
		case "/chat/sessions/sess-1/messages/public":
			if r.URL.Query().Get("participant_id") != "v-1" {
				t.Errorf("participant_id = %q", r.URL.Query().Get("participant_id"))
			}
			json.NewEncoder(w).Encode(messagesPage{Messages: []ChatMessage{{ID: "m1"}, {ID: "m2"}}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	total, err := c.TotalSessions(context.Background())
	if err != nil || total != 17 {
		t.Fatalf("TotalSessions = %d, %v", total, err)
	}
	msgs, err := c.Messages(context.Background(), "sess-1")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("Messages = %v, %v", msgs, err)
	}
	pub, err := c.PublicMessages(context.Background(), "sess-1", "v-1")
	if err != nil || len(pub) != 2 {
		t.Fatalf("PublicMessages = %v, %v", pub, err)
	}
}
