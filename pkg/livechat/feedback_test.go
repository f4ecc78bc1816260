package livechat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestFeedbackGateEnablesOnlyWithAllRatings(t *testing.T) {
	g := NewFeedbackGate(nil, "sess-1", "v-1", nil)

	cases := []struct {
		name string
		r    Ratings
		want bool
	}{
		{"empty", Ratings{}, false},
		{"missing response time", Ratings{Overall: 5, SupportQuality: 4}, false},
		{"missing support quality", Ratings{Overall: 5, ResponseTime: 3}, false},
		{"missing overall", Ratings{SupportQuality: 4, ResponseTime: 3}, false},
		{"complete", Ratings{Overall: 5, SupportQuality: 4, ResponseTime: 3}, true},
	}
	for _, tc := range cases {
		g.SetRatings(tc.r)
		if got := g.CanSubmit(); got != tc.want {
			t.Errorf("%s: CanSubmit = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFeedbackGateSkipReleasesOnce(t *testing.T) {
	var released int32
	g := NewFeedbackGate(nil, "sess-1", "v-1", func() { atomic.AddInt32(&released, 1) })

	g.Skip()
	g.Skip()
	if !g.Resolved() {
		t.Fatal("gate should be resolved after Skip")
	}
	if n := atomic.LoadInt32(&released); n != 1 {
		t.Fatalf("release ran %d times, want 1", n)
	}
}

func TestFeedbackGateSubmitReleasesOnce(t *testing.T) {
	var posted int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/feedback" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var in FeedbackInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if in.Rating != 5 || in.SessionID != "sess-1" {
			t.Errorf("unexpected payload %+v", in)
		}
		atomic.AddInt32(&posted, 1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	var released int32
	g := NewFeedbackGate(NewClient(srv.URL, ""), "sess-1", "v-1", func() { atomic.AddInt32(&released, 1) })
	g.SetRatings(Ratings{Overall: 5, SupportQuality: 4, ResponseTime: 4, Comments: "quick"})

	if err := g.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// Submitting again and skipping after resolution are both no-ops.
	if err := g.Submit(context.Background()); err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	g.Skip()

	if n := atomic.LoadInt32(&posted); n != 1 {
		t.Fatalf("feedback posted %d times, want 1", n)
	}
	if n := atomic.LoadInt32(&released); n != 1 {
		t.Fatalf("release ran %d times, want 1", n)
	}
}

func TestFeedbackGateSubmitWithoutRatingsFails(t *testing.T) {
	g := NewFeedbackGate(nil, "sess-1", "v-1", nil)
	err := g.Submit(context.Background())
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("Submit without ratings = %v, want *ValidationError", err)
	}
	if g.Resolved() {
		t.Fatal("failed submit must not resolve the gate")
	}
}

func TestFeedbackGateDuplicateConflictResolves(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"code": "conflict", "message": "already rated"})
	}))
	defer srv.Close()

	var released int32
	g := NewFeedbackGate(NewClient(srv.URL, ""), "sess-1", "v-1", func() { atomic.AddInt32(&released, 1) })
	g.SetRatings(Ratings{Overall: 3, SupportQuality: 3, ResponseTime: 3})

	if err := g.Submit(context.Background()); err != nil {
		t.Fatalf("Submit on conflict should be benign, got %v", err)
	}
	if n := atomic.LoadInt32(&released); n != 1 {
		t.Fatalf("release ran %d times, want 1", n)
	}
}
