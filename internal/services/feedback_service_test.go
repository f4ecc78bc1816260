package services

import (
	"context"
	"errors"
	"testing"

	"github.com/venturing/go-livechat-backend/internal/domain"
)

func TestFeedbackLeave(t *testing.T) {
	db := newTestDB(t)
	reqSvc := &RequestService{DB: db}
	sessSvc := &SessionService{DB: db}
	sess := startSession(t, reqSvc)
	ctx := context.Background()

	svc := &FeedbackService{DB: db}
	in := LeaveFeedbackInput{
		SessionID:      sess.ID,
		VisitorID:      sess.VisitorID,
		Overall:        5,
		SupportQuality: 4,
		ResponseTime:   5,
		Comments:       "quick and helpful",
		WouldRecommend: true,
	}

	// Feedback is gated on the session being over.
	if err := svc.Leave(ctx, in); !errors.Is(err, ErrSessionNotEnded) {
		t.Fatalf("pre-end err = %v, want ErrSessionNotEnded", err)
	}
	if err := sessSvc.End(ctx, sess.ID, domain.RoleAgent); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := svc.Leave(ctx, in); err != nil {
		t.Fatalf("leave: %v", err)
	}
	// One submission per session.
	if err := svc.Leave(ctx, in); !errors.Is(err, ErrDuplicateFeedback) {
		t.Fatalf("repeat err = %v, want ErrDuplicateFeedback", err)
	}
}

func TestFeedbackLeave_Validation(t *testing.T) {
	db := newTestDB(t)
	svc := &FeedbackService{DB: db}
	ctx := context.Background()

	bad := []LeaveFeedbackInput{
		{SessionID: "s", VisitorID: "v", Overall: 0, SupportQuality: 3, ResponseTime: 3},
		{SessionID: "s", VisitorID: "v", Overall: 3, SupportQuality: 6, ResponseTime: 3},
		{SessionID: "s", VisitorID: "v", Overall: 3, SupportQuality: 3, ResponseTime: -1},
	}
	for i, in := range bad {
		if err := svc.Leave(ctx, in); !errors.Is(err, ErrInvalidRating) {
			t.Fatalf("case %d: err = %v, want ErrInvalidRating", i, err)
		}
	}

	ok := LeaveFeedbackInput{SessionID: "missing", VisitorID: "v", Overall: 3, SupportQuality: 3, ResponseTime: 3}
	if err := svc.Leave(ctx, ok); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing session err = %v, want ErrSessionNotFound", err)
	}
}

func TestFeedbackLeave_WrongVisitor(t *testing.T) {
	db := newTestDB(t)
	reqSvc := &RequestService{DB: db}
	sessSvc := &SessionService{DB: db}
	sess := startSession(t, reqSvc)
	ctx := context.Background()

	if err := sessSvc.End(ctx, sess.ID, domain.RoleAgent); err != nil {
		t.Fatalf("end: %v", err)
	}
	svc := &FeedbackService{DB: db}
	err := svc.Leave(ctx, LeaveFeedbackInput{
		SessionID: sess.ID, VisitorID: "stranger",
		Overall: 3, SupportQuality: 3, ResponseTime: 3,
	})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}
