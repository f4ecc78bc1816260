package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/venturing/go-livechat-backend/internal/domain"
	"github.com/venturing/go-livechat-backend/internal/protocol"
	"github.com/venturing/go-livechat-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakePusher records every pushed frame, decoded, keyed by destination.
type fakePusher struct {
	mu       sync.Mutex
	visitor  map[string][]protocol.Envelope
	agent    map[string][]protocol.Envelope
	allAgent []protocol.Envelope
}

func newFakePusher() *fakePusher {
	return &fakePusher{
		visitor: make(map[string][]protocol.Envelope),
		agent:   make(map[string][]protocol.Envelope),
	}
}

func (f *fakePusher) SendToVisitor(id string, frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	env, _ := protocol.Decode(frame)
	f.visitor[id] = append(f.visitor[id], env)
}

func (f *fakePusher) SendToAgent(id string, frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	env, _ := protocol.Decode(frame)
	f.agent[id] = append(f.agent[id], env)
}

func (f *fakePusher) BroadcastToAgents(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	env, _ := protocol.Decode(frame)
	f.allAgent = append(f.allAgent, env)
}

func seedTaxonomy(t *testing.T, db *gorm.DB, withSub bool) *domain.ChatCategory {
	t.Helper()
	cat := &domain.ChatCategory{Name: "Support-" + uuid.NewString(), Active: true}
	if err := db.Create(cat).Error; err != nil {
		t.Fatalf("seed category: %v", err)
	}
	if withSub {
		sub := &domain.ChatSubcategory{CategoryID: cat.ID, Name: "Accounts"}
		if err := db.Create(sub).Error; err != nil {
			t.Fatalf("seed subcategory: %v", err)
		}
	}
	return cat
}

func subID(t *testing.T, db *gorm.DB, cat *domain.ChatCategory) *uint {
	t.Helper()
	var sub domain.ChatSubcategory
	if err := db.First(&sub, "category_id = ?", cat.ID).Error; err != nil {
		t.Fatalf("lookup subcategory: %v", err)
	}
	return &sub.ID
}

func TestRequestCreate_Validation(t *testing.T) {
	db := newTestDB(t)
	cat := seedTaxonomy(t, db, true)
	svc := &RequestService{DB: db}
	ctx := context.Background()

	longMsg := "I need help with my account setup please"

	cases := []struct {
		name string
		in   CreateRequestInput
		want error
	}{
		{"missing name", CreateRequestInput{CategoryID: cat.ID, Message: longMsg}, ErrNameRequired},
		{"short message", CreateRequestInput{VisitorName: "Alice", CategoryID: cat.ID, Message: "too short"}, ErrMessageTooShort},
		{"unknown category", CreateRequestInput{VisitorName: "Alice", CategoryID: 9999, Message: longMsg}, ErrCategoryNotFound},
		{"missing subcategory", CreateRequestInput{VisitorName: "Alice", CategoryID: cat.ID, Message: longMsg}, ErrSubcategoryRequired},
	}
	for _, tc := range cases {
		if _, err := svc.Create(ctx, tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestRequestCreate_StartsPendingAndAnnounces(t *testing.T) {
	db := newTestDB(t)
	cat := seedTaxonomy(t, db, false)
	push := newFakePusher()

	var notified int
	svc := &RequestService{
		DB:   db,
		Push: push,
		Notify: func(context.Context, string, string, string) {
			notified++
		},
	}

	req, err := svc.Create(context.Background(), CreateRequestInput{
		VisitorName: "Alice",
		CategoryID:  cat.ID,
		Message:     "I need help with my account setup please",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.Status != domain.RequestPending || req.VisitorID == "" {
		t.Fatalf("request = %+v", req)
	}
	if got := req.ExpiresAt.Sub(req.CreatedAt); got != DefaultWaitBudget {
		t.Fatalf("wait budget = %v, want %v", got, DefaultWaitBudget)
	}
	if len(push.allAgent) != 1 || push.allAgent[0].Type != protocol.TypeNewChatRequest {
		t.Fatalf("agent broadcast = %+v", push.allAgent)
	}
	if notified != 1 {
		t.Fatalf("notify hook calls = %d", notified)
	}
}

func TestRequestAccept_WinnerAndLoser(t *testing.T) {
	db := newTestDB(t)
	cat := seedTaxonomy(t, db, false)
	push := newFakePusher()
	svc := &RequestService{DB: db, Push: push}
	ctx := context.Background()

	req, err := svc.Create(ctx, CreateRequestInput{
		VisitorName: "Alice",
		CategoryID:  cat.ID,
		Message:     "I need help with my account setup please",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sess, err := svc.Accept(ctx, req.ID, "agent-1", "Dana")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if sess.AgentID != "agent-1" || sess.VisitorID != req.VisitorID {
		t.Fatalf("session = %+v", sess)
	}

	// The losing agent gets the benign conflict, not a generic failure.
	if _, err := svc.Accept(ctx, req.ID, "agent-2", "Eve"); !errors.Is(err, ErrRequestTaken) {
		t.Fatalf("loser err = %v, want ErrRequestTaken", err)
	}

	got := push.visitor[req.VisitorID]
	if len(got) != 1 || got[0].Type != protocol.TypeChatAccepted {
		t.Fatalf("visitor pushes = %+v", got)
	}
	var acc protocol.ChatAccepted
	if err := protocol.DecodeData(got[0], &acc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if acc.SessionID != sess.ID || acc.AgentID != "agent-1" {
		t.Fatalf("chat_accepted = %+v", acc)
	}
}

func TestRequestAccept_Expired(t *testing.T) {
	db := newTestDB(t)
	cat := seedTaxonomy(t, db, false)
	svc := &RequestService{DB: db}
	ctx := context.Background()

	req, err := svc.Create(ctx, CreateRequestInput{
		VisitorName: "Alice",
		CategoryID:  cat.ID,
		Message:     "I need help with my account setup please",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Model(&domain.ChatRequest{}).Where("id = ?", req.ID).
		Update("expires_at", time.Now().UTC().Add(-time.Second)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	if _, err := svc.Accept(ctx, req.ID, "agent-1", ""); !errors.Is(err, ErrRequestExpired) {
		t.Fatalf("err = %v, want ErrRequestExpired", err)
	}
	if _, err := svc.Accept(ctx, "missing", "agent-1", ""); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("err = %v, want ErrRequestNotFound", err)
	}
}

func TestRequestReject_PushesNextStepPrompt(t *testing.T) {
	db := newTestDB(t)
	cat := seedTaxonomy(t, db, false)
	push := newFakePusher()
	svc := &RequestService{DB: db, Push: push}
	ctx := context.Background()

	req, err := svc.Create(ctx, CreateRequestInput{
		VisitorName: "Alice",
		CategoryID:  cat.ID,
		Message:     "I need help with my account setup please",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Reject(ctx, req.ID, "agent-1"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	got := push.visitor[req.VisitorID]
	if len(got) != 1 || got[0].Type != protocol.TypeChatRejected {
		t.Fatalf("visitor pushes = %+v", got)
	}
	var rej protocol.ChatRejected
	if err := protocol.DecodeData(got[0], &rej); err != nil || rej.Reason == "" {
		t.Fatalf("rejection must carry next-step guidance: %+v err=%v", rej, err)
	}

	if err := svc.Reject(ctx, req.ID, "agent-2"); !errors.Is(err, ErrRequestTaken) {
		t.Fatalf("second reject err = %v, want ErrRequestTaken", err)
	}
}

func TestRequestCancel_AdvisoryRace(t *testing.T) {
	db := newTestDB(t)
	cat := seedTaxonomy(t, db, false)
	push := newFakePusher()
	svc := &RequestService{DB: db, Push: push}
	ctx := context.Background()

	req, err := svc.Create(ctx, CreateRequestInput{
		VisitorName: "Alice",
		CategoryID:  cat.ID,
		Message:     "I need help with my account setup please",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Wrong participant id never reveals the request.
	if err := svc.Cancel(ctx, req.ID, "someone-else"); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("foreign cancel err = %v", err)
	}

	if err := svc.Cancel(ctx, req.ID, req.VisitorID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// All agents must be told to drop the entry.
	found := false
	for _, env := range push.allAgent {
		if env.Type == protocol.TypeRequestCanceled {
			found = true
		}
	}
	if !found {
		t.Fatalf("agent broadcasts = %+v", push.allAgent)
	}

	// Cancel after resolution is too late, not an error state.
	if err := svc.Cancel(ctx, req.ID, req.VisitorID); !errors.Is(err, ErrCancelTooLate) {
		t.Fatalf("late cancel err = %v, want ErrCancelTooLate", err)
	}
}

func TestSweepExpired_NotifiesBothSides(t *testing.T) {
	db := newTestDB(t)
	cat := seedTaxonomy(t, db, false)
	push := newFakePusher()
	svc := &RequestService{DB: db, Push: push}
	ctx := context.Background()

	req, err := svc.Create(ctx, CreateRequestInput{
		VisitorName: "Alice",
		CategoryID:  cat.ID,
		Message:     "I need help with my account setup please",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Model(&domain.ChatRequest{}).Where("id = ?", req.ID).
		Update("expires_at", time.Now().UTC().Add(-time.Second)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	n, err := svc.SweepExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("sweep: n=%d err=%v", n, err)
	}

	visitorGot := push.visitor[req.VisitorID]
	if len(visitorGot) != 1 || visitorGot[0].Type != protocol.TypeRequestTimeout {
		t.Fatalf("visitor pushes = %+v", visitorGot)
	}
	sawDrop := false
	for _, env := range push.allAgent {
		if env.Type == protocol.TypeRequestCanceled {
			sawDrop = true
		}
	}
	if !sawDrop {
		t.Fatalf("agent broadcasts = %+v", push.allAgent)
	}

	// Idempotent: nothing left to sweep.
	if n, err := svc.SweepExpired(ctx); err != nil || n != 0 {
		t.Fatalf("second sweep: n=%d err=%v", n, err)
	}
}
