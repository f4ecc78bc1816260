// Package domain defines the persistence models for live-support chat:
// requests, sessions, messages, feedback, notifications, and the category
// taxonomy used by the request form. These types are mapped with GORM and
// form the core data layer of the broker.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Chat request status values. A request has exactly one terminal outcome.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
	RequestExpired  = "expired"
	RequestCanceled = "canceled"
)

// Chat session status values.
const (
	SessionActive = "active"
	SessionEnded  = "ended"
)

// Sender roles on a chat message.
const (
	RoleVisitor = "visitor"
	RoleAgent   = "agent"
)

// ChatCategory is a taxonomy entry shown in the visitor request form.
type ChatCategory struct {
	ID          uint   `json:"id"          gorm:"primaryKey"`
	Name        string `json:"name"        gorm:"type:varchar(128);not null;uniqueIndex"`
	Description string `json:"description" gorm:"type:varchar(255)"`
	Active      bool   `json:"active"      gorm:"not null;default:true"`
}

// TableName returns the database table name for ChatCategory.
func (ChatCategory) TableName() string { return "chat_categories" }

// ChatSubcategory refines a category. A category may have none; when it has
// at least one, the request form requires a subcategory selection.
type ChatSubcategory struct {
	ID         uint   `json:"id"          gorm:"primaryKey"`
	CategoryID uint   `json:"category_id" gorm:"not null;index"`
	Name       string `json:"name"        gorm:"type:varchar(128);not null"`

	Category ChatCategory `json:"-" gorm:"foreignKey:CategoryID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatSubcategory.
func (ChatSubcategory) TableName() string { return "chat_subcategories" }

// ChatRequest is a visitor's ask for live help, before an agent has
// responded. The broker assigns a stable VisitorID which also addresses the
// visitor's messaging channel. At most one outcome is ever recorded: the
// accept path performs a compare-and-swap on Status so a request taken by
// one agent is unavailable to all others.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - VisitorID: assigned participant id for the anonymous visitor.
//   - Status: pending until accepted/rejected/expired/canceled.
//   - AssignedTo: agent that resolved the request (accept/reject only).
//   - ExpiresAt: server-side wait deadline (CreatedAt + wait budget).
type ChatRequest struct {
	ID            string     `json:"id"             gorm:"type:char(36);primaryKey"`
	VisitorID     string     `json:"visitor_id"     gorm:"type:varchar(64);not null;index"`
	VisitorName   string     `json:"visitor_name"   gorm:"type:varchar(128);not null"`
	VisitorEmail  string     `json:"visitor_email,omitempty" gorm:"type:varchar(255)"`
	CategoryID    uint       `json:"category_id"    gorm:"not null;index"`
	SubcategoryID *uint      `json:"subcategory_id,omitempty"`
	Message       string     `json:"message"        gorm:"type:text;not null"`
	Status        string     `json:"status"         gorm:"type:varchar(16);not null;default:'pending';index;check:status IN ('pending','accepted','rejected','expired','canceled')"`
	AssignedTo    string     `json:"assigned_to,omitempty" gorm:"type:varchar(64)"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"     gorm:"index"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`

	Category ChatCategory `json:"-" gorm:"foreignKey:CategoryID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for ChatRequest.
func (ChatRequest) TableName() string { return "chat_requests" }

// Pending reports whether the request still awaits an outcome.
func (r *ChatRequest) Pending() bool { return r.Status == RequestPending }

// ChatSession is an accepted, live conversation between one visitor and one
// agent. Created exactly once per accepted ChatRequest; EndedAt is set
// exactly once, after which the session is immutable history.
type ChatSession struct {
	ID           string         `json:"id"           gorm:"type:char(36);primaryKey"`
	RequestID    string         `json:"request_id"   gorm:"type:char(36);not null;uniqueIndex"`
	VisitorID    string         `json:"visitor_id"   gorm:"type:varchar(64);not null;index"`
	VisitorName  string         `json:"visitor_name" gorm:"type:varchar(128);not null"`
	VisitorEmail string         `json:"visitor_email,omitempty" gorm:"type:varchar(255)"`
	AgentID      string         `json:"agent_id"     gorm:"type:varchar(64);not null;index"`
	Status       string         `json:"status"       gorm:"type:varchar(16);not null;default:'active';index;check:status IN ('active','ended')"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`

	Request ChatRequest `json:"-" gorm:"foreignKey:RequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// Ended reports whether the session has reached its immutable terminal state.
func (s *ChatSession) Ended() bool { return s.Status == SessionEnded }

// ChatMessage is a single utterance within a session. Append-only; ordering
// is the arrival order on each party's messaging channel.
type ChatMessage struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	SessionID  string    `json:"session_id"  gorm:"type:char(36);not null;index:idx_session_msgs,priority:1"`
	SenderRole string    `json:"sender_role" gorm:"type:varchar(16);not null;check:sender_role IN ('visitor','agent')"`
	SenderID   string    `json:"sender_id"   gorm:"type:varchar(64);not null"`
	Text       string    `json:"text"        gorm:"type:text;not null"`
	Kind       string    `json:"kind"        gorm:"type:varchar(16);not null;default:'text'"`
	CreatedAt  time.Time `json:"created_at"  gorm:"index:idx_session_msgs,priority:2"`

	Session ChatSession `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }

// Notification is an out-of-band alert delivered over the notification
// stream. Mutated only by read/delete actions; removed on explicit clear.
type Notification struct {
	ID                 string    `json:"id"    gorm:"type:char(36);primaryKey"`
	Type               string    `json:"type"  gorm:"type:varchar(32);not null;index"`
	Title              string    `json:"title" gorm:"type:varchar(255);not null"`
	Body               string    `json:"body"  gorm:"type:text"`
	RelatedTicketToken string    `json:"related_ticket_token,omitempty" gorm:"type:varchar(64)"`
	Read               bool      `json:"read"  gorm:"not null;default:false;index"`
	CreatedAt          time.Time `json:"created_at"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// ChatFeedback is the visitor's satisfaction rating for an ended session.
// Created at most once per session (enforced by unique index); all three
// ratings are mandatory and range 1..5.
type ChatFeedback struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	SessionID      string    `json:"session_id"      gorm:"type:char(36);not null;uniqueIndex"`
	VisitorID      string    `json:"visitor_id"      gorm:"type:varchar(64);not null"`
	AgentID        string    `json:"agent_id"        gorm:"type:varchar(64);not null"`
	Overall        int       `json:"overall_rating"  gorm:"not null;check:overall BETWEEN 1 AND 5"`
	SupportQuality int       `json:"support_quality" gorm:"not null;check:support_quality BETWEEN 1 AND 5"`
	ResponseTime   int       `json:"response_time"   gorm:"not null;check:response_time BETWEEN 1 AND 5"`
	Comments       string    `json:"comments,omitempty" gorm:"type:text"`
	WouldRecommend bool      `json:"would_recommend" gorm:"not null;default:false"`
	CreatedAt      time.Time `json:"created_at"`

	Session ChatSession `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatFeedback.
func (ChatFeedback) TableName() string { return "chat_feedback" }
