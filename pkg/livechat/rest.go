package livechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Conflict codes the backend uses for races it resolved in someone else's
// favor. The client treats these as benign StateConflict outcomes.
const (
	CodeRequestTaken   = "request_taken"
	CodeRequestExpired = "request_expired"
	CodeCancelTooLate  = "cancel_too_late"
)

// ChatRequest mirrors the broker's pending-request record.
type ChatRequest struct {
	ID            string     `json:"id"`
	VisitorID     string     `json:"visitor_id"`
	VisitorName   string     `json:"visitor_name"`
	VisitorEmail  string     `json:"visitor_email,omitempty"`
	CategoryID    uint       `json:"category_id"`
	SubcategoryID *uint      `json:"subcategory_id,omitempty"`
	Message       string     `json:"message"`
	Status        string     `json:"status"`
	AssignedTo    string     `json:"assigned_to,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// ChatSession mirrors the broker's session record.
type ChatSession struct {
	ID          string     `json:"id"`
	RequestID   string     `json:"request_id"`
	VisitorID   string     `json:"visitor_id"`
	VisitorName string     `json:"visitor_name"`
	AgentID     string     `json:"agent_id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// ChatMessage is one backlog entry.
type ChatMessage struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	SenderRole string    `json:"sender_role"`
	SenderID   string    `json:"sender_id"`
	Text       string    `json:"text"`
	Kind       string    `json:"kind"`
	CreatedAt  time.Time `json:"created_at"`
}

// Category and Subcategory are the request-form taxonomy.
type Category struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

type Subcategory struct {
	ID         uint   `json:"id"`
	CategoryID uint   `json:"category_id"`
	Name       string `json:"name"`
}

// CreateRequestInput is the request-form payload.
type CreateRequestInput struct {
	Name          string `json:"name"`
	Email         string `json:"email,omitempty"`
	CategoryID    uint   `json:"category_id"`
	SubcategoryID *uint  `json:"subcategory_id,omitempty"`
	Message       string `json:"message"`
}

// FeedbackInput is the post-session rating payload.
type FeedbackInput struct {
	SessionID      string `json:"session_id"`
	ParticipantID  string `json:"participant_id"`
	Rating         int    `json:"rating"`
	SupportQuality int    `json:"support_quality"`
	ResponseTime   int    `json:"response_time"`
	Comments       string `json:"comments,omitempty"`
	WouldRecommend bool   `json:"would_recommend"`
}

type messagesPage struct {
	Messages []ChatMessage `json:"messages"`
}

type apiError struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Client talks to the broker's REST surface. The zero HTTPClient falls back
// to a 15 s default; Token, when set, rides along as a bearer header on
// every call.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient returns a REST client for the given base URL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// CreateRequest submits the visitor's request form.
func (c *Client) CreateRequest(ctx context.Context, in CreateRequestInput) (*ChatRequest, error) {
	var out ChatRequest
	if err := c.do(ctx, http.MethodPost, "/chat/request", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelRequest withdraws a pending request. A cancel that lost the race
// against an accept comes back as a StateConflict with CodeCancelTooLate.
func (c *Client) CancelRequest(ctx context.Context, requestID, participantID string) error {
	payload := map[string]string{"request_id": requestID, "participant_id": participantID}
	return c.do(ctx, http.MethodPost, "/chat/request/cancel", payload, nil)
}

// AcceptRequest claims a pending request for this agent. Losing the race
// yields a StateConflict with CodeRequestTaken or CodeRequestExpired.
func (c *Client) AcceptRequest(ctx context.Context, requestID, agentName string) (*ChatSession, error) {
	payload := map[string]string{"agent_name": agentName}
	var out ChatSession
	if err := c.do(ctx, http.MethodPost, "/chat/requests/"+url.PathEscape(requestID)+"/accept", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RejectRequest declines a pending request.
func (c *Client) RejectRequest(ctx context.Context, requestID string) error {
	return c.do(ctx, http.MethodPost, "/chat/requests/"+url.PathEscape(requestID)+"/reject", nil, nil)
}

// PendingRequests lists requests still waiting for an agent.
func (c *Client) PendingRequests(ctx context.Context) ([]ChatRequest, error) {
	var out []ChatRequest
	if err := c.do(ctx, http.MethodGet, "/chat/requests", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RejectedRequests lists the rejected-request history.
func (c *Client) RejectedRequests(ctx context.Context) ([]ChatRequest, error) {
	var out []ChatRequest
	if err := c.do(ctx, http.MethodGet, "/chat/requests/rejected", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ActiveSessions lists this agent's live sessions.
func (c *Client) ActiveSessions(ctx context.Context) ([]ChatSession, error) {
	var out []ChatSession
	if err := c.do(ctx, http.MethodGet, "/chat/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AllSessions lists every session including ended ones.
func (c *Client) AllSessions(ctx context.Context) ([]ChatSession, error) {
	var out []ChatSession
	if err := c.do(ctx, http.MethodGet, "/chat/sessions/all", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TotalSessions returns the all-time session count.
func (c *Client) TotalSessions(ctx context.Context) (int64, error) {
	var out struct {
		Total int64 `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, "/chat/sessions/total", nil, &out); err != nil {
		return 0, err
	}
	return out.Total, nil
}

// EndSession closes a session on behalf of the given participant. The call
// is idempotent server-side, so repeating it is harmless.
func (c *Client) EndSession(ctx context.Context, sessionID, participantID string) error {
	payload := map[string]string{"participant_id": participantID}
	return c.do(ctx, http.MethodPost, "/chat/sessions/"+url.PathEscape(sessionID)+"/end", payload, nil)
}

// Messages fetches the authenticated message backlog for a session.
func (c *Client) Messages(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	var out messagesPage
	if err := c.do(ctx, http.MethodGet, "/chat/sessions/"+url.PathEscape(sessionID)+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// PublicMessages fetches the backlog as a session participant, without a
// bearer token.
func (c *Client) PublicMessages(ctx context.Context, sessionID, participantID string) ([]ChatMessage, error) {
	path := "/chat/sessions/" + url.PathEscape(sessionID) + "/messages/public?participant_id=" + url.QueryEscape(participantID)
	var out messagesPage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SubmitFeedback posts the visitor's post-session ratings.
func (c *Client) SubmitFeedback(ctx context.Context, in FeedbackInput) error {
	return c.do(ctx, http.MethodPost, "/chat/feedback", in, nil)
}

// Categories fetches the request-form taxonomy.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var out []Category
	if err := c.do(ctx, http.MethodGet, "/chat/categories", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Subcategories fetches the subcategories of one category.
func (c *Client) Subcategories(ctx context.Context, categoryID uint) ([]Subcategory, error) {
	var out []Subcategory
	path := fmt.Sprintf("/chat/subcategories/%d", categoryID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return &TransportError{Op: method + " " + path, Err: err}
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &TransportError{Op: method + " " + path, Err: err}
		}
		return nil
	}
	return c.mapError(method+" "+path, resp)
}

// mapError converts a non-2xx response into the client error taxonomy:
// 401 yields ErrAuthExpired, a 409 or a known conflict code yields a benign
// StateConflict, everything else is a retryable TransportError.
func (c *Client) mapError(op string, resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrAuthExpired
	}
	var ae apiError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &ae)
	switch ae.Code {
	case CodeRequestTaken, CodeRequestExpired, CodeCancelTooLate:
		return &StateConflict{Code: ae.Code, Message: ae.Message}
	}
	if resp.StatusCode == http.StatusConflict {
		return &StateConflict{Code: ae.Code, Message: ae.Message}
	}
	msg := ae.Message
	if msg == "" {
		msg = resp.Status
	}
	return &TransportError{Op: op, Err: fmt.Errorf("%s (%d)", msg, resp.StatusCode)}
}
