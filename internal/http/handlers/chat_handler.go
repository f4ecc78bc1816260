// Chat request HTTP handlers.
//
// This file exposes the request-lifecycle endpoints:
//   - POST /chat/request               (visitor submits the form)
//   - POST /chat/request/cancel        (visitor withdraws)
//   - POST /chat/requests/{id}/accept  (agent takes the request)
//   - POST /chat/requests/{id}/reject  (agent declines)
//   - GET  /chat/requests              (pending queue)
//   - GET  /chat/requests/rejected     (rejected history)
//   - GET  /chat/categories
//   - GET  /chat/subcategories/{category_id}
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/venturing/go-livechat-backend/internal/domain"
	"github.com/venturing/go-livechat-backend/internal/http/middleware"
	"github.com/venturing/go-livechat-backend/internal/services"
	"github.com/venturing/go-livechat-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// RequestService defines the chat-request lifecycle operations consumed by
// HTTP handlers. Implementations must be safe for concurrent use and honor
// the provided context.
type RequestService interface {
	// Create validates and persists a pending request.
	Create(ctx context.Context, in services.CreateRequestInput) (*domain.ChatRequest, error)
	// Accept resolves the request in favor of agentID; exactly one wins.
	Accept(ctx context.Context, requestID, agentID, agentName string) (*domain.ChatSession, error)
	// Reject resolves the request against the visitor.
	Reject(ctx context.Context, requestID, agentID string) error
	// Cancel withdraws the visitor's own pending request.
	Cancel(ctx context.Context, requestID, visitorID string) error
	// ListPending returns the live queue.
	ListPending(ctx context.Context) ([]domain.ChatRequest, error)
	// ListRejected returns the rejected-request history.
	ListRejected(ctx context.Context) ([]domain.ChatRequest, error)
	// Categories returns the active request-form taxonomy.
	Categories(ctx context.Context) ([]domain.ChatCategory, error)
	// Subcategories returns the subcategories of one category.
	Subcategories(ctx context.Context, categoryID uint) ([]domain.ChatSubcategory, error)
}

// SessionService defines the session operations consumed by HTTP handlers.
type SessionService interface {
	// Get returns one session by id.
	Get(ctx context.Context, id string) (*domain.ChatSession, error)
	// End closes the session; repeats are no-ops.
	End(ctx context.Context, sessionID, endedBy string) error
	// Messages returns the backlog for a participant of the session.
	Messages(ctx context.Context, sessionID, participantID string) ([]domain.ChatMessage, error)
	// MessagesPage returns one page of the backlog plus the total count.
	MessagesPage(ctx context.Context, sessionID string, page, pageSize int) ([]domain.ChatMessage, int64, error)
	// ListActive returns the agent's live sessions.
	ListActive(ctx context.Context, agentID string) ([]domain.ChatSession, error)
	// ListAll returns every session (reporting view).
	ListAll(ctx context.Context) ([]domain.ChatSession, error)
	// CountTotal returns the all-time session count.
	CountTotal(ctx context.Context) (int64, error)
}

// FeedbackService defines the post-chat feedback operation.
type FeedbackService interface {
	// Leave records the visitor's ratings for an ended session.
	Leave(ctx context.Context, in services.LeaveFeedbackInput) error
}

// NotificationService defines the operator notification operations.
type NotificationService interface {
	List(ctx context.Context, limit int) ([]domain.Notification, error)
	UnreadCount(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

//
// Handler wiring
//

// Handlers groups the REST endpoints of the broker. It depends on service
// interfaces so transport stays separate from business logic.
type Handlers struct {
	reqSvc   RequestService
	sessSvc  SessionService
	fbSvc    FeedbackService
	notifSvc NotificationService
}

// New constructs a Handlers instance bound to the given services.
func New(reqSvc RequestService, sessSvc SessionService, fbSvc FeedbackService, notifSvc NotificationService) *Handlers {
	return &Handlers{reqSvc: reqSvc, sessSvc: sessSvc, fbSvc: fbSvc, notifSvc: notifSvc}
}

// userID extracts the authenticated agent id set by the auth middleware,
// falling back to the X-User-ID header (tests use it).
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return ""
}

//
// DTOs
//

// CreateChatRequestPayload is the visitor request form.
type CreateChatRequestPayload struct {
	// Name is the visitor's display name.
	Name string `json:"name" binding:"required" example:"Alice Doe"`
	// Email is optional contact info.
	Email string `json:"email" example:"alice@example.com"`
	// CategoryID selects the taxonomy entry.
	CategoryID uint `json:"category_id" binding:"required" example:"1"`
	// SubcategoryID is required when the category has subcategories.
	SubcategoryID *uint `json:"subcategory_id,omitempty" example:"3"`
	// Message describes the problem (minimum length enforced server-side).
	Message string `json:"message" binding:"required" example:"I cannot access my billing dashboard since yesterday"`
}

// CancelChatRequestPayload withdraws a pending request.
type CancelChatRequestPayload struct {
	RequestID     string `json:"request_id" binding:"required"`
	ParticipantID string `json:"participant_id" binding:"required"`
}

// AcceptChatRequestPayload optionally carries the agent display name shown
// to the visitor.
type AcceptChatRequestPayload struct {
	AgentName string `json:"agent_name" example:"Dana"`
}

//
// Handlers
//

// CreateChatRequest godoc
// @ID          createChatRequest
// @Summary     Submit a live chat request
// @Description Validates the form, assigns a participant id, and queues the request for agents. The wait deadline is returned as expires_at.
// @Tags        ChatRequests
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CreateChatRequestPayload  true  "Request form"
// @Success     201  {object}  domain.ChatRequest
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/request [post]
func (h *Handlers) CreateChatRequest(c *gin.Context) {
	var req CreateChatRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	out, err := h.reqSvc.Create(c.Request.Context(), services.CreateRequestInput{
		VisitorName:   req.Name,
		VisitorEmail:  req.Email,
		CategoryID:    req.CategoryID,
		SubcategoryID: req.SubcategoryID,
		Message:       req.Message,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNameRequired),
			errors.Is(err, services.ErrMessageTooShort),
			errors.Is(err, services.ErrSubcategoryRequired),
			errors.Is(err, services.ErrSubcategoryInvalid):
			fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
		case errors.Is(err, services.ErrCategoryNotFound):
			fail(c, http.StatusBadRequest, ErrCodeValidation, "unknown category")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, out)
}

// CancelChatRequest godoc
// @ID          cancelChatRequest
// @Summary     Withdraw a pending chat request
// @Description Cancels the caller's own pending request. Once an agent has already resolved it the cancel is too late and a 409 with code cancel_too_late is returned; clients treat that as benign.
// @Tags        ChatRequests
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CancelChatRequestPayload  true  "Cancel payload"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown request"
// @Failure     409  {object}  handlers.ErrorResponse  "Already resolved"
// @Router      /chat/request/cancel [post]
func (h *Handlers) CancelChatRequest(c *gin.Context) {
	var req CancelChatRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	err := h.reqSvc.Cancel(c.Request.Context(), req.RequestID, req.ParticipantID)
	switch {
	case err == nil:
		middleware.CountOutcome(domain.RequestCanceled)
		noContent(c)
	case errors.Is(err, services.ErrRequestNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "chat request not found")
	case errors.Is(err, services.ErrCancelTooLate):
		fail(c, http.StatusConflict, ErrCodeCancelTooLate, "request already resolved")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// AcceptChatRequest godoc
// @ID          acceptChatRequest
// @Summary     Accept a pending chat request
// @Description Resolves the request in favor of the calling agent and returns the new session. Exactly one agent can win; the others get a 409 with code request_taken.
// @Tags        ChatRequests
// @Accept      json
// @Produce     json
// @Param       id    path  string  true   "Request ID"
// @Param       body  body  handlers.AcceptChatRequestPayload  false  "Accept payload"
// @Success     201  {object}  domain.ChatSession
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown request"
// @Failure     409  {object}  handlers.ErrorResponse  "Taken or expired"
// @Router      /chat/requests/{id}/accept [post]
func (h *Handlers) AcceptChatRequest(c *gin.Context) {
	var req AcceptChatRequestPayload
	_ = c.ShouldBindJSON(&req) // body is optional

	agentID := userID(c)
	if agentID == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "agent identity required")
		return
	}

	sess, err := h.reqSvc.Accept(c.Request.Context(), c.Param("id"), agentID, req.AgentName)
	switch {
	case err == nil:
		middleware.CountOutcome(domain.RequestAccepted)
		ok(c, http.StatusCreated, sess)
	case errors.Is(err, services.ErrRequestNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "chat request not found")
	case errors.Is(err, services.ErrRequestTaken):
		fail(c, http.StatusConflict, ErrCodeRequestTaken, "request already handled by another agent")
	case errors.Is(err, services.ErrRequestExpired):
		fail(c, http.StatusConflict, ErrCodeRequestExpired, "request wait time has elapsed")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// RejectChatRequest godoc
// @ID          rejectChatRequest
// @Summary     Reject a pending chat request
// @Description Resolves the request against the visitor, who is told to raise a ticket or try again later.
// @Tags        ChatRequests
// @Produce     json
// @Param       id  path  string  true  "Request ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown request"
// @Failure     409  {object}  handlers.ErrorResponse  "Already resolved"
// @Router      /chat/requests/{id}/reject [post]
func (h *Handlers) RejectChatRequest(c *gin.Context) {
	agentID := userID(c)
	if agentID == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "agent identity required")
		return
	}

	err := h.reqSvc.Reject(c.Request.Context(), c.Param("id"), agentID)
	switch {
	case err == nil:
		middleware.CountOutcome(domain.RequestRejected)
		noContent(c)
	case errors.Is(err, services.ErrRequestNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "chat request not found")
	case errors.Is(err, services.ErrRequestTaken):
		fail(c, http.StatusConflict, ErrCodeRequestTaken, "request already handled by another agent")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// ListChatRequests godoc
// @ID          listChatRequests
// @Summary     List pending chat requests
// @Description Returns the live queue the console reconciles against every poll. Expired entries are excluded.
// @Tags        ChatRequests
// @Produce     json
// @Success     200  {array}   domain.ChatRequest
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/requests [get]
func (h *Handlers) ListChatRequests(c *gin.Context) {
	items, err := h.reqSvc.ListPending(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}

// ListRejectedChatRequests godoc
// @ID          listRejectedChatRequests
// @Summary     List rejected chat requests
// @Tags        ChatRequests
// @Produce     json
// @Success     200  {array}   domain.ChatRequest
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/requests/rejected [get]
func (h *Handlers) ListRejectedChatRequests(c *gin.Context) {
	items, err := h.reqSvc.ListRejected(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}

// ListChatCategories godoc
// @ID          listChatCategories
// @Summary     List active chat categories
// @Tags        Taxonomy
// @Produce     json
// @Success     200  {array}   domain.ChatCategory
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/categories [get]
func (h *Handlers) ListChatCategories(c *gin.Context) {
	items, err := h.reqSvc.Categories(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}

// ListChatSubcategories godoc
// @ID          listChatSubcategories
// @Summary     List subcategories of a category
// @Tags        Taxonomy
// @Produce     json
// @Param       category_id  path  int  true  "Category ID"
// @Success     200  {array}   domain.ChatSubcategory
// @Failure     400  {object}  handlers.ErrorResponse  "Bad category id"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/subcategories/{category_id} [get]
func (h *Handlers) ListChatSubcategories(c *gin.Context) {
	id := utils.AtoiDefault(c.Param("category_id"), 0)
	if id <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid category id")
		return
	}
	items, err := h.reqSvc.Subcategories(c.Request.Context(), uint(id))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}
