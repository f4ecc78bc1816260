// Chat session HTTP handlers.
//
// This file exposes the session endpoints:
//   - GET  /chat/sessions                        (agent's live sessions)
//   - GET  /chat/sessions/all                    (reporting view)
//   - GET  /chat/sessions/total                  (all-time count)
//   - POST /chat/sessions/{id}/end               (either party ends)
//   - GET  /chat/sessions/{id}/messages          (agent backlog, paginated)
//   - GET  /chat/sessions/{id}/messages/public   (visitor backlog)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/venturing/go-livechat-backend/internal/domain"
	"github.com/venturing/go-livechat-backend/internal/services"
	"github.com/venturing/go-livechat-backend/internal/utils"
)

// EndSessionPayload identifies which party is ending the session. Agents are
// identified by their auth token; visitors pass the participant id assigned
// at request time.
type EndSessionPayload struct {
	ParticipantID string `json:"participant_id" example:"v-7f3a2c1e"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListMessagesResponse wraps a backlog page and pagination information.
type ListMessagesResponse struct {
	Messages   []domain.ChatMessage `json:"messages"`
	Pagination Pagination           `json:"pagination"`
}

// PublicMessagesResponse wraps the unpaginated visitor backlog in the same
// envelope key as the agent endpoint.
type PublicMessagesResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
}

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 50
		maxPageSize     = 200
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// ListActiveSessions godoc
// @ID          listActiveSessions
// @Summary     List the calling agent's live sessions
// @Tags        Sessions
// @Produce     json
// @Success     200  {array}   domain.ChatSession
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/sessions [get]
func (h *Handlers) ListActiveSessions(c *gin.Context) {
	agentID := userID(c)
	if agentID == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "agent identity required")
		return
	}
	items, err := h.sessSvc.ListActive(c.Request.Context(), agentID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}

// ListAllSessions godoc
// @ID          listAllSessions
// @Summary     List every chat session
// @Tags        Sessions
// @Produce     json
// @Success     200  {array}   domain.ChatSession
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/sessions/all [get]
func (h *Handlers) ListAllSessions(c *gin.Context) {
	items, err := h.sessSvc.ListAll(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}

// CountSessions godoc
// @ID          countSessions
// @Summary     All-time session count
// @Tags        Sessions
// @Produce     json
// @Success     200  {object}  map[string]int64
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/sessions/total [get]
func (h *Handlers) CountSessions(c *gin.Context) {
	total, err := h.sessSvc.CountTotal(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"total": total})
}

// EndSession godoc
// @ID          endSession
// @Summary     End a chat session
// @Description Closes the session. Repeated calls converge on the same terminal state and return success, so either party ending first never surfaces an error to the other.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       id    path  string  true   "Session ID"
// @Param       body  body  handlers.EndSessionPayload  false  "Ending party"
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown session"
// @Router      /chat/sessions/{id}/end [post]
func (h *Handlers) EndSession(c *gin.Context) {
	var req EndSessionPayload
	_ = c.ShouldBindJSON(&req) // body is optional for agents

	ctx := c.Request.Context()
	sess, err := h.sessSvc.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	endedBy := domain.RoleAgent
	switch {
	case req.ParticipantID != "" && req.ParticipantID == sess.VisitorID:
		endedBy = domain.RoleVisitor
	case userID(c) != "":
		// Agent identity from auth.
	default:
		fail(c, http.StatusForbidden, ErrCodeForbidden, "not a session participant")
		return
	}

	if err := h.sessSvc.End(ctx, sess.ID, endedBy); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// ListSessionMessages godoc
// @ID          listSessionMessages
// @Summary     Session backlog (agent view, paginated)
// @Tags        Sessions
// @Produce     json
// @Param       id         path   string  true   "Session ID"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(200) default(50)
// @Success     200  {object}  handlers.ListMessagesResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/sessions/{id}/messages [get]
func (h *Handlers) ListSessionMessages(c *gin.Context) {
	if userID(c) == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "agent identity required")
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.sessSvc.MessagesPage(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// ListSessionMessagesPublic godoc
// @ID          listSessionMessagesPublic
// @Summary     Session backlog (visitor view)
// @Description Returns the full backlog to a session participant identified by participant_id. Non-participants get the same 404 as a missing session.
// @Tags        Sessions
// @Produce     json
// @Param       id              path   string  true  "Session ID"
// @Param       participant_id  query  string  true  "Participant ID"
// @Success     200  {object}  handlers.PublicMessagesResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown session"
// @Router      /chat/sessions/{id}/messages/public [get]
func (h *Handlers) ListSessionMessagesPublic(c *gin.Context) {
	participantID := c.Query("participant_id")
	if participantID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "participant_id is required")
		return
	}
	items, err := h.sessSvc.Messages(c.Request.Context(), c.Param("id"), participantID)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, PublicMessagesResponse{Messages: items})
}
