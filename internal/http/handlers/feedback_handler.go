// Post-chat feedback HTTP handler.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/venturing/go-livechat-backend/internal/services"
)

// LeaveFeedbackPayload carries the visitor's post-chat ratings. All three
// ratings are mandatory 1..5 values.
type LeaveFeedbackPayload struct {
	SessionID     string `json:"session_id" binding:"required"`
	ParticipantID string `json:"participant_id" binding:"required"`
	// Rating is the overall chat experience (1-5).
	Rating int `json:"rating" binding:"required" example:"5"`
	// SupportQuality rates the agent (1-5).
	SupportQuality int `json:"support_quality" binding:"required" example:"4"`
	// ResponseTime rates how quickly help arrived (1-5).
	ResponseTime   int    `json:"response_time" binding:"required" example:"5"`
	Comments       string `json:"comments" example:"Quick and helpful"`
	WouldRecommend bool   `json:"would_recommend" example:"true"`
}

// LeaveFeedback godoc
// @ID          leaveFeedback
// @Summary     Submit post-chat feedback
// @Description Records the visitor's ratings for an ended session. One submission per session; repeats return 409.
// @Tags        Feedback
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.LeaveFeedbackPayload  true  "Feedback payload"
// @Success     201  {string}  string  "Created"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid ratings or session still live"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown session"
// @Failure     409  {object}  handlers.ErrorResponse  "Feedback already recorded"
// @Router      /chat/feedback [post]
func (h *Handlers) LeaveFeedback(c *gin.Context) {
	var req LeaveFeedbackPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	err := h.fbSvc.Leave(c.Request.Context(), services.LeaveFeedbackInput{
		SessionID:      req.SessionID,
		VisitorID:      req.ParticipantID,
		Overall:        req.Rating,
		SupportQuality: req.SupportQuality,
		ResponseTime:   req.ResponseTime,
		Comments:       req.Comments,
		WouldRecommend: req.WouldRecommend,
	})
	switch {
	case err == nil:
		c.Status(http.StatusCreated)
	case errors.Is(err, services.ErrInvalidRating):
		fail(c, http.StatusBadRequest, ErrCodeValidation, "ratings must be between 1 and 5")
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
	case errors.Is(err, services.ErrSessionNotEnded):
		fail(c, http.StatusBadRequest, ErrCodeValidation, "session is still live")
	case errors.Is(err, services.ErrDuplicateFeedback):
		fail(c, http.StatusConflict, ErrCodeConflict, "feedback already recorded for this session")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
