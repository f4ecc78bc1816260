// Operator notification HTTP handlers.
//
// These sit behind agent auth; live updates flow over the SSE stream, these
// endpoints serve the backlog and the mutations.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/venturing/go-livechat-backend/internal/services"
	"github.com/venturing/go-livechat-backend/internal/utils"
)

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List recent notifications
// @Tags        Notifications
// @Produce     json
// @Param       limit  query  int  false  "Maximum entries"  default(50)
// @Success     200  {array}   domain.Notification
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 0)
	items, err := h.notifSvc.List(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}

// CountUnreadNotifications godoc
// @ID          countUnreadNotifications
// @Summary     Unread badge count
// @Tags        Notifications
// @Produce     json
// @Success     200  {object}  map[string]int64
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /notifications/unread-count [get]
func (h *Handlers) CountUnreadNotifications(c *gin.Context) {
	count, err := h.notifSvc.UnreadCount(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"unread": count})
}

// MarkNotificationRead godoc
// @ID          markNotificationRead
// @Summary     Mark one notification read
// @Tags        Notifications
// @Produce     json
// @Param       id  path  string  true  "Notification ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown notification"
// @Router      /notifications/{id}/read [post]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	err := h.notifSvc.MarkRead(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrNotificationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "notification not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// DeleteNotification godoc
// @ID          deleteNotification
// @Summary     Delete one notification
// @Tags        Notifications
// @Produce     json
// @Param       id  path  string  true  "Notification ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown notification"
// @Router      /notifications/{id} [delete]
func (h *Handlers) DeleteNotification(c *gin.Context) {
	err := h.notifSvc.Delete(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrNotificationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "notification not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// ClearNotifications godoc
// @ID          clearNotifications
// @Summary     Delete every notification
// @Tags        Notifications
// @Produce     json
// @Success     204  {string}  string  "No Content"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /notifications [delete]
func (h *Handlers) ClearNotifications(c *gin.Context) {
	if err := h.notifSvc.Clear(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}
