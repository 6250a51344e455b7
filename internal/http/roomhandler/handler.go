package roomhandler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"proconnect/internal/access"
	"proconnect/internal/services/room"

	"github.com/gin-gonic/gin"
)

// Stats reports the live connection and room count of this node.
type Stats interface {
	Stats() (connections, rooms int)
}

// Resolver turns the request credential into an identity; nil is anonymous.
type Resolver interface {
	Resolve(req *http.Request) (*access.Identity, error)
}

// Authorizer is the same access decision point the relay uses.
type Authorizer interface {
	Authorize(ctx context.Context, req access.Request) access.Decision
}

// PasscodeHeader carries a private community's passcode on history reads.
const PasscodeHeader = "X-Room-Passcode"

type Handler struct {
	svc      room.IRoomService
	stats    Stats
	resolver Resolver
	gate     Authorizer
}

func New(svc room.IRoomService, stats Stats, resolver Resolver, gate Authorizer) *Handler {
	return &Handler{svc: svc, stats: stats, resolver: resolver, gate: gate}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/healthz", h.health)
	r.GET("/rooms/:id", h.info)
	r.GET("/rooms/:id/messages", h.messages)
}

// @Summary		Health
// @Description	Liveness plus the node's connection and room counts.
// @Tags			Ops
// @Success		200	{object}	HealthResponse
// @Router			/healthz [get]
func (h *Handler) health(c *gin.Context) {
	conns, rooms := h.stats.Stats()
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Connections: conns, Rooms: rooms})
}

// @Summary		Get room details
// @Description	Returns the room's kind, visibility, live member count and message count.
// @Tags			Rooms
// @Param			id	path		string	true	"Room ID"	default(general)
// @Success		200	{object}	room.RoomDTO
// @Failure		404	{object}	ErrorResponse
// @Failure		500	{object}	ErrorResponse
// @Router			/rooms/{id} [get]
func (h *Handler) info(c *gin.Context) {
	dto, err := h.svc.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, access.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto)
}

// @Summary		List room messages
// @Description	Retrieves persisted chat history of a room, newest first. The caller must pass the same checks as joining the room.
// @Tags			Rooms
// @Param			id				path		string	true	"Room ID"				default(general)
// @Param			Authorization	header		string	false	"Bearer token"
// @Param			X-Room-Passcode	header		string	false	"Passcode of a private community"
// @Param			segment_id		query		string	false	"Free preview lesson of a course"
// @Param			limit			query		int		false	"Max results (0‑200)"	minimum(0)	maximum(200)	default(50)
// @Param			offset			query		int		false	"Offset for pagination"	minimum(0)	default(0)
// @Success		200				{array}		room.MessageDTO
// @Failure		400				{object}	ErrorResponse
// @Failure		401				{object}	ErrorResponse
// @Failure		403				{object}	ErrorResponse
// @Failure		404				{object}	ErrorResponse
// @Failure		500				{object}	ErrorResponse
// @Failure		503				{object}	ErrorResponse
// @Router			/rooms/{id}/messages [get]
func (h *Handler) messages(c *gin.Context) {
	var q ListMessagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	roomID := c.Param("id")

	id, err := h.resolver.Resolve(c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
		return
	}
	var passcode *string
	if p := c.GetHeader(PasscodeHeader); p != "" {
		passcode = &p
	}
	d := h.gate.Authorize(c.Request.Context(), access.Request{
		Identity:  id,
		RoomID:    roomID,
		Intent:    access.IntentJoin,
		Passcode:  passcode,
		SegmentID: strings.TrimSpace(q.SegmentID),
	})
	if !d.Permit {
		c.JSON(deniedStatus(d.Reason), ErrorResponse{Error: "access_denied", Reason: string(d.Reason)})
		return
	}

	out, err := h.svc.ListMessages(c.Request.Context(), roomID, q.Limit, q.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

func deniedStatus(r access.Reason) int {
	switch r {
	case access.ReasonAuthenticationRequired:
		return http.StatusUnauthorized
	case access.ReasonRoomNotFound:
		return http.StatusNotFound
	case access.ReasonAccessCheckFailed:
		return http.StatusServiceUnavailable
	}
	return http.StatusForbidden
}
