package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ricky-ultimate/convo-backend/internal/service"
)

// RoomHandler 暴露房间管理接口。
type RoomHandler struct {
	rooms *service.RoomService
}

func NewRoomHandler(rooms *service.RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

type createRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

func roomIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room id"})
		return 0, false
	}
	return uint(id), true
}

// Create POST /api/rooms
func (h *RoomHandler) Create(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room name required"})
		return
	}

	room, err := h.rooms.CreateRoom(c.Request.Context(), req.Name, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room": room})
}

// List GET /api/rooms — 当前用户已加入的房间
func (h *RoomHandler) List(c *gin.Context) {
	rooms, err := h.rooms.ListRoomsForUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// Get GET /api/rooms/:id
func (h *RoomHandler) Get(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	room, err := h.rooms.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

// Lookup GET /api/rooms/lookup?name=general
func (h *RoomHandler) Lookup(c *gin.Context) {
	room, err := h.rooms.GetRoomByName(c.Request.Context(), c.Query("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

// Delete DELETE /api/rooms/:id — 仅创建者
func (h *RoomHandler) Delete(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	if err := h.rooms.DeleteRoom(c.Request.Context(), roomID, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Room deleted"})
}

// Join POST /api/rooms/:id/join
func (h *RoomHandler) Join(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	room, err := h.rooms.Join(c.Request.Context(), roomID, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

// Leave POST /api/rooms/:id/leave
func (h *RoomHandler) Leave(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	if err := h.rooms.Leave(c.Request.Context(), roomID, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Left room"})
}

// Members GET /api/rooms/:id/members
func (h *RoomHandler) Members(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	members, err := h.rooms.ListMembers(c.Request.Context(), roomID, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}
