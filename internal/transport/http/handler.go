package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/service"
	httpmw "github.com/cwrk-planet/chat-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/chat-service/internal/transport/http/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type RoomService interface {
	GetOrCreate(ctx context.Context, productID, buyerID string) (domain.Room, bool, error)
	Resolve(ctx context.Context, roomID, requesterID string) (domain.Room, domain.Role, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]domain.RoomSummary, error)
}

type ChatService interface {
	Send(ctx context.Context, in service.SendInput) (domain.Message, error)
	History(ctx context.Context, roomID, requesterID, cursor string, limit int) (service.Page, error)
}

type Handler struct {
	rooms    RoomService
	chat     ChatService
	validate *validator.Validate
}

func NewHandler(rooms RoomService, chat ChatService) *Handler {
	return &Handler{
		rooms:    rooms,
		chat:     chat,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// POST /rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	user, _ := httpmw.UserFromCtx(r.Context())

	var req CreateRoomRequest
	if !h.decode(w, r, &req) {
		return
	}

	room, created, err := h.rooms.GetOrCreate(r.Context(), req.ProductID, user.ID)
	if err != nil {
		httputil.FromError(r.Context(), w, err)
		return
	}

	resp := CreateRoomResponse{RoomID: room.ID, Created: created}
	if created {
		httputil.Created(w, resp)
		return
	}
	httputil.OK(w, resp)
}

// GET /rooms?limit=
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	user, _ := httpmw.UserFromCtx(r.Context())

	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	items, err := h.rooms.ListForUser(r.Context(), user.ID, limit)
	if err != nil {
		httputil.FromError(r.Context(), w, err)
		return
	}
	if items == nil {
		items = []domain.RoomSummary{}
	}
	httputil.OK(w, RoomsListResponse{Items: items})
}

// GET /rooms/{roomId}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	user, _ := httpmw.UserFromCtx(r.Context())

	room, role, err := h.rooms.Resolve(r.Context(), chi.URLParam(r, "roomId"), user.ID)
	if err != nil {
		httputil.FromError(r.Context(), w, err)
		return
	}
	httputil.OK(w, RoomResponse{
		Room:             room,
		OtherParticipant: room.ParticipantOf(role.Other()),
		ViewerRole:       role,
	})
}

// GET /messages?roomId=&after=&limit=
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user, _ := httpmw.UserFromCtx(r.Context())

	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	q := ListMessagesQuery{
		RoomID: strings.TrimSpace(r.URL.Query().Get("roomId")),
		After:  r.URL.Query().Get("after"),
		Limit:  limit,
	}
	if err := h.validate.Struct(q); err != nil {
		h.invalid(w, r, err)
		return
	}

	page, err := h.chat.History(r.Context(), q.RoomID, user.ID, q.After, q.Limit)
	if err != nil {
		httputil.FromError(r.Context(), w, err)
		return
	}
	httputil.OK(w, page)
}

// POST /messages
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := httpmw.UserFromCtx(r.Context())

	var req SendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	msg, err := h.chat.Send(r.Context(), service.SendInput{
		RoomID:      req.RoomID,
		RequesterID: user.ID,
		Kind:        req.Kind,
		Content:     req.Content,
		Attachment:  req.Attachment,
	})
	if err != nil {
		httputil.FromError(r.Context(), w, err)
		return
	}
	httputil.Created(w, msg)
}

// --- helpers ---

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "validation", "invalid JSON", nil)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.invalid(w, r, err)
		return false
	}
	return true
}

func (h *Handler) invalid(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "validation", err.Error(), nil)
		return
	}
	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	httputil.Error(r.Context(), w, http.StatusBadRequest, "validation", "invalid request", map[string]any{"fields": fields})
}

func (h *Handler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "validation", "limit must be a non-negative integer", nil)
		return 0, false
	}
	return n, true
}
