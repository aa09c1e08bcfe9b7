package http

import "github.com/cwrk-planet/chat-service/internal/domain"

type CreateRoomRequest struct {
	ProductID string `json:"productId" validate:"required,max=128"`
}

type CreateRoomResponse struct {
	RoomID  string `json:"roomId"`
	Created bool   `json:"created"`
}

type RoomResponse struct {
	Room             domain.Room `json:"room"`
	OtherParticipant string      `json:"otherParticipant"`
	ViewerRole       domain.Role `json:"viewerRole"`
}

type RoomsListResponse struct {
	Items []domain.RoomSummary `json:"items"`
}

type SendMessageRequest struct {
	RoomID     string      `json:"roomId" validate:"required,max=128"`
	Kind       domain.Kind `json:"kind" validate:"omitempty,oneof=TEXT IMAGE CONFIRM SYSTEM"`
	Content    *string     `json:"content" validate:"omitempty,max=16000"`
	Attachment *string     `json:"attachment" validate:"omitempty,max=2048"`
}

type ListMessagesQuery struct {
	RoomID string `validate:"required,max=128"`
	After  string `validate:"max=512"`
	Limit  int    `validate:"gte=0"`
}
