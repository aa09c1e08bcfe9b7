// Package chatclient is the client side of a buyer/seller room: an HTTP API
// client, a reconnecting realtime channel and a reconciler that merges
// history, live notifications, polls and the user's own sends into one
// ordered, duplicate-free conversation.
package chatclient

import "time"

type Kind string

const (
	KindText    Kind = "TEXT"
	KindImage   Kind = "IMAGE"
	KindSystem  Kind = "SYSTEM"
	KindConfirm Kind = "CONFIRM"
)

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"roomId"`
	AuthorID   string    `json:"authorId,omitempty"`
	Kind       Kind      `json:"kind"`
	Content    *string   `json:"content"`
	Attachment *string   `json:"attachment"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Room struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"productId"`
	BuyerID        string    `json:"buyerId"`
	SellerID       string    `json:"sellerId"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

type RoomSummary struct {
	Room        Room     `json:"room"`
	ViewerRole  Role     `json:"viewerRole"`
	LastMessage *Message `json:"lastMessage,omitempty"`
}

// RoomInfo is GET /rooms/{roomId}.
type RoomInfo struct {
	Room             Room   `json:"room"`
	OtherParticipant string `json:"otherParticipant"`
	ViewerRole       Role   `json:"viewerRole"`
}

type Page struct {
	Items      []Message `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// Draft is what the user composed; it survives a failed send for retry.
type Draft struct {
	Kind       Kind    `json:"kind"`
	Content    *string `json:"content,omitempty"`
	Attachment *string `json:"attachment,omitempty"`
}

func Text(s string) Draft { return Draft{Kind: KindText, Content: &s} }
