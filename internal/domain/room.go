package domain

import "time"

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

type Room struct {
	ID             string    `db:"id" json:"id"`
	ProductID      string    `db:"product_id" json:"productId"`
	BuyerID        string    `db:"buyer_id" json:"buyerId"`
	SellerID       string    `db:"seller_id" json:"sellerId"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	LastActivityAt time.Time `db:"last_activity_at" json:"lastActivityAt"`
}

// RoleOf reports the role userID plays in the room.
func (r Room) RoleOf(userID string) (Role, bool) {
	switch {
	case userID == "":
		return "", false
	case userID == r.BuyerID:
		return RoleBuyer, true
	case userID == r.SellerID:
		return RoleSeller, true
	}
	return "", false
}

// ParticipantOf returns the id of the participant holding role.
func (r Room) ParticipantOf(role Role) string {
	if role == RoleSeller {
		return r.SellerID
	}
	return r.BuyerID
}

func (r Role) Other() Role {
	if r == RoleSeller {
		return RoleBuyer
	}
	return RoleSeller
}

// RoomSummary is a room as listed for one viewer.
type RoomSummary struct {
	Room        Room     `json:"room"`
	ViewerRole  Role     `json:"viewerRole"`
	LastMessage *Message `json:"lastMessage,omitempty"`
}

type Product struct {
	ID       string `db:"id" json:"id"`
	SellerID string `db:"seller_id" json:"sellerId"`
	Name     string `db:"name" json:"name"`
}

// User is the caller identity taken from a verified access token.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}
