package chatclient

// RoomView is a room from one participant's side.
type RoomView struct {
	Room       Room
	SelfID     string
	OtherID    string
	ViewerRole Role
}

func NewRoomView(room Room, viewerID string) (RoomView, bool) {
	v := RoomView{Room: room, SelfID: viewerID}
	switch viewerID {
	case room.BuyerID:
		v.ViewerRole, v.OtherID = RoleBuyer, room.SellerID
	case room.SellerID:
		v.ViewerRole, v.OtherID = RoleSeller, room.BuyerID
	default:
		return RoomView{}, false
	}
	return v, true
}

func (v RoomView) IsSeller() bool { return v.ViewerRole == RoleSeller }

// CanConfirm reports whether the viewer may send a CONFIRM message.
func (v RoomView) CanConfirm() bool { return v.IsSeller() }

func (v RoomView) IsOwn(m Message) bool { return m.AuthorID == v.SelfID }

func roomViewFromInfo(info RoomInfo) RoomView {
	self := info.Room.BuyerID
	if info.ViewerRole == RoleSeller {
		self = info.Room.SellerID
	}
	return RoomView{
		Room:       info.Room,
		SelfID:     self,
		OtherID:    info.OtherParticipant,
		ViewerRole: info.ViewerRole,
	}
}
