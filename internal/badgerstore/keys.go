package badgerstore

import (
	"fmt"
	"time"
)

// Key layout:
//
//	product/{id}                          -> Product JSON
//	room/{id}                             -> Room JSON
//	roompair/{product}/{buyer}            -> room id
//	msg/{room}/{unixnano:020d}/{id}       -> Message JSON
//
// Message keys sort by (created_at, id) inside a room prefix.

func productKey(id string) []byte { return []byte("product/" + id) }

func roomKey(id string) []byte { return []byte("room/" + id) }

var roomPrefix = []byte("room/")

func roomPairKey(productID, buyerID string) []byte {
	return []byte("roompair/" + productID + "/" + buyerID)
}

func messagePrefix(roomID string) []byte {
	return []byte("msg/" + roomID + "/")
}

func messageKey(roomID string, createdAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("msg/%s/%020d/%s", roomID, createdAt.UnixNano(), id))
}
