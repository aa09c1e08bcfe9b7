package postgres

const (
	qGetProduct = `
		SELECT id, seller_id, name
		FROM products
		WHERE id = $1`

	qUpsertProduct = `
		INSERT INTO products (id, seller_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET seller_id = EXCLUDED.seller_id, name = EXCLUDED.name`

	roomColumns = `id, product_id, buyer_id, seller_id, created_at, last_activity_at`

	qGetRoom = `
		SELECT ` + roomColumns + `
		FROM chat_rooms
		WHERE id = $1`

	qFindRoom = `
		SELECT ` + roomColumns + `
		FROM chat_rooms
		WHERE product_id = $1 AND buyer_id = $2`

	qInsertRoom = `
		INSERT INTO chat_rooms (id, product_id, buyer_id, seller_id, created_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $5)`

	qListRoomsFor = `
		SELECT ` + roomColumns + `
		FROM chat_rooms
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY last_activity_at DESC, id DESC
		LIMIT $2`

	messageColumns = `id, room_id, author_id, kind, content, attachment_url, created_at`

	qInsertMessage = `
		INSERT INTO chat_messages (` + messageColumns + `)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`

	qLockRoom = `
		SELECT id FROM chat_rooms WHERE id = $1 FOR UPDATE`

	qTouchRoom = `
		UPDATE chat_rooms
		SET last_activity_at = GREATEST(last_activity_at, $2)
		WHERE id = $1`

	qListSince = `
		SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE room_id = $1
		  AND (
		    $2::timestamptz IS NULL
		    OR created_at > $2
		    OR (created_at = $2 AND id > $3)
		  )
		ORDER BY created_at ASC, id ASC
		LIMIT $4`

	qLastMessage = `
		SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE room_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
)
