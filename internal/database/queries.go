package database

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	// rateLimitMax is the maximum number of messages a user may send to a
	// single room within rateLimitWindow.
	rateLimitMax    = 10
	rateLimitWindow = 60 * time.Second

	// tombstoneContent overwrites the content of deleted messages.
	tombstoneContent = "[deleted]"
)

const messageColumns = "m.id, m.room_id, m.user_id, a.username, m.content, m.type, " +
	"m.attachment_url, m.attachment_name, m.attachment_type, m.created_at, m.edited_at, m.deleted_at"

func (db *PgChatLinkRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, is_guest, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, username, email, is_guest, created_at, updated_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		params.IsGuest,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.IsGuest,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgChatLinkRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE accounts SET username = $2, password_hash = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING id, username, email, avatar_url, status, created_at, updated_at",
		params.UserId,
		params.Username,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.AvatarUrl,
		&u.Status,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgChatLinkRepository) UpdateProfile(params UpdateProfileParams) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE accounts SET username = $2, avatar_url = $3, status = $4, updated_at = $5 "+
			"WHERE id = $1 RETURNING id, username, email, avatar_url, status, created_at, updated_at",
		params.UserId,
		params.Username,
		params.AvatarUrl,
		params.Status,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.AvatarUrl,
		&u.Status,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgChatLinkRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, avatar_url, status, is_guest, created_at, updated_at "+
			"FROM accounts WHERE id = $1 LIMIT 1",
		accountId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.AvatarUrl,
		&user.Status,
		&user.IsGuest,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgChatLinkRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, avatar_url, status, created_at, updated_at "+
			"FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.AvatarUrl,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgChatLinkRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO rooms (external_id, name, topic, category, is_private, password_hash, invite_code, owner_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) "+
			"RETURNING id, external_id, name, topic, category, is_private, invite_code, owner_id, created_at, updated_at",
		params.ExternalId,
		params.Name,
		params.Topic,
		params.Category,
		params.IsPrivate,
		params.PasswordHash,
		params.InviteCode,
		params.OwnerId,
		time.Now().UTC(),
	)

	var room Room
	err = res.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Topic,
		&room.Category,
		&room.IsPrivate,
		&room.InviteCode,
		&room.OwnerId,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return Room{}, err
	}

	// the creator joins as owner
	_, err = tx.Exec(
		"INSERT INTO room_members (room_id, user_id, role, joined_at) VALUES ($1, $2, 'owner', $3)",
		room.Id,
		params.OwnerId,
		time.Now().UTC(),
	)
	if err != nil {
		return Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgChatLinkRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, topic, category, is_private, password_hash, invite_code, owner_id, created_at, updated_at "+
			"FROM rooms WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	return scanRoom(row)
}

func (db *PgChatLinkRepository) GetRoomByInviteCode(code string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, topic, category, is_private, password_hash, invite_code, owner_id, created_at, updated_at "+
			"FROM rooms WHERE invite_code = $1 LIMIT 1",
		code,
	)

	return scanRoom(row)
}

func scanRoom(row *sql.Row) (Room, error) {
	var room Room
	err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Topic,
		&room.Category,
		&room.IsPrivate,
		&room.PasswordHash,
		&room.InviteCode,
		&room.OwnerId,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, err
}

func (db *PgChatLinkRepository) ListPublicRooms(category string) ([]Room, error) {
	query := "SELECT id, external_id, name, topic, category, is_private, invite_code, owner_id, created_at, updated_at " +
		"FROM rooms WHERE NOT is_private"
	args := []any{}
	if category != "" {
		query += " AND category = $1"
		args = append(args, category)
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms = make([]Room, 0)
	for rows.Next() {
		var room Room
		if err = rows.Scan(
			&room.Id,
			&room.ExternalId,
			&room.Name,
			&room.Topic,
			&room.Category,
			&room.IsPrivate,
			&room.InviteCode,
			&room.OwnerId,
			&room.CreatedAt,
			&room.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PgChatLinkRepository) UpdateRoom(params UpdateRoomParams) (Room, error) {
	row := db.conn.QueryRow(
		"UPDATE rooms SET name = $2, topic = $3, category = $4, is_private = $5, password_hash = $6, updated_at = $7 "+
			"WHERE id = $1 RETURNING id, external_id, name, topic, category, is_private, password_hash, invite_code, owner_id, created_at, updated_at",
		params.RoomId,
		params.Name,
		params.Topic,
		params.Category,
		params.IsPrivate,
		params.PasswordHash,
		time.Now().UTC(),
	)

	return scanRoom(row)
}

func (db *PgChatLinkRepository) SetInviteCode(roomId int, code string) error {
	_, err := db.conn.Exec(
		"UPDATE rooms SET invite_code = $2, updated_at = $3 WHERE id = $1",
		roomId,
		code,
		time.Now().UTC(),
	)

	return err
}

func (db *PgChatLinkRepository) DeleteRoom(roomId int) error {
	_, err := db.conn.Exec("DELETE FROM rooms WHERE id = $1", roomId)

	return err
}

func (db *PgChatLinkRepository) AddMember(roomId, userId int, role string) (Member, error) {
	_, err := db.conn.Exec(
		"INSERT INTO room_members (room_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)",
		roomId,
		userId,
		role,
		time.Now().UTC(),
	)
	if err != nil {
		return Member{}, err
	}

	// the membership row alone carries no username or avatar; read the full
	// member back through the accounts join
	return db.GetMember(roomId, userId)
}

func (db *PgChatLinkRepository) GetMember(roomId, userId int) (Member, error) {
	row := db.conn.QueryRow(
		"SELECT rm.room_id, rm.user_id, a.username, a.avatar_url, a.status, rm.role, rm.joined_at "+
			"FROM room_members rm JOIN accounts a ON a.id = rm.user_id "+
			"WHERE rm.room_id = $1 AND rm.user_id = $2 LIMIT 1",
		roomId,
		userId,
	)

	var m Member
	err := row.Scan(
		&m.RoomId,
		&m.UserId,
		&m.Username,
		&m.AvatarUrl,
		&m.Status,
		&m.Role,
		&m.JoinedAt,
	)

	return m, err
}

func (db *PgChatLinkRepository) ListMembers(roomId int) ([]Member, error) {
	rows, err := db.conn.Query(
		"SELECT rm.room_id, rm.user_id, a.username, a.avatar_url, a.status, rm.role, rm.joined_at "+
			"FROM room_members rm JOIN accounts a ON a.id = rm.user_id "+
			"WHERE rm.room_id = $1 ORDER BY rm.joined_at",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members = make([]Member, 0)
	for rows.Next() {
		var m Member
		if err = rows.Scan(
			&m.RoomId,
			&m.UserId,
			&m.Username,
			&m.AvatarUrl,
			&m.Status,
			&m.Role,
			&m.JoinedAt,
		); err != nil {
			return nil, err
		}

		members = append(members, m)
	}

	return members, rows.Err()
}

func (db *PgChatLinkRepository) UpdateMemberRole(roomId, userId int, role string) error {
	res, err := db.conn.Exec(
		"UPDATE room_members SET role = $3 WHERE room_id = $1 AND user_id = $2",
		roomId,
		userId,
		role,
	)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (db *PgChatLinkRepository) RemoveMember(roomId, userId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM room_members WHERE room_id = $1 AND user_id = $2",
		roomId,
		userId,
	)

	return err
}

func (db *PgChatLinkRepository) BanUser(roomId, userId, bannedBy int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec(
		"INSERT INTO banned_room_users (room_id, user_id, banned_by, created_at) VALUES ($1, $2, $3, $4) "+
			"ON CONFLICT (room_id, user_id) DO NOTHING",
		roomId,
		userId,
		bannedBy,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM room_members WHERE room_id = $1 AND user_id = $2", roomId, userId)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgChatLinkRepository) IsBanned(roomId, userId int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM banned_room_users WHERE room_id = $1 AND user_id = $2)",
		roomId,
		userId,
	)

	var banned bool
	err := row.Scan(&banned)

	return banned, err
}

func (db *PgChatLinkRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	row := db.conn.QueryRow(
		"INSERT INTO messages (room_id, user_id, content, type, attachment_url, attachment_name, attachment_type, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id",
		params.RoomId,
		params.UserId,
		params.Content,
		params.Type,
		params.AttachmentUrl,
		params.AttachmentName,
		params.AttachmentType,
		params.CreatedAt,
	)

	var id string
	if err := row.Scan(&id); err != nil {
		return Message{}, err
	}

	// re-read the row with the author's profile fields joined
	return db.GetMessageById(id)
}

func (db *PgChatLinkRepository) GetMessageById(id string) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM messages m JOIN accounts a ON a.id = m.user_id "+
			"WHERE m.id = $1 LIMIT 1",
		id,
	)

	return scanMessage(row.Scan)
}

func scanMessage(scan func(...any) error) (Message, error) {
	var (
		msg       Message
		editedAt  sql.NullTime
		deletedAt sql.NullTime
	)

	err := scan(
		&msg.Id,
		&msg.RoomId,
		&msg.UserId,
		&msg.Username,
		&msg.Content,
		&msg.Type,
		&msg.AttachmentUrl,
		&msg.AttachmentName,
		&msg.AttachmentType,
		&msg.CreatedAt,
		&editedAt,
		&deletedAt,
	)
	if err != nil {
		return Message{}, err
	}

	if editedAt.Valid {
		msg.EditedAt = &editedAt.Time
	}
	if deletedAt.Valid {
		msg.DeletedAt = &deletedAt.Time
	}

	return msg, nil
}

// GetMessages returns up to limit messages created strictly before the given
// time, newest first. A zero before time means "from the latest".
func (db *PgChatLinkRepository) GetMessages(roomId int, before time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if before.IsZero() {
		before = time.Now().UTC().Add(time.Hour)
	}

	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages m JOIN accounts a ON a.id = m.user_id "+
			"WHERE m.room_id = $1 AND m.created_at < $2 ORDER BY m.created_at DESC, m.id DESC LIMIT $3",
		roomId,
		before,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgChatLinkRepository) EditMessage(id string, userId int, content string, editedAt time.Time) (Message, error) {
	res, err := db.conn.Exec(
		"UPDATE messages SET content = $3, edited_at = $4 "+
			"WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL",
		id,
		userId,
		content,
		editedAt,
	)
	if err != nil {
		return Message{}, err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return Message{}, sql.ErrNoRows
	}

	return db.GetMessageById(id)
}

// DeleteMessage tombstones a message: the stored content is replaced so the
// original text is no longer retrievable from the row.
func (db *PgChatLinkRepository) DeleteMessage(id string, deletedAt time.Time) (Message, error) {
	res, err := db.conn.Exec(
		"UPDATE messages SET content = $2, attachment_url = '', attachment_name = '', attachment_type = '', deleted_at = $3 "+
			"WHERE id = $1 AND deleted_at IS NULL",
		id,
		tombstoneContent,
		deletedAt,
	)
	if err != nil {
		return Message{}, err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return Message{}, sql.ErrNoRows
	}

	return db.GetMessageById(id)
}

// AllowMessage atomically advances the sender's rate-limit window. It
// reports false when the sender has already used up rateLimitMax sends in
// the current window.
func (db *PgChatLinkRepository) AllowMessage(userId, roomId int, now time.Time) (bool, error) {
	row := db.conn.QueryRow(
		// the window resets only once strictly more than rateLimitWindow has
		// elapsed, so a send at exactly the boundary still counts against it
		"INSERT INTO message_rate_limit (user_id, room_id, message_count, window_start) VALUES ($1, $2, 1, $3) "+
			"ON CONFLICT (user_id, room_id) DO UPDATE SET "+
			"message_count = CASE WHEN message_rate_limit.window_start < $4 THEN 1 ELSE message_rate_limit.message_count + 1 END, "+
			"window_start = CASE WHEN message_rate_limit.window_start < $4 THEN $3 ELSE message_rate_limit.window_start END "+
			"WHERE message_rate_limit.window_start < $4 OR message_rate_limit.message_count < $5 "+
			"RETURNING message_count",
		userId,
		roomId,
		now,
		now.Add(-rateLimitWindow),
		rateLimitMax,
	)

	var count int
	err := row.Scan(&count)
	if err == sql.ErrNoRows {
		// conflict row exists, window still open and already at the cap
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("advance rate limit window: %w", err)
	}

	return true, nil
}

func (db *PgChatLinkRepository) UpsertReadReceipt(roomId, userId int, messageId string, readAt time.Time) error {
	var msgId any
	if messageId != "" {
		msgId = messageId
	}

	_, err := db.conn.Exec(
		"INSERT INTO read_receipts (room_id, user_id, last_read_at, last_read_message_id) VALUES ($1, $2, $3, $4) "+
			"ON CONFLICT (room_id, user_id) DO UPDATE SET last_read_at = $3, last_read_message_id = $4",
		roomId,
		userId,
		readAt,
		msgId,
	)

	return err
}

func (db *PgChatLinkRepository) GetReadReceipt(roomId, userId int) (ReadReceipt, error) {
	row := db.conn.QueryRow(
		"SELECT room_id, user_id, last_read_at, COALESCE(last_read_message_id::text, '') "+
			"FROM read_receipts WHERE room_id = $1 AND user_id = $2 LIMIT 1",
		roomId,
		userId,
	)

	var rr ReadReceipt
	err := row.Scan(&rr.RoomId, &rr.UserId, &rr.LastReadAt, &rr.LastReadMessageId)

	return rr, err
}
