package database

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// GetOrCreateConversation returns the single conversation between two users,
// creating it if necessary. The pair is stored in canonical (low id, high id)
// order so there is exactly one row per pair.
func (db *PgChatLinkRepository) GetOrCreateConversation(userAId, userBId int) (Conversation, error) {
	if userAId > userBId {
		userAId, userBId = userBId, userAId
	}

	row := db.conn.QueryRow(
		"INSERT INTO conversations (user_a_id, user_b_id, created_at, updated_at) VALUES ($1, $2, $3, $3) "+
			"ON CONFLICT (user_a_id, user_b_id) DO UPDATE SET updated_at = conversations.updated_at "+
			"RETURNING id, user_a_id, user_b_id, created_at, updated_at",
		userAId,
		userBId,
		time.Now().UTC(),
	)

	var c Conversation
	err := row.Scan(&c.Id, &c.UserAId, &c.UserBId, &c.CreatedAt, &c.UpdatedAt)

	return c, err
}

func (db *PgChatLinkRepository) ListConversations(userId int) ([]Conversation, error) {
	rows, err := db.conn.Query(
		"SELECT id, user_a_id, user_b_id, created_at, updated_at FROM conversations "+
			"WHERE user_a_id = $1 OR user_b_id = $1 ORDER BY updated_at DESC",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs = make([]Conversation, 0)
	for rows.Next() {
		var c Conversation
		if err = rows.Scan(&c.Id, &c.UserAId, &c.UserBId, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}

		convs = append(convs, c)
	}

	return convs, rows.Err()
}

func (db *PgChatLinkRepository) CreateDirectMessage(conversationId, senderId int, content string) (DirectMessage, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return DirectMessage{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	row := tx.QueryRow(
		"INSERT INTO direct_messages (conversation_id, sender_id, content, created_at) VALUES ($1, $2, $3, $4) "+
			"RETURNING id, conversation_id, sender_id, content, created_at",
		conversationId,
		senderId,
		content,
		time.Now().UTC(),
	)

	var dm DirectMessage
	err = row.Scan(&dm.Id, &dm.ConversationId, &dm.SenderId, &dm.Content, &dm.CreatedAt)
	if err != nil {
		return DirectMessage{}, err
	}

	_, err = tx.Exec("UPDATE conversations SET updated_at = $2 WHERE id = $1", conversationId, dm.CreatedAt)
	if err != nil {
		return DirectMessage{}, err
	}

	if err = tx.Commit(); err != nil {
		return DirectMessage{}, err
	}

	return dm, nil
}

func (db *PgChatLinkRepository) GetDirectMessages(conversationId int, before time.Time, limit int) ([]DirectMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if before.IsZero() {
		before = time.Now().UTC().Add(time.Hour)
	}

	rows, err := db.conn.Query(
		"SELECT id, conversation_id, sender_id, content, created_at FROM direct_messages "+
			"WHERE conversation_id = $1 AND created_at < $2 ORDER BY created_at DESC LIMIT $3",
		conversationId,
		before,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dms = make([]DirectMessage, 0, limit)
	for rows.Next() {
		var dm DirectMessage
		if err = rows.Scan(&dm.Id, &dm.ConversationId, &dm.SenderId, &dm.Content, &dm.CreatedAt); err != nil {
			return nil, err
		}

		dms = append(dms, dm)
	}

	return dms, rows.Err()
}

func (db *PgChatLinkRepository) CreatePost(userId int, content string, tags []string) (Post, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Post{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	row := tx.QueryRow(
		"INSERT INTO posts (user_id, content, created_at) VALUES ($1, $2, $3) RETURNING id, user_id, content, created_at",
		userId,
		content,
		time.Now().UTC(),
	)

	var p Post
	err = row.Scan(&p.Id, &p.UserId, &p.Content, &p.CreatedAt)
	if err != nil {
		return Post{}, err
	}

	for _, tag := range tags {
		if _, err = tx.Exec(
			"INSERT INTO post_tags (post_id, tag) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			p.Id,
			tag,
		); err != nil {
			return Post{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Post{}, err
	}

	p.Tags = tags
	return p, nil
}

func (db *PgChatLinkRepository) ListPosts(viewerId, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT p.id, p.user_id, a.username, p.content, p.created_at, "+
			"COALESCE(array_agg(DISTINCT t.tag) FILTER (WHERE t.tag IS NOT NULL), '{}'), "+
			"(SELECT COUNT(*) FROM post_likes l WHERE l.post_id = p.id), "+
			"(SELECT COUNT(*) FROM post_comments c WHERE c.post_id = p.id), "+
			"EXISTS (SELECT 1 FROM post_likes l WHERE l.post_id = p.id AND l.user_id = $1) "+
			"FROM posts p "+
			"JOIN accounts a ON a.id = p.user_id "+
			"LEFT JOIN post_tags t ON t.post_id = p.id "+
			"GROUP BY p.id, a.username ORDER BY p.created_at DESC LIMIT $2",
		viewerId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts = make([]Post, 0, limit)
	for rows.Next() {
		var p Post
		if err = rows.Scan(
			&p.Id,
			&p.UserId,
			&p.Username,
			&p.Content,
			&p.CreatedAt,
			pq.Array(&p.Tags),
			&p.LikeCount,
			&p.CommentCount,
			&p.LikedByMe,
		); err != nil {
			return nil, err
		}

		posts = append(posts, p)
	}

	return posts, rows.Err()
}

func (db *PgChatLinkRepository) LikePost(postId, userId int) error {
	_, err := db.conn.Exec(
		"INSERT INTO post_likes (post_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		postId,
		userId,
	)

	return err
}

func (db *PgChatLinkRepository) UnlikePost(postId, userId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2",
		postId,
		userId,
	)

	return err
}

func (db *PgChatLinkRepository) CreatePostComment(postId, userId int, content string) (PostComment, error) {
	row := db.conn.QueryRow(
		"INSERT INTO post_comments (post_id, user_id, content, created_at) VALUES ($1, $2, $3, $4) "+
			"RETURNING id, post_id, user_id, content, created_at",
		postId,
		userId,
		content,
		time.Now().UTC(),
	)

	var c PostComment
	err := row.Scan(&c.Id, &c.PostId, &c.UserId, &c.Content, &c.CreatedAt)

	return c, err
}

func (db *PgChatLinkRepository) ListPostComments(postId int) ([]PostComment, error) {
	rows, err := db.conn.Query(
		"SELECT c.id, c.post_id, c.user_id, a.username, c.content, c.created_at "+
			"FROM post_comments c JOIN accounts a ON a.id = c.user_id "+
			"WHERE c.post_id = $1 ORDER BY c.created_at",
		postId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments = make([]PostComment, 0)
	for rows.Next() {
		var c PostComment
		if err = rows.Scan(&c.Id, &c.PostId, &c.UserId, &c.Username, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}

		comments = append(comments, c)
	}

	return comments, rows.Err()
}

func (db *PgChatLinkRepository) BlockUser(blockerId, blockedId int) error {
	_, err := db.conn.Exec(
		"INSERT INTO blocked_users (blocker_id, blocked_id, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
		blockerId,
		blockedId,
		time.Now().UTC(),
	)

	return err
}

func (db *PgChatLinkRepository) UnblockUser(blockerId, blockedId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM blocked_users WHERE blocker_id = $1 AND blocked_id = $2",
		blockerId,
		blockedId,
	)

	return err
}

// IsBlocked reports whether either user has blocked the other.
func (db *PgChatLinkRepository) IsBlocked(userAId, userBId int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM blocked_users "+
			"WHERE (blocker_id = $1 AND blocked_id = $2) OR (blocker_id = $2 AND blocked_id = $1))",
		userAId,
		userBId,
	)

	var blocked bool
	err := row.Scan(&blocked)

	return blocked, err
}

func (db *PgChatLinkRepository) CreateMessageReport(messageId string, reporterId int, reason string) (MessageReport, error) {
	row := db.conn.QueryRow(
		"INSERT INTO reported_messages (message_id, reporter_id, reason, created_at) VALUES ($1, $2, $3, $4) "+
			"RETURNING id, message_id, reporter_id, reason, resolved, created_at",
		messageId,
		reporterId,
		reason,
		time.Now().UTC(),
	)

	var r MessageReport
	err := row.Scan(&r.Id, &r.MessageId, &r.ReporterId, &r.Reason, &r.Resolved, &r.CreatedAt)

	return r, err
}

func (db *PgChatLinkRepository) ListOpenReports() ([]MessageReport, error) {
	rows, err := db.conn.Query(
		"SELECT id, message_id, reporter_id, reason, resolved, created_at FROM reported_messages " +
			"WHERE NOT resolved ORDER BY created_at",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports = make([]MessageReport, 0)
	for rows.Next() {
		var r MessageReport
		if err = rows.Scan(&r.Id, &r.MessageId, &r.ReporterId, &r.Reason, &r.Resolved, &r.CreatedAt); err != nil {
			return nil, err
		}

		reports = append(reports, r)
	}

	return reports, rows.Err()
}

func (db *PgChatLinkRepository) ResolveReport(reportId int) error {
	res, err := db.conn.Exec("UPDATE reported_messages SET resolved = TRUE WHERE id = $1", reportId)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (db *PgChatLinkRepository) HasGlobalRole(userId int, role string) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)",
		userId,
		role,
	)

	var has bool
	err := row.Scan(&has)

	return has, err
}
