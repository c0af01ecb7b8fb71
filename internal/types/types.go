package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	AvatarUrl    string    `json:"avatar_url,omitempty"`
	Status       string    `json:"status,omitempty"`
	IsGuest      bool      `json:"is_guest,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Role is a member's role within a single room.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

var roleRank = map[Role]int{
	RoleMember:    0,
	RoleModerator: 1,
	RoleAdmin:     2,
	RoleOwner:     3,
}

// Privileged reports whether the role may moderate other members.
func (r Role) Privileged() bool {
	return roleRank[r] >= roleRank[RoleModerator]
}

// AtLeast reports whether r grants everything other does.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

type Room struct {
	Id         int       `json:"id"`
	ExternalId string    `json:"external_id"`
	Name       string    `json:"name"`
	Topic      string    `json:"topic"`
	Category   string    `json:"category"`
	IsPrivate  bool      `json:"is_private"`
	InviteCode string    `json:"invite_code,omitempty"`
	OwnerId    int       `json:"owner_id"`
	Members    []Member  `json:"members,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

type Member struct {
	UserId    int       `json:"user_id"`
	Username  string    `json:"username"`
	AvatarUrl string    `json:"avatar_url,omitempty"`
	Status    string    `json:"status,omitempty"`
	Role      Role      `json:"role"`
	JoinedAt  time.Time `json:"joined_at,omitempty"`
}

const (
	MessageTypeChat   = "message"
	MessageTypeSystem = "system"
)

// TombstoneContent replaces the content of soft-deleted messages.
const TombstoneContent = "[deleted]"

type Message struct {
	Id             string     `json:"id"`
	RoomId         string     `json:"room_id"`
	UserId         int        `json:"user_id"`
	Username       string     `json:"username,omitempty"`
	Content        string     `json:"content"`
	Type           string     `json:"type"`
	AttachmentUrl  string     `json:"attachment_url,omitempty"`
	AttachmentName string     `json:"attachment_name,omitempty"`
	AttachmentType string     `json:"attachment_type,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the message is a tombstone.
func (m Message) Deleted() bool {
	return m.DeletedAt != nil
}

// DisplayContent is the content safe to render: tombstones never expose
// their original content.
func (m Message) DisplayContent() string {
	if m.Deleted() {
		return TombstoneContent
	}
	return m.Content
}

type ReadReceipt struct {
	RoomId            string    `json:"room_id"`
	UserId            int       `json:"user_id"`
	LastReadAt        time.Time `json:"last_read_at"`
	LastReadMessageId string    `json:"last_read_message_id"`
}

type Conversation struct {
	Id        int       `json:"id"`
	UserAId   int       `json:"user_a_id"`
	UserBId   int       `json:"user_b_id"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type DirectMessage struct {
	Id             int       `json:"id"`
	ConversationId int       `json:"conversation_id"`
	SenderId       int       `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type Post struct {
	Id           int       `json:"id"`
	UserId       int       `json:"user_id"`
	Username     string    `json:"username,omitempty"`
	Content      string    `json:"content"`
	Tags         []string  `json:"tags,omitempty"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	LikedByMe    bool      `json:"liked_by_me,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type PostComment struct {
	Id        int       `json:"id"`
	PostId    int       `json:"post_id"`
	UserId    int       `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type MessageReport struct {
	Id         int       `json:"id"`
	MessageId  string    `json:"message_id"`
	ReporterId int       `json:"reporter_id"`
	Reason     string    `json:"reason"`
	Resolved   bool      `json:"resolved"`
	CreatedAt  time.Time `json:"created_at"`
}
