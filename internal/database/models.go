package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	AvatarUrl    string
	Status       string
	IsGuest      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id           int
	ExternalId   string
	Name         string
	Topic        string
	Category     string
	IsPrivate    bool
	PasswordHash string
	InviteCode   string
	OwnerId      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Members      []Member
}

type Member struct {
	RoomId    int
	UserId    int
	Username  string
	AvatarUrl string
	Status    string
	Role      string
	JoinedAt  time.Time
}

type Message struct {
	Id             string
	RoomId         int
	UserId         int
	Username       string
	Content        string
	Type           string
	AttachmentUrl  string
	AttachmentName string
	AttachmentType string
	CreatedAt      time.Time
	EditedAt       *time.Time
	DeletedAt      *time.Time
}

type ReadReceipt struct {
	RoomId            int
	UserId            int
	LastReadAt        time.Time
	LastReadMessageId string
}

type Conversation struct {
	Id        int
	UserAId   int
	UserBId   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type DirectMessage struct {
	Id             int
	ConversationId int
	SenderId       int
	Content        string
	CreatedAt      time.Time
}

type Post struct {
	Id           int
	UserId       int
	Username     string
	Content      string
	Tags         []string
	LikeCount    int
	CommentCount int
	LikedByMe    bool
	CreatedAt    time.Time
}

type PostComment struct {
	Id        int
	PostId    int
	UserId    int
	Username  string
	Content   string
	CreatedAt time.Time
}

type MessageReport struct {
	Id         int
	MessageId  string
	ReporterId int
	Reason     string
	Resolved   bool
	CreatedAt  time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
	IsGuest      bool
}

type UpdateAccountParams struct {
	UserId       int
	Username     string
	PasswordHash string
}

type UpdateProfileParams struct {
	UserId    int
	Username  string
	AvatarUrl string
	Status    string
}

type CreateRoomParams struct {
	Name         string
	Topic        string
	Category     string
	IsPrivate    bool
	PasswordHash string
	InviteCode   string
	ExternalId   string
	OwnerId      int
}

type UpdateRoomParams struct {
	RoomId       int
	Name         string
	Topic        string
	Category     string
	IsPrivate    bool
	PasswordHash string
}

type CreateMessageParams struct {
	RoomId         int
	UserId         int
	Content        string
	Type           string
	AttachmentUrl  string
	AttachmentName string
	AttachmentType string
	CreatedAt      time.Time
}
