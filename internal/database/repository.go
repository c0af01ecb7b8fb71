package database

import "time"

type ChatLinkRepository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, error)
	UpdateProfile(params UpdateProfileParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)

	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoomByExternalId(externalId string) (Room, error)
	GetRoomByInviteCode(code string) (Room, error)
	ListPublicRooms(category string) ([]Room, error)
	UpdateRoom(params UpdateRoomParams) (Room, error)
	SetInviteCode(roomId int, code string) error
	DeleteRoom(roomId int) error

	AddMember(roomId, userId int, role string) (Member, error)
	GetMember(roomId, userId int) (Member, error)
	ListMembers(roomId int) ([]Member, error)
	UpdateMemberRole(roomId, userId int, role string) error
	RemoveMember(roomId, userId int) error
	BanUser(roomId, userId, bannedBy int) error
	IsBanned(roomId, userId int) (bool, error)

	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessageById(id string) (Message, error)
	GetMessages(roomId int, before time.Time, limit int) ([]Message, error)
	EditMessage(id string, userId int, content string, editedAt time.Time) (Message, error)
	DeleteMessage(id string, deletedAt time.Time) (Message, error)

	AllowMessage(userId, roomId int, now time.Time) (bool, error)

	UpsertReadReceipt(roomId, userId int, messageId string, readAt time.Time) error
	GetReadReceipt(roomId, userId int) (ReadReceipt, error)

	GetOrCreateConversation(userAId, userBId int) (Conversation, error)
	ListConversations(userId int) ([]Conversation, error)
	CreateDirectMessage(conversationId, senderId int, content string) (DirectMessage, error)
	GetDirectMessages(conversationId int, before time.Time, limit int) ([]DirectMessage, error)

	CreatePost(userId int, content string, tags []string) (Post, error)
	ListPosts(viewerId, limit int) ([]Post, error)
	LikePost(postId, userId int) error
	UnlikePost(postId, userId int) error
	CreatePostComment(postId, userId int, content string) (PostComment, error)
	ListPostComments(postId int) ([]PostComment, error)

	BlockUser(blockerId, blockedId int) error
	UnblockUser(blockerId, blockedId int) error
	IsBlocked(userAId, userBId int) (bool, error)

	CreateMessageReport(messageId string, reporterId int, reason string) (MessageReport, error)
	ListOpenReports() ([]MessageReport, error)
	ResolveReport(reportId int) error
	HasGlobalRole(userId int, role string) (bool, error)
}
