package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockChatLinkRepository struct {
	mock.Mock
}

func (m *MockChatLinkRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatLinkRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatLinkRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatLinkRepository) UpdateProfile(params UpdateProfileParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatLinkRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatLinkRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatLinkRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatLinkRepository) GetRoomByExternalId(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatLinkRepository) GetRoomByInviteCode(code string) (Room, error) {
	args := m.Called(code)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatLinkRepository) ListPublicRooms(category string) ([]Room, error) {
	args := m.Called(category)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockChatLinkRepository) UpdateRoom(params UpdateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatLinkRepository) SetInviteCode(roomId int, code string) error {
	args := m.Called(roomId, code)
	return args.Error(0)
}
func (m *MockChatLinkRepository) DeleteRoom(roomId int) error {
	args := m.Called(roomId)
	return args.Error(0)
}
func (m *MockChatLinkRepository) AddMember(roomId, userId int, role string) (Member, error) {
	args := m.Called(roomId, userId, role)
	return args.Get(0).(Member), args.Error(1)
}
func (m *MockChatLinkRepository) GetMember(roomId, userId int) (Member, error) {
	args := m.Called(roomId, userId)
	return args.Get(0).(Member), args.Error(1)
}
func (m *MockChatLinkRepository) ListMembers(roomId int) ([]Member, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Member), args.Error(1)
}
func (m *MockChatLinkRepository) UpdateMemberRole(roomId, userId int, role string) error {
	args := m.Called(roomId, userId, role)
	return args.Error(0)
}
func (m *MockChatLinkRepository) RemoveMember(roomId, userId int) error {
	args := m.Called(roomId, userId)
	return args.Error(0)
}
func (m *MockChatLinkRepository) BanUser(roomId, userId, bannedBy int) error {
	args := m.Called(roomId, userId, bannedBy)
	return args.Error(0)
}
func (m *MockChatLinkRepository) IsBanned(roomId, userId int) (bool, error) {
	args := m.Called(roomId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockChatLinkRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatLinkRepository) GetMessageById(id string) (Message, error) {
	args := m.Called(id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatLinkRepository) GetMessages(roomId int, before time.Time, limit int) ([]Message, error) {
	args := m.Called(roomId, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatLinkRepository) EditMessage(id string, userId int, content string, editedAt time.Time) (Message, error) {
	args := m.Called(id, userId, content, editedAt)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatLinkRepository) DeleteMessage(id string, deletedAt time.Time) (Message, error) {
	args := m.Called(id, deletedAt)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatLinkRepository) AllowMessage(userId, roomId int, now time.Time) (bool, error) {
	args := m.Called(userId, roomId, now)
	return args.Bool(0), args.Error(1)
}
func (m *MockChatLinkRepository) UpsertReadReceipt(roomId, userId int, messageId string, readAt time.Time) error {
	args := m.Called(roomId, userId, messageId, readAt)
	return args.Error(0)
}
func (m *MockChatLinkRepository) GetReadReceipt(roomId, userId int) (ReadReceipt, error) {
	args := m.Called(roomId, userId)
	return args.Get(0).(ReadReceipt), args.Error(1)
}
func (m *MockChatLinkRepository) GetOrCreateConversation(userAId, userBId int) (Conversation, error) {
	args := m.Called(userAId, userBId)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockChatLinkRepository) ListConversations(userId int) ([]Conversation, error) {
	args := m.Called(userId)
	return args.Get(0).([]Conversation), args.Error(1)
}
func (m *MockChatLinkRepository) CreateDirectMessage(conversationId, senderId int, content string) (DirectMessage, error) {
	args := m.Called(conversationId, senderId, content)
	return args.Get(0).(DirectMessage), args.Error(1)
}
func (m *MockChatLinkRepository) GetDirectMessages(conversationId int, before time.Time, limit int) ([]DirectMessage, error) {
	args := m.Called(conversationId, before, limit)
	return args.Get(0).([]DirectMessage), args.Error(1)
}
func (m *MockChatLinkRepository) CreatePost(userId int, content string, tags []string) (Post, error) {
	args := m.Called(userId, content, tags)
	return args.Get(0).(Post), args.Error(1)
}
func (m *MockChatLinkRepository) ListPosts(viewerId, limit int) ([]Post, error) {
	args := m.Called(viewerId, limit)
	return args.Get(0).([]Post), args.Error(1)
}
func (m *MockChatLinkRepository) LikePost(postId, userId int) error {
	args := m.Called(postId, userId)
	return args.Error(0)
}
func (m *MockChatLinkRepository) UnlikePost(postId, userId int) error {
	args := m.Called(postId, userId)
	return args.Error(0)
}
func (m *MockChatLinkRepository) CreatePostComment(postId, userId int, content string) (PostComment, error) {
	args := m.Called(postId, userId, content)
	return args.Get(0).(PostComment), args.Error(1)
}
func (m *MockChatLinkRepository) ListPostComments(postId int) ([]PostComment, error) {
	args := m.Called(postId)
	return args.Get(0).([]PostComment), args.Error(1)
}
func (m *MockChatLinkRepository) BlockUser(blockerId, blockedId int) error {
	args := m.Called(blockerId, blockedId)
	return args.Error(0)
}
func (m *MockChatLinkRepository) UnblockUser(blockerId, blockedId int) error {
	args := m.Called(blockerId, blockedId)
	return args.Error(0)
}
func (m *MockChatLinkRepository) IsBlocked(userAId, userBId int) (bool, error) {
	args := m.Called(userAId, userBId)
	return args.Bool(0), args.Error(1)
}
func (m *MockChatLinkRepository) CreateMessageReport(messageId string, reporterId int, reason string) (MessageReport, error) {
	args := m.Called(messageId, reporterId, reason)
	return args.Get(0).(MessageReport), args.Error(1)
}
func (m *MockChatLinkRepository) ListOpenReports() ([]MessageReport, error) {
	args := m.Called()
	return args.Get(0).([]MessageReport), args.Error(1)
}
func (m *MockChatLinkRepository) ResolveReport(reportId int) error {
	args := m.Called(reportId)
	return args.Error(0)
}
func (m *MockChatLinkRepository) HasGlobalRole(userId int, role string) (bool, error) {
	args := m.Called(userId, role)
	return args.Bool(0), args.Error(1)
}
