package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/chatlink-app/chatlink/internal/database"
	"github.com/chatlink-app/chatlink/internal/server"
	"github.com/chatlink-app/chatlink/internal/types"
	"github.com/gorilla/websocket"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type UpdateAccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	Username  string `json:"username"`
	AvatarUrl string `json:"avatar_url"`
	Status    string `json:"status"`
}

type CreateRoomRequest struct {
	Name      string `json:"name"`
	Topic     string `json:"topic"`
	Category  string `json:"category"`
	IsPrivate bool   `json:"is_private"`
	Password  string `json:"password"`
}

type UpdateRoomRequest struct {
	Name      string `json:"name"`
	Topic     string `json:"topic"`
	Category  string `json:"category"`
	IsPrivate bool   `json:"is_private"`
	Password  string `json:"password"`
}

type JoinRoomRequest struct {
	Code string `json:"code"`
}

type MemberRoleRequest struct {
	RoomId string `json:"room_id"`
	UserId int    `json:"user_id"`
	Role   string `json:"role"`
}

type MemberRequest struct {
	RoomId string `json:"room_id"`
	UserId int    `json:"user_id"`
}

type ReportMessageRequest struct {
	MessageId string `json:"message_id"`
	Reason    string `json:"reason"`
}

// MessagesResponse is one page of room history. HasMore is authoritative:
// it reflects whether an older message exists beyond the page, not whether
// the page happened to come back full.
type MessagesResponse struct {
	Messages []types.Message `json:"messages"`
	HasMore  bool            `json:"has_more"`
}

func (s *ChatLinkApp) account(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userId, ok := UserId(r.Context())
		if !ok {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		user, err := s.db.GetAccountById(userId)
		if err != nil {
			var errResp *ApiError
			if errors.Is(err, sql.ErrNoRows) {
				errResp = NewNotFoundError()
			} else {
				errResp = NewInternalServerError(err)
			}
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusOK, toUser(user))
	case http.MethodPut:
		userId, ok := UserId(r.Context())
		if !ok {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		curUser, err := s.db.GetAccountById(userId)
		if err != nil {
			var errResp *ApiError
			if errors.Is(err, sql.ErrNoRows) {
				errResp = NewNotFoundError()
			} else {
				errResp = NewInternalServerError(err)
			}
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		var updateAccountReq UpdateAccountRequest
		err = json.NewDecoder(r.Body).Decode(&updateAccountReq)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		if updateAccountReq.Username == "" || updateAccountReq.Password == "" {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		pwdHash, err := hashPassword(updateAccountReq.Password)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		params := database.UpdateAccountParams{
			UserId:       curUser.Id,
			Username:     updateAccountReq.Username,
			PasswordHash: pwdHash,
		}

		dbUser, err := s.db.UpdateAccount(params)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusOK, toUser(dbUser))
	default:
		errResp := NewMethodNotAllowedError()
		s.writeJson(w, errResp.StatusCode, errResp)
	}
}

func (s *ChatLinkApp) updateProfile(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" {
		errResp := NewValidationError("username cannot be empty")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.UpdateProfile(database.UpdateProfileParams{
		UserId:    userId,
		Username:  req.Username,
		AvatarUrl: req.AvatarUrl,
		Status:    req.Status,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toUser(dbUser))
}

func (s *ChatLinkApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var createRoomReq CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&createRoomReq); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if createRoomReq.Name == "" {
		errResp := NewValidationError("room name cannot be empty")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	inviteCode, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var pwdHash string
	if createRoomReq.IsPrivate && createRoomReq.Password != "" {
		pwdHash, err = hashPassword(createRoomReq.Password)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	params := database.CreateRoomParams{
		Name:         createRoomReq.Name,
		Topic:        createRoomReq.Topic,
		Category:     createRoomReq.Category,
		IsPrivate:    createRoomReq.IsPrivate,
		PasswordHash: pwdHash,
		InviteCode:   inviteCode,
		ExternalId:   sid,
		OwnerId:      userId,
	}

	// CreateRoom inserts the owner membership in the same transaction
	newRoom, err := s.db.CreateRoom(params)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, toRoomResponse(newRoom, nil, types.RoleOwner))
}

func (s *ChatLinkApp) getRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	role, err := s.memberRole(room.Id, userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// non-members may only view public rooms
	if role == "" && room.IsPrivate {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	members, err := s.db.ListMembers(room.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toRoomResponse(room, members, role))
}

func (s *ChatLinkApp) listPublicRooms(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	rooms, err := s.db.ListPublicRooms(category)
	if err != nil {
		s.log.Println("list public rooms:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Room, 0, len(rooms))
	for _, room := range rooms {
		resp = append(resp, toRoomResponse(room, nil, ""))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ChatLinkApp) updateRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" {
		errResp := NewValidationError("room name cannot be empty")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	role, err := s.memberRole(room.Id, userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !role.AtLeast(types.RoleAdmin) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// keep the existing password unless a new one is supplied
	pwdHash := room.PasswordHash
	if req.Password != "" {
		pwdHash, err = hashPassword(req.Password)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}
	if !req.IsPrivate {
		pwdHash = ""
	}

	updated, err := s.db.UpdateRoom(database.UpdateRoomParams{
		RoomId:       room.Id,
		Name:         req.Name,
		Topic:        req.Topic,
		Category:     req.Category,
		IsPrivate:    req.IsPrivate,
		PasswordHash: pwdHash,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toRoomResponse(updated, nil, role))
}

func (s *ChatLinkApp) deleteRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if room.OwnerId != userId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	err = s.db.DeleteRoom(room.Id)
	if err != nil {
		s.log.Println("delete room:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.UnloadRoom(r.Context(), room.ExternalId, true); err != nil {
		s.log.Println("unload room from chat server:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChatLinkApp) joinByInviteCode(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByInviteCode(req.Code)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	banned, err := s.db.IsBanned(room.Id, userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if banned {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	role, err := s.memberRole(room.Id, userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if role == "" {
		member, err := s.db.AddMember(room.Id, userId, string(types.RoleMember))
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		role = types.RoleMember

		m := toMemberResponse(member)
		if err := s.cs.PublishMembershipChange(room.ExternalId, &types.Event{
			Table:  types.TableMembers,
			Action: types.ActionInsert,
			RoomId: room.ExternalId,
			Member: &m,
		}, 0); err != nil {
			s.log.Println("publish membership change:", err)
		}
	}

	s.writeJson(w, http.StatusOK, toRoomResponse(room, nil, role))
}

func (s *ChatLinkApp) regenerateInviteCode(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	role, err := s.memberRole(room.Id, userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !role.AtLeast(types.RoleAdmin) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	code, err := s.generateShortId()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.SetInviteCode(room.Id, code); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"invite_code": code})
}

func (s *ChatLinkApp) updateMemberRole(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req MemberRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newRole := types.Role(req.Role)
	if newRole != types.RoleAdmin && newRole != types.RoleModerator && newRole != types.RoleMember {
		errResp := NewValidationError("invalid role")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, target, callerRole, errResp := s.moderationTarget(req.RoomId, userId, req.UserId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !callerRole.AtLeast(types.RoleAdmin) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.UpdateMemberRole(room.Id, req.UserId, string(newRole)); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	target.Role = string(newRole)
	m := toMemberResponse(target)
	if err := s.cs.PublishMembershipChange(room.ExternalId, &types.Event{
		Table:  types.TableMembers,
		Action: types.ActionUpdate,
		RoomId: room.ExternalId,
		Member: &m,
	}, 0); err != nil {
		s.log.Println("publish membership change:", err)
	}

	s.writeJson(w, http.StatusOK, m)
}

func (s *ChatLinkApp) kickMember(w http.ResponseWriter, r *http.Request) {
	s.removeMember(w, r, false)
}

func (s *ChatLinkApp) banMember(w http.ResponseWriter, r *http.Request) {
	s.removeMember(w, r, true)
}

func (s *ChatLinkApp) removeMember(w http.ResponseWriter, r *http.Request, ban bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req MemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, target, callerRole, errResp := s.moderationTarget(req.RoomId, userId, req.UserId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// moderators may remove plain members, admins may remove moderators
	if !callerRole.Privileged() || types.Role(target.Role).AtLeast(callerRole) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if ban {
		if err := s.db.BanUser(room.Id, req.UserId, userId); err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	if err := s.db.RemoveMember(room.Id, req.UserId); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	m := toMemberResponse(target)
	if err := s.cs.PublishMembershipChange(room.ExternalId, &types.Event{
		Table:  types.TableMembers,
		Action: types.ActionDelete,
		RoomId: room.ExternalId,
		Member: &m,
	}, req.UserId); err != nil {
		s.log.Println("publish membership change:", err)
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

// moderationTarget resolves a room and the membership row of the user being
// acted on, along with the caller's own role. The room owner can never be a
// target.
func (s *ChatLinkApp) moderationTarget(roomExternalId string, callerId, targetId int) (database.Room, database.Member, types.Role, *ApiError) {
	var (
		room   database.Room
		target database.Member
	)

	if roomExternalId == "" || targetId == 0 || targetId == callerId {
		return room, target, "", NewBadRequestError()
	}

	room, err := s.db.GetRoomByExternalId(roomExternalId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return room, target, "", NewNotFoundError()
		}
		return room, target, "", NewInternalServerError(err)
	}

	if targetId == room.OwnerId {
		return room, target, "", NewForbiddenError()
	}

	callerRole, err := s.memberRole(room.Id, callerId)
	if err != nil {
		return room, target, "", NewInternalServerError(err)
	}

	target, err = s.db.GetMember(room.Id, targetId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return room, target, "", NewNotFoundError()
		}
		return room, target, "", NewInternalServerError(err)
	}

	return room, target, callerRole, nil
}

// memberRole returns the caller's role in the room, or the zero Role if the
// caller is not a member.
func (s *ChatLinkApp) memberRole(roomId, userId int) (types.Role, error) {
	member, err := s.db.GetMember(roomId, userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}

	return types.Role(member.Role), nil
}

func (s *ChatLinkApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("room_id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	role, err := s.memberRole(room.Id, userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if role == "" {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var before time.Time
	beforeStr := r.URL.Query().Get("before")
	if beforeStr != "" {
		before, err = time.Parse(time.RFC3339Nano, beforeStr)
		if err != nil {
			errResp := NewValidationError("before must be an RFC 3339 timestamp")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	limit := defaultPageSize
	limitStr := r.URL.Query().Get("limit")
	if limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	// fetch one extra row so has_more reflects actual history rather than a
	// full-page guess
	messages, err := s.db.GetMessages(room.Id, before, limit+1)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	resp := MessagesResponse{
		Messages: make([]types.Message, 0, len(messages)),
		HasMore:  hasMore,
	}
	for _, msg := range messages {
		resp.Messages = append(resp.Messages, toMessageResponse(msg, room.ExternalId))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ChatLinkApp) reportMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req ReportMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MessageId == "" || req.Reason == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.GetMessageById(req.MessageId); err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	report, err := s.db.CreateMessageReport(req.MessageId, userId, req.Reason)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.MessageReport{
		Id:         report.Id,
		MessageId:  report.MessageId,
		ReporterId: report.ReporterId,
		Reason:     report.Reason,
		Resolved:   report.Resolved,
		CreatedAt:  report.CreatedAt,
	})
}

func (s *ChatLinkApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(toUser(user), conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}

func toRoomResponse(room database.Room, members []database.Member, role types.Role) types.Room {
	resp := types.Room{
		Id:         room.Id,
		ExternalId: room.ExternalId,
		Name:       room.Name,
		Topic:      room.Topic,
		Category:   room.Category,
		IsPrivate:  room.IsPrivate,
		OwnerId:    room.OwnerId,
		CreatedAt:  room.CreatedAt,
		UpdatedAt:  room.UpdatedAt,
	}

	// the invite code is only shown to room admins
	if role.AtLeast(types.RoleAdmin) {
		resp.InviteCode = room.InviteCode
	}

	for _, m := range members {
		resp.Members = append(resp.Members, toMemberResponse(m))
	}

	return resp
}

func toMemberResponse(m database.Member) types.Member {
	return types.Member{
		UserId:    m.UserId,
		Username:  m.Username,
		AvatarUrl: m.AvatarUrl,
		Status:    m.Status,
		Role:      types.Role(m.Role),
		JoinedAt:  m.JoinedAt,
	}
}

func toMessageResponse(m database.Message, roomExternalId string) types.Message {
	return types.Message{
		Id:             m.Id,
		RoomId:         roomExternalId,
		UserId:         m.UserId,
		Username:       m.Username,
		Content:        m.Content,
		Type:           m.Type,
		AttachmentUrl:  m.AttachmentUrl,
		AttachmentName: m.AttachmentName,
		AttachmentType: m.AttachmentType,
		CreatedAt:      m.CreatedAt,
		EditedAt:       m.EditedAt,
		DeletedAt:      m.DeletedAt,
	}
}
