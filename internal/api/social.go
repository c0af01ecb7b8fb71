package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/chatlink-app/chatlink/internal/database"
	"github.com/chatlink-app/chatlink/internal/server"
	"github.com/chatlink-app/chatlink/internal/types"
)

const maxPostLen = 2000

type CreatePostRequest struct {
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

type PostIdRequest struct {
	PostId int `json:"post_id"`
}

type CreateCommentRequest struct {
	PostId  int    `json:"post_id"`
	Content string `json:"content"`
}

type UserIdRequest struct {
	UserId int `json:"user_id"`
}

type SendDirectMessageRequest struct {
	RecipientId int    `json:"recipient_id"`
	Content     string `json:"content"`
}

func (s *ChatLinkApp) createPost(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Content == "" {
		errResp := NewValidationError("post content cannot be empty")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if len(req.Content) > maxPostLen {
		errResp := NewValidationError("post exceeds maximum length")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	post, err := s.db.CreatePost(userId, req.Content, req.Tags)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, toPostResponse(post))
}

func (s *ChatLinkApp) listPosts(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	limit := defaultPageSize
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
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

	posts, err := s.db.ListPosts(userId, limit)
	if err != nil {
		s.log.Println("list posts:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Post, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, toPostResponse(p))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ChatLinkApp) likePost(w http.ResponseWriter, r *http.Request) {
	s.setPostLike(w, r, true)
}

func (s *ChatLinkApp) unlikePost(w http.ResponseWriter, r *http.Request) {
	s.setPostLike(w, r, false)
}

func (s *ChatLinkApp) setPostLike(w http.ResponseWriter, r *http.Request, liked bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req PostIdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PostId == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var err error
	if liked {
		err = s.db.LikePost(req.PostId, userId)
	} else {
		err = s.db.UnlikePost(req.PostId, userId)
	}
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChatLinkApp) createPostComment(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PostId == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Content == "" {
		errResp := NewValidationError("comment cannot be empty")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	comment, err := s.db.CreatePostComment(req.PostId, userId, req.Content)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.PostComment{
		Id:        comment.Id,
		PostId:    comment.PostId,
		UserId:    comment.UserId,
		Username:  comment.Username,
		Content:   comment.Content,
		CreatedAt: comment.CreatedAt,
	})
}

func (s *ChatLinkApp) listPostComments(w http.ResponseWriter, r *http.Request) {
	postId, err := strconv.Atoi(r.URL.Query().Get("post_id"))
	if err != nil || postId <= 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	comments, err := s.db.ListPostComments(postId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.PostComment, 0, len(comments))
	for _, c := range comments {
		resp = append(resp, types.PostComment{
			Id:        c.Id,
			PostId:    c.PostId,
			UserId:    c.UserId,
			Username:  c.Username,
			Content:   c.Content,
			CreatedAt: c.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ChatLinkApp) blockUser(w http.ResponseWriter, r *http.Request) {
	s.setBlock(w, r, true)
}

func (s *ChatLinkApp) unblockUser(w http.ResponseWriter, r *http.Request) {
	s.setBlock(w, r, false)
}

func (s *ChatLinkApp) setBlock(w http.ResponseWriter, r *http.Request, blocked bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UserIdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId == 0 || req.UserId == userId {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var err error
	if blocked {
		err = s.db.BlockUser(userId, req.UserId)
	} else {
		err = s.db.UnblockUser(userId, req.UserId)
	}
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChatLinkApp) getOrCreateConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UserIdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId == 0 || req.UserId == userId {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	blocked, err := s.db.IsBlocked(userId, req.UserId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if blocked {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, err := s.db.GetOrCreateConversation(userId, req.UserId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toConversationResponse(conv))
}

func (s *ChatLinkApp) listConversations(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	convs, err := s.db.ListConversations(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Conversation, 0, len(convs))
	for _, c := range convs {
		resp = append(resp, toConversationResponse(c))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ChatLinkApp) sendDirectMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SendDirectMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RecipientId == 0 || req.RecipientId == userId {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Content == "" {
		errResp := NewValidationError("message is empty")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	blocked, err := s.db.IsBlocked(userId, req.RecipientId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if blocked {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, err := s.db.GetOrCreateConversation(userId, req.RecipientId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dm, err := s.db.CreateDirectMessage(conv.Id, userId, req.Content)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg := toDirectMessageResponse(dm)
	s.cs.NotifyUser(req.RecipientId, &server.ServerMessage{
		BaseMessage: server.BaseMessage{Timestamp: server.Now()},
		Notification: &server.Notification{
			DirectMessage: &msg,
		},
	})

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *ChatLinkApp) getDirectMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	convId, err := strconv.Atoi(r.URL.Query().Get("conversation_id"))
	if err != nil || convId <= 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// the conversation must belong to the caller
	convs, err := s.db.ListConversations(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var found bool
	for _, c := range convs {
		if c.Id == convId {
			found = true
			break
		}
	}
	if !found {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var before time.Time
	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		before, err = time.Parse(time.RFC3339Nano, beforeStr)
		if err != nil {
			errResp := NewValidationError("before must be an RFC 3339 timestamp")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	dms, err := s.db.GetDirectMessages(convId, before, defaultPageSize)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.DirectMessage, 0, len(dms))
	for _, dm := range dms {
		resp = append(resp, toDirectMessageResponse(dm))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ChatLinkApp) userPresence(w http.ResponseWriter, r *http.Request) {
	if s.presence == nil {
		errResp := &ApiError{
			StatusCode: http.StatusServiceUnavailable,
			Message:    "presence tracking is not enabled",
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	targetId, err := strconv.Atoi(r.URL.Query().Get("user_id"))
	if err != nil || targetId <= 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	online, err := s.presence.IsOnline(r.Context(), targetId)
	if err != nil {
		s.log.Println("presence lookup:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]any{
		"user_id": targetId,
		"online":  online,
	})
}

func (s *ChatLinkApp) listReports(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if errResp := s.requireGlobalAdmin(userId); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	reports, err := s.db.ListOpenReports()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.MessageReport, 0, len(reports))
	for _, rep := range reports {
		resp = append(resp, types.MessageReport{
			Id:         rep.Id,
			MessageId:  rep.MessageId,
			ReporterId: rep.ReporterId,
			Reason:     rep.Reason,
			Resolved:   rep.Resolved,
			CreatedAt:  rep.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ChatLinkApp) resolveReport(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if errResp := s.requireGlobalAdmin(userId); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req struct {
		ReportId int `json:"report_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReportId == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.ResolveReport(req.ReportId); err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChatLinkApp) requireGlobalAdmin(userId int) *ApiError {
	isAdmin, err := s.db.HasGlobalRole(userId, "admin")
	if err != nil {
		return NewInternalServerError(err)
	}
	if !isAdmin {
		return NewForbiddenError()
	}

	return nil
}

func toPostResponse(p database.Post) types.Post {
	return types.Post{
		Id:           p.Id,
		UserId:       p.UserId,
		Username:     p.Username,
		Content:      p.Content,
		Tags:         p.Tags,
		LikeCount:    p.LikeCount,
		CommentCount: p.CommentCount,
		LikedByMe:    p.LikedByMe,
		CreatedAt:    p.CreatedAt,
	}
}

func toConversationResponse(c database.Conversation) types.Conversation {
	return types.Conversation{
		Id:        c.Id,
		UserAId:   c.UserAId,
		UserBId:   c.UserBId,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toDirectMessageResponse(dm database.DirectMessage) types.DirectMessage {
	return types.DirectMessage{
		Id:             dm.Id,
		ConversationId: dm.ConversationId,
		SenderId:       dm.SenderId,
		Content:        dm.Content,
		CreatedAt:      dm.CreatedAt,
	}
}
