package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chatlink-app/chatlink/internal/config"
	"github.com/chatlink-app/chatlink/internal/database"
	"github.com/chatlink-app/chatlink/internal/server"
	"github.com/chatlink-app/chatlink/internal/stats"
	"github.com/chatlink-app/chatlink/internal/testutil"
	"github.com/chatlink-app/chatlink/internal/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// findCookie is a helper function to find a cookie by name in the response recorder.
// It returns the cookie if found, or nil if not found.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func newTestApp(t *testing.T, repo database.ChatLinkRepository, cs *server.ChatServer) *ChatLinkApp {
	t.Helper()
	app := NewChatLinkApp(http.NewServeMux(), testutil.TestLogger(t), cs, repo, nil, nil, nil, &config.Config{
		SigningKey: []byte("test-signing-key"),
	})
	t.Cleanup(app.limiter.Stop)
	return app
}

func newTestChatServer(t *testing.T, repo database.ChatLinkRepository, su *stats.MockStatsUpdater) *server.ChatServer {
	t.Helper()
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(6)

	cs, err := server.NewChatServer(testutil.TestLogger(t), repo, su, nil)
	if err != nil {
		t.Fatalf("failed to create chat server: %v", err)
	}
	return cs
}

func Test_healthz(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockChatLinkRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("Ping").Return(tc.mockErr).Once()

			app := newTestApp(t, mockRepo, nil)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthz(rr, req)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
			} else {
				assert.Equal(t, http.StatusOK, rr.Code)
			}
		})
	}
}

func TestCreateAccountHandler(t *testing.T) {
	expectedUser := database.User{
		Id:           1,
		Username:     "newuser",
		EmailAddress: "newuser@example.com",
		PasswordHash: "hashedpassword",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	tcases := []struct {
		name        string
		body        any
		success     bool
		mockUser    database.User
		mockErr     error
		expectedErr *ApiError
	}{
		{
			name: "successfully creates a new account",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			success:     true,
			mockUser:    expectedUser,
			mockErr:     nil,
			expectedErr: nil,
		},
		{
			name:        "fails with invalid json body",
			body:        "invalid json",
			success:     false,
			mockUser:    database.User{},
			mockErr:     nil,
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails with missing username",
			body: RegisterRequest{
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			success:     false,
			mockUser:    database.User{},
			mockErr:     nil,
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails with missing email",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Password: "password",
			},
			success:     false,
			mockUser:    database.User{},
			mockErr:     nil,
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails with missing password",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
			},
			success:     false,
			mockUser:    database.User{},
			mockErr:     nil,
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails with db error",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			success:     false,
			mockUser:    database.User{},
			mockErr:     errors.New("db error"),
			expectedErr: NewInternalServerError(nil),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockChatLinkRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.mockUser != (database.User{}) || tc.mockErr != nil {
				regReq, ok := tc.body.(RegisterRequest)
				if !ok {
					t.Fatalf("unsupported request body type: %T", tc.body)
				}
				mockRepo.On("CreateAccount", mock.MatchedBy(func(params database.CreateAccountParams) bool {
					return params.Username == regReq.Username &&
						params.EmailAddress == regReq.Email &&
						verifyPassword(params.PasswordHash, regReq.Password)
				})).Return(tc.mockUser, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo, nil)

			var req *http.Request
			switch v := tc.body.(type) {
			case string:
				req = httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(v))
			case RegisterRequest:
				body, err := json.Marshal(v)
				assert.NoError(t, err, "failed to marshal request body")
				req = httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBuffer(body))
			default:
				t.Fatalf("unsupported request body type: %T", v)
			}

			rr := httptest.NewRecorder()
			app.createAccount(rr, req)

			if tc.success {
				assert.Equal(t, http.StatusCreated, rr.Code)

				var user types.User
				err := json.NewDecoder(rr.Body).Decode(&user)
				assert.NoError(t, err, "failed to decode response")
				assert.Equal(t, expectedUser.Id, user.Id)
				assert.Equal(t, expectedUser.Username, user.Username)
				assert.Equal(t, expectedUser.EmailAddress, user.EmailAddress)
			} else {
				var apiErr ApiError
				err := json.NewDecoder(rr.Body).Decode(&apiErr)
				assert.NoError(t, err, "failed to decode error response")
				assert.Equal(t, tc.expectedErr.StatusCode, rr.Code, "expected status code to match")
				assert.Equal(t, *tc.expectedErr, apiErr, "expected ApiError response")
			}
		})
	}
}

func Test_login(t *testing.T) {
	mockUser := database.User{
		Id:           1,
		Username:     "testuser",
		EmailAddress: "testuser@example.com",
		PasswordHash: "$2a$10$dP8ByMfAiDG54vZg/SwEkuJN0ttMSaUFbA3KzcxeriGN31lIXuCu2", // hash for "password123"
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	testCases := []struct {
		name        string
		body        any
		mockUser    database.User
		mockErr     error
		success     bool
		expectError *ApiError
	}{
		{
			name: "successful login",
			body: LoginRequest{
				Email:    "testuser@example.com",
				Password: "password123",
			},
			mockUser:    mockUser,
			mockErr:     nil,
			success:     true,
			expectError: nil,
		},
		{
			name:        "fails with invalid json body",
			body:        "invalid json",
			mockUser:    database.User{},
			mockErr:     nil,
			success:     false,
			expectError: NewBadRequestError(),
		},
		{
			name: "fails with missing email",
			body: LoginRequest{
				Password: "password123",
			},
			mockUser:    database.User{},
			mockErr:     nil,
			success:     false,
			expectError: NewBadRequestError(),
		},
		{
			name: "fails with db error",
			body: LoginRequest{
				Email:    "testuser@example.com",
				Password: "password123",
			},
			mockUser:    database.User{},
			mockErr:     errors.New("db error"),
			success:     false,
			expectError: NewInternalServerError(nil),
		},
		{
			name: "fails with incorrect password",
			body: LoginRequest{
				Email:    "testuser@example.com",
				Password: "wrong-password",
			},
			mockUser:    mockUser,
			mockErr:     nil,
			success:     false,
			expectError: NewUnauthorizedError(),
		},
		{
			name: "guest accounts cannot log in",
			body: LoginRequest{
				Email:    "testuser@example.com",
				Password: "password123",
			},
			mockUser: database.User{
				Id:           2,
				Username:     "guest",
				EmailAddress: "testuser@example.com",
				IsGuest:      true,
			},
			mockErr:     nil,
			success:     false,
			expectError: NewUnauthorizedError(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockChatLinkRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.mockUser != (database.User{}) || tc.mockErr != nil {
				req, ok := tc.body.(LoginRequest)
				assert.Truef(t, ok, "expected body to be of type LoginRequest, got %T", tc.body)
				mockRepo.On("GetAccountByEmail", req.Email).Return(tc.mockUser, tc.mockErr)
			}

			app := newTestApp(t, mockRepo, nil)

			var req *http.Request
			switch v := tc.body.(type) {
			case string:
				req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(v))
			default:
				body, err := json.Marshal(tc.body)
				assert.NoErrorf(t, err, "failed to marshal login request: %v", err)
				req = httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBuffer(body))
			}

			rr := httptest.NewRecorder()
			app.login(rr, req)

			if tc.success {
				token := findCookie(rr, tokenCookieKey)
				assert.NotNil(t, token, "expected token cookie to be set")
				assert.NotEmpty(t, token.Value, "expected token value to be set")

				var u types.User
				err := json.NewDecoder(rr.Body).Decode(&u)
				assert.NoErrorf(t, err, "failed to decode response: %v", err)
				assert.Equal(t, http.StatusOK, rr.Code)
				assert.Equal(t, tc.mockUser.Id, u.Id)
				assert.Equal(t, tc.mockUser.Username, u.Username)
			} else {
				var e ApiError
				err := json.NewDecoder(rr.Body).Decode(&e)
				assert.NoErrorf(t, err, "failed to decode response: %v", err)
				assert.Equal(t, e.StatusCode, rr.Code, "expected status code to match")
				assert.Equal(t, *tc.expectError, e, "expected ApiError response")
			}
		})
	}
}

func Test_logout(t *testing.T) {
	app := newTestApp(t, &database.MockChatLinkRepository{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(createJwtCookie("testtoken", defaultJwtExpiration))
	rr := httptest.NewRecorder()
	app.logout(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)

	token := findCookie(rr, tokenCookieKey)
	assert.NotNil(t, token, "expected token cookie to be set")
	assert.WithinDuration(t, token.Expires, time.Now(), time.Second, "expected token to be expired")
	assert.Equal(t, "", token.Value, "expected token value to be empty")
}

func Test_createRoom(t *testing.T) {
	mockRoom := database.Room{
		Id:         1,
		Name:       "Test Room",
		ExternalId: "EoGKUXPHgz",
		Topic:      "general chatter",
		Category:   "general",
		InviteCode: "EoGKUXPHgz",
		OwnerId:    1,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	tcases := []struct {
		name        string
		body        any
		userId      int
		mockRoom    database.Room
		mockErr     error
		shortIdErr  error
		expectedErr *ApiError
	}{
		{
			name: "successfully creates a room",
			body: CreateRoomRequest{
				Name:     "Test Room",
				Topic:    "general chatter",
				Category: "general",
			},
			userId:      1,
			mockRoom:    mockRoom,
			mockErr:     nil,
			expectedErr: nil,
		},
		{
			name:        "fails with invalid json body",
			body:        "invalid json",
			userId:      1,
			mockRoom:    database.Room{},
			mockErr:     nil,
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "missing room name",
			body:        CreateRoomRequest{Topic: "general chatter"},
			userId:      1,
			mockRoom:    database.Room{},
			mockErr:     nil,
			expectedErr: NewValidationError("room name cannot be empty"),
		},
		{
			name: "fails with no user id in context",
			body: CreateRoomRequest{
				Name: "Test Room",
			},
			userId:      0,
			mockRoom:    database.Room{},
			mockErr:     nil,
			expectedErr: NewUnauthorizedError(),
		},
		{
			name: "fails to generate short id",
			body: CreateRoomRequest{
				Name: "Test Room",
			},
			userId:      1,
			mockRoom:    database.Room{},
			mockErr:     nil,
			shortIdErr:  errors.New("failed to generate short id"),
			expectedErr: NewInternalServerError(nil),
		},
		{
			name: "fails with db error",
			body: CreateRoomRequest{
				Name: "Test Room",
			},
			userId:      1,
			mockRoom:    mockRoom,
			mockErr:     errors.New("db error"),
			expectedErr: NewBadRequestError(),
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockChatLinkRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.mockRoom.Id != 0 || tc.mockErr != nil {
				createRoomReq, ok := tc.body.(CreateRoomRequest)
				if !ok {
					t.Fatalf("expected body to be of type CreateRoomRequest, got %T", tc.body)
				}
				mockRepo.On("CreateRoom", mock.MatchedBy(func(params database.CreateRoomParams) bool {
					return params.Name == createRoomReq.Name &&
						params.Topic == createRoomReq.Topic &&
						params.OwnerId == tc.userId &&
						params.ExternalId == tc.mockRoom.ExternalId
				})).Return(tc.mockRoom, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo, nil)
			app.generateShortId = func() (string, error) {
				if tc.shortIdErr != nil {
					return "", tc.shortIdErr
				}
				return mockRoom.ExternalId, nil
			}

			body, err := json.Marshal(tc.body)
			assert.NoErrorf(t, err, "failed to marshal request body: %v", err)
			req := httptest.NewRequest(http.MethodPost, "/api/rooms", bytes.NewBuffer(body))

			if tc.userId > 0 {
				ctx := WithUserId(req.Context(), tc.userId)
				req = req.WithContext(ctx)
			}

			rr := httptest.NewRecorder()
			app.createRoom(rr, req)

			if tc.expectedErr != nil {
				var apiErr ApiError
				err := json.NewDecoder(rr.Body).Decode(&apiErr)
				assert.NoErrorf(t, err, "failed to decode error response: %v", err)
				assert.Equal(t, rr.Code, tc.expectedErr.StatusCode, "expected status code to match")
				assert.Equal(t, *tc.expectedErr, apiErr, "expected ApiError response")
			} else {
				assert.Equal(t, http.StatusCreated, rr.Code)

				var room types.Room
				err := json.NewDecoder(rr.Body).Decode(&room)
				assert.NoErrorf(t, err, "failed to decode response: %v", err)
				assert.Equal(t, tc.mockRoom.Id, room.Id, "expected room id to match")
				assert.Equal(t, tc.mockRoom.Name, room.Name, "expected room name to match")
				assert.Equal(t, tc.mockRoom.ExternalId, room.ExternalId, "expected room external id to match")
				assert.Equal(t, tc.mockRoom.OwnerId, room.OwnerId, "expected room owner id to match requester ID")
				assert.Equal(t, tc.mockRoom.InviteCode, room.InviteCode, "owner should see the invite code")

				// the owner membership is created inside CreateRoom's
				// transaction; a second insert would violate the
				// room_members primary key
				mockRepo.AssertNotCalled(t, "AddMember", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func Test_deleteRoom(t *testing.T) {
	mockRoom := database.Room{
		Id:         1,
		Name:       "Test Room",
		ExternalId: "EoGKUXPHgz",
		OwnerId:    1,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	tcases := []struct {
		name                       string
		userId                     int
		roomId                     string
		mockRoom                   database.Room
		mockGetRoomByExternalIdErr error
		mockDeleteRoomErr          error
		expectedErr                *ApiError
	}{
		{
			name:        "successfully deletes a room",
			userId:      1,
			roomId:      mockRoom.ExternalId,
			mockRoom:    mockRoom,
			expectedErr: nil,
		},
		{
			name:        "fails with no query parameter",
			userId:      1,
			roomId:      "",
			expectedErr: NewBadRequestError(),
		},
		{
			name:                       "fails with room not found",
			userId:                     1,
			roomId:                     "not-found",
			mockGetRoomByExternalIdErr: sql.ErrNoRows,
			expectedErr:                NewNotFoundError(),
		},
		{
			name:        "fails with forbidden access",
			userId:      2,
			roomId:      mockRoom.ExternalId,
			mockRoom:    mockRoom,
			expectedErr: NewForbiddenError(),
		},
		{
			name:              "fails with db error on delete room",
			userId:            1,
			roomId:            mockRoom.ExternalId,
			mockRoom:          mockRoom,
			mockDeleteRoomErr: errors.New("db error"),
			expectedErr:       NewInternalServerError(nil),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockChatLinkRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.roomId != "" || tc.mockGetRoomByExternalIdErr != nil {
				mockRepo.On("GetRoomByExternalId", tc.roomId).Return(tc.mockRoom, tc.mockGetRoomByExternalIdErr).Once()
			}

			if tc.mockRoom.Id != 0 && tc.userId == tc.mockRoom.OwnerId {
				mockRepo.On("DeleteRoom", tc.mockRoom.Id).Return(tc.mockDeleteRoomErr).Once()
			}

			su := &stats.MockStatsUpdater{}
			defer su.AssertExpectations(t)
			cs := newTestChatServer(t, mockRepo, su)

			go cs.Run()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				cs.Shutdown(ctx)
			}()

			app := newTestApp(t, mockRepo, cs)

			var queryString string
			if tc.roomId != "" {
				queryString = "?id=" + tc.roomId
			}
			req := httptest.NewRequest(http.MethodDelete, "/api/rooms"+queryString, nil)

			if tc.userId > 0 {
				ctx := WithUserId(req.Context(), tc.userId)
				req = req.WithContext(ctx)
			}

			rr := httptest.NewRecorder()
			app.deleteRoom(rr, req)

			if tc.expectedErr != nil {
				var apiErr ApiError
				err := json.NewDecoder(rr.Body).Decode(&apiErr)
				assert.NoErrorf(t, err, "failed to decode error response: %v", err)
				assert.Equal(t, rr.Code, tc.expectedErr.StatusCode, "expected status code to match")
				assert.Equal(t, *tc.expectedErr, apiErr, "expected ApiError response")
			} else {
				assert.Equal(t, http.StatusNoContent, rr.Code)
			}
		})
	}
}

func Test_getMessages(t *testing.T) {
	fixedTime := time.Date(2025, time.June, 28, 11, 17, 54, 0, time.UTC)
	mockRoom := database.Room{Id: 1, ExternalId: "EoGKUXPHgz"}
	member := database.Member{RoomId: 1, UserId: 1, Role: string(types.RoleMember)}

	makeMessages := func(n int) []database.Message {
		msgs := make([]database.Message, 0, n)
		for i := 0; i < n; i++ {
			msgs = append(msgs, database.Message{
				Id:        fmt.Sprintf("msg-%d", n-i),
				RoomId:    1,
				UserId:    1,
				Content:   fmt.Sprintf("message %d", n-i),
				Type:      types.MessageTypeChat,
				CreatedAt: fixedTime.Add(-time.Duration(i) * time.Minute),
			})
		}
		return msgs
	}

	t.Run("has_more is false when history is exhausted", func(t *testing.T) {
		mockRepo := &database.MockChatLinkRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoomByExternalId", mockRoom.ExternalId).Return(mockRoom, nil).Once()
		mockRepo.On("GetMember", mockRoom.Id, 1).Return(member, nil).Once()
		// exactly limit rows come back, so no extra row exists
		mockRepo.On("GetMessages", mockRoom.Id, time.Time{}, 3).Return(makeMessages(2), nil).Once()

		app := newTestApp(t, mockRepo, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/messages?room_id="+mockRoom.ExternalId+"&limit=2", nil)
		req = req.WithContext(WithUserId(req.Context(), 1))

		rr := httptest.NewRecorder()
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp MessagesResponse
		err := json.NewDecoder(rr.Body).Decode(&resp)
		assert.NoError(t, err)
		assert.Len(t, resp.Messages, 2)
		assert.False(t, resp.HasMore, "a full page alone must not imply more history")
	})

	t.Run("has_more is true when an extra row exists", func(t *testing.T) {
		mockRepo := &database.MockChatLinkRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoomByExternalId", mockRoom.ExternalId).Return(mockRoom, nil).Once()
		mockRepo.On("GetMember", mockRoom.Id, 1).Return(member, nil).Once()
		mockRepo.On("GetMessages", mockRoom.Id, time.Time{}, 3).Return(makeMessages(3), nil).Once()

		app := newTestApp(t, mockRepo, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/messages?room_id="+mockRoom.ExternalId+"&limit=2", nil)
		req = req.WithContext(WithUserId(req.Context(), 1))

		rr := httptest.NewRecorder()
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp MessagesResponse
		err := json.NewDecoder(rr.Body).Decode(&resp)
		assert.NoError(t, err)
		assert.Len(t, resp.Messages, 2, "the extra row must be trimmed from the page")
		assert.True(t, resp.HasMore)
		for _, m := range resp.Messages {
			assert.Equal(t, mockRoom.ExternalId, m.RoomId)
		}
	})

	t.Run("before cursor is forwarded", func(t *testing.T) {
		mockRepo := &database.MockChatLinkRepository{}
		defer mockRepo.AssertExpectations(t)

		before := fixedTime.Add(-time.Hour)
		mockRepo.On("GetRoomByExternalId", mockRoom.ExternalId).Return(mockRoom, nil).Once()
		mockRepo.On("GetMember", mockRoom.Id, 1).Return(member, nil).Once()
		mockRepo.On("GetMessages", mockRoom.Id, before, defaultPageSize+1).Return([]database.Message{}, nil).Once()

		app := newTestApp(t, mockRepo, nil)

		url := "/api/messages?room_id=" + mockRoom.ExternalId + "&before=" + before.Format(time.RFC3339Nano)
		req := httptest.NewRequest(http.MethodGet, url, nil)
		req = req.WithContext(WithUserId(req.Context(), 1))

		rr := httptest.NewRecorder()
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp MessagesResponse
		err := json.NewDecoder(rr.Body).Decode(&resp)
		assert.NoError(t, err)
		assert.Empty(t, resp.Messages)
		assert.False(t, resp.HasMore)
	})

	errCases := []struct {
		name        string
		userId      int
		roomId      string
		memberErr   error
		roomErr     error
		query       string
		expectedErr *ApiError
	}{
		{
			name:        "missing room_id query parameter",
			userId:      1,
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "room not found",
			userId:      1,
			roomId:      "nonexistent",
			roomErr:     sql.ErrNoRows,
			expectedErr: NewNotFoundError(),
		},
		{
			name:        "non-members cannot read history",
			userId:      1,
			roomId:      mockRoom.ExternalId,
			memberErr:   sql.ErrNoRows,
			expectedErr: NewForbiddenError(),
		},
		{
			name:        "invalid before parameter",
			userId:      1,
			roomId:      mockRoom.ExternalId,
			query:       "&before=invalid",
			expectedErr: NewValidationError("before must be an RFC 3339 timestamp"),
		},
		{
			name:        "invalid limit parameter",
			userId:      1,
			roomId:      mockRoom.ExternalId,
			query:       "&limit=invalid",
			expectedErr: NewBadRequestError(),
		},
	}

	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockChatLinkRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.roomId != "" {
				mockRepo.On("GetRoomByExternalId", tc.roomId).Return(mockRoom, tc.roomErr).Once()
			}
			if tc.roomId != "" && tc.roomErr == nil {
				mockRepo.On("GetMember", mockRoom.Id, tc.userId).Return(member, tc.memberErr).Once()
			}

			app := newTestApp(t, mockRepo, nil)

			url := "/api/messages"
			if tc.roomId != "" {
				url += "?room_id=" + tc.roomId + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			req = req.WithContext(WithUserId(req.Context(), tc.userId))

			rr := httptest.NewRecorder()
			app.getMessages(rr, req)

			var apiErr ApiError
			err := json.NewDecoder(rr.Body).Decode(&apiErr)
			assert.NoError(t, err, "failed to decode error response")
			assert.Equal(t, tc.expectedErr.StatusCode, rr.Code, "expected status code to match")
			assert.Equal(t, *tc.expectedErr, apiErr, "expected ApiError response")
		})
	}
}

func Test_joinByInviteCode(t *testing.T) {
	mockRoom := database.Room{
		Id:         1,
		ExternalId: "EoGKUXPHgz",
		Name:       "Test Room",
		InviteCode: "inv-code",
		OwnerId:    2,
	}

	t.Run("adds a new member and publishes the change", func(t *testing.T) {
		mockRepo := &database.MockChatLinkRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoomByInviteCode", mockRoom.InviteCode).Return(mockRoom, nil).Once()
		mockRepo.On("IsBanned", mockRoom.Id, 1).Return(false, nil).Once()
		mockRepo.On("GetMember", mockRoom.Id, 1).Return(database.Member{}, sql.ErrNoRows).Once()
		mockRepo.On("AddMember", mockRoom.Id, 1, string(types.RoleMember)).
			Return(database.Member{RoomId: mockRoom.Id, UserId: 1, Username: "joiner", Role: string(types.RoleMember)}, nil).Once()

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		cs := newTestChatServer(t, mockRepo, su)

		app := newTestApp(t, mockRepo, cs)

		body, _ := json.Marshal(JoinRoomRequest{Code: mockRoom.InviteCode})
		req := httptest.NewRequest(http.MethodPost, "/api/rooms/join", bytes.NewBuffer(body))
		req = req.WithContext(WithUserId(req.Context(), 1))

		rr := httptest.NewRecorder()
		app.joinByInviteCode(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var room types.Room
		err := json.NewDecoder(rr.Body).Decode(&room)
		assert.NoError(t, err)
		assert.Equal(t, mockRoom.ExternalId, room.ExternalId)
		assert.Empty(t, room.InviteCode, "plain members must not see the invite code")
	})

	t.Run("banned users are rejected", func(t *testing.T) {
		mockRepo := &database.MockChatLinkRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoomByInviteCode", mockRoom.InviteCode).Return(mockRoom, nil).Once()
		mockRepo.On("IsBanned", mockRoom.Id, 1).Return(true, nil).Once()

		app := newTestApp(t, mockRepo, nil)

		body, _ := json.Marshal(JoinRoomRequest{Code: mockRoom.InviteCode})
		req := httptest.NewRequest(http.MethodPost, "/api/rooms/join", bytes.NewBuffer(body))
		req = req.WithContext(WithUserId(req.Context(), 1))

		rr := httptest.NewRecorder()
		app.joinByInviteCode(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("unknown invite code", func(t *testing.T) {
		mockRepo := &database.MockChatLinkRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoomByInviteCode", "bogus").Return(database.Room{}, sql.ErrNoRows).Once()

		app := newTestApp(t, mockRepo, nil)

		body, _ := json.Marshal(JoinRoomRequest{Code: "bogus"})
		req := httptest.NewRequest(http.MethodPost, "/api/rooms/join", bytes.NewBuffer(body))
		req = req.WithContext(WithUserId(req.Context(), 1))

		rr := httptest.NewRecorder()
		app.joinByInviteCode(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func Test_serveWs(t *testing.T) {
	mockUser := database.User{
		Id:           1,
		Username:     "testuser",
		EmailAddress: "testuser@example.com",
		PasswordHash: "examplehash",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	t.Run("successful websocket upgrade and client registration", func(t *testing.T) {
		mockRepo := &database.MockChatLinkRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("Incr", stats.ActiveConnections).Return(nil).Maybe()
		su.On("Decr", stats.ActiveConnections).Return(nil).Maybe()

		cs := newTestChatServer(t, mockRepo, su)
		go cs.Run()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			cs.Shutdown(ctx)
		}()

		mockRepo.On("GetAccountById", mockUser.Id).Return(mockUser, nil).Once()

		app := newTestApp(t, mockRepo, cs)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithUserId(r.Context(), 1)
			r = r.WithContext(ctx)
			app.serveWs(w, r)
		}))
		defer srv.Close()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{})
		defer func() {
			if conn != nil {
				conn.Close()
			}
		}()
		assert.NoError(t, err)
		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	})

	errorTestCases := []struct {
		name        string
		userId      int
		mockUser    database.User
		mockErr     error
		expectedErr *ApiError
	}{
		{
			name:        "unauthorized user",
			userId:      0,
			expectedErr: NewUnauthorizedError(),
		},
		{
			name:        "user not found",
			userId:      1,
			mockErr:     sql.ErrNoRows,
			expectedErr: NewNotFoundError(),
		},
		{
			name:        "db error",
			userId:      1,
			mockErr:     errors.New("db error"),
			expectedErr: NewInternalServerError(nil),
		},
	}

	for _, tc := range errorTestCases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockChatLinkRepository{}
			defer mockRepo.AssertExpectations(t)

			su := &stats.MockStatsUpdater{}
			defer su.AssertExpectations(t)
			cs := newTestChatServer(t, mockRepo, su)

			app := newTestApp(t, mockRepo, cs)

			if tc.mockUser != (database.User{}) || tc.mockErr != nil {
				mockRepo.On("GetAccountById", tc.userId).Return(tc.mockUser, tc.mockErr).Once()
			}

			req := httptest.NewRequest(http.MethodGet, "/ws", nil)

			if tc.userId > 0 {
				ctx := WithUserId(req.Context(), 1)
				req = req.WithContext(ctx)
			}

			rr := httptest.NewRecorder()
			app.serveWs(rr, req)

			var apiErr ApiError
			err := json.NewDecoder(rr.Body).Decode(&apiErr)
			assert.NoError(t, err, "failed to decode ApiError response")
			assert.Equal(t, apiErr.StatusCode, rr.Code)
			assert.Equal(t, *tc.expectedErr, apiErr, "expected ApiError to match")
		})
	}
}
