package server

import (
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chatlink-app/chatlink/internal/types"
)

// maxContentLen bounds the trimmed length of a chat message, in characters.
const maxContentLen = 5000

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Join    *Join    `json:"join,omitempty"`
	Leave   *Leave   `json:"leave,omitempty"`
	Publish *Publish `json:"publish,omitempty"`
	Edit    *Edit    `json:"edit,omitempty"`
	Delete  *Delete  `json:"delete,omitempty"`
	Read    *Read    `json:"read,omitempty"`
	UserId  int      `json:"-"`
	client  *Client  `json:"-"`
}

type Join struct {
	RoomId   string `json:"room_id"`
	Password string `json:"password,omitempty"`
}

type Leave struct {
	RoomId      string `json:"room_id"`
	Unsubscribe bool   `json:"unsubscribe,omitempty"`
}

type Publish struct {
	RoomId         string `json:"room_id"`
	Content        string `json:"content"`
	AttachmentUrl  string `json:"attachment_url,omitempty"`
	AttachmentName string `json:"attachment_name,omitempty"`
	AttachmentType string `json:"attachment_type,omitempty"`
}

type Edit struct {
	RoomId    string `json:"room_id"`
	MessageId string `json:"message_id"`
	Content   string `json:"content"`
}

type Delete struct {
	RoomId    string `json:"room_id"`
	MessageId string `json:"message_id"`
}

type Read struct {
	RoomId    string `json:"room_id"`
	MessageId string `json:"message_id"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response     `json:"response,omitempty"`
	Event        *types.Event  `json:"event,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	// UserId targets a server-wide notification at all connections of one
	// user; zero means room-scoped delivery.
	UserId     int     `json:"-"`
	SkipClient *Client `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	Presence      *Presence            `json:"presence,omitempty"`
	RoomDeleted   *RoomDeleted         `json:"room_deleted,omitempty"`
	DirectMessage *types.DirectMessage `json:"direct_message,omitempty"`
}

type Presence struct {
	Present bool   `json:"present"`
	UserId  int    `json:"user_id"`
	RoomId  string `json:"room_id"`
}

type RoomDeleted struct {
	RoomId string `json:"room_id"`
}

// buildContent normalizes outgoing message content: trims whitespace and
// synthesizes a placeholder for attachment-only sends. The error string is
// user-facing.
func buildContent(content, attachmentName string) (string, string) {
	content = strings.TrimSpace(content)
	if content == "" && attachmentName == "" {
		return "", "message is empty"
	}
	// the cap is in characters so multibyte text is not penalized
	if utf8.RuneCountInString(content) > maxContentLen {
		return "", "message exceeds maximum length"
	}
	if content == "" {
		content = "Sent a file: " + attachmentName
	}

	return content, ""
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrRoomNotFound(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "room not found",
		},
	}
}

func ErrNotFound(id int, msg string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        msg,
		},
	}
}

func ErrForbidden(id int, msg string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        msg,
		},
	}
}

// ErrTooManyRequests rejects a send that exceeded the per-room rate limit.
func ErrTooManyRequests(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusTooManyRequests,
			Error:        "slow down, you are sending messages too quickly",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int, reason string) *ServerMessage {
	if reason == "" {
		reason = "invalid message format"
	}

	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        reason,
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
