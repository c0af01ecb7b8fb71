package server

import (
	"github.com/chatlink-app/chatlink/internal/database"
	"github.com/chatlink-app/chatlink/internal/types"
)

func toMember(m database.Member) types.Member {
	return types.Member{
		UserId:    m.UserId,
		Username:  m.Username,
		AvatarUrl: m.AvatarUrl,
		Status:    m.Status,
		Role:      types.Role(m.Role),
		JoinedAt:  m.JoinedAt,
	}
}

func toMessage(m database.Message, roomExternalId string) types.Message {
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

func toRoom(r database.Room, members []database.Member) types.Room {
	room := types.Room{
		Id:         r.Id,
		ExternalId: r.ExternalId,
		Name:       r.Name,
		Topic:      r.Topic,
		Category:   r.Category,
		IsPrivate:  r.IsPrivate,
		InviteCode: r.InviteCode,
		OwnerId:    r.OwnerId,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}

	room.Members = make([]types.Member, len(members))
	for i, m := range members {
		room.Members[i] = toMember(m)
	}

	return room
}
