package session

import (
	"github.com/osslararemellan/ole/internal/conversation"
	"github.com/osslararemellan/ole/internal/directory"
	"github.com/osslararemellan/ole/internal/services"
)

type EventType string

const (
	EventDirectory EventType = "directory"
	EventGroups    EventType = "groups"
	EventHistory   EventType = "history"
	EventComposer  EventType = "composer"
	EventNotice    EventType = "notice"
	EventLeftGroup EventType = "left_group"
	EventSent      EventType = "sent"
)

// Event is pushed to whoever renders the session.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

type DirectoryPayload struct {
	Entries []directory.Entry    `json:"entries"`
	Active  conversation.Target `json:"active"`
}

type GroupsPayload struct {
	Groups []services.GroupEntry `json:"groups"`
	Active conversation.Target   `json:"active"`
}

type HistoryPayload struct {
	Target   conversation.Target   `json:"target"`
	Messages []services.MessageDTO `json:"messages"`
}

type NoticePayload struct {
	Message string `json:"message"`
}

type LeftGroupPayload struct {
	GroupID uint   `json:"group_id"`
	Message string `json:"message"`
}

const leftGroupMessage = "You have left this group"
