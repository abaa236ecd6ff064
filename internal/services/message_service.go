package services

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/osslararemellan/ole/config"
	"github.com/osslararemellan/ole/internal/conversation"
	"github.com/osslararemellan/ole/internal/directory"
	"github.com/osslararemellan/ole/internal/models"
	"github.com/osslararemellan/ole/internal/realtime"
	"github.com/osslararemellan/ole/internal/repositories"
	"github.com/osslararemellan/ole/internal/storage"
	"github.com/osslararemellan/ole/utils/ratelimit"
	"github.com/osslararemellan/ole/utils/snowflake"
)

const (
	messagesTable = "messages"
	snippetRunes  = 100
)

// MessageDeps are the collaborators of MessageService.
type MessageDeps struct {
	Messages  *repositories.MessageRepository
	Groups    *GroupService
	Profiles  *repositories.ProfileRepository
	Files     *repositories.FileRepository
	Resources *repositories.ResourceRepository
	Blobs     storage.BlobStore
	IDs       *snowflake.Generator
	Limiter   ratelimit.Limiter
	Publisher realtime.Publisher
	Limits    config.MessagingConfig
	Logger    *zap.Logger
}

// MessageService reads and writes conversations.
type MessageService struct {
	MessageDeps
	now func() time.Time
}

// NewMessageService creates a MessageService from deps.
func NewMessageService(deps MessageDeps) *MessageService {
	return &MessageService{MessageDeps: deps, now: time.Now}
}

// SendRequest is one outgoing message. Duplicate and zero ids are dropped.
type SendRequest struct {
	Content     string `json:"content"`
	MaterialIDs []uint `json:"material_ids"`
	FileIDs     []uint `json:"file_ids"`
}

// History returns the conversation with target, oldest first. Reading a
// group requires an approved membership.
func (s *MessageService) History(ctx context.Context, me uint, target conversation.Target) ([]MessageDTO, error) {
	switch {
	case target.IsNone():
		return nil, ErrInvalidTarget
	case target.IsGroup():
		if err := s.Groups.RequireApproved(ctx, target.ID(), me); err != nil {
			return nil, err
		}
	}
	rows, err := s.Messages.History(ctx, me, target, s.Limits.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", target, err)
	}
	out := make([]MessageDTO, len(rows))
	for i := range rows {
		out[i] = newMessageDTO(ctx, s.Blobs, s.Logger, &rows[i])
	}
	return out, nil
}

// Send validates req, stores the message with its attachments in one
// transaction and announces the insert.
func (s *MessageService) Send(ctx context.Context, me uint, target conversation.Target, req SendRequest) (*MessageDTO, error) {
	if target.IsNone() {
		return nil, ErrInvalidTarget
	}
	if target.IsDirect() && target.ID() == me {
		return nil, ErrSelfTarget
	}
	materials := uniqueIDs(req.MaterialIDs)
	files := uniqueIDs(req.FileIDs)
	if len(materials) > s.Limits.MaxMaterials {
		return nil, ErrTooManyMaterials
	}
	if len(files) > s.Limits.MaxFiles {
		return nil, ErrTooManyFiles
	}
	if strings.TrimSpace(req.Content) == "" && len(materials) == 0 && len(files) == 0 {
		return nil, ErrEmptyMessage
	}

	if s.Limiter != nil {
		ok, err := s.Limiter.Allow(ctx, ratelimit.ScopeMessage, strconv.FormatUint(uint64(me), 10))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRateLimited
		}
	}

	if err := s.checkAddressee(ctx, me, target); err != nil {
		return nil, err
	}
	if err := s.checkAttachments(ctx, me, materials, files); err != nil {
		return nil, err
	}

	m, err := models.NewMessage(me, target, req.Content)
	if err != nil {
		return nil, ErrInvalidTarget
	}
	if m.ID, err = s.IDs.NextID(); err != nil {
		return nil, fmt.Errorf("allocate message id: %w", err)
	}
	m.CreatedAt = s.now().UTC()
	if err := s.Messages.Create(ctx, m, materials, files); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	announce(ctx, s.Publisher, s.Logger, messagesTable, realtime.Insert, nil, m)

	stored, err := s.Messages.GetByID(ctx, m.ID)
	if err != nil {
		s.Logger.Warn("reload sent message failed", zap.Int64("message_id", m.ID), zap.Error(err))
		stored = m
	}
	dto := newMessageDTO(ctx, s.Blobs, s.Logger, stored)
	return &dto, nil
}

func (s *MessageService) checkAddressee(ctx context.Context, me uint, target conversation.Target) error {
	if target.IsGroup() {
		return s.Groups.RequireApproved(ctx, target.ID(), me)
	}
	ok, err := s.Profiles.Exists(ctx, target.ID())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("receiver: %w", ErrNotFound)
	}
	return nil
}

func (s *MessageService) checkAttachments(ctx context.Context, me uint, materials, files []uint) error {
	if len(materials) > 0 {
		found, err := s.Resources.ExistingIDs(ctx, materials)
		if err != nil {
			return err
		}
		if len(found) != len(materials) {
			return ErrUnknownMaterial
		}
	}
	if len(files) > 0 {
		owned, err := s.Files.OwnedIDs(ctx, me, files)
		if err != nil {
			return err
		}
		if len(owned) != len(files) {
			return ErrFileNotOwned
		}
	}
	return nil
}

// MarkRead clears the caller's unread state for target and returns how many
// direct messages were marked. Group reads advance the watermark and
// report 0.
func (s *MessageService) MarkRead(ctx context.Context, me uint, target conversation.Target) (int64, error) {
	switch {
	case target.IsDirect():
		n, err := s.Messages.MarkDirectRead(ctx, me, target.ID(), s.now().UTC())
		if err != nil {
			return 0, fmt.Errorf("mark %s read: %w", target, err)
		}
		return n, nil
	case target.IsGroup():
		if err := s.Groups.MarkRead(ctx, target.ID(), me); err != nil {
			return 0, fmt.Errorf("mark %s read: %w", target, err)
		}
		return 0, nil
	}
	return 0, ErrInvalidTarget
}

// Summaries lists the caller's direct conversations, newest first, in the
// shape the directory is built from.
func (s *MessageService) Summaries(ctx context.Context, me uint) ([]directory.Summary, error) {
	rows, err := s.Messages.Summaries(ctx, me)
	if err != nil {
		return nil, err
	}
	out := make([]directory.Summary, len(rows))
	for i, r := range rows {
		out[i] = directory.Summary{
			CounterpartID: r.CounterpartID,
			LastMessage:   snippet(r.Last.Content),
			LastMessageAt: r.Last.CreatedAt,
			Unread:        r.Unread,
		}
	}
	return out, nil
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= snippetRunes {
		return s
	}
	r := []rune(s)
	return string(r[:snippetRunes]) + "…"
}

func uniqueIDs(ids []uint) []uint {
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id != 0 && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
