package session

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/osslararemellan/ole/internal/conversation"
	"github.com/osslararemellan/ole/internal/services"
)

var ErrSendInProgress = errors.New("a message is already being sent")

// Sender stores one outgoing message.
type Sender interface {
	Send(ctx context.Context, me uint, target conversation.Target, req services.SendRequest) (*services.MessageDTO, error)
}

// Uploader stores one attachment.
type Uploader interface {
	Upload(ctx context.Context, owner uint, name, contentType string, size int64, body io.Reader) (*services.FileDTO, error)
}

// ComposerState is a copy of the composer for rendering.
type ComposerState struct {
	Draft       string             `json:"draft"`
	MaterialIDs []uint             `json:"material_ids"`
	Files       []services.FileDTO `json:"files"`
	Sending     bool               `json:"sending"`
}

// Composer holds the message being written: text, linked library
// materials and uploaded files. Both lists are bounded.
type Composer struct {
	userID       uint
	sender       Sender
	uploader     Uploader
	maxMaterials int
	maxFiles     int
	logger       *zap.Logger

	mu        sync.Mutex
	draft     string
	materials []uint
	files     []services.FileDTO
	uploading int
	sending   bool
}

func NewComposer(userID uint, sender Sender, uploader Uploader, maxMaterials, maxFiles int, logger *zap.Logger) *Composer {
	return &Composer{
		userID:       userID,
		sender:       sender,
		uploader:     uploader,
		maxMaterials: maxMaterials,
		maxFiles:     maxFiles,
		logger:       logger,
	}
}

func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = text
}

// LinkMaterial adds a resource. It reports false for duplicates and once
// the list is full.
func (c *Composer) LinkMaterial(id uint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == 0 || slices.Contains(c.materials, id) || len(c.materials) >= c.maxMaterials {
		return false
	}
	c.materials = append(c.materials, id)
	return true
}

func (c *Composer) UnlinkMaterial(id uint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.Index(c.materials, id)
	if i < 0 {
		return false
	}
	c.materials = slices.Delete(c.materials, i, i+1)
	return true
}

// Upload stores a file and appends it. A full list is refused before
// storage is touched; a failed upload leaves the composer unchanged.
func (c *Composer) Upload(ctx context.Context, name, contentType string, size int64, body io.Reader) (*services.FileDTO, error) {
	c.mu.Lock()
	if len(c.files)+c.uploading >= c.maxFiles {
		c.mu.Unlock()
		return nil, services.ErrTooManyFiles
	}
	c.uploading++
	c.mu.Unlock()

	f, err := c.uploader.Upload(ctx, c.userID, name, contentType, size, body)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploading--
	if err != nil {
		c.logger.Warn("attachment upload failed",
			zap.Uint("user_id", c.userID), zap.String("file_name", name), zap.Error(err))
		return nil, err
	}
	c.files = append(c.files, *f)
	return f, nil
}

func (c *Composer) RemoveFile(id uint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.IndexFunc(c.files, func(f services.FileDTO) bool { return f.ID == id })
	if i < 0 {
		return false
	}
	c.files = slices.Delete(c.files, i, i+1)
	return true
}

// Send submits the current state to target. Success clears what was sent;
// failure keeps everything for another try.
func (c *Composer) Send(ctx context.Context, target conversation.Target) (*services.MessageDTO, error) {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return nil, ErrSendInProgress
	}
	c.sending = true
	req := services.SendRequest{
		Content:     c.draft,
		MaterialIDs: slices.Clone(c.materials),
		FileIDs:     make([]uint, len(c.files)),
	}
	for i, f := range c.files {
		req.FileIDs[i] = f.ID
	}
	c.mu.Unlock()

	msg, err := c.sender.Send(ctx, c.userID, target, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false
	if err != nil {
		return nil, err
	}
	// Only what went out is cleared; edits made during the send stay.
	if c.draft == req.Content {
		c.draft = ""
	}
	c.materials = slices.DeleteFunc(c.materials, func(id uint) bool {
		return slices.Contains(req.MaterialIDs, id)
	})
	c.files = slices.DeleteFunc(c.files, func(f services.FileDTO) bool {
		return slices.Contains(req.FileIDs, f.ID)
	})
	return msg, nil
}

func (c *Composer) Snapshot() ComposerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ComposerState{
		Draft:       c.draft,
		MaterialIDs: append([]uint{}, c.materials...),
		Files:       append([]services.FileDTO{}, c.files...),
		Sending:     c.sending,
	}
}
