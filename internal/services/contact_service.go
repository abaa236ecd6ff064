package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/osslararemellan/ole/internal/directory"
	"github.com/osslararemellan/ole/internal/models"
	"github.com/osslararemellan/ole/internal/repositories"
)

// ContactService builds the person directory and manages contact edges.
type ContactService struct {
	messages *MessageService
	contacts *repositories.ContactRepository
	profiles *repositories.ProfileRepository
	logger   *zap.Logger
}

// NewContactService creates a ContactService. messages supplies the
// conversation summaries the directory is built from.
func NewContactService(messages *MessageService, contacts *repositories.ContactRepository, profiles *repositories.ProfileRepository, logger *zap.Logger) *ContactService {
	return &ContactService{
		messages: messages,
		contacts: contacts,
		profiles: profiles,
		logger:   logger,
	}
}

// Directory merges conversation history and contacts, then fills in the
// profiles history only knew by id. If that second fetch fails the
// directory is still returned with id-only entries.
func (s *ContactService) Directory(ctx context.Context, me uint) (*directory.Directory, error) {
	summaries, err := s.messages.Summaries(ctx, me)
	if err != nil {
		return nil, fmt.Errorf("load conversation summaries: %w", err)
	}
	contacts, err := s.contacts.Profiles(ctx, me)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}

	dir := directory.Build(summaries, contacts)
	if missing := dir.Missing(); len(missing) > 0 {
		profiles, err := s.profiles.GetByIDs(ctx, missing)
		if err != nil {
			s.logger.Warn("profile backfill failed",
				zap.Uint("user_id", me), zap.Int("missing", len(missing)), zap.Error(err))
		}
		dir.Backfill(profiles)
	}
	return dir, nil
}

// Resolve makes sure id has an entry in dir, fetching the profile on
// demand, and returns that entry.
func (s *ContactService) Resolve(ctx context.Context, dir *directory.Directory, id uint) (directory.Entry, error) {
	if e, ok := dir.Get(id); ok && e.Loaded {
		return e, nil
	}
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return directory.Entry{}, notFound(err, "profile")
	}
	dir.Ensure(p)
	e, _ := dir.Get(id)
	return e, nil
}

// AddContact is idempotent.
func (s *ContactService) AddContact(ctx context.Context, me, contactID uint) error {
	if me == contactID {
		return ErrSelfTarget
	}
	ok, err := s.profiles.Exists(ctx, contactID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("profile: %w", ErrNotFound)
	}
	return s.contacts.Add(ctx, me, contactID)
}

// RemoveContact deletes the edge me -> contactID, or reports ErrNotFound.
func (s *ContactService) RemoveContact(ctx context.Context, me, contactID uint) error {
	removed, err := s.contacts.Remove(ctx, me, contactID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("contact: %w", ErrNotFound)
	}
	return nil
}

// ListContacts returns the explicit contacts of me, sorted by name.
func (s *ContactService) ListContacts(ctx context.Context, me uint) ([]models.Profile, error) {
	return s.contacts.Profiles(ctx, me)
}
