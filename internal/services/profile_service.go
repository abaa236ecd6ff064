package services

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/osslararemellan/ole/internal/models"
	"github.com/osslararemellan/ole/internal/repositories"
	"github.com/osslararemellan/ole/internal/utils"
)

// ProfileService reads and edits profiles and keeps their cache fresh.
type ProfileService struct {
	profiles *repositories.ProfileRepository
	validate *validator.Validate
	logger   *zap.Logger
}

// NewProfileService creates a ProfileService.
func NewProfileService(profiles *repositories.ProfileRepository, logger *zap.Logger) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		validate: utils.NewValidator(),
		logger:   logger,
	}
}

// UpdateProfileRequest edits the caller's own profile. Nil fields are left
// unchanged.
type UpdateProfileRequest struct {
	FullName       *string `json:"full_name" validate:"omitempty,min=1,max=120"`
	AvatarURL      *string `json:"avatar_url" validate:"omitempty,max=512"`
	Title          *string `json:"title" validate:"omitempty,max=120"`
	School         *string `json:"school" validate:"omitempty,max=200"`
	Subjects       *string `json:"subjects" validate:"omitempty,max=512"`
	Interests      *string `json:"interests" validate:"omitempty,max=512"`
	EducationLevel *string `json:"education_level" validate:"omitempty,max=64"`
}

func (r *UpdateProfileRequest) fields() map[string]any {
	fields := make(map[string]any)
	set := func(col string, v *string) {
		if v != nil {
			fields[col] = *v
		}
	}
	set("full_name", r.FullName)
	set("avatar_url", r.AvatarURL)
	set("title", r.Title)
	set("school", r.School)
	set("subjects", r.Subjects)
	set("interests", r.Interests)
	set("education_level", r.EducationLevel)
	return fields
}

// Get returns the profile with id.
func (s *ProfileService) Get(ctx context.Context, id uint) (*models.Profile, error) {
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "profile")
	}
	return p, nil
}

// Update applies req to the caller's profile, creating the row on first
// edit since profiles originate at the identity provider.
func (s *ProfileService) Update(ctx context.Context, me uint, req *UpdateProfileRequest) (*models.Profile, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Problems: utils.FieldErrors(err)}
	}
	fields := req.fields()
	if len(fields) == 0 {
		return s.Get(ctx, me)
	}

	err := s.profiles.Update(ctx, me, fields)
	if repositories.IsNotFound(err) {
		p := &models.Profile{ID: me, Role: models.ProfileRoleUser}
		applyProfileFields(p, req)
		err = s.profiles.Upsert(ctx, p)
	}
	if err != nil {
		return nil, fmt.Errorf("update profile %d: %w", me, err)
	}
	return s.Get(ctx, me)
}

func applyProfileFields(p *models.Profile, req *UpdateProfileRequest) {
	for _, f := range []struct {
		dst *string
		src *string
	}{
		{&p.FullName, req.FullName},
		{&p.AvatarURL, req.AvatarURL},
		{&p.Title, req.Title},
		{&p.School, req.School},
		{&p.Subjects, req.Subjects},
		{&p.Interests, req.Interests},
		{&p.EducationLevel, req.EducationLevel},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
}

// Delete soft-deletes a profile. Only admins may do it.
func (s *ProfileService) Delete(ctx context.Context, actor Actor, id uint) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if err := s.profiles.Delete(ctx, id); err != nil {
		return notFound(err, "profile")
	}
	s.logger.Info("profile deleted by admin", zap.Uint("profile_id", id), zap.Uint("admin_id", actor.ID))
	return nil
}

// Search matches q against profile names.
func (s *ProfileService) Search(ctx context.Context, q string, limit int) ([]models.Profile, error) {
	return s.profiles.Search(ctx, q, limit)
}
