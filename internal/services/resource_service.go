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

// ResourceService is the teaching material library that messages link to.
type ResourceService struct {
	resources *repositories.ResourceRepository
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewResourceService creates a ResourceService.
func NewResourceService(resources *repositories.ResourceRepository, logger *zap.Logger) *ResourceService {
	return &ResourceService{
		resources: resources,
		validate:  utils.NewValidator(),
		logger:    logger,
	}
}

// CreateResourceRequest is validated as a whole before anything is stored.
type CreateResourceRequest struct {
	Title        string `json:"title" validate:"required,max=200"`
	Description  string `json:"description" validate:"max=5000"`
	Subject      string `json:"subject" validate:"required,max=64"`
	Grade        string `json:"grade" validate:"required,max=32"`
	Difficulty   string `json:"difficulty" validate:"max=32"`
	ResourceType string `json:"resource_type" validate:"required,max=32"`
	FilePath     string `json:"file_path" validate:"required,max=512"`
}

// UpdateResourceRequest changes only the fields that are set.
type UpdateResourceRequest struct {
	Title        *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description  *string `json:"description" validate:"omitempty,max=5000"`
	Subject      *string `json:"subject" validate:"omitempty,min=1,max=64"`
	Grade        *string `json:"grade" validate:"omitempty,min=1,max=32"`
	Difficulty   *string `json:"difficulty" validate:"omitempty,max=32"`
	ResourceType *string `json:"resource_type" validate:"omitempty,min=1,max=32"`
	FilePath     *string `json:"file_path" validate:"omitempty,min=1,max=512"`
}

func (r *UpdateResourceRequest) fields() map[string]any {
	fields := make(map[string]any)
	for col, v := range map[string]*string{
		"title":         r.Title,
		"description":   r.Description,
		"subject":       r.Subject,
		"grade":         r.Grade,
		"difficulty":    r.Difficulty,
		"resource_type": r.ResourceType,
		"file_path":     r.FilePath,
	} {
		if v != nil {
			fields[col] = *v
		}
	}
	return fields
}

// Create checks every required field up front and reports all problems in
// one ValidationError.
func (s *ResourceService) Create(ctx context.Context, me uint, req *CreateResourceRequest) (*models.Resource, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Problems: utils.FieldErrors(err)}
	}
	res := &models.Resource{
		Title:        req.Title,
		Description:  req.Description,
		Subject:      req.Subject,
		Grade:        req.Grade,
		Difficulty:   req.Difficulty,
		ResourceType: req.ResourceType,
		FilePath:     req.FilePath,
		AuthorID:     me,
	}
	if err := s.resources.Create(ctx, res); err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

// Get returns one resource.
func (s *ResourceService) Get(ctx context.Context, id uint) (*models.Resource, error) {
	res, err := s.resources.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "resource")
	}
	return res, nil
}

// Search returns one page of matches and the total count.
func (s *ResourceService) Search(ctx context.Context, f repositories.ResourceFilter) ([]models.Resource, int64, error) {
	return s.resources.Search(ctx, f)
}

// Facets lists the dropdown values for the current subject and grade.
func (s *ResourceService) Facets(ctx context.Context, subject, grade string) (repositories.Facets, error) {
	return s.resources.Facets(ctx, subject, grade)
}

// Update is allowed for the author only.
func (s *ResourceService) Update(ctx context.Context, me uint, id uint, req *UpdateResourceRequest) (*models.Resource, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Problems: utils.FieldErrors(err)}
	}
	res, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.AuthorID != me {
		return nil, ErrForbidden
	}
	if fields := req.fields(); len(fields) > 0 {
		if err := s.resources.Update(ctx, id, fields); err != nil {
			return nil, notFound(err, "resource")
		}
	}
	return s.Get(ctx, id)
}

// Delete is allowed for the author and for admins.
func (s *ResourceService) Delete(ctx context.Context, actor Actor, id uint) error {
	res, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if res.AuthorID != actor.ID && !actor.IsAdmin() {
		return ErrForbidden
	}
	if err := s.resources.Delete(ctx, id); err != nil {
		return notFound(err, "resource")
	}
	s.logger.Info("resource deleted", zap.Uint("resource_id", id), zap.Uint("actor_id", actor.ID))
	return nil
}

// RegisterDownload counts one download and returns the new total.
func (s *ResourceService) RegisterDownload(ctx context.Context, id uint) (int64, error) {
	n, err := s.resources.IncrementDownloads(ctx, id)
	if err != nil {
		return 0, notFound(err, "resource")
	}
	return n, nil
}
