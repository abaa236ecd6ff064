package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/osslararemellan/ole/internal/models"
	"github.com/osslararemellan/ole/internal/realtime"
	"github.com/osslararemellan/ole/internal/repositories"
	"github.com/osslararemellan/ole/internal/utils"
)

const groupMembersTable = "group_members"

// GroupService owns groups and their memberships. Every membership change
// is announced on the group_members table.
type GroupService struct {
	groups    *repositories.GroupRepository
	profiles  *repositories.ProfileRepository
	publisher realtime.Publisher
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewGroupService creates a GroupService. Membership changes are announced
// through publisher.
func NewGroupService(groups *repositories.GroupRepository, profiles *repositories.ProfileRepository, publisher realtime.Publisher, logger *zap.Logger) *GroupService {
	return &GroupService{
		groups:    groups,
		profiles:  profiles,
		publisher: publisher,
		validate:  utils.NewValidator(),
		logger:    logger,
	}
}

// GroupEntry is one row of the group directory: the group plus the
// caller's membership in it.
type GroupEntry struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IconURL     string `json:"icon_url"`
	IsPublic    bool   `json:"is_public"`
	OwnerID     uint   `json:"owner_id"`
	Role        string `json:"role"`
	Status      string `json:"status"`
	Unread      int64  `json:"unread"`
}

// Approved reports whether the caller may open the group conversation.
func (e GroupEntry) Approved() bool {
	return e.Status == models.MemberStatusApproved
}

// CreateGroupRequest is the body of a new group.
type CreateGroupRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
	IconURL     string `json:"icon_url" validate:"max=512"`
	IsPublic    bool   `json:"is_public"`
}

// UpdateGroupRequest changes only the fields that are set.
type UpdateGroupRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	IconURL     *string `json:"icon_url" validate:"omitempty,max=512"`
	IsPublic    *bool   `json:"is_public"`
}

// Directory lists every group the user has a membership row in, whatever
// its status. Unread counts are only computed for approved memberships.
func (s *GroupService) Directory(ctx context.Context, me uint) ([]GroupEntry, error) {
	memberships, err := s.groups.MembershipsOf(ctx, me)
	if err != nil {
		return nil, fmt.Errorf("load memberships: %w", err)
	}
	unread, err := s.groups.UnreadCounts(ctx, me)
	if err != nil {
		return nil, fmt.Errorf("load group unread counts: %w", err)
	}
	out := make([]GroupEntry, 0, len(memberships))
	for _, m := range memberships {
		e := GroupEntry{
			ID:          m.Group.ID,
			Name:        m.Group.Name,
			Description: m.Group.Description,
			IconURL:     m.Group.IconURL,
			IsPublic:    m.Group.IsPublic,
			OwnerID:     m.Group.OwnerID,
			Role:        m.Role,
			Status:      m.Status,
		}
		if m.Approved() {
			e.Unread = unread[m.GroupID]
		}
		out = append(out, e)
	}
	return out, nil
}

// Membership returns the caller's row in the group.
func (s *GroupService) Membership(ctx context.Context, groupID, userID uint) (*models.GroupMember, error) {
	m, err := s.groups.Member(ctx, groupID, userID)
	if repositories.IsNotFound(err) {
		return nil, ErrNotMember
	}
	return m, err
}

// RequireApproved fails unless userID is an approved member of groupID.
func (s *GroupService) RequireApproved(ctx context.Context, groupID, userID uint) error {
	m, err := s.Membership(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !m.Approved() {
		return ErrMembershipNotApproved
	}
	return nil
}

// MarkRead moves an approved member's read watermark to the newest message.
func (s *GroupService) MarkRead(ctx context.Context, groupID, userID uint) error {
	if err := s.RequireApproved(ctx, groupID, userID); err != nil {
		return err
	}
	return s.groups.AdvanceReadMark(ctx, groupID, userID)
}

// Create stores the group and makes me its approved owner.
func (s *GroupService) Create(ctx context.Context, me uint, req *CreateGroupRequest) (*models.Group, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Problems: utils.FieldErrors(err)}
	}
	g := &models.Group{
		Name:        req.Name,
		Description: req.Description,
		IconURL:     req.IconURL,
		IsPublic:    req.IsPublic,
		OwnerID:     me,
	}
	owner, err := s.groups.CreateWithOwner(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	announce(ctx, s.publisher, s.logger, groupMembersTable, realtime.Insert, nil, owner)
	s.logger.Info("group created", zap.Uint("group_id", g.ID), zap.Uint("owner_id", me))
	return g, nil
}

// ownedGroup loads the group and checks that me owns it.
func (s *GroupService) ownedGroup(ctx context.Context, me, groupID uint) (*models.Group, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, notFound(err, "group")
	}
	if g.OwnerID != me {
		return nil, ErrForbidden
	}
	return g, nil
}

// Update edits the group. Only the owner may; the last write wins.
func (s *GroupService) Update(ctx context.Context, me, groupID uint, req *UpdateGroupRequest) (*models.Group, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Problems: utils.FieldErrors(err)}
	}
	if _, err := s.ownedGroup(ctx, me, groupID); err != nil {
		return nil, err
	}
	fields := make(map[string]any)
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.IconURL != nil {
		fields["icon_url"] = *req.IconURL
	}
	if req.IsPublic != nil {
		fields["is_public"] = *req.IsPublic
	}
	if len(fields) > 0 {
		if err := s.groups.Update(ctx, groupID, fields); err != nil {
			return nil, notFound(err, "group")
		}
	}
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, notFound(err, "group")
	}
	return g, nil
}

// Delete removes the group with everything in it and announces each
// membership as deleted.
func (s *GroupService) Delete(ctx context.Context, me, groupID uint) error {
	if _, err := s.ownedGroup(ctx, me, groupID); err != nil {
		return err
	}
	members, err := s.groups.Delete(ctx, groupID)
	if err != nil {
		return notFound(err, "group")
	}
	for i := range members {
		announce(ctx, s.publisher, s.logger, groupMembersTable, realtime.Delete, &members[i], nil)
	}
	s.logger.Info("group deleted", zap.Uint("group_id", groupID), zap.Int("members", len(members)))
	return nil
}

// RequestJoin adds the caller: approved at once for public groups, pending
// the owner's approval otherwise.
func (s *GroupService) RequestJoin(ctx context.Context, me, groupID uint) (*models.GroupMember, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, notFound(err, "group")
	}
	status := models.MemberStatusPending
	if g.IsPublic {
		status = models.MemberStatusApproved
	}
	return s.addMember(ctx, groupID, me, status)
}

// Invite lets the owner invite a person, who then accepts with Approve.
func (s *GroupService) Invite(ctx context.Context, me, groupID, userID uint) (*models.GroupMember, error) {
	if _, err := s.ownedGroup(ctx, me, groupID); err != nil {
		return nil, err
	}
	if userID == me {
		return nil, ErrSelfTarget
	}
	ok, err := s.profiles.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("profile: %w", ErrNotFound)
	}
	return s.addMember(ctx, groupID, userID, models.MemberStatusInvited)
}

func (s *GroupService) addMember(ctx context.Context, groupID, userID uint, status string) (*models.GroupMember, error) {
	m := &models.GroupMember{
		GroupID: groupID,
		UserID:  userID,
		Role:    models.MemberRoleMember,
		Status:  status,
	}
	if err := s.groups.AddMember(ctx, m); err != nil {
		if errors.Is(err, repositories.ErrMemberExists) {
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("add member: %w", err)
	}
	announce(ctx, s.publisher, s.logger, groupMembersTable, realtime.Insert, nil, m)
	return m, nil
}

// Approve moves a membership to approved. The owner approves pending join
// requests; an invitee accepts their own invitation.
func (s *GroupService) Approve(ctx context.Context, me, groupID, userID uint) (*models.GroupMember, error) {
	m, err := s.Membership(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	switch {
	case me == userID && m.Status == models.MemberStatusInvited:
	case me != userID && m.Status == models.MemberStatusPending:
		if _, err := s.ownedGroup(ctx, me, groupID); err != nil {
			return nil, err
		}
	case me != userID && m.Status == models.MemberStatusInvited:
		return nil, ErrForbidden
	default:
		return nil, ErrInvalidMemberState
	}

	before, after, err := s.groups.SetMemberStatus(ctx, groupID, userID, models.MemberStatusApproved)
	if err != nil {
		return nil, notFound(err, "membership")
	}
	announce(ctx, s.publisher, s.logger, groupMembersTable, realtime.Update, before, after)
	return after, nil
}

// Leave deletes the caller's own membership. The owner has to delete the
// group instead.
func (s *GroupService) Leave(ctx context.Context, me, groupID uint) error {
	m, err := s.Membership(ctx, groupID, me)
	if err != nil {
		return err
	}
	if m.IsOwner() {
		return ErrOwnerCannotLeave
	}
	return s.removeMember(ctx, groupID, me)
}

// RemoveMember lets the owner remove anyone but themselves.
func (s *GroupService) RemoveMember(ctx context.Context, me, groupID, userID uint) error {
	if _, err := s.ownedGroup(ctx, me, groupID); err != nil {
		return err
	}
	if userID == me {
		return ErrOwnerCannotLeave
	}
	return s.removeMember(ctx, groupID, userID)
}

func (s *GroupService) removeMember(ctx context.Context, groupID, userID uint) error {
	removed, err := s.groups.RemoveMember(ctx, groupID, userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return ErrNotMember
		}
		return fmt.Errorf("remove member: %w", err)
	}
	announce(ctx, s.publisher, s.logger, groupMembersTable, realtime.Delete, removed, nil)
	s.logger.Info("membership removed", zap.Uint("group_id", groupID), zap.Uint("user_id", userID))
	return nil
}

// Members lists the group's memberships. Approved members see everyone;
// for anyone else a public group shows only its approved members.
func (s *GroupService) Members(ctx context.Context, me, groupID uint) ([]models.GroupMember, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, notFound(err, "group")
	}
	approved := s.RequireApproved(ctx, groupID, me) == nil
	if !approved && !g.IsPublic {
		return nil, ErrForbidden
	}
	rows, err := s.groups.Members(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if approved {
		return rows, nil
	}
	visible := rows[:0]
	for _, m := range rows {
		if m.Approved() {
			visible = append(visible, m)
		}
	}
	return visible, nil
}
