package server

import (
	"context"
	"errors"
	"fmt"

	"clubsite/internal/identity"
	"clubsite/internal/models"
)

// HoursService exposes the member directory and role-gated hour edits.
type HoursService struct {
	directory identity.Directory
}

// NewHoursService constructs a HoursService.
func NewHoursService(directory identity.Directory) *HoursService {
	return &HoursService{directory: directory}
}

// ListUsers returns every registered member.
func (s *HoursService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.directory.ListUsers(ctx)
	if err != nil {
		return nil, directoryFailure(fmt.Errorf("list users: %w", err))
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// Viewer resolves the signed-in member. A principal without a directory
// record is treated as an unprivileged viewer.
func (s *HoursService) Viewer(ctx context.Context, userID string) (models.User, error) {
	user, err := s.directory.GetUser(ctx, userID)
	if errors.Is(err, identity.ErrUserNotFound) {
		return models.User{ID: userID, Role: models.RoleUnknown}, nil
	}
	if err != nil {
		return models.User{}, directoryFailure(fmt.Errorf("lookup viewer %s: %w", userID, err))
	}
	return user, nil
}

// EditHours sets the target's hours when actor may edit hours.
func (s *HoursService) EditHours(ctx context.Context, actorID, targetID string, hours float64) (models.User, error) {
	if actorID == "" {
		return models.User{}, unauthorized(fmt.Errorf("sign in required"))
	}
	actor, err := s.Viewer(ctx, actorID)
	if err != nil {
		return models.User{}, err
	}
	if !models.Authorize(actor.Role, models.ActionEditHours) {
		return models.User{}, forbidden(fmt.Errorf("only admin and lead roles can edit hours"))
	}
	if err := identity.ValidateHours(hours); err != nil {
		return models.User{}, badRequestCode(err, ErrCodeInvalidHours)
	}

	user, err := s.directory.SetHours(ctx, targetID, hours)
	if errors.Is(err, identity.ErrUserNotFound) {
		return models.User{}, notFoundCode(fmt.Errorf("user not found"), ErrCodeUserNotFound)
	}
	if errors.Is(err, identity.ErrInvalidHours) {
		return models.User{}, badRequestCode(err, ErrCodeInvalidHours)
	}
	if err != nil {
		return models.User{}, directoryFailure(fmt.Errorf("set hours for %s: %w", targetID, err))
	}
	return user, nil
}
