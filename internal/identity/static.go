package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"clubsite/internal/models"
)

// staticFile is the on-disk layout of a static directory.
type staticFile struct {
	Users []staticUser `yaml:"users"`
}

type staticUser struct {
	ID        string  `yaml:"id"`
	FirstName string  `yaml:"first_name"`
	LastName  string  `yaml:"last_name"`
	Email     string  `yaml:"email"`
	Role      string  `yaml:"role,omitempty"`
	Hours     float64 `yaml:"hours"`
}

func (u staticUser) toModel() models.User {
	return models.User{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      models.ParseRole(u.Role),
		Hours:     u.Hours,
	}
}

// Static is a Directory read from a YAML file, for local development and
// tests. SetHours writes the file back.
type Static struct {
	path string
	mu   sync.Mutex
}

// OpenStatic validates that path parses and returns a Static directory.
func OpenStatic(path string) (*Static, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("static directory path is required")
	}
	s := &Static{path: path}
	if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Static) read() (staticFile, error) {
	var file staticFile
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return file, nil
	}
	if err != nil {
		return file, fmt.Errorf("read static directory: %w", err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("parse static directory %s: %w", s.path, err)
	}
	return file, nil
}

// GetUser returns the user with id.
func (s *Static) GetUser(ctx context.Context, id string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return models.User{}, err
	}
	for _, u := range file.Users {
		if u.ID == id {
			return u.toModel(), nil
		}
	}
	return models.User{}, ErrUserNotFound
}

// ListUsers returns users in file order.
func (s *Static) ListUsers(ctx context.Context) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(file.Users))
	for _, u := range file.Users {
		users = append(users, u.toModel())
	}
	return users, nil
}

// SetHours updates one user's hours and rewrites the file.
func (s *Static) SetHours(ctx context.Context, id string, hours float64) (models.User, error) {
	if err := ValidateHours(hours); err != nil {
		return models.User{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return models.User{}, err
	}
	idx := -1
	for i, u := range file.Users {
		if u.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.User{}, ErrUserNotFound
	}
	file.Users[idx].Hours = hours

	data, err := yaml.Marshal(file)
	if err != nil {
		return models.User{}, fmt.Errorf("encode static directory: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(s.path), "."+filepath.Base(s.path)+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return models.User{}, fmt.Errorf("write static directory: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return models.User{}, fmt.Errorf("replace static directory: %w", err)
	}
	return file.Users[idx].toModel(), nil
}
