package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubsite/internal/models"
)

const staticFixture = `users:
  - id: u1
    first_name: Ada
    last_name: Lovelace
    email: ada@example.com
    role: admin
    hours: 4
  - id: u2
    first_name: Bob
    last_name: Builder
    email: bob@example.com
    role: member
  - id: u3
    first_name: Cy
    email: cy@example.com
    role: superuser
`

func writeStaticFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(staticFixture), 0o644))
	return path
}

func TestStaticDirectory(t *testing.T) {
	dir, err := OpenStatic(writeStaticFixture(t))
	require.NoError(t, err)
	ctx := context.Background()

	users, err := dir.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, models.RoleAdmin, users[0].Role)
	assert.Equal(t, models.RoleUnknown, users[2].Role)

	bob, err := dir.GetUser(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "Bob Builder", bob.DisplayName())

	_, err = dir.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStaticDirectorySetHoursPersists(t *testing.T) {
	path := writeStaticFixture(t)
	dir, err := OpenStatic(path)
	require.NoError(t, err)
	ctx := context.Background()

	updated, err := dir.SetHours(ctx, "u2", 9.5)
	require.NoError(t, err)
	assert.Equal(t, 9.5, updated.Hours)

	reopened, err := OpenStatic(path)
	require.NoError(t, err)
	bob, err := reopened.GetUser(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 9.5, bob.Hours)
	assert.Equal(t, models.RoleMember, bob.Role)

	_, err = dir.SetHours(ctx, "missing", 1)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = dir.SetHours(ctx, "u2", -3)
	assert.ErrorIs(t, err, ErrInvalidHours)
}

func TestStaticDirectoryMissingFileIsEmpty(t *testing.T) {
	dir, err := OpenStatic(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	users, err := dir.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestStaticDirectoryRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users: [\n"), 0o644))
	_, err := OpenStatic(path)
	assert.Error(t, err)
}
