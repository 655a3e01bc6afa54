package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/user"
	"github.com/siat-edu/siat/tests"
)

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	repo := NewUserRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	admin := testutil.CreateUser(t, repo, "Admin", "admin", "admin@siat.test", "", []string{user.RoleAdminOwner}, true, now.Add(-3*time.Hour))
	john := testutil.CreateUser(t, repo, "John Doe", "johnd", "john@siat.test", "Pwd.12345", []string{user.RoleStudent}, true, now.Add(-2*time.Hour))
	jane := testutil.CreateUser(t, repo, "Jane Roe", "janer", "", "", []string{user.RoleInstructor}, false, now.Add(-1*time.Hour))

	t.Run("create duplicate", func(t *testing.T) {
		_, err := repo.CreateUser(ctx, user.User{Name: "Other", Username: "johnd", CreatedAt: now, UpdatedAt: now})
		assert.Equal(t, user.ErrUserExists, err)
	})

	t.Run("get", func(t *testing.T) {
		tests := []struct {
			name    string
			filter  user.GetFilter
			want    string
			wantErr error
		}{
			{name: "by id", filter: user.GetFilter{ID: john.ID}, want: john.ID},
			{name: "by malformed id", filter: user.GetFilter{ID: "lol"}, wantErr: user.ErrNotFound},
			{name: "by username", filter: user.GetFilter{Username: "janer"}, want: jane.ID},
			{name: "by email", filter: user.GetFilter{Email: "admin@siat.test"}, want: admin.ID},
			{name: "by username or email (username)", filter: user.GetFilter{UsernameOrEmail: []string{"johnd"}}, want: john.ID},
			{name: "by username or email (email)", filter: user.GetFilter{UsernameOrEmail: []string{"john@siat.test"}}, want: john.ID},
			{name: "unknown", filter: user.GetFilter{Username: "ghost"}, wantErr: user.ErrNotFound},
			{name: "empty filter", filter: user.GetFilter{}, wantErr: user.ErrNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				usr, err := repo.GetUser(ctx, tt.filter)
				if tt.wantErr != nil {
					assert.Equal(t, tt.wantErr, err)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tt.want, usr.ID)
			})
		}
	})

	t.Run("round trip", func(t *testing.T) {
		usr, err := repo.GetUser(ctx, user.GetFilter{ID: john.ID})
		require.NoError(t, err)
		assert.Equal(t, []string{user.RoleStudent}, usr.Roles)
		assert.NoError(t, usr.CheckPassword("Pwd.12345"))
		assert.True(t, usr.LastLogin.IsZero())

		usr, err = repo.GetUser(ctx, user.GetFilter{ID: jane.ID})
		require.NoError(t, err)
		assert.Empty(t, usr.Email)
		assert.False(t, usr.IsActive)
	})

	t.Run("uniqueness", func(t *testing.T) {
		assert.Equal(t, user.ErrUsernameExists, repo.CheckUsernameUniqueness(ctx, "johnd", "", nil))
		assert.Equal(t, user.ErrEmailExists, repo.CheckUsernameUniqueness(ctx, "newbie", "admin@siat.test", nil))
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "johnd", "john@siat.test", []user.User{john}))
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "newbie", "newbie@siat.test", nil))
	})

	t.Run("query", func(t *testing.T) {
		ids := func(users []user.User) []string {
			res := make([]string, 0, len(users))
			for _, u := range users {
				res = append(res, u.ID)
			}
			return res
		}
		active := true

		tests := []struct {
			name     string
			filter   *user.QueryFilter
			ordering []core.DBOrdering
			want     []string
		}{
			{name: "all, newest first", want: []string{jane.ID, john.ID, admin.ID}},
			{name: "search", filter: &user.QueryFilter{Search: "OE"}, want: []string{jane.ID, john.ID}},
			{name: "role prefix", filter: &user.QueryFilter{Roles: []string{user.RoleAdmin}}, want: []string{admin.ID}},
			{
				name:   "roles",
				filter: &user.QueryFilter{Roles: []string{user.RoleStudent, user.RoleInstructor}},
				want:   []string{jane.ID, john.ID},
			},
			{name: "active", filter: &user.QueryFilter{IsActive: &active}, want: []string{john.ID, admin.ID}},
			{
				name:     "ordering",
				ordering: []core.DBOrdering{{Field: "username", Ascending: true}},
				want:     []string{admin.ID, jane.ID, john.ID},
			},
			{
				name:     "unknown ordering falls back",
				ordering: []core.DBOrdering{{Field: "password_hash; DROP TABLE users"}},
				want:     []string{jane.ID, john.ID, admin.ID},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				users, err := repo.QueryUsers(ctx, tt.filter, tt.ordering)
				require.NoError(t, err)
				assert.Equal(t, tt.want, ids(users))
			})
		}
	})

	t.Run("update", func(t *testing.T) {
		usr := jane
		usr.Email = "jane@siat.test"
		usr.IsActive = true
		usr.LastLogin = now
		_, err := repo.UpdateUser(ctx, usr)
		require.NoError(t, err)

		got, err := repo.GetUser(ctx, user.GetFilter{Email: "jane@siat.test"})
		require.NoError(t, err)
		assert.True(t, got.IsActive)
		assert.True(t, got.LastLogin.Equal(now))

		usr.Username = "johnd"
		_, err = repo.UpdateUser(ctx, usr)
		assert.Equal(t, user.ErrUserExists, err)
	})

	t.Run("delete", func(t *testing.T) {
		n, err := repo.DeleteUsersByID(ctx, []string{jane.ID, "00000000-0000-0000-0000-000000000000"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = repo.GetUser(ctx, user.GetFilter{ID: jane.ID})
		assert.Equal(t, user.ErrNotFound, err)
	})
}
