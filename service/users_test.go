package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Rafhael-Viana/geoproof/auth"
	"github.com/Rafhael-Viana/geoproof/internal/memstore"
	"github.com/Rafhael-Viana/geoproof/models"
)

func newUserService(t *testing.T) (*UserService, *memstore.Users, *auth.Tokens) {
	t.Helper()
	store := memstore.NewUsers()
	tokens := auth.NewTokens("test-secret", time.Hour)
	svc := NewUserService(store, tokens, zap.NewNop())
	svc.hashCost = bcrypt.MinCost
	return svc, store, tokens
}

func TestRegister_AlwaysStudent(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, NewUserInput{Name: " Budi ", Email: " Budi@Example.com ", Password: "secret", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, u.Role)
	assert.Equal(t, "Budi", u.Name)
	assert.Equal(t, "budi@example.com", u.Email)
	assert.NotEqual(t, "secret", u.Password)
	assert.NotEmpty(t, u.UserID)

	_, err = svc.Register(ctx, NewUserInput{Name: "Other", Email: "budi@example.com", Password: "x"})
	assert.ErrorIs(t, err, ErrConflict)

	var ve *ValidationError
	_, err = svc.Register(ctx, NewUserInput{Name: "No Pass", Email: "np@example.com"})
	assert.ErrorAs(t, err, &ve)
	_, err = svc.Register(ctx, NewUserInput{Name: "Bad", Email: "not-an-email", Password: "x"})
	assert.ErrorAs(t, err, &ve)
}

func TestLogin(t *testing.T) {
	svc, _, tokens := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, NewUserInput{Name: "Budi", Email: "budi@example.com", Password: "secret"})
	require.NoError(t, err)

	token, u, err := svc.Login(ctx, "BUDI@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Budi", u.Name)

	claims, err := tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, u.UserID, claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "budi@example.com", claims.Email)

	_, _, err = svc.Login(ctx, "budi@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody@example.com", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAdminCreateAndUpdateRules(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	root, err := svc.Create(ctx, NewUserInput{Name: "Root", Email: "root@example.com", Password: "x", Role: models.RoleAdmin})
	require.NoError(t, err)
	second, err := svc.Create(ctx, NewUserInput{Name: "Second", Email: "second@example.com", Password: "x", Role: models.RoleAdmin})
	require.NoError(t, err)
	stu, err := svc.Create(ctx, NewUserInput{Name: "Stu", Email: "stu@example.com", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, stu.Role)

	var ve *ValidationError
	_, err = svc.Create(ctx, NewUserInput{Name: "X", Email: "x@example.com", Password: "x", Role: "root"})
	assert.ErrorAs(t, err, &ve)

	student := models.RoleStudent
	_, err = svc.Update(ctx, root.UserID, second.UserID, UpdateUserInput{Role: &student})
	assert.ErrorIs(t, err, ErrForbidden)

	name := "Renamed"
	u, err := svc.Update(ctx, root.UserID, second.UserID, UpdateUserInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", u.Name)

	adminRole := models.RoleAdmin
	u, err = svc.Update(ctx, root.UserID, stu.UserID, UpdateUserInput{Role: &adminRole})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)

	email := "root@example.com"
	_, err = svc.Update(ctx, root.UserID, second.UserID, UpdateUserInput{Email: &email})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.Update(ctx, root.UserID, "missing", UpdateUserInput{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRules(t *testing.T) {
	svc, store, _ := newUserService(t)
	ctx := context.Background()

	root, _ := svc.Create(ctx, NewUserInput{Name: "Root", Email: "root@example.com", Password: "x", Role: models.RoleAdmin})
	second, _ := svc.Create(ctx, NewUserInput{Name: "Second", Email: "second@example.com", Password: "x", Role: models.RoleAdmin})
	stu, _ := svc.Create(ctx, NewUserInput{Name: "Stu", Email: "stu@example.com", Password: "x"})

	_, err := svc.Delete(ctx, root.UserID, root.UserID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Delete(ctx, root.UserID, second.UserID)
	assert.ErrorIs(t, err, ErrForbidden)

	deleted, err := svc.Delete(ctx, root.UserID, stu.UserID)
	require.NoError(t, err)
	assert.Equal(t, stu.UserID, deleted.UserID)
	assert.Len(t, store.ByID, 2)

	_, err = svc.DeleteOwn(ctx, root.UserID, "")
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
	_, err = svc.DeleteOwn(ctx, root.UserID, "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.DeleteOwn(ctx, root.UserID, "x")
	require.NoError(t, err)
	assert.Len(t, store.ByID, 1)
}

func TestStats(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	_, _ = svc.Create(ctx, NewUserInput{Name: "Root", Email: "root@example.com", Password: "x", Role: models.RoleAdmin})
	for _, e := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := svc.Register(ctx, NewUserInput{Name: "S", Email: e, Password: "x"})
		require.NoError(t, err)
	}

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.UserStats{Total: 4, Student: 3, Admin: 1}, stats)
}

func TestSeedAdmin_Idempotent(t *testing.T) {
	svc, store, _ := newUserService(t)
	ctx := context.Background()

	require.NoError(t, svc.SeedAdmin(ctx, "", "", ""))
	assert.Empty(t, store.ByID)

	require.NoError(t, svc.SeedAdmin(ctx, "", "Admin@Example.com", "pw"))
	require.NoError(t, svc.SeedAdmin(ctx, "", "admin@example.com", "pw"))
	require.Len(t, store.ByID, 1)

	u, err := store.GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.Equal(t, "Administrator", u.Name)
}
