package members

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartlibrary/library/internal/db/dbtest"
	"github.com/smartlibrary/library/internal/domain"
	"github.com/smartlibrary/library/internal/repo"
	"github.com/smartlibrary/library/pkg/logger"
)

func setupService(t *testing.T) *Service {
	log := logger.NewTestLogger()
	store := repo.NewStore(dbtest.Open(t), log)
	return NewService(store, nil, log, 5)
}

func TestRegisterDefaults(t *testing.T) {
	svc := setupService(t)

	view, err := svc.Register(context.Background(), MemberInput{
		Name:  "Ada Lovelace",
		Email: "  Ada@Example.COM ",
		Phone: "+442071234567",
	})
	require.NoError(t, err)

	assert.Equal(t, "M-00001", view.MemberID)
	assert.Equal(t, "ada@example.com", view.Email)
	assert.Equal(t, domain.MemberActive, view.Status)
	assert.Equal(t, 5, view.MaxBooksAllowed)
	assert.Zero(t, view.BooksCheckedOut)
	assert.Zero(t, view.TotalFines)
	assert.False(t, view.MembershipDate.IsZero())
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, MemberInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, MemberInput{Name: "Other Ada", Email: "ADA@example.com"})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestRegisterValidation(t *testing.T) {
	svc := setupService(t)

	_, err := svc.Register(context.Background(), MemberInput{
		Name:            "",
		Email:           "not-an-email",
		Phone:           "0123",
		Status:          "banned",
		MaxBooksAllowed: -1,
	})

	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.KindValidation, derr.Kind)
	for _, field := range []string{"name", "email", "phone", "status", "maxBooksAllowed"} {
		assert.Contains(t, derr.Fields, field)
	}
}

func TestUpdateMember(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	ada, err := svc.Register(ctx, MemberInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, MemberInput{Name: "Alan", Email: "alan@example.com"})
	require.NoError(t, err)

	status := domain.MemberSuspended
	maxBooks := 2
	updated, err := svc.Update(ctx, ada.MemberID, MemberUpdate{Status: &status, MaxBooksAllowed: &maxBooks})
	require.NoError(t, err)
	assert.Equal(t, domain.MemberSuspended, updated.Status)
	assert.Equal(t, 2, updated.MaxBooksAllowed)
	assert.Equal(t, "Ada", updated.Name)

	taken := "ALAN@example.com"
	_, err = svc.Update(ctx, ada.MemberID, MemberUpdate{Email: &taken})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	zero := 0
	_, err = svc.Update(ctx, ada.MemberID, MemberUpdate{MaxBooksAllowed: &zero})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	name := "Nobody"
	_, err = svc.Update(ctx, "M-99999", MemberUpdate{Name: &name})
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestListMembers(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	for _, in := range []MemberInput{
		{Name: "Ada", Email: "ada@example.com"},
		{Name: "Alan", Email: "alan@example.com", Status: domain.MemberInactive},
		{Name: "Grace", Email: "grace@example.com"},
	} {
		_, err := svc.Register(ctx, in)
		require.NoError(t, err)
	}

	views, total, err := svc.List(ctx, repo.MemberQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, views, 3)

	views, total, err = svc.List(ctx, repo.MemberQuery{Status: domain.MemberInactive})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Alan", views[0].Name)

	_, total, err = svc.List(ctx, repo.MemberQuery{Search: "m-00003"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, _, err = svc.List(ctx, repo.MemberQuery{Status: "banned"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	got, err := svc.Get(ctx, "M-00001")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)

	_, err = svc.Get(ctx, "M-99999")
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
}
