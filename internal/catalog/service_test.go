package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartlibrary/library/internal/db"
	"github.com/smartlibrary/library/internal/db/dbtest"
	"github.com/smartlibrary/library/internal/domain"
	"github.com/smartlibrary/library/internal/repo"
	"github.com/smartlibrary/library/pkg/logger"
)

func setupService(t *testing.T) (*Service, *repo.Store) {
	log := logger.NewTestLogger()
	store := repo.NewStore(dbtest.Open(t), log)
	return NewService(store, nil, log), store
}

func validInput(isbn string) BookInput {
	return BookInput{
		Title:         "The Go Programming Language",
		Author:        "Alan Donovan",
		ISBN:          isbn,
		Category:      domain.CategoryTechnology,
		TotalCopies:   3,
		PublishedYear: 2015,
	}
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }

// lend records an open loan directly in the store.
func lend(t *testing.T, store *repo.Store, bookID string, status domain.TransactionStatus) {
	t.Helper()
	ctx := context.Background()

	id, err := store.Sequences.NextID(ctx, domain.SeqTransaction)
	require.NoError(t, err)
	ok, err := store.Books.DecrementAvailable(ctx, bookID)
	require.NoError(t, err)
	require.True(t, ok)

	now := time.Now().UTC()
	require.NoError(t, store.Transactions.Create(ctx, &db.Transaction{
		TransactionID: id,
		BookID:        bookID,
		MemberID:      "M-00001",
		Type:          domain.TypeBorrow,
		BorrowDate:    now.Add(-20 * 24 * time.Hour),
		DueDate:       now.Add(-6 * 24 * time.Hour),
		Status:        status,
	}))
}

func TestCreateBook(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, validInput("978-0-13-419044-0"))
	require.NoError(t, err)
	assert.Equal(t, "BOOK-00001", view.ID)
	assert.Equal(t, 3, view.AvailableCopies)
	assert.Equal(t, domain.BookAvailable, view.Status)
	assert.True(t, view.Active)

	second, err := svc.Create(ctx, validInput("9780134190457"))
	require.NoError(t, err)
	assert.Equal(t, "BOOK-00002", second.ID)

	_, err = svc.Create(ctx, validInput("978-0-13-419044-0"))
	assert.ErrorIs(t, err, domain.ErrDuplicateISBN)
}

func TestCreateBookValidation(t *testing.T) {
	svc, _ := setupService(t)

	in := validInput("not-an-isbn")
	in.Category = "Poetry"
	in.TotalCopies = 0
	in.PublishedYear = time.Now().Year() + 1

	_, err := svc.Create(context.Background(), in)
	require.Error(t, err)

	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.KindValidation, derr.Kind)
	assert.Contains(t, derr.Fields, "isbn")
	assert.Contains(t, derr.Fields, "category")
	assert.Contains(t, derr.Fields, "totalCopies")
	assert.Contains(t, derr.Fields, "publishedYear")
}

func TestGetExcludesInactive(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, validInput("9780134190440"))
	require.NoError(t, err)
	require.NoError(t, store.Books.SoftDelete(ctx, view.ID))

	_, err = svc.Get(ctx, view.ID)
	assert.ErrorIs(t, err, domain.ErrBookNotFound)
	_, err = svc.Get(ctx, "BOOK-99999")
	assert.ErrorIs(t, err, domain.ErrBookNotFound)
}

func TestDerivedStatus(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	in := validInput("9780134190440")
	in.TotalCopies = 1
	checkedOut, err := svc.Create(ctx, in)
	require.NoError(t, err)

	in = validInput("9780134190457")
	in.TotalCopies = 1
	overdue, err := svc.Create(ctx, in)
	require.NoError(t, err)

	available, err := svc.Create(ctx, validInput("9780321125217"))
	require.NoError(t, err)

	lend(t, store, checkedOut.ID, domain.StatusActive)
	lend(t, store, overdue.ID, domain.StatusOverdue)
	lend(t, store, available.ID, domain.StatusOverdue)

	status, err := svc.Status(ctx, checkedOut.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookCheckedOut, status)

	status, err = svc.Status(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookOverdue, status)

	status, err = svc.Status(ctx, available.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookAvailable, status)

	books, err := svc.Overdue(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, overdue.ID, books[0].ID)
	assert.Equal(t, available.ID, books[1].ID)
}

func TestListAndByCategory(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	in := validInput("9780134190440")
	_, err := svc.Create(ctx, in)
	require.NoError(t, err)

	in = validInput("9780441172719")
	in.Title = "Dune"
	in.Author = "Frank Herbert"
	in.Category = domain.CategoryFiction
	_, err = svc.Create(ctx, in)
	require.NoError(t, err)

	views, total, err := svc.List(ctx, repo.BookQuery{Search: "herbert"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Dune", views[0].Title)

	_, _, err = svc.List(ctx, repo.BookQuery{Category: "Poetry"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	fiction, err := svc.ByCategory(ctx, domain.CategoryFiction)
	require.NoError(t, err)
	require.Len(t, fiction, 1)
	assert.Equal(t, "Dune", fiction[0].Title)

	_, err = svc.ByCategory(ctx, "Poetry")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestUpdateBook(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, validInput("9780134190440"))
	require.NoError(t, err)
	other, err := svc.Create(ctx, validInput("9780134190457"))
	require.NoError(t, err)

	lend(t, store, view.ID, domain.StatusActive)
	lend(t, store, view.ID, domain.StatusActive)

	updated, err := svc.Update(ctx, view.ID, BookUpdate{Title: strPtr("Updated Title"), TotalCopies: intPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, "Updated Title", updated.Title)
	assert.Equal(t, "Alan Donovan", updated.Author)
	assert.Equal(t, 5, updated.TotalCopies)
	assert.Equal(t, 3, updated.AvailableCopies)

	_, err = svc.Update(ctx, view.ID, BookUpdate{TotalCopies: intPtr(1)})
	assert.ErrorIs(t, err, domain.ErrCopiesOnLoan)

	updated, err = svc.Update(ctx, view.ID, BookUpdate{TotalCopies: intPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.AvailableCopies)
	assert.Equal(t, domain.BookCheckedOut, updated.Status)

	_, err = svc.Update(ctx, view.ID, BookUpdate{ISBN: strPtr(other.ISBN)})
	assert.ErrorIs(t, err, domain.ErrDuplicateISBN)

	_, err = svc.Update(ctx, view.ID, BookUpdate{Active: boolPtr(false)})
	assert.ErrorIs(t, err, domain.ErrOpenTransactions)

	updated, err = svc.Update(ctx, other.ID, BookUpdate{Active: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, updated.Active)

	_, err = svc.Update(ctx, "BOOK-99999", BookUpdate{Title: strPtr("x")})
	assert.ErrorIs(t, err, domain.ErrBookNotFound)
}

func TestGetChangedFields(t *testing.T) {
	old := &db.Book{Title: "A", Author: "B", Category: domain.CategoryFiction, TotalCopies: 2, Active: true}

	updates := getChangedFields(old, BookUpdate{
		Title:       strPtr("A"),
		Author:      strPtr("C"),
		TotalCopies: intPtr(2),
		Active:      boolPtr(true),
	})
	assert.Equal(t, map[string]interface{}{"author": "C"}, updates)
}
