package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartlibrary/library/internal/db"
	"github.com/smartlibrary/library/internal/db/dbtest"
	"github.com/smartlibrary/library/internal/domain"
	"github.com/smartlibrary/library/pkg/logger"
)

func setupStore(t *testing.T) *Store {
	return NewStore(dbtest.Open(t), logger.NewTestLogger())
}

func newBook(id, title, isbn string, category domain.Category, copies int) *db.Book {
	return &db.Book{
		ID:              id,
		Title:           title,
		Author:          "Test Author",
		ISBN:            isbn,
		Category:        category,
		TotalCopies:     copies,
		AvailableCopies: copies,
		PublishedYear:   2001,
		AddedDate:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:          true,
	}
}

func newMember(id, email string) *db.Member {
	return &db.Member{
		MemberID:        id,
		Name:            "Member " + id,
		Email:           email,
		MembershipDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:          domain.MemberActive,
		MaxBooksAllowed: 5,
	}
}

func newTxn(id, bookID, memberID string, status domain.TransactionStatus, due time.Time, fine int64) *db.Transaction {
	return &db.Transaction{
		TransactionID: id,
		BookID:        bookID,
		MemberID:      memberID,
		Type:          domain.TypeBorrow,
		BorrowDate:    due.Add(-14 * 24 * time.Hour),
		DueDate:       due,
		Status:        status,
		FineCents:     fine,
	}
}

func TestPaginationNormalize(t *testing.T) {
	assert.Equal(t, Pagination{Page: 1, Limit: 10}, Pagination{}.Normalize())
	assert.Equal(t, Pagination{Page: 3, Limit: 100}, Pagination{Page: 3, Limit: 500}.Normalize())
	assert.Equal(t, Pagination{Page: 1, Limit: 1}, Pagination{Page: -2, Limit: 1}.Normalize())

	p := Pagination{Page: 1, Limit: 10}
	assert.Equal(t, int64(0), p.Pages(0))
	assert.Equal(t, int64(1), p.Pages(10))
	assert.Equal(t, int64(2), p.Pages(11))
}

func TestSequenceNextID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first, err := store.Sequences.NextID(ctx, domain.SeqBook)
	require.NoError(t, err)
	second, err := store.Sequences.NextID(ctx, domain.SeqBook)
	require.NoError(t, err)
	member, err := store.Sequences.NextID(ctx, domain.SeqMember)
	require.NoError(t, err)

	assert.Equal(t, "BOOK-00001", first)
	assert.Equal(t, "BOOK-00002", second)
	assert.Equal(t, "M-00001", member)
}

func TestSequenceRollsBackWithTransaction(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.Transaction(ctx, func(tx *Store) error {
		_, err := tx.Sequences.Next(ctx, domain.SeqTransaction)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	id, err := store.Sequences.NextID(ctx, domain.SeqTransaction)
	require.NoError(t, err)
	assert.Equal(t, "TXN-00001", id)
}

func TestCreateBook(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	book := newBook("BOOK-00001", "Test Book", "9780000000001", domain.CategoryFiction, 2)
	require.NoError(t, store.Books.Create(ctx, book))

	retrieved, err := store.Books.Get(ctx, "BOOK-00001")
	require.NoError(t, err)
	assert.Equal(t, "Test Book", retrieved.Title)
	assert.Equal(t, 2, retrieved.AvailableCopies)
	assert.True(t, retrieved.Active)
}

func TestCreateBookDuplicateISBN(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Books.Create(ctx, newBook("BOOK-00001", "One", "9780000000001", domain.CategoryFiction, 1)))

	err := store.Books.Create(ctx, newBook("BOOK-00002", "Two", "9780000000001", domain.CategoryFiction, 1))
	assert.ErrorIs(t, err, domain.ErrDuplicateISBN)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestGetBookNotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.Books.Get(context.Background(), "BOOK-99999")
	assert.ErrorIs(t, err, domain.ErrBookNotFound)
}

func TestListBooks(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	books := []*db.Book{
		newBook("BOOK-00001", "Go Programming", "9780000000001", domain.CategoryTechnology, 1),
		newBook("BOOK-00002", "Dune", "9780000000002", domain.CategoryFiction, 1),
		newBook("BOOK-00003", "Neuromancer", "9780000000003", domain.CategoryFiction, 1),
	}
	books[2].Active = false
	for _, b := range books {
		require.NoError(t, store.Books.Create(ctx, b))
	}

	result, total, err := store.Books.List(ctx, BookQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, result, 2)
	assert.Equal(t, "BOOK-00002", result[0].ID)

	_, total, err = store.Books.List(ctx, BookQuery{IncludeInactive: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	result, total, err = store.Books.List(ctx, BookQuery{Category: domain.CategoryFiction})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Dune", result[0].Title)

	result, total, err = store.Books.List(ctx, BookQuery{Search: "go prog"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "BOOK-00001", result[0].ID)

	_, total, err = store.Books.List(ctx, BookQuery{Search: "0000000002"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	result, total, err = store.Books.List(ctx, BookQuery{Pagination: Pagination{Page: 2, Limit: 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, result, 1)
	assert.Equal(t, "BOOK-00001", result[0].ID)
}

func TestSearchMatchesWildcardsLiterally(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Books.Create(ctx, newBook("BOOK-00001", "Dune", "9780000000001", domain.CategoryFiction, 1)))
	require.NoError(t, store.Books.Create(ctx, newBook("BOOK-00002", "Emma", "9780000000002", domain.CategoryFiction, 1)))
	require.NoError(t, store.Books.Create(ctx, newBook("BOOK-00003", "100% Go", "9780000000003", domain.CategoryTechnology, 1)))

	_, total, err := store.Books.List(ctx, BookQuery{Search: "_"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	result, total, err := store.Books.List(ctx, BookQuery{Search: "%"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "BOOK-00003", result[0].ID)

	require.NoError(t, store.Members.Create(ctx, newMember("M-00001", "ada@example.com")))
	require.NoError(t, store.Members.Create(ctx, newMember("M-00002", "grace_hopper@example.com")))

	members, total, err := store.Members.List(ctx, MemberQuery{Search: "_"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "M-00002", members[0].MemberID)
}

func TestAvailabilityGuards(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Books.Create(ctx, newBook("BOOK-00001", "Single", "9780000000001", domain.CategoryOther, 1)))

	ok, err := store.Books.IncrementAvailable(ctx, "BOOK-00001")
	require.NoError(t, err)
	assert.False(t, ok, "cannot exceed total copies")

	ok, err = store.Books.DecrementAvailable(ctx, "BOOK-00001")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Books.DecrementAvailable(ctx, "BOOK-00001")
	require.NoError(t, err)
	assert.False(t, ok, "cannot drop below zero")

	book, err := store.Books.Get(ctx, "BOOK-00001")
	require.NoError(t, err)
	assert.Equal(t, 0, book.AvailableCopies)

	ok, err = store.Books.IncrementAvailable(ctx, "BOOK-00001")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateAndSoftDeleteBook(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Books.Create(ctx, newBook("BOOK-00001", "Original", "9780000000001", domain.CategoryOther, 1)))
	require.NoError(t, store.Books.Create(ctx, newBook("BOOK-00002", "Other", "9780000000002", domain.CategoryOther, 1)))

	require.NoError(t, store.Books.Update(ctx, "BOOK-00001", map[string]interface{}{"title": "Updated"}))
	err := store.Books.Update(ctx, "BOOK-00001", map[string]interface{}{"isbn": "9780000000002"})
	assert.ErrorIs(t, err, domain.ErrDuplicateISBN)

	require.NoError(t, store.Books.SoftDelete(ctx, "BOOK-00001"))
	book, err := store.Books.Get(ctx, "BOOK-00001")
	require.NoError(t, err)
	assert.Equal(t, "Updated", book.Title)
	assert.False(t, book.Active)

	assert.ErrorIs(t, store.Books.SoftDelete(ctx, "BOOK-99999"), domain.ErrBookNotFound)

	total, active, err := store.Books.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(1), active)
}

func TestMembers(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Members.Create(ctx, newMember("M-00001", "ada@example.com")))
	require.NoError(t, store.Members.Create(ctx, newMember("M-00002", "alan@example.com")))

	err := store.Members.Create(ctx, newMember("M-00003", "ada@example.com"))
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	_, err = store.Members.Get(ctx, "M-00404")
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)

	require.NoError(t, store.Members.Update(ctx, "M-00002", map[string]interface{}{"status": domain.MemberSuspended}))

	result, total, err := store.Members.List(ctx, MemberQuery{Status: domain.MemberSuspended})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "M-00002", result[0].MemberID)

	_, total, err = store.Members.List(ctx, MemberQuery{Search: "ADA@"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	found, err := store.Members.FindByIDs(ctx, []string{"M-00001", "M-00404"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Contains(t, found, "M-00001")

	require.NoError(t, store.Members.Delete(ctx, "M-00001"))
	assert.ErrorIs(t, store.Members.Delete(ctx, "M-00001"), domain.ErrMemberNotFound)
}

func TestTransactionCountersAndOverdue(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	txns := []*db.Transaction{
		newTxn("TXN-00001", "BOOK-00001", "M-00001", domain.StatusActive, now.Add(-time.Hour), 0),
		newTxn("TXN-00002", "BOOK-00002", "M-00001", domain.StatusActive, now.Add(time.Hour), 0),
		newTxn("TXN-00003", "BOOK-00001", "M-00001", domain.StatusCompleted, now.Add(-72*time.Hour), 300),
		newTxn("TXN-00004", "BOOK-00003", "M-00002", domain.StatusOverdue, now.Add(-48*time.Hour), 0),
	}
	for _, txn := range txns {
		require.NoError(t, store.Transactions.Create(ctx, txn))
	}

	counters, err := store.Transactions.Counters(ctx, "M-00001")
	require.NoError(t, err)
	assert.Equal(t, MemberCounters{BooksCheckedOut: 2, TotalFinesCents: 300}, counters)

	open, err := store.Transactions.CountOpenByBook(ctx, "BOOK-00001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), open)

	ids, err := store.Transactions.MarkOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"TXN-00001"}, ids)

	ids, err = store.Transactions.MarkOverdue(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, ids)

	overdue, err := store.Transactions.BooksWithStatus(ctx, domain.StatusOverdue, []string{"BOOK-00001", "BOOK-00002"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"BOOK-00001": true}, overdue)

	all, err := store.Transactions.BooksWithStatus(ctx, domain.StatusOverdue, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	result, total, err := store.Transactions.List(ctx, TransactionQuery{MemberID: "M-00001", Status: domain.StatusOverdue})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "TXN-00001", result[0].TransactionID)
}

func TestTransactionRollback(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Books.Create(ctx, newBook("BOOK-00001", "Single", "9780000000001", domain.CategoryOther, 1)))

	boom := errors.New("boom")
	err := store.Transaction(ctx, func(tx *Store) error {
		ok, err := tx.Books.DecrementAvailable(ctx, "BOOK-00001")
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	book, err := store.Books.Get(ctx, "BOOK-00001")
	require.NoError(t, err)
	assert.Equal(t, 1, book.AvailableCopies)
}

func TestUsers(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	user := &db.User{ID: "u-1", Name: "Admin", Email: "admin@example.com", PasswordHash: "x", Role: domain.RoleAdmin, Active: true}
	require.NoError(t, store.Users.Create(ctx, user))

	dup := &db.User{ID: "u-2", Name: "Other", Email: "admin@example.com", PasswordHash: "x", Role: domain.RoleMember, Active: true}
	assert.ErrorIs(t, store.Users.Create(ctx, dup), domain.ErrDuplicateEmail)

	got, err := store.Users.GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)

	_, err = store.Users.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	require.NoError(t, store.Users.TouchLogin(ctx, "u-1", time.Now().UTC()))
	got, err = store.Users.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.NotNil(t, got.LastLoginAt)

	admins, err := store.Users.CountByRole(ctx, domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), admins)
}
