package circulation

import (
	"context"
	"time"

	"github.com/smartlibrary/library/internal/db"
	"github.com/smartlibrary/library/internal/domain"
	"github.com/smartlibrary/library/internal/repo"
)

// TransactionView is a transaction enriched with the display fields of its
// book and member. Those fields are empty when the record no longer exists.
type TransactionView struct {
	TransactionID string                   `json:"transactionId"`
	BookID        string                   `json:"bookId"`
	BookTitle     string                   `json:"bookTitle"`
	BookAuthor    string                   `json:"bookAuthor"`
	MemberID      string                   `json:"memberId"`
	MemberName    string                   `json:"memberName"`
	MemberEmail   string                   `json:"memberEmail"`
	Type          domain.TransactionType   `json:"type"`
	BorrowDate    time.Time                `json:"borrowDate"`
	DueDate       time.Time                `json:"dueDate"`
	ReturnDate    *time.Time               `json:"returnDate,omitempty"`
	Status        domain.TransactionStatus `json:"status"`
	Fine          float64                  `json:"fine"`
	FineCents     int64                    `json:"-"`
	Notes         string                   `json:"notes,omitempty"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

func newView(txn *db.Transaction, book *db.Book, member *db.Member) TransactionView {
	v := TransactionView{
		TransactionID: txn.TransactionID,
		BookID:        txn.BookID,
		MemberID:      txn.MemberID,
		Type:          txn.Type,
		BorrowDate:    txn.BorrowDate,
		DueDate:       txn.DueDate,
		ReturnDate:    txn.ReturnDate,
		Status:        txn.Status,
		Fine:          domain.Amount(txn.FineCents),
		FineCents:     txn.FineCents,
		Notes:         txn.Notes,
		CreatedAt:     txn.CreatedAt,
		UpdatedAt:     txn.UpdatedAt,
	}
	if book != nil {
		v.BookTitle = book.Title
		v.BookAuthor = book.Author
	}
	if member != nil {
		v.MemberName = member.Name
		v.MemberEmail = member.Email
	}
	v.BookTitle = domain.OrUnknown(v.BookTitle, domain.UnknownBook)
	v.BookAuthor = domain.OrUnknown(v.BookAuthor, domain.UnknownAuthor)
	v.MemberName = domain.OrUnknown(v.MemberName, domain.UnknownMember)
	v.MemberEmail = domain.OrUnknown(v.MemberEmail, domain.UnknownEmail)
	return v
}

// Enrich loads the books and members referenced by txns in two batch
// queries and builds their views in the same order.
func Enrich(ctx context.Context, store *repo.Store, txns []*db.Transaction) ([]TransactionView, error) {
	bookIDs := make([]string, 0, len(txns))
	memberIDs := make([]string, 0, len(txns))
	for _, t := range txns {
		bookIDs = append(bookIDs, t.BookID)
		memberIDs = append(memberIDs, t.MemberID)
	}

	books, err := store.Books.FindByIDs(ctx, bookIDs)
	if err != nil {
		return nil, err
	}
	members, err := store.Members.FindByIDs(ctx, memberIDs)
	if err != nil {
		return nil, err
	}

	views := make([]TransactionView, 0, len(txns))
	for _, t := range txns {
		views = append(views, newView(t, books[t.BookID], members[t.MemberID]))
	}
	return views, nil
}
