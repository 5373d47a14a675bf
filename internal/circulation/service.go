// Package circulation implements the borrow/return workflow. Every
// operation that touches more than one record runs inside a single
// database transaction, so a failed precondition leaves no trace.
package circulation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/smartlibrary/library/internal/db"
	"github.com/smartlibrary/library/internal/domain"
	"github.com/smartlibrary/library/internal/events"
	"github.com/smartlibrary/library/internal/metrics"
	"github.com/smartlibrary/library/internal/repo"
)

// Options tunes the workflow. Zero values fall back to the defaults.
type Options struct {
	LoanPeriod    time.Duration
	FineRateCents int64
	// Now is the clock used for borrow, return and sweep times.
	Now func() time.Time
}

// Service runs circulation operations against the store.
type Service struct {
	store      *repo.Store
	events     *events.Dispatcher
	metrics    *metrics.Metrics
	log        *zap.Logger
	loanPeriod time.Duration
	fineRate   int64
	now        func() time.Time
}

// NewService creates a circulation service. dispatcher and m may be nil.
func NewService(store *repo.Store, dispatcher *events.Dispatcher, m *metrics.Metrics, log *zap.Logger, opts Options) *Service {
	s := &Service{
		store:      store,
		events:     dispatcher,
		metrics:    m,
		log:        log,
		loanPeriod: opts.LoanPeriod,
		fineRate:   opts.FineRateCents,
		now:        db.NowUTC,
	}
	if s.loanPeriod <= 0 {
		s.loanPeriod = domain.DefaultLoanPeriod
	}
	if s.fineRate <= 0 {
		s.fineRate = domain.DefaultFineRateCents
	}
	if opts.Now != nil {
		s.now = func() time.Time { return normalize(opts.Now()) }
	}
	return s
}

func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// BorrowInput is a request to lend a book to a member.
type BorrowInput struct {
	BookID   string     `json:"bookId" validate:"required"`
	MemberID string     `json:"memberId" validate:"required"`
	DueDate  *time.Time `json:"dueDate"`
	Notes    string     `json:"notes" validate:"max=500"`
}

// UpdateInput changes the editable fields of a transaction. Nil fields are
// left unchanged.
type UpdateInput struct {
	DueDate *time.Time `json:"dueDate"`
	Notes   *string    `json:"notes" validate:"omitempty,max=500"`
}

// Borrow lends a copy of the book to the member. The checks run in order
// and the first failing one is reported: book active, copy available,
// member active, quota not reached.
func (s *Service) Borrow(ctx context.Context, in BorrowInput) (*TransactionView, error) {
	if err := domain.Validate(in); err != nil {
		return nil, err
	}

	now := s.now()
	due := now.Add(s.loanPeriod)
	if in.DueDate != nil {
		due = normalize(*in.DueDate)
		if !due.After(now) {
			return nil, domain.ErrDueDateInvalid
		}
	}

	var (
		txn    *db.Transaction
		book   *db.Book
		member *db.Member
	)
	err := s.store.Transaction(ctx, func(tx *repo.Store) error {
		var err error
		book, err = tx.Books.GetForUpdate(ctx, in.BookID)
		if err != nil {
			return err
		}
		if !book.Active {
			return domain.ErrBookNotFound
		}
		if book.AvailableCopies <= 0 {
			return domain.ErrBookUnavailable
		}

		member, err = tx.Members.GetForUpdate(ctx, in.MemberID)
		if err != nil {
			return err
		}
		if member.Status != domain.MemberActive {
			return domain.ErrMemberNotActive
		}

		counters, err := tx.Transactions.Counters(ctx, member.MemberID)
		if err != nil {
			return err
		}
		if counters.BooksCheckedOut >= member.MaxBooksAllowed {
			return domain.ErrQuotaExceeded
		}

		ok, err := tx.Books.DecrementAvailable(ctx, book.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrBookUnavailable
		}

		id, err := tx.Sequences.NextID(ctx, domain.SeqTransaction)
		if err != nil {
			return err
		}
		txn = &db.Transaction{
			TransactionID: id,
			BookID:        book.ID,
			MemberID:      member.MemberID,
			Type:          domain.TypeBorrow,
			BorrowDate:    now,
			DueDate:       due,
			Status:        domain.StatusActive,
			Notes:         in.Notes,
		}
		if err := tx.Transactions.Create(ctx, txn); err != nil {
			return err
		}

		return refreshMember(ctx, tx, member.MemberID)
	})
	if err != nil {
		s.metrics.BorrowRejected(rejectionReason(err))
		return nil, err
	}

	view := newView(txn, book, member)
	s.metrics.Borrowed()
	s.events.Emit(ctx, events.EventTypeTransactionBorrowed, view)
	s.log.Info("Book borrowed",
		zap.String("transaction_id", txn.TransactionID),
		zap.String("book_id", book.ID),
		zap.String("member_id", member.MemberID),
		zap.Time("due_date", due),
	)
	return &view, nil
}

// Return completes an open loan, assessing a fine of one rate unit per
// started day past the due date.
func (s *Service) Return(ctx context.Context, transactionID string) (*TransactionView, error) {
	now := s.now()

	var txn *db.Transaction
	err := s.store.Transaction(ctx, func(tx *repo.Store) error {
		var err error
		txn, err = tx.Transactions.GetForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if !txn.Status.Open() {
			return domain.ErrNotBorrowed
		}

		fine := domain.Fine(txn.DueDate, now, s.fineRate)
		err = tx.Transactions.Update(ctx, txn.TransactionID, map[string]interface{}{
			"return_date": now,
			"status":      domain.StatusCompleted,
			"type":        domain.TypeReturn,
			"fine_cents":  fine,
		})
		if err != nil {
			return err
		}
		txn.ReturnDate = &now
		txn.Status = domain.StatusCompleted
		txn.Type = domain.TypeReturn
		txn.FineCents = fine

		ok, err := tx.Books.IncrementAvailable(ctx, txn.BookID)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Warn("Returned copy exceeds total copies", zap.String("book_id", txn.BookID))
		}

		return refreshMember(ctx, tx, txn.MemberID)
	})
	if err != nil {
		return nil, err
	}

	view, err := s.view(ctx, txn)
	if err != nil {
		return nil, err
	}

	s.metrics.Returned(txn.FineCents)
	s.events.Emit(ctx, events.EventTypeTransactionReturned, view)
	s.log.Info("Book returned",
		zap.String("transaction_id", txn.TransactionID),
		zap.Int64("fine_cents", txn.FineCents),
	)
	return view, nil
}

// Delete removes a transaction. Deleting an open loan puts the copy back
// on the shelf. It returns false when the transaction does not exist.
func (s *Service) Delete(ctx context.Context, transactionID string) (bool, error) {
	var txn *db.Transaction
	err := s.store.Transaction(ctx, func(tx *repo.Store) error {
		var err error
		txn, err = tx.Transactions.GetForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}

		if txn.Status.Open() {
			ok, err := tx.Books.IncrementAvailable(ctx, txn.BookID)
			if err != nil {
				return err
			}
			if !ok {
				s.log.Warn("Rolled back copy exceeds total copies", zap.String("book_id", txn.BookID))
			}
		}

		if err := tx.Transactions.Delete(ctx, txn.TransactionID); err != nil {
			return err
		}

		// Counters are recomputed after the record is gone.
		err = refreshMember(ctx, tx, txn.MemberID)
		if errors.Is(err, domain.ErrMemberNotFound) {
			return nil
		}
		return err
	})
	if errors.Is(err, domain.ErrTransactionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.metrics.TransactionDeleted(string(txn.Status))
	s.events.Emit(ctx, events.EventTypeTransactionDeleted, deletedPayload{
		TransactionID: txn.TransactionID,
		BookID:        txn.BookID,
		MemberID:      txn.MemberID,
		Status:        txn.Status,
	})
	s.log.Info("Transaction deleted",
		zap.String("transaction_id", txn.TransactionID),
		zap.String("status", string(txn.Status)),
	)
	return true, nil
}

type deletedPayload struct {
	TransactionID string                   `json:"transactionId"`
	BookID        string                   `json:"bookId"`
	MemberID      string                   `json:"memberId"`
	Status        domain.TransactionStatus `json:"status"`
}

// SweepOverdue marks every active loan past its due date as overdue and
// returns how many it changed. Running it twice changes nothing the
// second time. No fines are assessed.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	start := time.Now()
	now := s.now()

	var ids []string
	err := s.store.Transaction(ctx, func(tx *repo.Store) error {
		var err error
		ids, err = tx.Transactions.MarkOverdue(ctx, now)
		return err
	})
	if err != nil {
		s.log.Error("Overdue sweep failed", zap.Error(err))
		return 0, err
	}

	for _, id := range ids {
		s.events.Emit(ctx, events.EventTypeTransactionOverdue, overduePayload{TransactionID: id})
	}
	s.metrics.Swept(len(ids), time.Since(start))
	s.log.Info("Overdue sweep finished", zap.Int("marked", len(ids)))
	return len(ids), nil
}

type overduePayload struct {
	TransactionID string `json:"transactionId"`
}

// Update edits the notes of any transaction, or the due date of an active
// one.
func (s *Service) Update(ctx context.Context, transactionID string, in UpdateInput) (*TransactionView, error) {
	if err := domain.Validate(in); err != nil {
		return nil, err
	}

	var txn *db.Transaction
	err := s.store.Transaction(ctx, func(tx *repo.Store) error {
		var err error
		txn, err = tx.Transactions.GetForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}

		updates := make(map[string]interface{})
		if in.DueDate != nil {
			if txn.Status != domain.StatusActive {
				return domain.ErrDueDateNotEditable
			}
			due := normalize(*in.DueDate)
			if !due.After(txn.BorrowDate) {
				return domain.ErrDueDateInvalid
			}
			updates["due_date"] = due
			txn.DueDate = due
		}
		if in.Notes != nil {
			updates["notes"] = *in.Notes
			txn.Notes = *in.Notes
		}
		return tx.Transactions.Update(ctx, txn.TransactionID, updates)
	})
	if err != nil {
		return nil, err
	}

	view, err := s.view(ctx, txn)
	if err != nil {
		return nil, err
	}
	s.events.Emit(ctx, events.EventTypeTransactionUpdated, view)
	return view, nil
}

// Get returns one transaction with its book and member display fields.
func (s *Service) Get(ctx context.Context, transactionID string) (*TransactionView, error) {
	txn, err := s.store.Transactions.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, txn)
}

// List returns a page of transactions, newest first, and the total count.
func (s *Service) List(ctx context.Context, q repo.TransactionQuery) ([]TransactionView, int64, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, 0, domain.New(domain.KindValidation, "invalid status %q", q.Status)
	}

	txns, total, err := s.store.Transactions.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	views, err := Enrich(ctx, s.store, txns)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

// DeleteBook soft-deletes a book that has no open loans.
func (s *Service) DeleteBook(ctx context.Context, bookID string) error {
	err := s.store.Transaction(ctx, func(tx *repo.Store) error {
		book, err := tx.Books.GetForUpdate(ctx, bookID)
		if err != nil {
			return err
		}
		if !book.Active {
			return domain.ErrBookNotFound
		}

		open, err := tx.Transactions.CountOpenByBook(ctx, bookID)
		if err != nil {
			return err
		}
		if open > 0 {
			return domain.ErrOpenTransactions
		}
		return tx.Books.SoftDelete(ctx, bookID)
	})
	if err != nil {
		return err
	}

	s.events.Emit(ctx, events.EventTypeBookDeleted, map[string]string{"id": bookID})
	return nil
}

// DeleteMember permanently removes a member that has no open loans.
func (s *Service) DeleteMember(ctx context.Context, memberID string) error {
	err := s.store.Transaction(ctx, func(tx *repo.Store) error {
		if _, err := tx.Members.GetForUpdate(ctx, memberID); err != nil {
			return err
		}

		open, err := tx.Transactions.CountOpenByMember(ctx, memberID)
		if err != nil {
			return err
		}
		if open > 0 {
			return domain.ErrOpenTransactions
		}
		return tx.Members.Delete(ctx, memberID)
	})
	if err != nil {
		return err
	}

	s.events.Emit(ctx, events.EventTypeMemberDeleted, map[string]string{"memberId": memberID})
	return nil
}

func (s *Service) view(ctx context.Context, txn *db.Transaction) (*TransactionView, error) {
	views, err := Enrich(ctx, s.store, []*db.Transaction{txn})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// refreshMember recomputes the derived counters of a member from the
// transactions visible in tx.
func refreshMember(ctx context.Context, tx *repo.Store, memberID string) error {
	counters, err := tx.Transactions.Counters(ctx, memberID)
	if err != nil {
		return err
	}
	return tx.Members.SetCounters(ctx, memberID, counters.BooksCheckedOut, counters.TotalFinesCents)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrBookNotFound):
		return "book_not_found"
	case errors.Is(err, domain.ErrBookUnavailable):
		return "book_unavailable"
	case errors.Is(err, domain.ErrMemberNotFound):
		return "member_not_found"
	case errors.Is(err, domain.ErrMemberNotActive):
		return "member_not_active"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return "quota_exceeded"
	default:
		return "error"
	}
}
