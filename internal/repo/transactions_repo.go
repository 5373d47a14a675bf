package repo

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smartlibrary/library/internal/db"
	"github.com/smartlibrary/library/internal/domain"
)

// TransactionQuery filters transaction listings. Empty fields do not filter.
type TransactionQuery struct {
	Status   domain.TransactionStatus
	MemberID string
	BookID   string
	Pagination
}

// MemberCounters are the values derived from a member's transactions.
type MemberCounters struct {
	BooksCheckedOut int
	TotalFinesCents int64
}

// TransactionRepository handles circulation records
type TransactionRepository struct {
	db  *db.DB
	log *zap.Logger
}

// Create inserts a transaction.
func (r *TransactionRepository) Create(ctx context.Context, txn *db.Transaction) error {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		r.log.Error("Failed to create transaction", zap.String("transaction_id", txn.TransactionID), zap.Error(err))
		return err
	}
	return nil
}

// Get retrieves a transaction by ID.
func (r *TransactionRepository) Get(ctx context.Context, id string) (*db.Transaction, error) {
	return r.get(r.db.WithContext(ctx), id)
}

// GetForUpdate is Get with a row lock held until the surrounding
// transaction ends.
func (r *TransactionRepository) GetForUpdate(ctx context.Context, id string) (*db.Transaction, error) {
	return r.get(forUpdate(r.db, r.db.WithContext(ctx)), id)
}

func (r *TransactionRepository) get(q *gorm.DB, id string) (*db.Transaction, error) {
	var txn db.Transaction
	err := q.Where("transaction_id = ?", id).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTransactionNotFound
		}
		r.log.Error("Failed to get transaction", zap.String("transaction_id", id), zap.Error(err))
		return nil, err
	}
	return &txn, nil
}

// List returns a page of transactions, newest first, and the total match count.
func (r *TransactionRepository) List(ctx context.Context, q TransactionQuery) ([]*db.Transaction, int64, error) {
	page := q.Pagination.Normalize()
	query := r.db.WithContext(ctx).Model(&db.Transaction{})

	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.MemberID != "" {
		query = query.Where("member_id = ?", q.MemberID)
	}
	if q.BookID != "" {
		query = query.Where("book_id = ?", q.BookID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		r.log.Error("Failed to count transactions", zap.Error(err))
		return nil, 0, err
	}

	var txns []*db.Transaction
	if err := query.Offset(page.offset()).Limit(page.Limit).Order("created_at DESC").Order("transaction_id DESC").Find(&txns).Error; err != nil {
		r.log.Error("Failed to list transactions", zap.Error(err))
		return nil, 0, err
	}

	return txns, total, nil
}

// ListByStatus returns every transaction in the given status, ordered by due date.
func (r *TransactionRepository) ListByStatus(ctx context.Context, status domain.TransactionStatus) ([]*db.Transaction, error) {
	var txns []*db.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("due_date ASC").Order("transaction_id ASC").
		Find(&txns).Error
	if err != nil {
		r.log.Error("Failed to list transactions by status", zap.String("status", string(status)), zap.Error(err))
		return nil, err
	}
	return txns, nil
}

// Update applies the given column updates to one transaction.
func (r *TransactionRepository) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).Model(&db.Transaction{}).Where("transaction_id = ?", id).Updates(updates)
	if result.Error != nil {
		r.log.Error("Failed to update transaction", zap.String("transaction_id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// Delete removes a transaction record.
func (r *TransactionRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("transaction_id = ?", id).Delete(&db.Transaction{})
	if result.Error != nil {
		r.log.Error("Failed to delete transaction", zap.String("transaction_id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// CountOpenByBook counts active and overdue transactions referencing a book.
func (r *TransactionRepository) CountOpenByBook(ctx context.Context, bookID string) (int64, error) {
	return r.countOpen(ctx, "book_id", bookID)
}

// CountOpenByMember counts active and overdue transactions of a member.
func (r *TransactionRepository) CountOpenByMember(ctx context.Context, memberID string) (int64, error) {
	return r.countOpen(ctx, "member_id", memberID)
}

func (r *TransactionRepository) countOpen(ctx context.Context, column, id string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Transaction{}).
		Where(column+" = ? AND status IN ?", id, domain.OpenStatuses).
		Count(&count).Error
	if err != nil {
		r.log.Error("Failed to count open transactions", zap.String(column, id), zap.Error(err))
		return 0, err
	}
	return count, nil
}

// Counters recomputes a member's loan count and fine total from the
// transactions currently stored.
func (r *TransactionRepository) Counters(ctx context.Context, memberID string) (MemberCounters, error) {
	open, err := r.CountOpenByMember(ctx, memberID)
	if err != nil {
		return MemberCounters{}, err
	}

	var fines int64
	err = r.db.WithContext(ctx).Model(&db.Transaction{}).
		Where("member_id = ? AND fine_cents > 0", memberID).
		Select("COALESCE(SUM(fine_cents), 0)").
		Scan(&fines).Error
	if err != nil {
		r.log.Error("Failed to sum fines", zap.String("member_id", memberID), zap.Error(err))
		return MemberCounters{}, err
	}

	return MemberCounters{BooksCheckedOut: int(open), TotalFinesCents: fines}, nil
}

// MarkOverdue moves every active transaction due before now to overdue and
// returns the IDs it changed.
func (r *TransactionRepository) MarkOverdue(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := forUpdate(r.db, r.db.WithContext(ctx).Model(&db.Transaction{})).
		Where("status = ? AND due_date < ?", domain.StatusActive, now).
		Order("transaction_id ASC").
		Pluck("transaction_id", &ids).Error
	if err != nil {
		r.log.Error("Failed to find overdue transactions", zap.Error(err))
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	err = r.db.WithContext(ctx).Model(&db.Transaction{}).
		Where("transaction_id IN ? AND status = ?", ids, domain.StatusActive).
		Update("status", domain.StatusOverdue).Error
	if err != nil {
		r.log.Error("Failed to mark transactions overdue", zap.Int("count", len(ids)), zap.Error(err))
		return nil, err
	}
	return ids, nil
}

// BooksWithStatus returns the subset of bookIDs referenced by at least one
// transaction in the given status.
func (r *TransactionRepository) BooksWithStatus(ctx context.Context, status domain.TransactionStatus, bookIDs []string) (map[string]bool, error) {
	out := make(map[string]bool)
	query := r.db.WithContext(ctx).Model(&db.Transaction{}).Distinct("book_id").Where("status = ?", status)
	if bookIDs != nil {
		if len(bookIDs) == 0 {
			return out, nil
		}
		query = query.Where("book_id IN ?", bookIDs)
	}

	var ids []string
	if err := query.Pluck("book_id", &ids).Error; err != nil {
		r.log.Error("Failed to find books by transaction status", zap.String("status", string(status)), zap.Error(err))
		return nil, err
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
