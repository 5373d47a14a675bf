package repo

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smartlibrary/library/internal/db"
	"github.com/smartlibrary/library/internal/domain"
)

// BookQuery filters catalog listings. Empty fields do not filter.
type BookQuery struct {
	Search          string
	Category        domain.Category
	IncludeInactive bool
	Pagination
}

// BookRepository handles catalog persistence
type BookRepository struct {
	db  *db.DB
	log *zap.Logger
}

// Create inserts a new book. The ISBN must not be taken by another book,
// active or not.
func (r *BookRepository) Create(ctx context.Context, book *db.Book) error {
	taken, err := r.ISBNTaken(ctx, book.ISBN, "")
	if err != nil {
		return err
	}
	if taken {
		return domain.ErrDuplicateISBN
	}

	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateISBN
		}
		r.log.Error("Failed to create book", zap.String("book_id", book.ID), zap.Error(err))
		return err
	}

	r.log.Info("Book created", zap.String("book_id", book.ID), zap.String("title", book.Title))
	return nil
}

// Get retrieves a book by ID, including soft-deleted ones.
func (r *BookRepository) Get(ctx context.Context, id string) (*db.Book, error) {
	return r.get(ctx, r.db.WithContext(ctx), id)
}

// GetForUpdate is Get with a row lock held until the surrounding
// transaction ends.
func (r *BookRepository) GetForUpdate(ctx context.Context, id string) (*db.Book, error) {
	return r.get(ctx, forUpdate(r.db, r.db.WithContext(ctx)), id)
}

func (r *BookRepository) get(_ context.Context, q *gorm.DB, id string) (*db.Book, error) {
	var book db.Book
	err := q.Where("id = ?", id).First(&book).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrBookNotFound
		}
		r.log.Error("Failed to get book", zap.String("book_id", id), zap.Error(err))
		return nil, err
	}
	return &book, nil
}

// FindByIDs returns the books with the given IDs keyed by ID. Missing IDs
// are simply absent from the map.
func (r *BookRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*db.Book, error) {
	out := make(map[string]*db.Book, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var books []*db.Book
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&books).Error; err != nil {
		r.log.Error("Failed to load books", zap.Int("count", len(ids)), zap.Error(err))
		return nil, err
	}
	for _, b := range books {
		out[b.ID] = b
	}
	return out, nil
}

// List returns a page of books, newest first, and the total match count.
func (r *BookRepository) List(ctx context.Context, q BookQuery) ([]*db.Book, int64, error) {
	page := q.Pagination.Normalize()
	query := r.db.WithContext(ctx).Model(&db.Book{})

	if !q.IncludeInactive {
		query = query.Where("active = ?", true)
	}
	if q.Category != "" {
		query = query.Where("category = ?", q.Category)
	}
	if q.Search != "" {
		pattern := likePattern(q.Search)
		query = query.Where(`LOWER(title) LIKE ? ESCAPE '\' OR LOWER(author) LIKE ? ESCAPE '\' OR LOWER(isbn) LIKE ? ESCAPE '\'`, pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		r.log.Error("Failed to count books", zap.Error(err))
		return nil, 0, err
	}

	var books []*db.Book
	if err := query.Offset(page.offset()).Limit(page.Limit).Order("created_at DESC").Order("id DESC").Find(&books).Error; err != nil {
		r.log.Error("Failed to list books", zap.Error(err))
		return nil, 0, err
	}

	return books, total, nil
}

// ListByCategory returns every active book of the category, ordered by title.
func (r *BookRepository) ListByCategory(ctx context.Context, category domain.Category) ([]*db.Book, error) {
	var books []*db.Book
	err := r.db.WithContext(ctx).
		Where("category = ? AND active = ?", category, true).
		Order("title ASC").
		Find(&books).Error
	if err != nil {
		r.log.Error("Failed to list books by category", zap.String("category", string(category)), zap.Error(err))
		return nil, err
	}
	return books, nil
}

// ISBNTaken reports whether another book (other than excludeID) uses isbn.
func (r *BookRepository) ISBNTaken(ctx context.Context, isbn, excludeID string) (bool, error) {
	query := r.db.WithContext(ctx).Model(&db.Book{}).Where("isbn = ?", isbn)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		r.log.Error("Failed to check isbn", zap.String("isbn", isbn), zap.Error(err))
		return false, err
	}
	return count > 0, nil
}

// Update applies the given column updates to one book.
func (r *BookRepository) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).Model(&db.Book{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateISBN
		}
		r.log.Error("Failed to update book", zap.String("book_id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrBookNotFound
	}
	return nil
}

// DecrementAvailable takes one copy off the shelf. It returns false when no
// copy was available, leaving the row untouched.
func (r *BookRepository) DecrementAvailable(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&db.Book{}).
		Where("id = ? AND available_copies > 0", id).
		Update("available_copies", gorm.Expr("available_copies - 1"))
	if result.Error != nil {
		r.log.Error("Failed to decrement available copies", zap.String("book_id", id), zap.Error(result.Error))
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// IncrementAvailable puts one copy back. It returns false when every copy
// was already on the shelf.
func (r *BookRepository) IncrementAvailable(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&db.Book{}).
		Where("id = ? AND available_copies < total_copies", id).
		Update("available_copies", gorm.Expr("available_copies + 1"))
	if result.Error != nil {
		r.log.Error("Failed to increment available copies", zap.String("book_id", id), zap.Error(result.Error))
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SoftDelete marks a book inactive.
func (r *BookRepository) SoftDelete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&db.Book{}).Where("id = ?", id).Update("active", false)
	if result.Error != nil {
		r.log.Error("Failed to delete book", zap.String("book_id", id), zap.Error(result.Error))
		return result.Error
	}

	if result.RowsAffected == 0 {
		return domain.ErrBookNotFound
	}

	r.log.Info("Book deleted", zap.String("book_id", id))
	return nil
}

// GetStats returns catalog statistics for metrics
func (r *BookRepository) GetStats(ctx context.Context) (total, active int64, err error) {
	if err := r.db.WithContext(ctx).Model(&db.Book{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count total books: %w", err)
	}

	if err := r.db.WithContext(ctx).Model(&db.Book{}).Where("active = ?", true).Count(&active).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count active books: %w", err)
	}

	return total, active, nil
}
