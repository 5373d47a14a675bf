// Package catalog manages book records and their derived display status.
package catalog

import (
	"context"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/smartlibrary/library/internal/db"
	"github.com/smartlibrary/library/internal/domain"
	"github.com/smartlibrary/library/internal/events"
	"github.com/smartlibrary/library/internal/repo"
)

// BookInput holds the fields of a new book.
type BookInput struct {
	Title         string          `json:"title" validate:"required,max=200"`
	Author        string          `json:"author" validate:"required,max=100"`
	ISBN          string          `json:"isbn" validate:"required,isbn_code"`
	Category      domain.Category `json:"category" validate:"required,category"`
	TotalCopies   int             `json:"totalCopies" validate:"min=1"`
	PublishedYear int             `json:"publishedYear" validate:"min=1000,not_future_year"`
	Description   string          `json:"description" validate:"max=2000"`
	ImageURL      string          `json:"imageUrl" validate:"omitempty,url,max=500"`
}

// BookUpdate changes selected fields of a book. Nil fields are unchanged.
type BookUpdate struct {
	Title         *string          `json:"title" validate:"omitempty,min=1,max=200"`
	Author        *string          `json:"author" validate:"omitempty,min=1,max=100"`
	ISBN          *string          `json:"isbn" validate:"omitempty,isbn_code"`
	Category      *domain.Category `json:"category" validate:"omitempty,category"`
	TotalCopies   *int             `json:"totalCopies" validate:"omitempty,min=1"`
	PublishedYear *int             `json:"publishedYear" validate:"omitempty,min=1000,not_future_year"`
	Description   *string          `json:"description" validate:"omitempty,max=2000"`
	ImageURL      *string          `json:"imageUrl" validate:"omitempty,url,max=500"`
	Active        *bool            `json:"isActive"`
}

// BookView is a book as returned to clients.
type BookView struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Author          string            `json:"author"`
	ISBN            string            `json:"isbn"`
	Category        domain.Category   `json:"category"`
	TotalCopies     int               `json:"totalCopies"`
	AvailableCopies int               `json:"availableCopies"`
	PublishedYear   int               `json:"publishedYear"`
	Description     string            `json:"description,omitempty"`
	ImageURL        string            `json:"imageUrl,omitempty"`
	AddedDate       time.Time         `json:"addedDate"`
	Status          domain.BookStatus `json:"status"`
	Active          bool              `json:"isActive"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

func newView(b *db.Book, hasOverdue bool) BookView {
	return BookView{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		ISBN:            b.ISBN,
		Category:        b.Category,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		PublishedYear:   b.PublishedYear,
		Description:     b.Description,
		ImageURL:        b.ImageURL,
		AddedDate:       b.AddedDate,
		Status:          domain.DeriveBookStatus(b.AvailableCopies, hasOverdue),
		Active:          b.Active,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

// Service handles catalog operations
type Service struct {
	store  *repo.Store
	events *events.Dispatcher
	log    *zap.Logger
	now    func() time.Time
}

// NewService creates a catalog service. dispatcher may be nil.
func NewService(store *repo.Store, dispatcher *events.Dispatcher, log *zap.Logger) *Service {
	return &Service{
		store:  store,
		events: dispatcher,
		log:    log,
		now:    db.NowUTC,
	}
}

// Create adds a book with every copy on the shelf.
func (s *Service) Create(ctx context.Context, in BookInput) (*BookView, error) {
	if err := domain.Validate(in); err != nil {
		return nil, err
	}

	book := &db.Book{
		Title:           in.Title,
		Author:          in.Author,
		ISBN:            in.ISBN,
		Category:        in.Category,
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
		PublishedYear:   in.PublishedYear,
		Description:     in.Description,
		ImageURL:        in.ImageURL,
		AddedDate:       s.now(),
		Active:          true,
	}
	err := s.store.Transaction(ctx, func(tx *repo.Store) error {
		id, err := tx.Sequences.NextID(ctx, domain.SeqBook)
		if err != nil {
			return err
		}
		book.ID = id
		return tx.Books.Create(ctx, book)
	})
	if err != nil {
		return nil, err
	}

	view := newView(book, false)
	s.events.Emit(ctx, events.EventTypeBookCreated, view)
	return &view, nil
}

// Get returns an active book.
func (s *Service) Get(ctx context.Context, id string) (*BookView, error) {
	book, err := s.store.Books.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !book.Active {
		return nil, domain.ErrBookNotFound
	}

	views, err := s.views(ctx, []*db.Book{book})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Status returns the derived display status of an active book.
func (s *Service) Status(ctx context.Context, id string) (domain.BookStatus, error) {
	view, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return view.Status, nil
}

// List returns a page of books matching q, newest first.
func (s *Service) List(ctx context.Context, q repo.BookQuery) ([]BookView, int64, error) {
	if q.Category != "" && !q.Category.Valid() {
		return nil, 0, domain.New(domain.KindValidation, "invalid category %q", q.Category)
	}

	books, total, err := s.store.Books.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	views, err := s.views(ctx, books)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

// ByCategory returns every active book of a category.
func (s *Service) ByCategory(ctx context.Context, category domain.Category) ([]BookView, error) {
	if !category.Valid() {
		return nil, domain.New(domain.KindValidation, "invalid category %q", category)
	}

	books, err := s.store.Books.ListByCategory(ctx, category)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, books)
}

// Overdue returns the active books that have at least one overdue loan.
func (s *Service) Overdue(ctx context.Context) ([]BookView, error) {
	overdue, err := s.store.Transactions.BooksWithStatus(ctx, domain.StatusOverdue, nil)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(overdue))
	for id := range overdue {
		ids = append(ids, id)
	}
	books, err := s.store.Books.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]BookView, 0, len(books))
	for _, id := range slices.Sorted(maps.Keys(books)) {
		if b := books[id]; b.Active {
			views = append(views, newView(b, true))
		}
	}
	return views, nil
}

// Update applies the non-nil fields of in. A change of total copies moves
// the available count by the same amount and may not drop below the copies
// currently on loan.
func (s *Service) Update(ctx context.Context, id string, in BookUpdate) (*BookView, error) {
	if err := domain.Validate(in); err != nil {
		return nil, err
	}

	var (
		book          *db.Book
		fieldsChanged []string
	)
	err := s.store.Transaction(ctx, func(tx *repo.Store) error {
		var err error
		book, err = tx.Books.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		updates := getChangedFields(book, in)
		if len(updates) == 0 {
			return nil
		}

		if v, ok := updates["total_copies"]; ok {
			total := v.(int)
			onLoan := book.CopiesOnLoan()
			if total < onLoan {
				return domain.ErrCopiesOnLoan
			}
			updates["available_copies"] = total - onLoan
		}
		if v, ok := updates["isbn"]; ok {
			taken, err := tx.Books.ISBNTaken(ctx, v.(string), id)
			if err != nil {
				return err
			}
			if taken {
				return domain.ErrDuplicateISBN
			}
		}
		if v, ok := updates["active"]; ok && !v.(bool) {
			open, err := tx.Transactions.CountOpenByBook(ctx, id)
			if err != nil {
				return err
			}
			if open > 0 {
				return domain.ErrOpenTransactions
			}
		}

		if err := tx.Books.Update(ctx, id, updates); err != nil {
			return err
		}
		fieldsChanged = slices.Sorted(maps.Keys(updates))

		book, err = tx.Books.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	views, err := s.views(ctx, []*db.Book{book})
	if err != nil {
		return nil, err
	}

	if len(fieldsChanged) > 0 {
		s.log.Info("Book updated", zap.String("book_id", id), zap.Strings("fields_changed", fieldsChanged))
		s.events.Emit(ctx, events.EventTypeBookUpdated, map[string]interface{}{
			"book":           views[0],
			"fields_changed": fieldsChanged,
		})
	}
	return &views[0], nil
}

// getChangedFields returns the column updates for the fields of in that
// differ from the stored book.
func getChangedFields(old *db.Book, in BookUpdate) map[string]interface{} {
	updates := make(map[string]interface{})

	if in.Title != nil && *in.Title != old.Title {
		updates["title"] = *in.Title
	}
	if in.Author != nil && *in.Author != old.Author {
		updates["author"] = *in.Author
	}
	if in.ISBN != nil && *in.ISBN != old.ISBN {
		updates["isbn"] = *in.ISBN
	}
	if in.Category != nil && *in.Category != old.Category {
		updates["category"] = *in.Category
	}
	if in.TotalCopies != nil && *in.TotalCopies != old.TotalCopies {
		updates["total_copies"] = *in.TotalCopies
	}
	if in.PublishedYear != nil && *in.PublishedYear != old.PublishedYear {
		updates["published_year"] = *in.PublishedYear
	}
	if in.Description != nil && *in.Description != old.Description {
		updates["description"] = *in.Description
	}
	if in.ImageURL != nil && *in.ImageURL != old.ImageURL {
		updates["image_url"] = *in.ImageURL
	}
	if in.Active != nil && *in.Active != old.Active {
		updates["active"] = *in.Active
	}

	return updates
}

// views derives the display status of books. Only books with no copy on
// the shelf need the overdue lookup.
func (s *Service) views(ctx context.Context, books []*db.Book) ([]BookView, error) {
	var empty []string
	for _, b := range books {
		if b.AvailableCopies == 0 {
			empty = append(empty, b.ID)
		}
	}

	overdue := map[string]bool{}
	if len(empty) > 0 {
		var err error
		overdue, err = s.store.Transactions.BooksWithStatus(ctx, domain.StatusOverdue, empty)
		if err != nil {
			return nil, err
		}
	}

	views := make([]BookView, 0, len(books))
	for _, b := range books {
		views = append(views, newView(b, overdue[b.ID]))
	}
	return views, nil
}
