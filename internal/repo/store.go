package repo

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smartlibrary/library/internal/db"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Pagination selects one page of a listing. Zero values mean page 1 of 10.
type Pagination struct {
	Page  int
	Limit int
}

// Normalize clamps the page to >= 1 and the limit to 1..100.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	return p
}

func (p Pagination) offset() int {
	return (p.Page - 1) * p.Limit
}

// Pages returns the number of pages needed for total items.
func (p Pagination) Pages(total int64) int64 {
	if p.Limit < 1 {
		return 0
	}
	pages := total / int64(p.Limit)
	if total%int64(p.Limit) > 0 {
		pages++
	}
	return pages
}

// Store groups the repositories that share one database handle. A Store
// obtained inside Transaction is bound to that database transaction.
type Store struct {
	db  *db.DB
	log *zap.Logger

	Books        *BookRepository
	Members      *MemberRepository
	Transactions *TransactionRepository
	Users        *UserRepository
	Sequences    *SequenceRepository
}

// NewStore creates a store over database.
func NewStore(database *db.DB, logger *zap.Logger) *Store {
	return &Store{
		db:           database,
		log:          logger,
		Books:        &BookRepository{db: database, log: logger},
		Members:      &MemberRepository{db: database, log: logger},
		Transactions: &TransactionRepository{db: database, log: logger},
		Users:        &UserRepository{db: database, log: logger},
		Sequences:    &SequenceRepository{db: database, log: logger},
	}
}

// Transaction runs fn against a store bound to a single database
// transaction. Any error returned by fn rolls every write back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(NewStore(&db.DB{DB: gtx}, s.log))
	})
}

// DB exposes the underlying handle for health checks and reporting.
func (s *Store) DB() *db.DB {
	return s.db
}

// forUpdate adds a row lock on dialects that support it. SQLite serialises
// writers at the database level, so no clause is needed there.
func forUpdate(database *db.DB, q *gorm.DB) *gorm.DB {
	if database.IsPostgres() {
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

// likeEscaper escapes LIKE wildcards so user input matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a case-insensitive substring pattern for
// LOWER(col) LIKE ? ESCAPE '\'.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}
