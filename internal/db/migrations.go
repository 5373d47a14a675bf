package db

import (
	"errors"

	"github.com/smartlibrary/library/internal/domain"
	"gorm.io/gorm"
)

// RunMigrations runs all database migrations
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(&Book{}, &Member{}, &Transaction{}, &User{}, &Sequence{}); err != nil {
		return err
	}

	if err := seedSequences(db.DB); err != nil {
		return err
	}

	if db.IsPostgres() {
		if err := createIndexes(db.DB); err != nil {
			return err
		}
	}

	return nil
}

// seedSequences makes sure every ID sequence row exists so that the
// in-transaction increment never has to insert.
func seedSequences(db *gorm.DB) error {
	for _, name := range []string{domain.SeqBook, domain.SeqMember, domain.SeqTransaction} {
		var seq Sequence
		err := db.Where("name = ?", name).First(&seq).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Create(&Sequence{Name: name, Value: 0}).Error; err != nil {
			return err
		}
	}
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Case-insensitive catalog search
		`CREATE INDEX IF NOT EXISTS idx_books_title_lower ON books (LOWER(title))`,
		`CREATE INDEX IF NOT EXISTS idx_books_author_lower ON books (LOWER(author))`,

		// Catalog listing only ever shows active books
		`CREATE INDEX IF NOT EXISTS idx_books_active_category ON books(active, category) WHERE active = true`,

		// Overdue sweep scans active loans by due date
		`CREATE INDEX IF NOT EXISTS idx_transactions_open_due ON transactions(due_date) WHERE status = 'active'`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
