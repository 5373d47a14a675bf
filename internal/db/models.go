package db

import (
	"time"

	"github.com/smartlibrary/library/internal/domain"
)

// Book represents a catalog entry and its copy counts
type Book struct {
	ID              string          `gorm:"primaryKey;type:varchar(20)"`
	Title           string          `gorm:"type:varchar(200);not null;index:idx_books_title"`
	Author          string          `gorm:"type:varchar(100);not null;index:idx_books_author"`
	ISBN            string          `gorm:"column:isbn;type:varchar(20);not null;uniqueIndex:idx_books_isbn"`
	Category        domain.Category `gorm:"type:varchar(32);not null;index:idx_books_category"`
	TotalCopies     int             `gorm:"not null"`
	AvailableCopies int             `gorm:"not null"`
	PublishedYear   int             `gorm:"not null"`
	Description     string          `gorm:"type:text"`
	ImageURL        string          `gorm:"column:image_url;type:varchar(500)"`
	AddedDate       time.Time       `gorm:"not null"`
	Active          bool            `gorm:"not null;index:idx_books_active"`
	CreatedAt       time.Time       `gorm:"not null;index:idx_books_created_at"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

func (Book) TableName() string {
	return "books"
}

// CopiesOnLoan is the number of copies currently borrowed.
func (b *Book) CopiesOnLoan() int {
	return b.TotalCopies - b.AvailableCopies
}

// Member represents a registered borrower. BooksCheckedOut and
// TotalFinesCents are derived from the member's transactions.
type Member struct {
	MemberID        string              `gorm:"primaryKey;type:varchar(20)"`
	Name            string              `gorm:"type:varchar(100);not null;index:idx_members_name"`
	Email           string              `gorm:"type:varchar(255);not null;uniqueIndex:idx_members_email"`
	Phone           string              `gorm:"type:varchar(20)"`
	Address         string              `gorm:"type:varchar(500)"`
	MembershipDate  time.Time           `gorm:"not null"`
	Status          domain.MemberStatus `gorm:"type:varchar(16);not null;index:idx_members_status"`
	BooksCheckedOut int                 `gorm:"not null"`
	MaxBooksAllowed int                 `gorm:"not null"`
	TotalFinesCents int64               `gorm:"not null"`
	CreatedAt       time.Time           `gorm:"not null;index:idx_members_created_at"`
	UpdatedAt       time.Time           `gorm:"not null"`
}

func (Member) TableName() string {
	return "members"
}

// Transaction represents one circulation event.
type Transaction struct {
	TransactionID string                   `gorm:"primaryKey;type:varchar(20)"`
	BookID        string                   `gorm:"type:varchar(20);not null;index:idx_transactions_book"`
	MemberID      string                   `gorm:"type:varchar(20);not null;index:idx_transactions_member"`
	Type          domain.TransactionType   `gorm:"type:varchar(16);not null"`
	BorrowDate    time.Time                `gorm:"not null;index:idx_transactions_borrow_date"`
	DueDate       time.Time                `gorm:"not null;index:idx_transactions_due_date"`
	ReturnDate    *time.Time
	Status        domain.TransactionStatus `gorm:"type:varchar(16);not null;index:idx_transactions_status"`
	FineCents     int64                    `gorm:"not null"`
	Notes         string                   `gorm:"type:text"`
	CreatedAt     time.Time                `gorm:"not null;index:idx_transactions_created_at"`
	UpdatedAt     time.Time                `gorm:"not null"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// User is an account that can authenticate against the API.
type User struct {
	ID           string      `gorm:"primaryKey;type:varchar(36)"`
	Name         string      `gorm:"type:varchar(100);not null"`
	Email        string      `gorm:"type:varchar(255);not null;uniqueIndex:idx_users_email"`
	PasswordHash string      `gorm:"type:varchar(100);not null"`
	Role         domain.Role `gorm:"type:varchar(16);not null"`
	Active       bool        `gorm:"not null"`
	LastLoginAt  *time.Time
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (User) TableName() string {
	return "users"
}

// Sequence is a named monotonic counter used for human-readable IDs.
type Sequence struct {
	Name  string `gorm:"primaryKey;type:varchar(32)"`
	Value int64  `gorm:"not null"`
}

func (Sequence) TableName() string {
	return "sequences"
}
