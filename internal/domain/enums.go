package domain

// Category is the closed set of catalog categories.
type Category string

const (
	CategoryFiction    Category = "Fiction"
	CategoryNonFiction Category = "Non-Fiction"
	CategoryScience    Category = "Science"
	CategoryHistory    Category = "History"
	CategoryBiography  Category = "Biography"
	CategorySelfHelp   Category = "Self-Help"
	CategoryThriller   Category = "Thriller"
	CategoryMemoir     Category = "Memoir"
	CategoryFinance    Category = "Finance"
	CategoryTechnology Category = "Technology"
	CategoryOther      Category = "Other"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryFiction,
	CategoryNonFiction,
	CategoryScience,
	CategoryHistory,
	CategoryBiography,
	CategorySelfHelp,
	CategoryThriller,
	CategoryMemoir,
	CategoryFinance,
	CategoryTechnology,
	CategoryOther,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// MemberStatus is the registration state of a member.
type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberInactive  MemberStatus = "inactive"
	MemberSuspended MemberStatus = "suspended"
)

func (s MemberStatus) Valid() bool {
	switch s {
	case MemberActive, MemberInactive, MemberSuspended:
		return true
	}
	return false
}

// TransactionType is informational; the lifecycle is driven by TransactionStatus.
type TransactionType string

const (
	TypeBorrow TransactionType = "borrow"
	TypeReturn TransactionType = "return"
)

func (t TransactionType) Valid() bool {
	return t == TypeBorrow || t == TypeReturn
}

// TransactionStatus is the circulation state of a transaction.
type TransactionStatus string

const (
	StatusActive    TransactionStatus = "active"
	StatusOverdue   TransactionStatus = "overdue"
	StatusCompleted TransactionStatus = "completed"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusOverdue, StatusCompleted:
		return true
	}
	return false
}

// Open reports whether the book is still out with the member.
func (s TransactionStatus) Open() bool {
	return s == StatusActive || s == StatusOverdue
}

// OpenStatuses are the statuses that count against quota and inventory.
var OpenStatuses = []TransactionStatus{StatusActive, StatusOverdue}

// BookStatus is the derived availability shown to clients.
type BookStatus string

const (
	BookAvailable  BookStatus = "Available"
	BookCheckedOut BookStatus = "Checked Out"
	BookOverdue    BookStatus = "Overdue"
)

// DeriveBookStatus computes the display status of a book.
func DeriveBookStatus(availableCopies int, hasOverdue bool) BookStatus {
	if availableCopies > 0 {
		return BookAvailable
	}
	if hasOverdue {
		return BookOverdue
	}
	return BookCheckedOut
}

// Role is the permission level of an authenticated principal.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleLibrarian Role = "librarian"
	RoleMember    Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLibrarian, RoleMember:
		return true
	}
	return false
}
