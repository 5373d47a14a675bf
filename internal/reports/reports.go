// Package reports builds read-only projections over the catalog, the member
// registry and the circulation history.
package reports

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/smartlibrary/library/internal/db"
	"github.com/smartlibrary/library/internal/domain"
)

const monthLayout = "2006-01"

// Dashboard summarises the whole library.
type Dashboard struct {
	TotalBooks        int64   `json:"totalBooks"`
	AvailableBooks    int64   `json:"availableBooks"`
	TotalMembers      int64   `json:"totalMembers"`
	ActiveMembers     int64   `json:"activeMembers"`
	TotalTransactions int64   `json:"totalTransactions"`
	ActiveBorrows     int64   `json:"activeBorrows"`
	OverdueBooks      int64   `json:"overdueBooks"`
	TotalFines        float64 `json:"totalFines"`
}

// CategoryShare is the number of active books in a category.
type CategoryShare struct {
	Category   domain.Category `json:"category"`
	Count      int64           `json:"count"`
	Percentage float64         `json:"percentage"`
}

// MemberActivity counts the loans of one member.
type MemberActivity struct {
	MemberID       string              `json:"memberId"`
	Name           string              `json:"name"`
	Email          string              `json:"email"`
	Status         domain.MemberStatus `json:"status"`
	MembershipDate time.Time           `json:"membershipDate"`
	TotalBorrows   int64               `json:"totalBorrows"`
	ActiveBorrows  int64               `json:"activeBorrows"`
	OverdueBorrows int64               `json:"overdueBorrows"`
	TotalFines     float64             `json:"totalFines"`
}

// OverdueEntry is one overdue loan. Fine is the stored fine, or the fine the
// loan would incur if it were returned now.
type OverdueEntry struct {
	TransactionID string    `json:"transactionId"`
	BookID        string    `json:"bookId"`
	BookTitle     string    `json:"bookTitle"`
	BookAuthor    string    `json:"bookAuthor"`
	MemberID      string    `json:"memberId"`
	MemberName    string    `json:"memberName"`
	MemberEmail   string    `json:"memberEmail"`
	BorrowDate    time.Time `json:"borrowDate"`
	DueDate       time.Time `json:"dueDate"`
	DaysOverdue   int64     `json:"daysOverdue"`
	Fine          float64   `json:"fine"`
	FineCents     int64     `json:"-"`
}

// MonthlyTrend counts the loans started in a month and how many of them
// have been returned.
type MonthlyTrend struct {
	Month   string `json:"month"`
	Borrows int64  `json:"borrows"`
	Returns int64  `json:"returns"`
}

// Service produces reports
type Service struct {
	source   *Source
	log      *zap.Logger
	fineRate int64
	now      func() time.Time
}

// NewService creates a report service. fineRateCents prices the estimated
// fine of loans that are still out.
func NewService(source *Source, log *zap.Logger, fineRateCents int64) *Service {
	if fineRateCents <= 0 {
		fineRateCents = domain.DefaultFineRateCents
	}
	return &Service{
		source:   source,
		log:      log,
		fineRate: fineRateCents,
		now:      db.NowUTC,
	}
}

// Dashboard returns library-wide totals.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	books, err := s.source.bookTotals(ctx)
	if err != nil {
		return nil, err
	}
	members, err := s.source.memberTotals(ctx)
	if err != nil {
		return nil, err
	}
	txns, err := s.source.transactionTotals(ctx)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		TotalBooks:        books.ActiveBooks,
		AvailableBooks:    books.AvailableCopies,
		TotalMembers:      members.TotalMembers,
		ActiveMembers:     members.ActiveMembers,
		TotalTransactions: txns.TotalTransactions,
		ActiveBorrows:     txns.ActiveBorrows,
		OverdueBooks:      txns.OverdueBorrows,
		TotalFines:        domain.Amount(txns.FineCents),
	}, nil
}

// Categories returns the distribution of active books over categories,
// largest first.
func (s *Service) Categories(ctx context.Context) ([]CategoryShare, error) {
	counts, err := s.source.categoryCounts(ctx)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, c := range counts {
		total += c.Count
	}

	shares := make([]CategoryShare, 0, len(counts))
	for _, c := range counts {
		shares = append(shares, CategoryShare{
			Category:   c.Category,
			Count:      c.Count,
			Percentage: domain.Percentage(c.Count, total),
		})
	}
	return shares, nil
}

// MemberActivity returns loan counts for every member, busiest first.
func (s *Service) MemberActivity(ctx context.Context) ([]MemberActivity, error) {
	rows, err := s.source.memberActivity(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]MemberActivity, 0, len(rows))
	for _, r := range rows {
		out = append(out, MemberActivity{
			MemberID:       r.MemberID,
			Name:           r.Name,
			Email:          r.Email,
			Status:         r.Status,
			MembershipDate: r.MembershipDate.UTC(),
			TotalBorrows:   r.TotalBorrows,
			ActiveBorrows:  r.ActiveBorrows,
			OverdueBorrows: r.OverdueBorrows,
			TotalFines:     domain.Amount(r.FineCents),
		})
	}
	return out, nil
}

// Overdue returns the overdue loans, longest overdue first.
func (s *Service) Overdue(ctx context.Context) ([]OverdueEntry, error) {
	rows, err := s.source.overdueRows(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]OverdueEntry, 0, len(rows))
	for _, r := range rows {
		days := domain.DaysLate(r.DueDate, now)
		fine := r.FineCents
		if fine == 0 {
			fine = days * s.fineRate
		}
		out = append(out, OverdueEntry{
			TransactionID: r.TransactionID,
			BookID:        r.BookID,
			BookTitle:     domain.OrUnknown(r.BookTitle.String, domain.UnknownBook),
			BookAuthor:    domain.OrUnknown(r.BookAuthor.String, domain.UnknownAuthor),
			MemberID:      r.MemberID,
			MemberName:    domain.OrUnknown(r.MemberName.String, domain.UnknownMember),
			MemberEmail:   domain.OrUnknown(r.MemberEmail.String, domain.UnknownEmail),
			BorrowDate:    r.BorrowDate.UTC(),
			DueDate:       r.DueDate.UTC(),
			DaysOverdue:   days,
			Fine:          domain.Amount(fine),
			FineCents:     fine,
		})
	}
	return out, nil
}

// MonthlyTrends groups loans by the UTC month they started in, oldest first.
func (s *Service) MonthlyTrends(ctx context.Context) ([]MonthlyTrend, error) {
	rows, err := s.source.borrows(ctx)
	if err != nil {
		return nil, err
	}

	var out []MonthlyTrend
	for _, r := range rows {
		month := r.BorrowDate.UTC().Format(monthLayout)
		if len(out) == 0 || out[len(out)-1].Month != month {
			out = append(out, MonthlyTrend{Month: month})
		}
		last := &out[len(out)-1]
		last.Borrows++
		if r.ReturnDate != nil {
			last.Returns++
		}
	}
	if out == nil {
		out = []MonthlyTrend{}
	}
	return out, nil
}
