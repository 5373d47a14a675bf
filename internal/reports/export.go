package reports

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	overdueSheet = "Overdue"
	dateLayout   = "2006-01-02"
)

var overdueHeaders = []string{
	"Transaction ID", "Book ID", "Title", "Author", "Member ID", "Member",
	"Email", "Borrowed", "Due", "Days Overdue", "Fine",
}

var overdueColumns = []struct {
	from, to string
	width    float64
}{
	{"A", "B", 16},
	{"C", "D", 30},
	{"E", "E", 12},
	{"F", "G", 28},
	{"H", "K", 13},
}

// ExportOverdue writes the overdue report to w as an XLSX workbook.
func (s *Service) ExportOverdue(ctx context.Context, w io.Writer) error {
	entries, err := s.Overdue(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.log.Warn("Failed to close workbook", zap.Error(err))
		}
	}()

	if err := f.SetSheetName("Sheet1", overdueSheet); err != nil {
		return err
	}

	for i, h := range overdueHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(overdueSheet, cell, h); err != nil {
			return err
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(overdueHeaders), 1)
	if err := f.SetCellStyle(overdueSheet, "A1", lastHeader, bold); err != nil {
		return err
	}

	for i, e := range entries {
		row := []interface{}{
			e.TransactionID,
			e.BookID,
			e.BookTitle,
			e.BookAuthor,
			e.MemberID,
			e.MemberName,
			e.MemberEmail,
			e.BorrowDate.Format(dateLayout),
			e.DueDate.Format(dateLayout),
			e.DaysOverdue,
			e.Fine,
		}
		if err := f.SetSheetRow(overdueSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}

	for _, c := range overdueColumns {
		if err := f.SetColWidth(overdueSheet, c.from, c.to, c.width); err != nil {
			return fmt.Errorf("set width of columns %s:%s: %w", c.from, c.to, err)
		}
	}

	return f.Write(w)
}
