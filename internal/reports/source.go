package reports

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"github.com/smartlibrary/library/internal/db"
	"github.com/smartlibrary/library/internal/domain"
)

const (
	tableBooks        = "books"
	tableMembers      = "members"
	tableTransactions = "transactions"

	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite3"
)

// ErrBuildingQueryFailed wraps goqu build errors.
var ErrBuildingQueryFailed = errors.New("building report query failed")

// Source runs the aggregate queries behind the reports. It shares the
// connection pool of the gorm store and never writes.
type Source struct {
	db      *sqlx.DB
	builder goqu.DialectWrapper
}

// NewSource wraps the pool of database in sqlx.
func NewSource(database *db.DB) (*Source, error) {
	sqlDB, err := database.DB.DB()
	if err != nil {
		return nil, err
	}

	dialect := dialectSQLite
	if database.IsPostgres() {
		dialect = dialectPostgres
	}
	return &Source{
		db:      sqlx.NewDb(sqlDB, dialect),
		builder: goqu.Dialect(dialect),
	}, nil
}

type bookTotals struct {
	ActiveBooks     int64 `db:"active_books"`
	AvailableCopies int64 `db:"available_copies"`
}

type memberTotals struct {
	TotalMembers  int64 `db:"total_members"`
	ActiveMembers int64 `db:"active_members"`
}

type transactionTotals struct {
	TotalTransactions int64 `db:"total_transactions"`
	ActiveBorrows     int64 `db:"active_borrows"`
	OverdueBorrows    int64 `db:"overdue_borrows"`
	FineCents         int64 `db:"fine_cents"`
}

type categoryCount struct {
	Category domain.Category `db:"category"`
	Count    int64           `db:"count"`
}

type memberActivityRow struct {
	MemberID       string              `db:"member_id"`
	Name           string              `db:"name"`
	Email          string              `db:"email"`
	Status         domain.MemberStatus `db:"status"`
	MembershipDate time.Time           `db:"membership_date"`
	TotalBorrows   int64               `db:"total_borrows"`
	ActiveBorrows  int64               `db:"active_borrows"`
	OverdueBorrows int64               `db:"overdue_borrows"`
	FineCents      int64               `db:"fine_cents"`
}

type overdueRow struct {
	TransactionID string         `db:"transaction_id"`
	BookID        string         `db:"book_id"`
	MemberID      string         `db:"member_id"`
	BorrowDate    time.Time      `db:"borrow_date"`
	DueDate       time.Time      `db:"due_date"`
	FineCents     int64          `db:"fine_cents"`
	BookTitle     sql.NullString `db:"book_title"`
	BookAuthor    sql.NullString `db:"book_author"`
	MemberName    sql.NullString `db:"member_name"`
	MemberEmail   sql.NullString `db:"member_email"`
}

type borrowRow struct {
	BorrowDate time.Time  `db:"borrow_date"`
	ReturnDate *time.Time `db:"return_date"`
}

// countWhen counts the rows matching cond.
func countWhen(cond exp.Expression) exp.SQLFunctionExpression {
	return goqu.COALESCE(goqu.SUM(goqu.Case().When(cond, goqu.L("1")).Else(goqu.L("0"))), goqu.L("0"))
}

// sumInt sums a bigint column as bigint; PostgreSQL widens SUM(bigint) to numeric.
func sumInt(expr interface{}) exp.CastExpression {
	return goqu.Cast(goqu.COALESCE(goqu.SUM(expr), goqu.L("0")), "BIGINT")
}

func (s *Source) bookTotals(ctx context.Context) (bookTotals, error) {
	var out bookTotals
	stmt := s.builder.From(tableBooks).
		Select(
			goqu.COUNT(goqu.Star()).As("active_books"),
			sumInt(goqu.C("available_copies")).As("available_copies"),
		).
		Where(goqu.C("active").IsTrue())

	err := s.get(ctx, &out, stmt)
	return out, err
}

func (s *Source) memberTotals(ctx context.Context) (memberTotals, error) {
	var out memberTotals
	stmt := s.builder.From(tableMembers).
		Select(
			goqu.COUNT(goqu.Star()).As("total_members"),
			countWhen(goqu.C("status").Eq(string(domain.MemberActive))).As("active_members"),
		)

	err := s.get(ctx, &out, stmt)
	return out, err
}

func (s *Source) transactionTotals(ctx context.Context) (transactionTotals, error) {
	var out transactionTotals
	stmt := s.builder.From(tableTransactions).
		Select(
			goqu.COUNT(goqu.Star()).As("total_transactions"),
			countWhen(goqu.C("status").Eq(string(domain.StatusActive))).As("active_borrows"),
			countWhen(goqu.C("status").Eq(string(domain.StatusOverdue))).As("overdue_borrows"),
			sumInt(goqu.Case().
				When(goqu.C("fine_cents").Gt(0), goqu.C("fine_cents")).
				Else(goqu.L("0"))).As("fine_cents"),
		)

	err := s.get(ctx, &out, stmt)
	return out, err
}

func (s *Source) categoryCounts(ctx context.Context) ([]categoryCount, error) {
	var out []categoryCount
	stmt := s.builder.From(tableBooks).
		Select(goqu.C("category"), goqu.COUNT(goqu.Star()).As("count")).
		Where(goqu.C("active").IsTrue()).
		GroupBy(goqu.C("category")).
		Order(goqu.I("count").Desc(), goqu.C("category").Asc())

	err := s.selectRows(ctx, &out, stmt)
	return out, err
}

func (s *Source) memberActivity(ctx context.Context) ([]memberActivityRow, error) {
	var out []memberActivityRow
	status := goqu.I("t.status")
	stmt := s.builder.From(goqu.T(tableMembers).As("m")).
		LeftJoin(goqu.T(tableTransactions).As("t"), goqu.On(goqu.I("t.member_id").Eq(goqu.I("m.member_id")))).
		Select(
			goqu.I("m.member_id").As("member_id"),
			goqu.I("m.name").As("name"),
			goqu.I("m.email").As("email"),
			goqu.I("m.status").As("status"),
			goqu.I("m.membership_date").As("membership_date"),
			goqu.COUNT(goqu.I("t.transaction_id")).As("total_borrows"),
			countWhen(status.Eq(string(domain.StatusActive))).As("active_borrows"),
			countWhen(status.Eq(string(domain.StatusOverdue))).As("overdue_borrows"),
			sumInt(goqu.COALESCE(goqu.I("t.fine_cents"), goqu.L("0"))).As("fine_cents"),
		).
		GroupBy(
			goqu.I("m.member_id"),
			goqu.I("m.name"),
			goqu.I("m.email"),
			goqu.I("m.status"),
			goqu.I("m.membership_date"),
		).
		Order(goqu.I("total_borrows").Desc(), goqu.I("member_id").Asc())

	err := s.selectRows(ctx, &out, stmt)
	return out, err
}

func (s *Source) overdueRows(ctx context.Context) ([]overdueRow, error) {
	var out []overdueRow
	stmt := s.builder.From(goqu.T(tableTransactions).As("t")).
		LeftJoin(goqu.T(tableBooks).As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("t.book_id")))).
		LeftJoin(goqu.T(tableMembers).As("m"), goqu.On(goqu.I("m.member_id").Eq(goqu.I("t.member_id")))).
		Select(
			goqu.I("t.transaction_id").As("transaction_id"),
			goqu.I("t.book_id").As("book_id"),
			goqu.I("t.member_id").As("member_id"),
			goqu.I("t.borrow_date").As("borrow_date"),
			goqu.I("t.due_date").As("due_date"),
			goqu.I("t.fine_cents").As("fine_cents"),
			goqu.I("b.title").As("book_title"),
			goqu.I("b.author").As("book_author"),
			goqu.I("m.name").As("member_name"),
			goqu.I("m.email").As("member_email"),
		).
		Where(goqu.I("t.status").Eq(string(domain.StatusOverdue))).
		Order(goqu.I("t.due_date").Asc(), goqu.I("t.transaction_id").Asc())

	err := s.selectRows(ctx, &out, stmt)
	return out, err
}

// borrows returns the borrow and return instants of every transaction;
// month bucketing happens in Go so it does not depend on dialect date functions.
func (s *Source) borrows(ctx context.Context) ([]borrowRow, error) {
	var out []borrowRow
	stmt := s.builder.From(tableTransactions).
		Select(goqu.C("borrow_date"), goqu.C("return_date")).
		Order(goqu.C("borrow_date").Asc())

	err := s.selectRows(ctx, &out, stmt)
	return out, err
}

func (s *Source) get(ctx context.Context, dest interface{}, stmt *goqu.SelectDataset) error {
	query, _, err := stmt.ToSQL()
	if err != nil {
		return errors.Join(ErrBuildingQueryFailed, err)
	}
	return s.db.GetContext(ctx, dest, query)
}

func (s *Source) selectRows(ctx context.Context, dest interface{}, stmt *goqu.SelectDataset) error {
	query, _, err := stmt.ToSQL()
	if err != nil {
		return errors.Join(ErrBuildingQueryFailed, err)
	}
	return s.db.SelectContext(ctx, dest, query)
}
