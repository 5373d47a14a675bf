// Package members manages the member registry.
package members

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smartlibrary/library/internal/db"
	"github.com/smartlibrary/library/internal/domain"
	"github.com/smartlibrary/library/internal/events"
	"github.com/smartlibrary/library/internal/repo"
)

// MemberInput holds the fields of a new member. Status defaults to active
// and MaxBooksAllowed to the configured default.
type MemberInput struct {
	Name            string              `json:"name" validate:"required,max=100"`
	Email           string              `json:"email" validate:"required,email,max=255"`
	Phone           string              `json:"phone" validate:"omitempty,phone"`
	Address         string              `json:"address" validate:"max=500"`
	MembershipDate  *time.Time          `json:"membershipDate"`
	Status          domain.MemberStatus `json:"status" validate:"omitempty,member_status"`
	MaxBooksAllowed int                 `json:"maxBooksAllowed" validate:"omitempty,min=1"`
}

// MemberUpdate changes selected fields of a member. Nil fields are unchanged.
type MemberUpdate struct {
	Name            *string              `json:"name" validate:"omitempty,min=1,max=100"`
	Email           *string              `json:"email" validate:"omitempty,email,max=255"`
	Phone           *string              `json:"phone" validate:"omitempty,phone"`
	Address         *string              `json:"address" validate:"omitempty,max=500"`
	Status          *domain.MemberStatus `json:"status" validate:"omitempty,member_status"`
	MaxBooksAllowed *int                 `json:"maxBooksAllowed" validate:"omitempty,min=1"`
}

// MemberView is a member as returned to clients.
type MemberView struct {
	MemberID        string              `json:"memberId"`
	Name            string              `json:"name"`
	Email           string              `json:"email"`
	Phone           string              `json:"phone,omitempty"`
	Address         string              `json:"address,omitempty"`
	MembershipDate  time.Time           `json:"membershipDate"`
	Status          domain.MemberStatus `json:"status"`
	BooksCheckedOut int                 `json:"booksCheckedOut"`
	MaxBooksAllowed int                 `json:"maxBooksAllowed"`
	TotalFines      float64             `json:"totalFines"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func newView(m *db.Member) MemberView {
	return MemberView{
		MemberID:        m.MemberID,
		Name:            m.Name,
		Email:           m.Email,
		Phone:           m.Phone,
		Address:         m.Address,
		MembershipDate:  m.MembershipDate,
		Status:          m.Status,
		BooksCheckedOut: m.BooksCheckedOut,
		MaxBooksAllowed: m.MaxBooksAllowed,
		TotalFines:      domain.Amount(m.TotalFinesCents),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// Service handles member operations
type Service struct {
	store           *repo.Store
	events          *events.Dispatcher
	log             *zap.Logger
	defaultMaxBooks int
	now             func() time.Time
}

// NewService creates a member service. dispatcher may be nil.
func NewService(store *repo.Store, dispatcher *events.Dispatcher, log *zap.Logger, defaultMaxBooks int) *Service {
	if defaultMaxBooks < 1 {
		defaultMaxBooks = 5
	}
	return &Service{
		store:           store,
		events:          dispatcher,
		log:             log,
		defaultMaxBooks: defaultMaxBooks,
		now:             db.NowUTC,
	}
}

// Register adds a member. Emails are stored lower-cased and must be unique.
func (s *Service) Register(ctx context.Context, in MemberInput) (*MemberView, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := domain.Validate(in); err != nil {
		return nil, err
	}

	member := &db.Member{
		Name:            in.Name,
		Email:           in.Email,
		Phone:           in.Phone,
		Address:         in.Address,
		MembershipDate:  s.now(),
		Status:          in.Status,
		MaxBooksAllowed: in.MaxBooksAllowed,
	}
	if in.MembershipDate != nil {
		member.MembershipDate = in.MembershipDate.UTC()
	}
	if member.Status == "" {
		member.Status = domain.MemberActive
	}
	if member.MaxBooksAllowed == 0 {
		member.MaxBooksAllowed = s.defaultMaxBooks
	}

	err := s.store.Transaction(ctx, func(tx *repo.Store) error {
		id, err := tx.Sequences.NextID(ctx, domain.SeqMember)
		if err != nil {
			return err
		}
		member.MemberID = id
		return tx.Members.Create(ctx, member)
	})
	if err != nil {
		return nil, err
	}

	view := newView(member)
	s.events.Emit(ctx, events.EventTypeMemberRegistered, view)
	return &view, nil
}

// Get returns one member.
func (s *Service) Get(ctx context.Context, memberID string) (*MemberView, error) {
	member, err := s.store.Members.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	view := newView(member)
	return &view, nil
}

// List returns a page of members matching q, newest first.
func (s *Service) List(ctx context.Context, q repo.MemberQuery) ([]MemberView, int64, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, 0, domain.New(domain.KindValidation, "invalid status %q", q.Status)
	}

	members, total, err := s.store.Members.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	views := make([]MemberView, 0, len(members))
	for _, m := range members {
		views = append(views, newView(m))
	}
	return views, total, nil
}

// Update applies the non-nil fields of in. The loan quota may be lowered
// below the current loan count; it only blocks further borrowing.
func (s *Service) Update(ctx context.Context, memberID string, in MemberUpdate) (*MemberView, error) {
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		in.Email = &email
	}
	if err := domain.Validate(in); err != nil {
		return nil, err
	}

	var member *db.Member
	err := s.store.Transaction(ctx, func(tx *repo.Store) error {
		current, err := tx.Members.GetForUpdate(ctx, memberID)
		if err != nil {
			return err
		}

		updates := make(map[string]interface{})
		if in.Name != nil && *in.Name != current.Name {
			updates["name"] = strings.TrimSpace(*in.Name)
		}
		if in.Email != nil && *in.Email != current.Email {
			taken, err := tx.Members.EmailTaken(ctx, *in.Email, memberID)
			if err != nil {
				return err
			}
			if taken {
				return domain.ErrDuplicateEmail
			}
			updates["email"] = *in.Email
		}
		if in.Phone != nil && *in.Phone != current.Phone {
			updates["phone"] = *in.Phone
		}
		if in.Address != nil && *in.Address != current.Address {
			updates["address"] = *in.Address
		}
		if in.Status != nil && *in.Status != current.Status {
			updates["status"] = *in.Status
		}
		if in.MaxBooksAllowed != nil && *in.MaxBooksAllowed != current.MaxBooksAllowed {
			updates["max_books_allowed"] = *in.MaxBooksAllowed
		}

		if err := tx.Members.Update(ctx, memberID, updates); err != nil {
			return err
		}
		member, err = tx.Members.Get(ctx, memberID)
		return err
	})
	if err != nil {
		return nil, err
	}

	view := newView(member)
	s.events.Emit(ctx, events.EventTypeMemberUpdated, view)
	return &view, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
