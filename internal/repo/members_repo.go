package repo

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smartlibrary/library/internal/db"
	"github.com/smartlibrary/library/internal/domain"
)

// MemberQuery filters member listings. Empty fields do not filter.
type MemberQuery struct {
	Search string
	Status domain.MemberStatus
	Pagination
}

// MemberRepository handles member persistence
type MemberRepository struct {
	db  *db.DB
	log *zap.Logger
}

// Create inserts a new member. Emails are unique.
func (r *MemberRepository) Create(ctx context.Context, member *db.Member) error {
	taken, err := r.EmailTaken(ctx, member.Email, "")
	if err != nil {
		return err
	}
	if taken {
		return domain.ErrDuplicateEmail
	}

	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateEmail
		}
		r.log.Error("Failed to create member", zap.String("member_id", member.MemberID), zap.Error(err))
		return err
	}

	r.log.Info("Member registered", zap.String("member_id", member.MemberID))
	return nil
}

// Get retrieves a member by member ID.
func (r *MemberRepository) Get(ctx context.Context, id string) (*db.Member, error) {
	return r.get(r.db.WithContext(ctx), id)
}

// GetForUpdate is Get with a row lock held until the surrounding
// transaction ends.
func (r *MemberRepository) GetForUpdate(ctx context.Context, id string) (*db.Member, error) {
	return r.get(forUpdate(r.db, r.db.WithContext(ctx)), id)
}

func (r *MemberRepository) get(q *gorm.DB, id string) (*db.Member, error) {
	var member db.Member
	err := q.Where("member_id = ?", id).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMemberNotFound
		}
		r.log.Error("Failed to get member", zap.String("member_id", id), zap.Error(err))
		return nil, err
	}
	return &member, nil
}

// FindByIDs returns the members with the given IDs keyed by member ID.
func (r *MemberRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*db.Member, error) {
	out := make(map[string]*db.Member, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var members []*db.Member
	if err := r.db.WithContext(ctx).Where("member_id IN ?", ids).Find(&members).Error; err != nil {
		r.log.Error("Failed to load members", zap.Int("count", len(ids)), zap.Error(err))
		return nil, err
	}
	for _, m := range members {
		out[m.MemberID] = m
	}
	return out, nil
}

// List returns a page of members, newest first, and the total match count.
func (r *MemberRepository) List(ctx context.Context, q MemberQuery) ([]*db.Member, int64, error) {
	page := q.Pagination.Normalize()
	query := r.db.WithContext(ctx).Model(&db.Member{})

	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.Search != "" {
		pattern := likePattern(q.Search)
		query = query.Where(`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\' OR LOWER(member_id) LIKE ? ESCAPE '\'`, pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		r.log.Error("Failed to count members", zap.Error(err))
		return nil, 0, err
	}

	var members []*db.Member
	if err := query.Offset(page.offset()).Limit(page.Limit).Order("created_at DESC").Order("member_id DESC").Find(&members).Error; err != nil {
		r.log.Error("Failed to list members", zap.Error(err))
		return nil, 0, err
	}

	return members, total, nil
}

// All returns every member ordered by member ID.
func (r *MemberRepository) All(ctx context.Context) ([]*db.Member, error) {
	var members []*db.Member
	if err := r.db.WithContext(ctx).Order("member_id ASC").Find(&members).Error; err != nil {
		r.log.Error("Failed to load members", zap.Error(err))
		return nil, err
	}
	return members, nil
}

// EmailTaken reports whether another member (other than excludeID) uses email.
func (r *MemberRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	query := r.db.WithContext(ctx).Model(&db.Member{}).Where("email = ?", email)
	if excludeID != "" {
		query = query.Where("member_id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		r.log.Error("Failed to check email", zap.Error(err))
		return false, err
	}
	return count > 0, nil
}

// Update applies the given column updates to one member.
func (r *MemberRepository) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).Model(&db.Member{}).Where("member_id = ?", id).Updates(updates)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateEmail
		}
		r.log.Error("Failed to update member", zap.String("member_id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

// SetCounters stores the derived loan count and fine total of a member.
func (r *MemberRepository) SetCounters(ctx context.Context, id string, booksCheckedOut int, totalFinesCents int64) error {
	return r.Update(ctx, id, map[string]interface{}{
		"books_checked_out": booksCheckedOut,
		"total_fines_cents": totalFinesCents,
	})
}

// Delete removes a member permanently.
func (r *MemberRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("member_id = ?", id).Delete(&db.Member{})
	if result.Error != nil {
		r.log.Error("Failed to delete member", zap.String("member_id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}

	r.log.Info("Member deleted", zap.String("member_id", id))
	return nil
}
