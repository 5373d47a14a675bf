package repo

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smartlibrary/library/internal/db"
	"github.com/smartlibrary/library/internal/domain"
)

// UserRepository handles API account persistence
type UserRepository struct {
	db  *db.DB
	log *zap.Logger
}

// Create inserts a new user. Emails are unique.
func (r *UserRepository) Create(ctx context.Context, user *db.User) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&db.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		r.log.Error("Failed to check user email", zap.Error(err))
		return err
	}
	if count > 0 {
		return domain.ErrDuplicateEmail
	}

	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateEmail
		}
		r.log.Error("Failed to create user", zap.Error(err))
		return err
	}

	r.log.Info("User created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return nil
}

// Get retrieves a user by ID.
func (r *UserRepository) Get(ctx context.Context, id string) (*db.User, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByEmail retrieves a user by email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*db.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *UserRepository) first(ctx context.Context, cond string, arg string) (*db.User, error) {
	var user db.User
	err := r.db.WithContext(ctx).Where(cond, arg).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		r.log.Error("Failed to get user", zap.Error(err))
		return nil, err
	}
	return &user, nil
}

// TouchLogin records a successful login.
func (r *UserRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).Update("last_login_at", at).Error
	if err != nil {
		r.log.Warn("Failed to record login", zap.String("user_id", id), zap.Error(err))
	}
	return err
}

// CountByRole counts users with the given role.
func (r *UserRepository) CountByRole(ctx context.Context, role domain.Role) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&db.User{}).Where("role = ?", role).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
