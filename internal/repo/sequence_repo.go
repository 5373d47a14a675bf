package repo

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smartlibrary/library/internal/db"
	"github.com/smartlibrary/library/internal/domain"
)

// SequenceRepository hands out monotonic values for human-readable IDs.
type SequenceRepository struct {
	db  *db.DB
	log *zap.Logger
}

// Next increments the named sequence and returns the new value. Call it
// inside Store.Transaction so the row lock is held until commit.
func (r *SequenceRepository) Next(ctx context.Context, name string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&db.Sequence{}).
		Where("name = ?", name).
		Update("value", gorm.Expr("value + 1"))
	if result.Error != nil {
		r.log.Error("Failed to increment sequence", zap.String("sequence", name), zap.Error(result.Error))
		return 0, result.Error
	}

	if result.RowsAffected == 0 {
		if err := r.db.WithContext(ctx).Create(&db.Sequence{Name: name, Value: 1}).Error; err != nil {
			return 0, fmt.Errorf("failed to create sequence %s: %w", name, err)
		}
		return 1, nil
	}

	var seq db.Sequence
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&seq).Error; err != nil {
		return 0, fmt.Errorf("failed to read sequence %s: %w", name, err)
	}
	return seq.Value, nil
}

// NextID returns the next formatted identifier for the named sequence.
func (r *SequenceRepository) NextID(ctx context.Context, name string) (string, error) {
	n, err := r.Next(ctx, name)
	if err != nil {
		return "", err
	}
	return domain.FormatID(name, n), nil
}
