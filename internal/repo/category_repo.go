// Chat category taxonomy reads for the request form.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/venturing/go-livechat-backend/internal/domain"
)

// ListCategories returns the active categories in name order.
func ListCategories(ctx context.Context, db *gorm.DB) ([]domain.ChatCategory, error) {
	var out []domain.ChatCategory
	err := db.WithContext(ctx).
		Where("active = ?", true).
		Order("name asc").
		Find(&out).Error
	return out, err
}

// GetCategory fetches one category by ID, or ErrNotFound.
func GetCategory(ctx context.Context, db *gorm.DB, id uint) (*domain.ChatCategory, error) {
	var c domain.ChatCategory
	if err := db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListSubcategories returns the subcategories of a category in name order.
func ListSubcategories(ctx context.Context, db *gorm.DB, categoryID uint) ([]domain.ChatSubcategory, error) {
	var out []domain.ChatSubcategory
	err := db.WithContext(ctx).
		Where("category_id = ?", categoryID).
		Order("name asc").
		Find(&out).Error
	return out, err
}

// CountSubcategories reports how many subcategories a category has; the
// request form requires a selection whenever this is non-zero.
func CountSubcategories(ctx context.Context, db *gorm.DB, categoryID uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ChatSubcategory{}).
		Where("category_id = ?", categoryID).
		Count(&total).Error
	return total, err
}
