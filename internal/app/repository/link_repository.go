package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linklit/LinkLit/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrLinkNotFound signals that the requested slug does not exist.
	ErrLinkNotFound = errors.New("link not found")
	// ErrLinkExpired signals that the slug existed but was past its expiry and
	// has been deleted as part of the lookup.
	ErrLinkExpired = errors.New("link expired")
	// ErrSlugTaken signals a uniqueness collision on create.
	ErrSlugTaken = errors.New("slug already in use")
	// ErrQuotaConflict signals the guarded quota update matched no row: a
	// concurrent create by the same user already consumed the allowance the
	// caller based its increment on.
	ErrQuotaConflict = errors.New("quota counter conflict")
)

// QuotaIncrement carries the custom-link counter update that must land in the
// same transaction as the link record.
type QuotaIncrement struct {
	UserID string
	Count  int
	Reset  time.Time
}

// LinkRepository defines the data access contract for short links.
type LinkRepository interface {
	Exists(ctx context.Context, slug string) (bool, error)
	Create(ctx context.Context, link *model.Link, index *model.UserLink, quota *QuotaIncrement) error
	GetBySlug(ctx context.Context, slug string) (*model.Link, error)
	DeleteIfExpired(ctx context.Context, slug string, now time.Time) (*model.Link, error)
	DeleteOwned(ctx context.Context, slug, ownerID string) error
	ListByOwner(ctx context.Context, userID string) ([]model.UserLink, error)
	AllSlugs(ctx context.Context) ([]string, error)
}

type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository returns a GORM-backed LinkRepository.
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Exists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("slug = ?", slug).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create writes the link record, the optional owner-index row, and the
// optional quota counter update as a single transaction. The slug primary key
// guarantees at most one concurrent writer wins; the loser gets ErrSlugTaken.
func (r *linkRepository) Create(ctx context.Context, link *model.Link, index *model.UserLink, quota *QuotaIncrement) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(link).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrSlugTaken
			}
			return fmt.Errorf("insert link: %w", err)
		}

		if index != nil {
			if err := tx.Create(index).Error; err != nil {
				return fmt.Errorf("insert owner index: %w", err)
			}
		}

		if quota != nil {
			// The counter value was computed from a pre-transaction read, so
			// the write is guarded: it only lands while the stored count is
			// still below the new value, or a month rollover moved the reset
			// forward. A concurrent create that got there first makes the
			// guard miss instead of letting both writers commit the same
			// count.
			result := tx.Model(&model.User{}).
				Where("id = ? AND (custom_links_count < ? OR custom_links_reset < ?)",
					quota.UserID, quota.Count, quota.Reset).
				Updates(map[string]interface{}{
					"custom_links_count": quota.Count,
					"custom_links_reset": quota.Reset,
				})
			if result.Error != nil {
				return fmt.Errorf("update quota counter: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return ErrQuotaConflict
			}
		}

		return nil
	})
}

func (r *linkRepository) GetBySlug(ctx context.Context, slug string) (*model.Link, error) {
	var link model.Link
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

// DeleteIfExpired is the resolution read path. A record whose expiry has
// passed is removed within the same transaction and reported as ErrLinkExpired
// so callers never see a logically dead link.
func (r *linkRepository) DeleteIfExpired(ctx context.Context, slug string, now time.Time) (*model.Link, error) {
	var link model.Link
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("slug = ?", slug).First(&link).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLinkNotFound
			}
			return err
		}
		if link.Expired(now) {
			if err := tx.Delete(&model.Link{}, "slug = ?", slug).Error; err != nil {
				return fmt.Errorf("evict expired link: %w", err)
			}
			return ErrLinkExpired
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// DeleteOwned removes a link and its owner-index row, but only when the given
// user owns the slug.
func (r *linkRepository) DeleteOwned(ctx context.Context, slug, ownerID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("slug = ? AND owner_id = ?", slug, ownerID).Delete(&model.Link{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrLinkNotFound
		}
		return tx.Where("user_id = ? AND slug = ?", ownerID, slug).
			Delete(&model.UserLink{}).Error
	})
}

func (r *linkRepository) ListByOwner(ctx context.Context, userID string) ([]model.UserLink, error) {
	var result []model.UserLink
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AllSlugs streams every known slug, used to warm the in-process presence filter.
func (r *linkRepository) AllSlugs(ctx context.Context) ([]string, error) {
	var slugs []string
	err := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Pluck("slug", &slugs).Error
	if err != nil {
		return nil, err
	}
	return slugs, nil
}
