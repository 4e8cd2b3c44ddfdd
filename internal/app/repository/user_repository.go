package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/linklit/LinkLit/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUserNotFound signals that no account record exists for the user id.
var ErrUserNotFound = errors.New("user not found")

// UserRepository defines the data access contract for account records.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	// CreateIfAbsent inserts the record unless one already exists. It reports
	// whether a row was actually written, making user bootstrap idempotent.
	CreateIfAbsent(ctx context.Context, user *model.User) (bool, error)
	// SetSubscription overwrites the subscription block and entitlement flag.
	SetSubscription(ctx context.Context, userID string, sub model.Subscription, isSubscribed bool) error
	// Deactivate archives the given payment record and flips the user to
	// INACTIVE in one transaction. The archive upserts on (userId,
	// subscriptionId) so webhook replays do not duplicate rows.
	Deactivate(ctx context.Context, userID string, record *model.PaymentRecord) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a GORM-backed UserRepository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) CreateIfAbsent(ctx context.Context, user *model.User) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(user)
	if result.Error != nil {
		return false, fmt.Errorf("insert user: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *userRepository) SetSubscription(ctx context.Context, userID string, sub model.Subscription, isSubscribed bool) error {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_subscribed":          isSubscribed,
			"sub_subscription_id":    sub.SubscriptionID,
			"sub_status":             sub.Status,
			"sub_plan_id":            sub.PlanID,
			"sub_start_payment_time": sub.StartPaymentTime,
			"sub_last_payment_time":  sub.LastPaymentTime,
			"sub_next_payment_time":  sub.NextPaymentTime,
		})
	if result.Error != nil {
		return fmt.Errorf("update subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepository) Deactivate(ctx context.Context, userID string, record *model.PaymentRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if record != nil {
			err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(record).Error
			if err != nil {
				return fmt.Errorf("archive payment record: %w", err)
			}
		}

		result := tx.Model(&model.User{}).
			Where("id = ?", userID).
			Updates(map[string]interface{}{
				"is_subscribed": false,
				"sub_status":    model.SubscriptionInactive,
			})
		if result.Error != nil {
			return fmt.Errorf("deactivate user: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}
