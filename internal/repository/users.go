package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/ai-detector/internal/logging"
)

// UserRepository persists accounts.
type UserRepository struct {
	retrier
	db *gorm.DB
}

// NewUserRepository wires a gorm handle.
func NewUserRepository(db *gorm.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{retrier: newRetrier(logger), db: db}
}

// Create inserts a new account.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return logging.NewOperationError("repository.user_create", user.Email, err)
	}
	return nil
}

// FindByID loads an account by id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	var user User
	err := r.executeWithRetry(ctx, "repository.user_find", id, func() error {
		return translate(r.db.WithContext(ctx).First(&user, "id = ?", id).Error)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail loads an account by its login email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.executeWithRetry(ctx, "repository.user_find_email", email, func() error {
		return translate(r.db.WithContext(ctx).First(&user, "email = ?", email).Error)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ExistsByEmail reports whether email is registered.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.executeWithRetry(ctx, "repository.user_exists", email, func() error {
		return r.db.WithContext(ctx).Model(&User{}).Where("email = ?", email).Count(&count).Error
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Exists reports whether an account with id is present.
func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.executeWithRetry(ctx, "repository.user_exists_id", id, func() error {
		return r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Count(&count).Error
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateDisplayName changes the display name of an account.
func (r *UserRepository) UpdateDisplayName(ctx context.Context, id, displayName string) error {
	return r.updateColumn(ctx, "repository.user_update_profile", id, "display_name", displayName)
}

// UpdatePasswordHash replaces the stored password hash.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.updateColumn(ctx, "repository.user_update_password", id, "password_hash", hash)
}

func (r *UserRepository) updateColumn(ctx context.Context, operation, id, column, value string) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(map[string]interface{}{
		column:       value,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return logging.NewOperationError(operation, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCascade removes every detection owned by id and then the account
// itself in one transaction. It returns the removed detections so their
// blobs can be released once the transaction has committed.
func (r *UserRepository) DeleteCascade(ctx context.Context, id string) ([]Detection, error) {
	var removed []Detection
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ?", id).Find(&removed).Error; err != nil {
			return err
		}
		if err := tx.Where("owner_id = ?", id).Delete(&Detection{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&User{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if err == ErrNotFound {
			return nil, err
		}
		return nil, logging.NewOperationError("repository.user_delete_cascade", id, err)
	}
	return removed, nil
}
