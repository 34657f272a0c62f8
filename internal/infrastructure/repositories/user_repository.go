package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/you/civicauth/domain"
	"gorm.io/gorm"
)

// UserRepositoryImpl implements domain.UserRepository using GORM
type UserRepositoryImpl struct {
	db  *gorm.DB
	now func() time.Time
}

// DBUser represents the database model for User (with GORM tags)
type DBUser struct {
	ID               uint   `gorm:"primaryKey"`
	Phone            string `gorm:"uniqueIndex;size:32;not null"`
	Name             string `gorm:"size:255"`
	Role             string `gorm:"index;size:64"`
	IsActive         bool   `gorm:"index"`
	PhoneVerified    bool
	ProfileCompleted bool `gorm:"index"`
	TermsAcceptedAt  *time.Time
	CreatedAt        time.Time `gorm:"index"`
	UpdatedAt        time.Time
}

// TableName returns the table name for GORM
func (DBUser) TableName() string {
	return "users"
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) *UserRepositoryImpl {
	return &UserRepositoryImpl{db: db, now: time.Now}
}

// CreateWithPhone implements domain.UserRepository
func (r *UserRepositoryImpl) CreateWithPhone(ctx context.Context, phone string) (*domain.User, error) {
	dbUser := &DBUser{
		Phone:    phone,
		Role:     domain.RolePending,
		IsActive: true,
	}
	if err := r.db.WithContext(ctx).Create(dbUser).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, domain.ErrUserCreationConflict.WithCause(err)
		}
		return nil, err
	}
	return r.dbToDomain(dbUser), nil
}

// FindByPhone implements domain.UserRepository
func (r *UserRepositoryImpl) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	var dbUser DBUser
	err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&dbUser).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return r.dbToDomain(&dbUser), nil
}

// FindByID implements domain.UserRepository
func (r *UserRepositoryImpl) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var dbUser DBUser
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&dbUser).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return r.dbToDomain(&dbUser), nil
}

// MarkPhoneVerified implements domain.UserRepository
func (r *UserRepositoryImpl) MarkPhoneVerified(ctx context.Context, userID uint) error {
	res := r.db.WithContext(ctx).Model(&DBUser{}).Where("id = ?", userID).Update("phone_verified", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// MarkProfileCompleted implements domain.UserRepository. The update is
// conditional on profile_completed being false so two concurrent
// completions cannot both win.
func (r *UserRepositoryImpl) MarkProfileCompleted(ctx context.Context, userID uint, name string) (*domain.User, error) {
	now := r.now().UTC()
	res := r.db.WithContext(ctx).Model(&DBUser{}).
		Where("id = ? AND profile_completed = ?", userID, false).
		Updates(map[string]interface{}{
			"name":              name,
			"profile_completed": true,
			"role":              domain.RoleCitizen,
			"terms_accepted_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, userID); err != nil {
			return nil, err
		}
		return nil, domain.ErrProfileAlreadyCompleted
	}
	return r.FindByID(ctx, userID)
}

// isDuplicateKey covers drivers that do not implement error translation.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

// dbToDomain converts database user to domain user
func (r *UserRepositoryImpl) dbToDomain(dbUser *DBUser) *domain.User {
	return &domain.User{
		ID:               dbUser.ID,
		Phone:            dbUser.Phone,
		Name:             dbUser.Name,
		Role:             dbUser.Role,
		IsActive:         dbUser.IsActive,
		PhoneVerified:    dbUser.PhoneVerified,
		ProfileCompleted: dbUser.ProfileCompleted,
		TermsAcceptedAt:  dbUser.TermsAcceptedAt,
		CreatedAt:        dbUser.CreatedAt,
		UpdatedAt:        dbUser.UpdatedAt,
	}
}
