package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/memoryrouter/dashboard/internal/pkg/utils"
)

const (
	STATUS_ACTIVE   = "active"
	STATUS_DISABLED = "disabled"
)

type User struct {
	ID                  string         `gorm:"type:char(36);primaryKey" json:"id"`
	Name                string         `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	Email               string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	Password            string         `gorm:"type:text" json:"-" validate:"required"`
	AvatarURL           string         `gorm:"type:varchar(255);default:''" json:"avatar_url" validate:"max=255"`
	InternalID          string         `gorm:"type:varchar(64);default:''" json:"internal_id"`
	OnboardingCompleted bool           `gorm:"default:false" json:"onboarding_completed"`
	Status              string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active disabled"`
	LastLoginAt         *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// CreateUser builds an active user with a fresh id and a bcrypt password hash.
// The caller persists it.
func CreateUser(name, email, password string) (*User, error) {
	if len(password) < 8 {
		return nil, ErrPasswordTooShort
	}
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Email:     NormalizeEmail(email),
		Password:  pw,
		Status:    STATUS_ACTIVE,
		AvatarURL: utils.GravatarURL(email, 0),
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	return u, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}

// CheckPassword verifies if the provided password matches the user's stored password
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.Password)
}
