package dao

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

const (
	AuthProviderLocal = "local"
	AuthProviderLdap  = "ldap"
)

// Пользователи
type User struct {
	ID uuid.UUID `gorm:"column:id;primaryKey;type:uuid" json:"id"`

	Password string `json:"-"`
	Username string `json:"username" gorm:"uniqueIndex;not null" validate:"username"`
	Email    string `json:"email" gorm:"index"`
	FullName string `json:"full_name"`
	About    string `json:"about"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	IsSuperuser bool `json:"is_superuser"`
	IsActive    bool `json:"is_active" gorm:"default:true"`

	LastLoginTime *time.Time `json:"-" extensions:"x-nullable"`
	LastLoginIp   string     `json:"-"`

	AuthProvider string `json:"auth_provider" gorm:"default:'local'"`

	Ldap *LdapUser `json:"ldap,omitempty" gorm:"foreignKey:UserId;constraint:OnDelete:CASCADE" extensions:"x-nullable"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = GenUUID()
	}
	if u.AuthProvider == "" {
		u.AuthProvider = AuthProviderLocal
	}
	return
}

// AfterDelete удаляет связи с каталогом у удалённых учётных записей.
// Мягкое удаление не срабатывает на ON DELETE CASCADE, поэтому связь удаляется здесь.
func (u *User) AfterDelete(tx *gorm.DB) error {
	db := tx.Session(&gorm.Session{NewDB: true})
	return db.Where("user_id IN (?)",
		db.Unscoped().Model(&User{}).Select("id").Where("deleted_at IS NOT NULL"),
	).Delete(&LdapUser{}).Error
}

// IsLdapUser возвращает true, если учётная запись связана с пользователем каталога.
// Связь должна быть загружена через Preload("Ldap").
func (u *User) IsLdapUser() bool {
	return u != nil && u.Ldap != nil
}

func (u User) String() string {
	return u.Username
}

// GetUserByUsername ищет активную (не удалённую) учётную запись по имени вместе со связью с каталогом.
//
// Возвращает:
//   - *User: найденная учётная запись.
//   - error: gorm.ErrRecordNotFound, если учётной записи нет.
func GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*User, error) {
	var user User
	if err := db.WithContext(ctx).
		Preload("Ldap").
		Where("username = ?", username).
		First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UsernameExists проверяет занятость имени, включая удалённые учётные записи:
// уникальный индекс по имени распространяется и на них.
func UsernameExists(ctx context.Context, db *gorm.DB, username string) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Unscoped().Model(&User{}).
		Where("username = ?", username).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateLastLogin сохраняет время и адрес последнего входа.
func UpdateLastLogin(ctx context.Context, db *gorm.DB, username string, ip string) error {
	tm := time.Now()
	return db.WithContext(ctx).Model(&User{}).
		Where("username = ?", username).
		Updates(map[string]any{
			"last_login_time": tm,
			"last_login_ip":   ip,
		}).Error
}
