package dao

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// Связь локальной учётной записи с пользователем каталога.
// Создаётся один раз при первом успешном входе, не изменяется, удаляется каскадно вместе с учётной записью.
type LdapUser struct {
	ID uuid.UUID `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	// user_id uuid NOT NULL UNIQUE
	UserId uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	// ldap_id text NOT NULL UNIQUE, имя пользователя в каталоге
	LdapId string `gorm:"uniqueIndex;not null" json:"ldap_id"`

	CreatedAt time.Time `json:"created_at"`
}

func (LdapUser) TableName() string { return "ldap_users" }

func (lu *LdapUser) BeforeCreate(tx *gorm.DB) (err error) {
	if lu.ID == uuid.Nil {
		lu.ID = GenUUID()
	}
	return
}

// GetUserByLdapId возвращает учётную запись, связанную с пользователем каталога.
//
// Возвращает:
//   - *User: связанная учётная запись (с загруженной связью).
//   - error: gorm.ErrRecordNotFound, если связи нет.
func GetUserByLdapId(ctx context.Context, db *gorm.DB, ldapId string) (*User, error) {
	var user User
	if err := db.WithContext(ctx).
		Joins("Ldap").
		Where("\"Ldap\".\"ldap_id\" = ?", ldapId).
		First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// LdapIdMapped проверяет, связан ли пользователь каталога с какой-либо учётной записью.
func LdapIdMapped(ctx context.Context, db *gorm.DB, ldapId string) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&LdapUser{}).
		Where("ldap_id = ?", ldapId).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UnmappedLdapUsers возвращает запрос учётных записей каталога без строки связи.
func UnmappedLdapUsers(db *gorm.DB) *gorm.DB {
	return db.Model(&User{}).
		Where("auth_provider = ?", AuthProviderLdap).
		Where("NOT EXISTS (?)",
			db.Model(&LdapUser{}).Select("1").Where("ldap_users.user_id = users.id"),
		)
}
