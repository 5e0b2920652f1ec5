package dao

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Организация, в которую добавляются пользователи каталога при первом входе.
type Organization struct {
	ID uuid.UUID `gorm:"column:id;primaryKey;type:uuid" json:"id"`

	Name  string `json:"name" gorm:"uniqueIndex;not null"`
	Title string `json:"title"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Organization) TableName() string { return "organizations" }

func (o *Organization) BeforeCreate(tx *gorm.DB) (err error) {
	if o.ID == uuid.Nil {
		o.ID = GenUUID()
	}
	return
}

type OrganizationMember struct {
	ID uuid.UUID `gorm:"column:id;primaryKey;type:uuid" json:"id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// member, editor или admin
	Role string `json:"role" gorm:"not null"`

	MemberId       uuid.UUID `json:"member_id" gorm:"type:uuid;index;uniqueIndex:organization_members_idx,priority:2"`
	OrganizationId uuid.UUID `json:"organization_id" gorm:"type:uuid;uniqueIndex:organization_members_idx,priority:1"`

	Organization *Organization `json:"organization,omitempty" gorm:"foreignKey:OrganizationId;constraint:OnDelete:CASCADE" extensions:"x-nullable"`
	Member       *User         `json:"member,omitempty" gorm:"foreignKey:MemberId;constraint:OnDelete:CASCADE" extensions:"x-nullable"`
}

func (OrganizationMember) TableName() string { return "organization_members" }

func (om *OrganizationMember) BeforeCreate(tx *gorm.DB) (err error) {
	if om.ID == uuid.Nil {
		om.ID = GenUUID()
	}
	return
}

// GetOrganization ищет организацию по идентификатору или имени.
func GetOrganization(ctx context.Context, db *gorm.DB, ref string) (*Organization, error) {
	query := db.WithContext(ctx).Where("name = ?", ref)
	if id, err := uuid.FromString(ref); err == nil {
		query = db.WithContext(ctx).Where("id = ? OR name = ?", id, ref)
	}

	var org Organization
	if err := query.First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

// EnsureOrganization возвращает организацию, создавая её при отсутствии.
//
// Параметры:
//   - ref: идентификатор или имя организации.
//
// Возвращает:
//   - *Organization: существующая или созданная организация.
//   - bool: true, если организация была создана.
func EnsureOrganization(ctx context.Context, db *gorm.DB, ref string) (*Organization, bool, error) {
	org, err := GetOrganization(ctx, db, ref)
	if err == nil {
		return org, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	org = &Organization{Name: ref, Title: ref}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(org).Error; err != nil {
		return nil, false, err
	}

	// Concurrent creation: re-read the winner.
	org, err = GetOrganization(ctx, db, ref)
	if err != nil {
		return nil, false, err
	}
	return org, true, nil
}

// AddOrganizationMember добавляет участника в организацию. Повторное добавление не является ошибкой
// и не меняет роль существующего участника.
func AddOrganizationMember(ctx context.Context, db *gorm.DB, orgId uuid.UUID, userId uuid.UUID, role string) error {
	member := OrganizationMember{
		OrganizationId: orgId,
		MemberId:       userId,
		Role:           role,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organization_id"}, {Name: "member_id"}},
			DoNothing: true,
		}).
		Create(&member).Error
}
