package dao

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB создает тестовую БД SQLite в памяти со всеми моделями
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// each connection of :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, Migrate(db))
	return db
}

func TestDialector(t *testing.T) {
	assert.Equal(t, "sqlite", Dialector("sqlite::memory:").Name())
	assert.Equal(t, "postgres", Dialector("host=localhost user=ldapauth dbname=ldapauth").Name())
}

func TestUserByUsername(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	user := User{Username: "alice", Email: "alice@example.org", Password: GenPasswordHash("secret")}
	require.NoError(t, db.Create(&user).Error)
	assert.Equal(t, AuthProviderLocal, user.AuthProvider)

	found, err := GetUserByUsername(ctx, db, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.False(t, found.IsLdapUser())
	assert.True(t, found.IsActive)

	_, err = GetUserByUsername(ctx, db, "bob")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUsernameExistsCountsDeleted(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	user := User{Username: "gone"}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Delete(&user).Error)

	exists, err := UsernameExists(ctx, db, "gone")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = UsernameExists(ctx, db, "free")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDuplicateUsername(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.Create(&User{Username: "dup"}).Error)
	err := db.Create(&User{Username: "dup"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestLdapMapping(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	user := User{Username: "jdoe", AuthProvider: AuthProviderLdap}
	require.NoError(t, db.Create(&user).Error)

	var users []User
	require.NoError(t, UnmappedLdapUsers(db).Find(&users).Error)
	assert.Len(t, users, 1)

	require.NoError(t, db.Create(&LdapUser{UserId: user.ID, LdapId: "JDoe"}).Error)

	mapped, err := GetUserByLdapId(ctx, db, "JDoe")
	require.NoError(t, err)
	assert.Equal(t, "jdoe", mapped.Username)
	assert.True(t, mapped.IsLdapUser())

	ok, err := LdapIdMapped(ctx, db, "JDoe")
	require.NoError(t, err)
	assert.True(t, ok)

	users = nil
	require.NoError(t, UnmappedLdapUsers(db).Find(&users).Error)
	assert.Empty(t, users)

	// one mapping per directory identity
	other := User{Username: "jdoe1", AuthProvider: AuthProviderLdap}
	require.NoError(t, db.Create(&other).Error)
	err = db.Create(&LdapUser{UserId: other.ID, LdapId: "JDoe"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// one mapping per local user
	err = db.Create(&LdapUser{UserId: user.ID, LdapId: "other"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestDeleteUserRemovesLdapMapping(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	user := User{Username: "jdoe", AuthProvider: AuthProviderLdap}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Create(&LdapUser{UserId: user.ID, LdapId: "jdoe"}).Error)
	other := User{Username: "alice", AuthProvider: AuthProviderLdap}
	require.NoError(t, db.Create(&other).Error)
	require.NoError(t, db.Create(&LdapUser{UserId: other.ID, LdapId: "alice"}).Error)

	require.NoError(t, db.Where("username = ?", "jdoe").Delete(&User{}).Error)

	ok, err := LdapIdMapped(ctx, db, "jdoe")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = LdapIdMapped(ctx, db, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	// the name stays reserved
	exists, err := UsernameExists(ctx, db, "jdoe")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestOrganizationMembership(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	org, created, err := EnsureOrganization(ctx, db, "staff")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := EnsureOrganization(ctx, db, "staff")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, org.ID, again.ID)

	byId, err := GetOrganization(ctx, db, org.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "staff", byId.Name)

	user := User{Username: "member"}
	require.NoError(t, db.Create(&user).Error)

	require.NoError(t, AddOrganizationMember(ctx, db, org.ID, user.ID, "member"))
	require.NoError(t, AddOrganizationMember(ctx, db, org.ID, user.ID, "admin"))

	var members []OrganizationMember
	require.NoError(t, db.Where("organization_id = ?", org.ID).Find(&members).Error)
	require.Len(t, members, 1)
	assert.Equal(t, "member", members[0].Role)
}

func TestPasswordHash(t *testing.T) {
	pass := GenPassword()
	assert.Len(t, pass, 12)

	hash := GenPasswordHash(pass)
	assert.True(t, CheckPassword(pass, hash))
	assert.False(t, CheckPassword(pass+"x", hash))
	assert.False(t, CheckPassword(pass, ""))
	assert.False(t, CheckPassword(pass, "md5$1$salt$hash"))
}

func TestUpdateLastLogin(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&User{Username: "carol"}).Error)
	require.NoError(t, UpdateLastLogin(ctx, db, "carol", "10.0.0.1"))

	user, err := GetUserByUsername(ctx, db, "carol")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", user.LastLoginIp)
	assert.NotNil(t, user.LastLoginTime)
}
