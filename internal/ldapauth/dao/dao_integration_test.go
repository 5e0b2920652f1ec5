//go:build integration

package dao

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// startPostgres возвращает DSN тестовой БД: из POSTGRES_TEST_DSN или из контейнера.
func startPostgres(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("POSTGRES_TEST_DSN"); dsn != "" {
		return dsn
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("ldapauth"),
		postgres.WithUsername("ldapauth"),
		postgres.WithPassword("ldapauth"),
		testcontainers.WithWaitStrategyAndDeadline(2*time.Minute,
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgresStore(t *testing.T) {
	db, err := gorm.Open(Dialector(startPostgres(t)), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	ctx := context.Background()

	user := User{Username: "jdoe", AuthProvider: AuthProviderLdap}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Create(&LdapUser{UserId: user.ID, LdapId: "jdoe"}).Error)

	found, err := GetUserByLdapId(ctx, db, "jdoe")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.True(t, found.IsLdapUser())

	err = db.Create(&LdapUser{UserId: GenUUID(), LdapId: "jdoe"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	err = db.Create(&User{Username: "jdoe"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	org, created, err := EnsureOrganization(ctx, db, "research")
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, AddOrganizationMember(ctx, db, org.ID, user.ID, "member"))
	require.NoError(t, AddOrganizationMember(ctx, db, org.ID, user.ID, "admin"))

	var members []OrganizationMember
	require.NoError(t, db.Where("organization_id = ?", org.ID).Find(&members).Error)
	require.Len(t, members, 1)
	assert.Equal(t, "member", members[0].Role)

	var unmapped []User
	require.NoError(t, UnmappedLdapUsers(db).Find(&unmapped).Error)
	assert.Empty(t, unmapped)
}
