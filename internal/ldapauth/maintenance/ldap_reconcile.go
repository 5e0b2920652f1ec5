// Фоновые задачи обслуживания базы учётных записей.
//
// Основные возможности:
//   - Поиск учётных записей каталога без связи с пользователем каталога (прерванный первый вход,
//     записи, созданные до появления таблицы связей).
//   - Восстановление связи, если каталог подтверждает пользователя (совпадают имя и email).
//   - Метрика количества учётных записей, оставшихся без связи.
package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	authprovider "github.com/aisa-it/ldapauth/internal/ldapauth/auth-provider"
	"github.com/aisa-it/ldapauth/internal/ldapauth/dao"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const reconcileBatchSize = 20

type LdapReconciler struct {
	db        *gorm.DB
	directory authprovider.Directory

	orphansGauge prometheus.Gauge
}

func NewLdapReconciler(db *gorm.DB, directory authprovider.Directory) *LdapReconciler {
	return &LdapReconciler{
		db:        db,
		directory: directory,
		orphansGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ldapauth",
			Name:      "orphan_accounts",
			Help:      "LDAP accounts without a directory mapping after the last reconciliation",
		}),
	}
}

// Collector метрика для регистрации в prometheus.
func (lr *LdapReconciler) Collector() prometheus.Collector {
	return lr.orphansGauge
}

// SyncJob задача для cronmanager.
func (lr *LdapReconciler) SyncJob() {
	slog.Info("Reconcile LDAP account mappings")
	relinked, orphans, err := lr.Reconcile(context.Background())
	if err != nil {
		slog.Error("Reconcile LDAP account mappings", "err", err)
		return
	}
	slog.Info("LDAP account mappings reconciled", "relinked", relinked, "orphans", orphans)
}

// Reconcile восстанавливает связи учётных записей каталога.
//
// Возвращает:
//   - int: количество восстановленных связей.
//   - int: количество учётных записей, оставшихся без связи.
//   - error: ошибка чтения из БД.
func (lr *LdapReconciler) Reconcile(ctx context.Context) (int, int, error) {
	var relinked, orphans int
	var users []dao.User

	err := dao.UnmappedLdapUsers(lr.db.WithContext(ctx)).
		FindInBatches(&users, reconcileBatchSize, func(tx *gorm.DB, batch int) error {
			for _, user := range users {
				ok, err := lr.relink(ctx, &user)
				if err != nil {
					return err
				}
				if ok {
					relinked++
				} else {
					orphans++
				}
			}
			return nil
		}).Error
	if err != nil {
		return relinked, orphans, err
	}

	lr.orphansGauge.Set(float64(orphans))
	return relinked, orphans, nil
}

func (lr *LdapReconciler) relink(ctx context.Context, user *dao.User) (bool, error) {
	record, err := lr.directory.FindUser(ctx, user.Username)
	if err != nil {
		slog.Warn("Orphan LDAP account", "username", user.Username, "reason", err)
		return false, nil
	}

	// имя учётной записи могло получить суффикс: такая запись каталога принадлежит другому человеку
	if record.Username != user.Username || !strings.EqualFold(record.Email, user.Email) {
		slog.Warn("Orphan LDAP account", "username", user.Username, "reason", "directory identity not confirmed", "ldap_id", record.Username)
		return false, nil
	}

	mapped, err := dao.LdapIdMapped(ctx, lr.db, record.Username)
	if err != nil {
		return false, err
	}
	if mapped {
		slog.Warn("Orphan LDAP account", "username", user.Username, "reason", "directory identity linked to another account", "ldap_id", record.Username)
		return false, nil
	}

	if err := lr.db.WithContext(ctx).Create(&dao.LdapUser{UserId: user.ID, LdapId: record.Username}).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	slog.Info("LDAP account relinked", "username", user.Username, "ldap_id", record.Username)
	return true, nil
}
