package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockRepository(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return NewRepository(db), mock
}

func profileRows(id int64, userID string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "balance_cents", "auto_reup_enabled",
		"auto_reup_amount_cents", "auto_reup_trigger_cents", "monthly_cap_cents",
	}).AddRow(id, userID, 0, 0, 2000, 500, 9000)
}

func TestApplyCreditFirstDeliveryIncrementsBalance(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `credit_ledger_entries` .*ON DUPLICATE KEY UPDATE").
		WithArgs("u1", int64(2500), "checkout", "evt_1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT \\* FROM `billing_profiles` WHERE user_id = \\?").
		WillReturnRows(profileRows(7, "u1"))
	mock.ExpectExec("UPDATE `billing_profiles` SET `balance_cents`=balance_cents \\+ \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ApplyCredit(context.Background(), "u1", 2500, "evt_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyCreditDuplicateKeyIsNoop(t *testing.T) {
	repo, mock := newMockRepository(t)

	// The ledger insert affects no row, so the balance must not be touched.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `credit_ledger_entries` .*ON DUPLICATE KEY UPDATE").
		WithArgs("u1", int64(2500), "checkout", "evt_1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, repo.ApplyCredit(context.Background(), "u1", 2500, "evt_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyCreditInsertFailureRollsBack(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `credit_ledger_entries`").
		WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	assert.Error(t, repo.ApplyCredit(context.Background(), "u1", 2500, "evt_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAutoRechargePersistsMergedPolicy(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `billing_profiles` WHERE user_id = \\?").
		WillReturnRows(profileRows(7, "u1"))
	mock.ExpectQuery("SELECT \\* FROM `billing_profiles` WHERE id = \\?.*FOR UPDATE").
		WillReturnRows(profileRows(7, "u1"))
	mock.ExpectExec("UPDATE `billing_profiles` SET `auto_reup_enabled`=\\?,`auto_reup_trigger_cents`=\\?,`updated_at`=\\? WHERE id = \\?").
		WithArgs(1, int64(700), sqlmock.AnyArg(), 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enabled := true
	patch := PartialConfig{Enabled: &enabled, TriggerCents: i64(700)}
	got, err := repo.UpdateAutoRecharge(context.Background(), "u1", patch)
	require.NoError(t, err)

	want, err := ApplyUpdate(AutoRechargeConfig{AmountCents: 2000, TriggerCents: 500, MonthlyCapCents: i64(9000)}, patch)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingEventsFilter(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT \\* FROM `billing_webhook_events` WHERE .*signature_valid = \\? AND created_at >= \\? AND created_at < \\?" +
		".*processed_at IS NULL OR \\(processing_error <> '' AND outcome <> \\?\\).*ORDER BY id ASC").
		WillReturnRows(sqlmock.NewRows([]string{"id", "provider", "provider_event_id", "signature_valid", "payload_json"}).
			AddRow(3, "stripe", "evt_stuck", true, `{"id":"evt_stuck"}`))

	events, err := repo.PendingEvents(context.Background(), now.Add(-72*time.Hour), now.Add(-5*time.Minute), 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt_stuck", events[0].ProviderEventID)
	assert.True(t, events[0].SignatureValid)
	assert.NoError(t, mock.ExpectationsWereMet())
}
