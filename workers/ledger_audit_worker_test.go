package workers

import (
	"testing"
	"time"

	"github.com/Metavative/RealtimepoolproNewApis/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Match{}, &models.Transaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func finishedMatch(t *testing.T, db *gorm.DB, fee float64) *models.Match {
	t.Helper()
	now := time.Now()
	winner := "alice"
	m := &models.Match{
		ID:           uuid.NewString(),
		ChallengerID: "alice",
		OpponentID:   "bob",
		Status:       models.MatchStatusFinished,
		EntryFee:     fee,
		WinnerID:     &winner,
		EndedAt:      &now,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed match: %v", err)
	}
	return m
}

func ledgerEntry(t *testing.T, db *gorm.DB, matchID, txType string, amount float64) {
	t.Helper()
	entry := &models.Transaction{
		ID:      uuid.NewString(),
		UserID:  "alice",
		MatchID: &matchID,
		Amount:  amount,
		Type:    txType,
		Status:  models.TxStatusCompleted,
	}
	if err := db.Create(entry).Error; err != nil {
		t.Fatalf("seed ledger entry: %v", err)
	}
}

func TestAuditPassesBalancedSettlement(t *testing.T) {
	db := openTestDB(t)
	m := finishedMatch(t, db, 100)
	ledgerEntry(t, db, m.ID, models.TxTypePayout, 180)
	ledgerEntry(t, db, m.ID, models.TxTypeFee, 20)

	flagged, checked, err := NewLedgerAuditor(db).RunOnce()
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if checked != 1 || flagged != 0 {
		t.Fatalf("checked=%d flagged=%d, want 1/0", checked, flagged)
	}
}

func TestAuditFlagsMissingFeeEntry(t *testing.T) {
	db := openTestDB(t)
	m := finishedMatch(t, db, 100)
	ledgerEntry(t, db, m.ID, models.TxTypePayout, 180)

	flagged, _, err := NewLedgerAuditor(db).RunOnce()
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if flagged != 1 {
		t.Fatalf("flagged=%d, want 1", flagged)
	}
}

func TestAuditFlagsBrokenConservation(t *testing.T) {
	db := openTestDB(t)
	m := finishedMatch(t, db, 100)
	// 180 + 30 != 200: money appeared from nowhere.
	ledgerEntry(t, db, m.ID, models.TxTypePayout, 180)
	ledgerEntry(t, db, m.ID, models.TxTypeFee, 30)

	flagged, _, err := NewLedgerAuditor(db).RunOnce()
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if flagged != 1 {
		t.Fatalf("flagged=%d, want 1", flagged)
	}
}

func TestAuditCancelledMatchRefunds(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()
	m := &models.Match{
		ID:           uuid.NewString(),
		ChallengerID: "alice",
		OpponentID:   "bob",
		Status:       models.MatchStatusCancelled,
		EntryFee:     50,
		EndedAt:      &now,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed match: %v", err)
	}
	ledgerEntry(t, db, m.ID, models.TxTypeRefund, 50)
	ledgerEntry(t, db, m.ID, models.TxTypeRefund, 50)

	flagged, checked, err := NewLedgerAuditor(db).RunOnce()
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if checked != 1 || flagged != 0 {
		t.Fatalf("checked=%d flagged=%d, want 1/0", checked, flagged)
	}
}

func TestAuditIgnoresOldMatches(t *testing.T) {
	db := openTestDB(t)
	old := time.Now().Add(-48 * time.Hour)
	m := &models.Match{
		ID:           uuid.NewString(),
		ChallengerID: "alice",
		OpponentID:   "bob",
		Status:       models.MatchStatusFinished,
		EntryFee:     100,
		EndedAt:      &old,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed match: %v", err)
	}

	_, checked, err := NewLedgerAuditor(db).RunOnce()
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if checked != 0 {
		t.Fatalf("checked=%d, want 0 (outside lookback)", checked)
	}
}
