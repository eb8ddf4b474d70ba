package workers

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/Metavative/RealtimepoolproNewApis/models"

	"gorm.io/gorm"
)

// LedgerAuditor re-checks conservation of funds for settled matches: every
// finished match must carry exactly one payout and one fee entry summing to
// twice the entry fee, and every cancelled match one refund per player.
// Violations are logged loudly; they mean money was lost, duplicated or
// invented and need an operator.
type LedgerAuditor struct {
	DB       *gorm.DB
	Lookback time.Duration
}

func NewLedgerAuditor(db *gorm.DB) *LedgerAuditor {
	return &LedgerAuditor{DB: db, Lookback: 24 * time.Hour}
}

const amountTolerance = 0.005

// PollLedger runs the audit on a fixed interval until ctx is cancelled.
func PollLedger(ctx context.Context, auditor *LedgerAuditor, pollInterval time.Duration) {
	log.Println("Starting ledger conservation audit...")
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Ledger audit stopped.")
			return
		case <-ticker.C:
			flagged, checked, err := auditor.RunOnce()
			if err != nil {
				log.Printf("❌ Ledger audit error: %v", err)
				continue
			}
			if flagged > 0 {
				log.Printf("🚨 Ledger audit flagged %d of %d match(es) — manual review required", flagged, checked)
			} else {
				log.Printf("✅ Ledger audit clean (%d match(es) checked)", checked)
			}
		}
	}
}

// RunOnce audits matches that reached a terminal state within the lookback
// window. Returns how many were flagged and how many were checked.
func (a *LedgerAuditor) RunOnce() (flagged, checked int, err error) {
	since := time.Now().Add(-a.Lookback)

	var matches []models.Match
	err = a.DB.Where("status IN ? AND ended_at >= ?",
		[]string{models.MatchStatusFinished, models.MatchStatusCancelled}, since).
		Find(&matches).Error
	if err != nil {
		return 0, 0, err
	}

	for i := range matches {
		m := &matches[i]
		checked++
		if !a.auditMatch(m) {
			flagged++
		}
	}
	return flagged, checked, nil
}

func (a *LedgerAuditor) auditMatch(m *models.Match) bool {
	var entries []models.Transaction
	if err := a.DB.Where("match_id = ?", m.ID).Find(&entries).Error; err != nil {
		log.Printf("audit: cannot load ledger for match %s: %v", m.ID, err)
		return false
	}

	var payouts, fees, refunds int
	var payout, fee, refundTotal float64
	for _, e := range entries {
		switch e.Type {
		case models.TxTypePayout:
			payouts++
			payout += e.Amount
		case models.TxTypeFee:
			fees++
			fee += e.Amount
		case models.TxTypeRefund:
			refunds++
			refundTotal += e.Amount
		}
	}

	totalWager := m.EntryFee * 2

	switch m.Status {
	case models.MatchStatusFinished:
		if payouts != 1 || fees != 1 {
			log.Printf("🚨 audit: match %s has %d payout / %d fee entries (want 1/1)", m.ID, payouts, fees)
			return false
		}
		if math.Abs(payout+fee-totalWager) > amountTolerance {
			log.Printf("🚨 audit: match %s payout %.2f + fee %.2f != wager %.2f", m.ID, payout, fee, totalWager)
			return false
		}
	case models.MatchStatusCancelled:
		if m.EntryFee <= 0 {
			return true
		}
		if refunds != 2 || math.Abs(refundTotal-totalWager) > amountTolerance {
			log.Printf("🚨 audit: match %s has %d refund entries totalling %.2f (want 2 totalling %.2f)",
				m.ID, refunds, refundTotal, totalWager)
			return false
		}
	}
	return true
}
