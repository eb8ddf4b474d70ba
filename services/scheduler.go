// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/Metavative/RealtimepoolproNewApis/models"

	"github.com/go-co-op/gocron/v2"
)

// StartStaleChallengeSweeper runs the operator force-cancel path on a timer:
// challenges nobody accepted within the configured TTL are cancelled through
// the engine, so the stakes are refunded and ledgered like any other cancel.
func (e *MatchEngine) StartStaleChallengeSweeper() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			cutoff := time.Now().Add(-e.Config.PendingTTL)

			var stale []models.Match
			err := e.DB.Where("status = ? AND created_at <= ?", models.MatchStatusPending, cutoff).
				Limit(100).Find(&stale).Error
			if err != nil {
				log.Printf("[Sweeper] DB error: %v", err)
				return
			}

			for _, m := range stale {
				if _, err := e.Cancel(m.ID, "stale_sweep"); err != nil {
					log.Printf("[Sweeper] Failed to cancel stale match %s: %v", m.ID, err)
				} else {
					log.Printf("✅ Swept stale challenge: %s", m.ID)
				}
			}
		}),
	)
}
