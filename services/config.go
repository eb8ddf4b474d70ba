package services

import (
	"log"
	"os"
	"strconv"
	"time"
)

// MatchConfig carries the tunables of the settlement engine. The rates were
// hardcoded in earlier builds; they are environment-driven now, with the same
// values as defaults.
type MatchConfig struct {
	// CommissionRate is the platform cut taken from the total wager on
	// settlement (0.10 = 10%).
	CommissionRate float64

	// WinningScore is the point threshold that auto-finishes an ongoing
	// match when one player reaches it with the strictly highest score.
	WinningScore int

	// PendingTTL is how long a challenge may sit in pending before the
	// sweeper force-cancels it and refunds the stakes.
	PendingTTL time.Duration
}

func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		CommissionRate: 0.10,
		WinningScore:   8,
		PendingTTL:     72 * time.Hour,
	}
}

// LoadMatchConfig reads engine tunables from the environment, falling back to
// the documented defaults.
func LoadMatchConfig() MatchConfig {
	cfg := DefaultMatchConfig()

	if v := os.Getenv("MATCH_COMMISSION_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f < 1 {
			cfg.CommissionRate = f
		} else {
			log.Printf("⚠️  invalid MATCH_COMMISSION_RATE %q, using default %.2f", v, cfg.CommissionRate)
		}
	}
	if v := os.Getenv("MATCH_WINNING_SCORE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WinningScore = n
		} else {
			log.Printf("⚠️  invalid MATCH_WINNING_SCORE %q, using default %d", v, cfg.WinningScore)
		}
	}
	if v := os.Getenv("MATCH_PENDING_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PendingTTL = time.Duration(n) * time.Hour
		} else {
			log.Printf("⚠️  invalid MATCH_PENDING_TTL_HOURS %q, using default %s", v, cfg.PendingTTL)
		}
	}

	return cfg
}
