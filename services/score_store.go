package services

import (
	"fmt"
	"log"
	"time"

	"github.com/Metavative/RealtimepoolproNewApis/models"

	"gorm.io/gorm"
)

// ScoreState is the canonical snapshot broadcast to clients. Observers treat
// each snapshot as authoritative-at-its-timestamp, never as a delta, so
// out-of-order delivery across the redundant paths is harmless.
type ScoreState struct {
	MatchID     string       `json:"matchId"`
	ConfirmedBy string       `json:"confirmedBy"`
	Scores      []ScoreEntry `json:"scores"`
	Timestamp   int64        `json:"timestamp"`
	Status      string       `json:"status"`
	WinnerID    string       `json:"winnerId,omitempty"`
	IsLive      bool         `json:"isLive"`
	EntryFee    float64      `json:"entryFee"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
	EndedAt     *time.Time   `json:"endedAt,omitempty"`

	// Source tags what produced this snapshot (confirm/join/get) so client
	// logs stay debuggable; it is not part of the persisted state.
	Source string `json:"source,omitempty"`
}

func scoreState(match *models.Match) *ScoreState {
	ts := time.Now().UnixMilli()
	if match.LastScoreUpdateAt != nil {
		ts = match.LastScoreUpdateAt.UnixMilli()
	}
	winner := ""
	if match.WinnerID != nil {
		winner = *match.WinnerID
	}
	return &ScoreState{
		MatchID:     match.ID,
		ConfirmedBy: match.LastConfirmedBy,
		Scores:      canonicalScores(match),
		Timestamp:   ts,
		Status:      match.Status,
		WinnerID:    winner,
		IsLive:      match.IsLive,
		EntryFee:    match.EntryFee,
		StartedAt:   match.StartedAt,
		EndedAt:     match.EndedAt,
	}
}

// LoadScoreState returns the current canonical score snapshot. Used for
// late-join and reconnect hydration so clients never sit on stale zeros.
func (e *MatchEngine) LoadScoreState(matchID string) (*ScoreState, error) {
	match, err := e.loadMatch(matchID)
	if err != nil {
		return nil, err
	}
	return scoreState(match), nil
}

// PersistScores validates and stores a score-confirmation event. The second
// return value reports whether the update was accepted: events against
// terminal matches are not an error, the caller just gets the terminal state
// back to hand to the stale client.
func (e *MatchEngine) PersistScores(matchID, confirmedBy string, raw []RawScore) (*ScoreState, bool, error) {
	confirmedBy = normID(confirmedBy)
	if normID(matchID) == "" || confirmedBy == "" {
		return nil, false, ErrMissingFields
	}

	match, err := e.loadMatch(matchID)
	if err != nil {
		return nil, false, err
	}
	if match.Terminal() {
		return scoreState(match), false, nil
	}

	// Players are fixed at challenge time; score rows for anyone else are
	// dropped rather than growing the participant set.
	normalized := NormalizeScores(raw)
	kept := normalized[:0]
	for _, s := range normalized {
		if match.HasPlayer(s.UserID) {
			kept = append(kept, s)
		}
	}
	if len(kept) < 2 {
		return nil, false, ErrInvalidScores
	}

	now := time.Now()
	raced := false
	err = e.DB.Transaction(func(tx *gorm.DB) error {
		// Accepted updates force the match live; this covers matches whose
		// accept step was skipped by the client. startedAt is only ever set
		// once. The status guard keeps terminal matches frozen under races.
		res := tx.Model(&models.Match{}).
			Where("id = ? AND status IN ?", match.ID,
				[]string{models.MatchStatusPending, models.MatchStatusOngoing}).
			Updates(map[string]any{
				"status":               models.MatchStatusOngoing,
				"is_live":              true,
				"started_at":           gorm.Expr("COALESCE(started_at, ?)", now),
				"last_confirmed_by":    confirmedBy,
				"last_score_update_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			raced = true
			return nil
		}
		return upsertScores(tx, match.ID, kept)
	})
	if err != nil {
		return nil, false, fmt.Errorf("persist scores: %w", err)
	}

	match, err = e.loadMatch(match.ID)
	if err != nil {
		return nil, false, err
	}
	if raced {
		return scoreState(match), false, nil
	}
	return scoreState(match), true, nil
}

// SubmitScore is the full score-confirmation pipeline: persist, dual-path
// broadcast, then auto-win evaluation. Returns the canonical state and, when
// the update pushed a player over the winning threshold, the settlement it
// triggered.
func (e *MatchEngine) SubmitScore(matchID, confirmedBy string, raw []RawScore) (*ScoreState, *SettlementResult, error) {
	state, accepted, err := e.PersistScores(matchID, confirmedBy, raw)
	if err != nil {
		return nil, nil, err
	}
	if !accepted {
		// Stale event against a settled match; hand back the terminal state.
		return state, nil, nil
	}

	// Dual delivery: the match broadcast group plus each player's personal
	// group, for clients backgrounded out of the match room.
	e.Events.EmitToMatch(state.MatchID, EventScoreUpdated, state)
	for _, s := range state.Scores {
		e.Events.EmitToUser(s.UserID, EventScoreUpdated, state)
	}

	top, strict := topScorer(state.Scores)
	if !strict || top.Score < e.Config.WinningScore {
		return state, nil, nil
	}

	log.Printf("🎯 match %s reached winning score (%s: %d), settling", state.MatchID, top.UserID, top.Score)
	result, err := e.Finish(state.MatchID, top.UserID, raw, confirmedBy, "score_sync")
	if err != nil {
		return state, nil, fmt.Errorf("auto settlement: %w", err)
	}
	return state, result, nil
}
