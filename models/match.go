package models

import "time"

// Match status lifecycle. Transitions are forward-only:
// pending -> ongoing -> finished | cancelled (pending may also cancel).
const (
	MatchStatusPending   = "pending"
	MatchStatusOngoing   = "ongoing"
	MatchStatusFinished  = "finished"
	MatchStatusCancelled = "cancelled"
)

// Match records a single wagered challenge between two players.
type Match struct {
	ID           string `gorm:"primaryKey;type:uuid" json:"id"`
	ChallengerID string `gorm:"index;not null" json:"challenger_id"`
	OpponentID   string `gorm:"index;not null" json:"opponent_id"`

	Status string `json:"status" gorm:"type:varchar(16);index;default:'pending';check:status IN ('pending','ongoing','finished','cancelled')"`

	// Stake per player, fixed at challenge time.
	EntryFee float64 `json:"entry_fee" gorm:"default:0"`

	Scores   []MatchScore `json:"scores" gorm:"foreignKey:MatchID"`
	WinnerID *string      `gorm:"index" json:"winner_id,omitempty"`

	IsLive    bool       `gorm:"index" json:"is_live"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// Audit trail for the most recent accepted score event.
	LastConfirmedBy   string     `json:"last_confirmed_by,omitempty"`
	LastScoreUpdateAt *time.Time `json:"last_score_update_at,omitempty"`
	FinishSource      string     `json:"finish_source,omitempty" gorm:"type:varchar(32)"`

	Timestamps
}

// MatchScore is one player's confirmed point count within a match.
// One row per (match, player); score events upsert these rows.
type MatchScore struct {
	MatchID string `gorm:"primaryKey;type:uuid" json:"match_id"`
	UserID  string `gorm:"primaryKey;type:uuid" json:"user_id"`
	Points  int    `json:"points" gorm:"default:0"`
}

// Players returns the fixed two-player set, challenger first.
func (m *Match) Players() []string {
	return []string{m.ChallengerID, m.OpponentID}
}

// HasPlayer reports whether userID is one of the match participants.
func (m *Match) HasPlayer(userID string) bool {
	return userID != "" && (userID == m.ChallengerID || userID == m.OpponentID)
}

// OtherPlayer returns the participant that is not userID, or "" when
// userID is not part of the match.
func (m *Match) OtherPlayer(userID string) string {
	switch userID {
	case m.ChallengerID:
		return m.OpponentID
	case m.OpponentID:
		return m.ChallengerID
	}
	return ""
}

// Terminal reports whether the match has reached a final state.
// Terminal matches are frozen: score, winner and status never change again.
func (m *Match) Terminal() bool {
	return m.Status == MatchStatusFinished || m.Status == MatchStatusCancelled
}
