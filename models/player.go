package models

import (
	"time"
	"unicode"
)

// Player is the local player record: profile fields used for match
// notification cards, presence/location, and the balance/stat counters the
// settlement engine mutates. Balance fields are only ever changed through
// atomic increments paired with ledger entries — never set directly.
type Player struct {
	ID string `gorm:"primaryKey;type:uuid" json:"id"`

	Nickname  string `gorm:"index;not null" json:"nickname"`
	Avatar    string `json:"avatar"`
	PlayerTag string `gorm:"uniqueIndex" json:"player_tag"`
	Rank      string `json:"rank" gorm:"type:varchar(32);default:'Beginner'"`
	Verified  bool   `json:"verified" gorm:"default:false"`

	// Presence + last reported location.
	OnlineStatus bool       `gorm:"index" json:"online_status"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`

	// Earnings. AvailableBalance is the spendable amount.
	AvailableBalance float64 `json:"available_balance" gorm:"default:0"`
	CareerEarnings   float64 `json:"career_earnings" gorm:"default:0"`

	// Monotonic stat counters, incremented only by settlement.
	TotalWinnings float64 `json:"total_winnings" gorm:"default:0"`
	TotalWins     int64   `json:"total_wins" gorm:"default:0"`
	TotalLosses   int64   `json:"total_losses" gorm:"default:0"`

	Timestamps
}

// NewPlayer builds a player with defaults applied at construction time.
// An empty avatar falls back to the nickname's first rune, uppercased.
func NewPlayer(id, nickname, avatar string) *Player {
	if avatar == "" {
		avatar = DefaultAvatar(nickname)
	}
	return &Player{
		ID:       id,
		Nickname: nickname,
		Avatar:   avatar,
		Rank:     "Beginner",
	}
}

// DefaultAvatar derives a placeholder avatar from a nickname.
func DefaultAvatar(nickname string) string {
	for _, r := range nickname {
		return string(unicode.ToUpper(r))
	}
	return "?"
}
