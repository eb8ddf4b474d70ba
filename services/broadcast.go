package services

// Event names emitted by the engine. This is the single canonical contract;
// legacy aliases accepted from older app builds live at the transport
// boundary, not here.
const (
	EventChallengeReceived = "challenge:received"
	EventMatchStarted      = "match:started"
	EventMatchDeclined     = "match:declined"
	EventMatchCancelled    = "match:cancelled"
	EventMatchFinished     = "match:finished"
	EventMatchResult       = "match:result"
	EventScoreUpdated      = "match:score_updated"
	EventScoreState        = "match:score_state"
)

// Broadcaster delivers named events to a user's connections or a match
// broadcast group. The realtime hub implements it; the engine only depends on
// this interface so settlement stays testable without a live transport.
type Broadcaster interface {
	EmitToUser(userID, event string, payload any)
	EmitToMatch(matchID, event string, payload any)
}

// NopBroadcaster drops every event. Used by background jobs and tests.
type NopBroadcaster struct{}

func (NopBroadcaster) EmitToUser(string, string, any)  {}
func (NopBroadcaster) EmitToMatch(string, string, any) {}

// PlayerCard is the public profile slice attached to challenge and
// match-started notifications so clients never render a blank opponent.
type PlayerCard struct {
	UserID        string  `json:"userId"`
	Nickname      string  `json:"nickname"`
	Avatar        string  `json:"avatar"`
	PlayerTag     string  `json:"playerTag"`
	Rank          string  `json:"rank"`
	TotalWinnings float64 `json:"totalWinnings"`
}

// ChallengePayload notifies the opponent that a wagered challenge arrived.
type ChallengePayload struct {
	MatchID        string     `json:"matchId"`
	EntryFee       float64    `json:"entryFee"`
	ChallengerID   string     `json:"challengerId"`
	OpponentID     string     `json:"opponentId"`
	ChallengerInfo PlayerCard `json:"challengerInfo"`
	Timestamp      int64      `json:"timestamp"`
}

// MatchStartedPayload carries both player cards so neither client has to
// guess the opponent's name or avatar.
type MatchStartedPayload struct {
	MatchID        string     `json:"matchId"`
	Status         string     `json:"status"`
	StartedAt      int64      `json:"startedAt"`
	Players        []string   `json:"players"`
	EntryFee       float64    `json:"entryFee"`
	ChallengerInfo PlayerCard `json:"challengerInfo"`
	OpponentInfo   PlayerCard `json:"opponentInfo"`
	Timestamp      int64      `json:"timestamp"`
}

// ResultPayload is broadcast on settlement and on cancellation.
type ResultPayload struct {
	MatchID    string       `json:"matchId"`
	Status     string       `json:"status"`
	WinnerID   string       `json:"winnerId,omitempty"`
	LoserID    string       `json:"loserId,omitempty"`
	Payout     float64      `json:"payout"`
	Commission float64      `json:"commission"`
	Scores     []ScoreEntry `json:"scores"`
	Timestamp  int64        `json:"timestamp"`
}
