package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Metavative/RealtimepoolproNewApis/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MatchEngine drives the match lifecycle: challenge -> accept -> score sync ->
// settlement. All fund movement goes through it, always inside one DB
// transaction pairing balance increments with ledger entries.
type MatchEngine struct {
	DB     *gorm.DB
	Config MatchConfig
	Events Broadcaster
}

func NewMatchEngine(db *gorm.DB, cfg MatchConfig, events Broadcaster) *MatchEngine {
	if events == nil {
		events = NopBroadcaster{}
	}
	return &MatchEngine{DB: db, Config: cfg, Events: events}
}

// SettlementResult is the canonical outcome of a finish or cancel call.
// AlreadySettled marks an idempotent replay: the match was terminal before
// this call and the recorded outcome is returned unchanged.
type SettlementResult struct {
	Match           *models.Match `json:"match"`
	Payout          float64       `json:"payout"`
	Commission      float64       `json:"commission"`
	RefundPerPlayer float64       `json:"refundPerPlayer,omitempty"`
	AlreadySettled  bool          `json:"alreadySettled"`
}

// CreateChallenge opens a pending match wagering entryFee per player and
// notifies the opponent.
func (e *MatchEngine) CreateChallenge(challengerID, opponentID string, entryFee float64) (*models.Match, error) {
	challengerID = normID(challengerID)
	opponentID = normID(opponentID)

	if challengerID == "" || opponentID == "" {
		return nil, ErrMissingFields
	}
	if challengerID == opponentID {
		return nil, ErrSelfChallenge
	}
	if entryFee < 0 {
		return nil, ErrInvalidEntryFee
	}

	match := &models.Match{
		ID:           uuid.NewString(),
		ChallengerID: challengerID,
		OpponentID:   opponentID,
		Status:       models.MatchStatusPending,
		EntryFee:     entryFee,
	}
	if err := e.DB.Create(match).Error; err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}

	e.Events.EmitToUser(opponentID, EventChallengeReceived, ChallengePayload{
		MatchID:        match.ID,
		EntryFee:       match.EntryFee,
		ChallengerID:   challengerID,
		OpponentID:     opponentID,
		ChallengerInfo: e.PlayerCard(challengerID),
		Timestamp:      time.Now().UnixMilli(),
	})

	return match, nil
}

// Accept moves a pending match to ongoing. Only a participant may accept.
// Accepting an already-ongoing match is a no-op returning current state.
func (e *MatchEngine) Accept(matchID, accepterID string) (*models.Match, error) {
	match, err := e.loadMatch(matchID)
	if err != nil {
		return nil, err
	}
	if !match.HasPlayer(normID(accepterID)) {
		return nil, ErrNotParticipant
	}
	if match.Status == models.MatchStatusOngoing {
		return match, nil
	}
	if match.Terminal() {
		return nil, ErrInvalidStatus
	}

	now := time.Now()
	res := e.DB.Model(&models.Match{}).
		Where("id = ? AND status = ?", match.ID, models.MatchStatusPending).
		Updates(map[string]any{
			"status":     models.MatchStatusOngoing,
			"is_live":    true,
			"started_at": gorm.Expr("COALESCE(started_at, ?)", now),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("accept challenge: %w", res.Error)
	}

	match, err = e.loadMatch(match.ID)
	if err != nil {
		return nil, err
	}
	if match.Status != models.MatchStatusOngoing {
		// Raced into a terminal state before the accept landed.
		return nil, ErrInvalidStatus
	}

	startedAt := now
	if match.StartedAt != nil {
		startedAt = *match.StartedAt
	}
	payload := MatchStartedPayload{
		MatchID:        match.ID,
		Status:         match.Status,
		StartedAt:      startedAt.UnixMilli(),
		Players:        match.Players(),
		EntryFee:       match.EntryFee,
		ChallengerInfo: e.PlayerCard(match.ChallengerID),
		OpponentInfo:   e.PlayerCard(match.OpponentID),
		Timestamp:      time.Now().UnixMilli(),
	}
	for _, pid := range match.Players() {
		e.Events.EmitToUser(pid, EventMatchStarted, payload)
	}

	return match, nil
}

// Finish settles an ongoing match: winner paid out, commission extracted,
// ledger written, all inside one transaction guarded by a compare-and-swap on
// status so two racing finish attempts produce exactly one payout. A terminal
// match replays its recorded outcome instead of settling again.
func (e *MatchEngine) Finish(matchID, winnerID string, scores []RawScore, confirmedBy, source string) (*SettlementResult, error) {
	winnerID = normID(winnerID)
	if normID(matchID) == "" || winnerID == "" {
		return nil, ErrMissingFields
	}

	match, err := e.loadMatch(matchID)
	if err != nil {
		return nil, err
	}
	if match.Terminal() {
		return e.recordedOutcome(match)
	}
	if !match.HasPlayer(winnerID) {
		return nil, ErrWinnerNotInMatch
	}
	if match.Status == models.MatchStatusPending {
		return nil, ErrInvalidStatus
	}

	// Score rows are restricted to the fixed participant pair; entries for
	// anyone else in the event are dropped, same as the score-sync path.
	normalized := NormalizeScores(scores)
	kept := normalized[:0]
	for _, s := range normalized {
		if match.HasPlayer(s.UserID) {
			kept = append(kept, s)
		}
	}
	if len(kept) < 2 {
		return nil, ErrInvalidScores
	}

	loserID := match.OtherPlayer(winnerID)
	totalWager := match.EntryFee * 2
	commission := totalWager * e.Config.CommissionRate
	payout := totalWager - commission

	now := time.Now()
	lostRace := false

	err = e.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Match{}).
			Where("id = ? AND status IN ?", match.ID,
				[]string{models.MatchStatusOngoing, models.MatchStatusPending}).
			Updates(map[string]any{
				"status":               models.MatchStatusFinished,
				"is_live":              false,
				"winner_id":            winnerID,
				"ended_at":             now,
				"finish_source":        source,
				"last_confirmed_by":    normID(confirmedBy),
				"last_score_update_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Someone else finalized first; nothing to apply here.
			lostRace = true
			return nil
		}

		if err := upsertScores(tx, match.ID, kept); err != nil {
			return err
		}

		winner := tx.Model(&models.Player{}).Where("id = ?", winnerID).Updates(map[string]any{
			"available_balance": gorm.Expr("available_balance + ?", payout),
			"career_earnings":   gorm.Expr("career_earnings + ?", payout),
			"total_winnings":    gorm.Expr("total_winnings + ?", payout),
			"total_wins":        gorm.Expr("total_wins + 1"),
		})
		if winner.Error != nil {
			return winner.Error
		}
		if winner.RowsAffected == 0 {
			return ErrPlayerNotFound
		}

		loser := tx.Model(&models.Player{}).Where("id = ?", loserID).
			Update("total_losses", gorm.Expr("total_losses + 1"))
		if loser.Error != nil {
			return loser.Error
		}
		if loser.RowsAffected == 0 {
			return ErrPlayerNotFound
		}

		// One payout entry + one platform fee entry per settled match.
		entries := []models.Transaction{
			{
				ID:          uuid.NewString(),
				UserID:      winnerID,
				MatchID:     &match.ID,
				Amount:      payout,
				Type:        models.TxTypePayout,
				Status:      models.TxStatusCompleted,
				Description: "Match payout",
			},
			{
				ID:          uuid.NewString(),
				UserID:      winnerID,
				MatchID:     &match.ID,
				Amount:      commission,
				Type:        models.TxTypeFee,
				Status:      models.TxStatusCompleted,
				Description: "Platform fee",
			},
		}
		return tx.Create(&entries).Error
	})
	if err != nil {
		return nil, fmt.Errorf("match settlement failed, funds safe: %w", err)
	}

	if lostRace {
		// Return the authoritative outcome the race winner produced, never
		// one re-derived from our stale inputs.
		fresh, err := e.loadMatch(match.ID)
		if err != nil {
			return nil, err
		}
		return e.recordedOutcome(fresh)
	}

	match, err = e.loadMatch(match.ID)
	if err != nil {
		return nil, err
	}

	result := &SettlementResult{Match: match, Payout: payout, Commission: commission}
	e.broadcastResult(match, result)
	log.Printf("✅ match %s settled: winner=%s payout=%.2f commission=%.2f source=%s",
		match.ID, winnerID, payout, commission, source)

	return result, nil
}

// Cancel aborts a pending or ongoing match and refunds the stake to each
// player. Guarded by the same status compare-and-swap as Finish; cancelling a
// terminal match replays the recorded outcome.
func (e *MatchEngine) Cancel(matchID, reason string) (*SettlementResult, error) {
	match, err := e.loadMatch(matchID)
	if err != nil {
		return nil, err
	}
	if match.Terminal() {
		return e.recordedOutcome(match)
	}

	now := time.Now()
	lostRace := false

	err = e.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Match{}).
			Where("id = ? AND status IN ?", match.ID,
				[]string{models.MatchStatusOngoing, models.MatchStatusPending}).
			Updates(map[string]any{
				"status":        models.MatchStatusCancelled,
				"is_live":       false,
				"ended_at":      now,
				"finish_source": reason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			lostRace = true
			return nil
		}

		if match.EntryFee <= 0 {
			return nil
		}
		for _, pid := range match.Players() {
			upd := tx.Model(&models.Player{}).Where("id = ?", pid).
				Update("available_balance", gorm.Expr("available_balance + ?", match.EntryFee))
			if upd.Error != nil {
				return upd.Error
			}
			entry := models.Transaction{
				ID:          uuid.NewString(),
				UserID:      pid,
				MatchID:     &match.ID,
				Amount:      match.EntryFee,
				Type:        models.TxTypeRefund,
				Status:      models.TxStatusCompleted,
				Description: "Match cancelled refund",
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("match cancellation failed, funds safe: %w", err)
	}

	if lostRace {
		fresh, err := e.loadMatch(match.ID)
		if err != nil {
			return nil, err
		}
		return e.recordedOutcome(fresh)
	}

	match, err = e.loadMatch(match.ID)
	if err != nil {
		return nil, err
	}

	result := &SettlementResult{Match: match, RefundPerPlayer: match.EntryFee}
	payload := ResultPayload{
		MatchID:   match.ID,
		Status:    match.Status,
		Scores:    canonicalScores(match),
		Timestamp: time.Now().UnixMilli(),
	}
	for _, pid := range match.Players() {
		e.Events.EmitToUser(pid, EventMatchCancelled, payload)
	}
	log.Printf("✅ match %s cancelled, refunded %.2f per player (%s)", match.ID, match.EntryFee, reason)

	return result, nil
}

// GetMatch returns the canonical match state.
func (e *MatchEngine) GetMatch(matchID string) (*models.Match, error) {
	return e.loadMatch(matchID)
}

// MatchLedger returns the append-only ledger entries recorded for a match.
func (e *MatchEngine) MatchLedger(matchID string) ([]models.Transaction, error) {
	var entries []models.Transaction
	err := e.DB.Where("match_id = ?", normID(matchID)).
		Order("created_at ASC").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return entries, nil
}

// PlayerCard loads the public profile slice for notification payloads. A
// missing player yields a card with only the id set; notifications must not
// fail because a profile row is absent.
func (e *MatchEngine) PlayerCard(userID string) PlayerCard {
	userID = normID(userID)
	var p models.Player
	if err := e.DB.First(&p, "id = ?", userID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("player card load failed for %s: %v", userID, err)
		}
		return PlayerCard{UserID: userID}
	}
	nickname := strings.TrimSpace(p.Nickname)
	if nickname == "" {
		nickname = p.PlayerTag
	}
	return PlayerCard{
		UserID:        p.ID,
		Nickname:      nickname,
		Avatar:        p.Avatar,
		PlayerTag:     p.PlayerTag,
		Rank:          p.Rank,
		TotalWinnings: p.TotalWinnings,
	}
}

func (e *MatchEngine) loadMatch(matchID string) (*models.Match, error) {
	matchID = normID(matchID)
	if matchID == "" {
		return nil, ErrMissingFields
	}
	var match models.Match
	err := e.DB.Preload("Scores").First(&match, "id = ?", matchID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("load match: %w", err)
	}
	return &match, nil
}

// recordedOutcome rebuilds the settlement result of a terminal match from the
// ledger, which is the source of truth for what actually moved.
func (e *MatchEngine) recordedOutcome(match *models.Match) (*SettlementResult, error) {
	result := &SettlementResult{Match: match, AlreadySettled: true}

	entries, err := e.MatchLedger(match.ID)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		switch entry.Type {
		case models.TxTypePayout:
			result.Payout = entry.Amount
		case models.TxTypeFee:
			result.Commission = entry.Amount
		case models.TxTypeRefund:
			result.RefundPerPlayer = entry.Amount
		}
	}
	return result, nil
}

func (e *MatchEngine) broadcastResult(match *models.Match, result *SettlementResult) {
	winnerID := ""
	if match.WinnerID != nil {
		winnerID = *match.WinnerID
	}
	payload := ResultPayload{
		MatchID:    match.ID,
		Status:     match.Status,
		WinnerID:   winnerID,
		LoserID:    match.OtherPlayer(winnerID),
		Payout:     result.Payout,
		Commission: result.Commission,
		Scores:     canonicalScores(match),
		Timestamp:  time.Now().UnixMilli(),
	}
	for _, pid := range match.Players() {
		e.Events.EmitToUser(pid, EventMatchFinished, payload)
		e.Events.EmitToUser(pid, EventMatchResult, payload)
	}
}

func canonicalScores(match *models.Match) []ScoreEntry {
	out := make([]ScoreEntry, 0, len(match.Scores))
	for _, s := range match.Scores {
		out = append(out, ScoreEntry{UserID: s.UserID, Score: s.Points})
	}
	return out
}

// upsertScores writes the canonical score rows, one per player, last write
// winning on conflict.
func upsertScores(tx *gorm.DB, matchID string, scores []ScoreEntry) error {
	rows := make([]models.MatchScore, 0, len(scores))
	for _, s := range scores {
		rows = append(rows, models.MatchScore{MatchID: matchID, UserID: s.UserID, Points: s.Score})
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "match_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"points"}),
	}).Create(&rows).Error
}
