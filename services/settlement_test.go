package services

import (
	"errors"
	"sync"
	"testing"

	"github.com/Metavative/RealtimepoolproNewApis/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordingBroadcaster captures emitted events so tests can assert on the
// notification side of the engine without a live hub.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	Target string // user id or match id
	Kind   string // "user" or "match"
	Event  string
}

func (r *recordingBroadcaster) EmitToUser(userID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Target: userID, Kind: "user", Event: event})
}

func (r *recordingBroadcaster) EmitToMatch(matchID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Target: matchID, Kind: "match", Event: event})
}

func (r *recordingBroadcaster) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

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
	// One in-memory database, one connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Player{}, &models.Match{}, &models.MatchScore{}, &models.Transaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestEngine(t *testing.T) (*MatchEngine, *recordingBroadcaster) {
	t.Helper()
	db := openTestDB(t)
	events := &recordingBroadcaster{}
	engine := NewMatchEngine(db, DefaultMatchConfig(), events)

	for _, p := range []*models.Player{
		models.NewPlayer("alice", "Alice", ""),
		models.NewPlayer("bob", "Bob", ""),
	} {
		p.PlayerTag = p.ID + "-tag"
		if err := db.Create(p).Error; err != nil {
			t.Fatalf("seed player %s: %v", p.ID, err)
		}
	}
	return engine, events
}

func loadPlayer(t *testing.T, db *gorm.DB, id string) models.Player {
	t.Helper()
	var p models.Player
	if err := db.First(&p, "id = ?", id).Error; err != nil {
		t.Fatalf("load player %s: %v", id, err)
	}
	return p
}

func fp(v float64) *float64 { return &v }

func twoScores(aliceScore, bobScore float64) []RawScore {
	return []RawScore{
		{UserID: "alice", Score: fp(aliceScore)},
		{UserID: "bob", Score: fp(bobScore)},
	}
}

func startMatch(t *testing.T, engine *MatchEngine, fee float64) *models.Match {
	t.Helper()
	match, err := engine.CreateChallenge("alice", "bob", fee)
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	match, err = engine.Accept(match.ID, "bob")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return match
}

func TestCreateChallengeValidation(t *testing.T) {
	engine, events := newTestEngine(t)

	if _, err := engine.CreateChallenge("alice", "alice", 10); !errors.Is(err, ErrSelfChallenge) {
		t.Fatalf("self challenge: got %v, want ErrSelfChallenge", err)
	}
	if _, err := engine.CreateChallenge("", "bob", 10); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("missing challenger: got %v, want ErrMissingFields", err)
	}
	if _, err := engine.CreateChallenge("alice", "bob", -5); !errors.Is(err, ErrInvalidEntryFee) {
		t.Fatalf("negative fee: got %v, want ErrInvalidEntryFee", err)
	}

	match, err := engine.CreateChallenge("alice", "bob", 100)
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	if match.Status != models.MatchStatusPending {
		t.Fatalf("new challenge status = %q, want pending", match.Status)
	}
	if got := events.count(EventChallengeReceived); got != 1 {
		t.Fatalf("challenge:received emitted %d times, want 1", got)
	}
}

func TestAcceptTransitions(t *testing.T) {
	engine, _ := newTestEngine(t)

	match, err := engine.CreateChallenge("alice", "bob", 50)
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}

	if _, err := engine.Accept(match.ID, "mallory"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("outsider accept: got %v, want ErrNotParticipant", err)
	}

	match, err = engine.Accept(match.ID, "bob")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if match.Status != models.MatchStatusOngoing || !match.IsLive {
		t.Fatalf("after accept: status=%q isLive=%v, want ongoing/live", match.Status, match.IsLive)
	}
	if match.StartedAt == nil {
		t.Fatal("after accept: StartedAt not set")
	}
	started := *match.StartedAt

	// Accepting again is a no-op and must not move StartedAt.
	match, err = engine.Accept(match.ID, "alice")
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if match.StartedAt == nil || !match.StartedAt.Equal(started) {
		t.Fatalf("second accept moved StartedAt: %v -> %v", started, match.StartedAt)
	}
}

func TestFinishSettlesExactlyOnce(t *testing.T) {
	engine, _ := newTestEngine(t)
	match := startMatch(t, engine, 100)

	result, err := engine.Finish(match.ID, "alice", twoScores(8, 5), "alice", "api")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if result.AlreadySettled {
		t.Fatal("first finish reported AlreadySettled")
	}
	// 10% commission on a 200 wager.
	if result.Payout != 180 || result.Commission != 20 {
		t.Fatalf("payout=%.2f commission=%.2f, want 180/20", result.Payout, result.Commission)
	}

	winner := loadPlayer(t, engine.DB, "alice")
	if winner.AvailableBalance != 180 || winner.TotalWins != 1 || winner.TotalWinnings != 180 {
		t.Fatalf("winner counters: balance=%.2f wins=%d winnings=%.2f",
			winner.AvailableBalance, winner.TotalWins, winner.TotalWinnings)
	}
	loser := loadPlayer(t, engine.DB, "bob")
	if loser.AvailableBalance != 0 || loser.TotalLosses != 1 {
		t.Fatalf("loser counters: balance=%.2f losses=%d", loser.AvailableBalance, loser.TotalLosses)
	}

	// Replay: same outcome, no new ledger entries, no new fund movement.
	replay, err := engine.Finish(match.ID, "alice", twoScores(8, 5), "alice", "api")
	if err != nil {
		t.Fatalf("replay finish: %v", err)
	}
	if !replay.AlreadySettled {
		t.Fatal("replay did not report AlreadySettled")
	}
	if replay.Payout != 180 || replay.Commission != 20 {
		t.Fatalf("replay payout=%.2f commission=%.2f, want 180/20", replay.Payout, replay.Commission)
	}

	entries, err := engine.MatchLedger(match.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	var payouts, fees int
	for _, e := range entries {
		switch e.Type {
		case models.TxTypePayout:
			payouts++
		case models.TxTypeFee:
			fees++
		}
	}
	if payouts != 1 || fees != 1 {
		t.Fatalf("ledger has %d payout / %d fee entries, want exactly 1/1", payouts, fees)
	}

	winner = loadPlayer(t, engine.DB, "alice")
	if winner.AvailableBalance != 180 || winner.TotalWins != 1 {
		t.Fatalf("replay moved funds: balance=%.2f wins=%d", winner.AvailableBalance, winner.TotalWins)
	}
}

func TestFinishConservesFunds(t *testing.T) {
	engine, _ := newTestEngine(t)
	match := startMatch(t, engine, 37.5)

	result, err := engine.Finish(match.ID, "bob", twoScores(3, 8), "bob", "api")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if got, want := result.Payout+result.Commission, match.EntryFee*2; got != want {
		t.Fatalf("payout+commission = %.4f, want %.4f", got, want)
	}
}

func TestFinishRejectsOutsiderWinner(t *testing.T) {
	engine, _ := newTestEngine(t)
	match := startMatch(t, engine, 100)

	if _, err := engine.Finish(match.ID, "mallory", twoScores(8, 5), "alice", "api"); !errors.Is(err, ErrWinnerNotInMatch) {
		t.Fatalf("got %v, want ErrWinnerNotInMatch", err)
	}

	fresh, err := engine.GetMatch(match.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if fresh.Status != models.MatchStatusOngoing {
		t.Fatalf("rejected finish changed status to %q", fresh.Status)
	}
	if bal := loadPlayer(t, engine.DB, "alice").AvailableBalance; bal != 0 {
		t.Fatalf("rejected finish moved funds: %.2f", bal)
	}
}

func TestFinishRejectsPendingMatch(t *testing.T) {
	engine, _ := newTestEngine(t)
	match, err := engine.CreateChallenge("alice", "bob", 100)
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	if _, err := engine.Finish(match.ID, "alice", twoScores(8, 5), "alice", "api"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("got %v, want ErrInvalidStatus", err)
	}
}

func TestFinishUnknownMatch(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.Finish("no-such-match", "alice", twoScores(8, 5), "alice", "api"); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("got %v, want ErrMatchNotFound", err)
	}
}

func TestFinishRequiresBothScores(t *testing.T) {
	engine, _ := newTestEngine(t)
	match := startMatch(t, engine, 100)

	one := []RawScore{{UserID: "alice", Score: fp(8)}}
	if _, err := engine.Finish(match.ID, "alice", one, "alice", "api"); !errors.Is(err, ErrInvalidScores) {
		t.Fatalf("got %v, want ErrInvalidScores", err)
	}
}

func TestFinishDropsNonParticipantScores(t *testing.T) {
	engine, _ := newTestEngine(t)
	match := startMatch(t, engine, 100)

	raw := append(twoScores(8, 5), RawScore{UserID: "mallory", Score: fp(99)})
	if _, err := engine.Finish(match.ID, "alice", raw, "alice", "api"); err != nil {
		t.Fatalf("finish: %v", err)
	}

	fresh, err := engine.GetMatch(match.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(fresh.Scores) != 2 {
		t.Fatalf("match carries %d score rows, want 2", len(fresh.Scores))
	}
	for _, s := range fresh.Scores {
		if !fresh.HasPlayer(s.UserID) {
			t.Fatalf("non-participant score row stored on finish: %+v", s)
		}
	}

	// With the stranger filtered out only one participant remains: rejected
	// before any state changes.
	second := startMatch(t, engine, 100)
	raw = []RawScore{
		{UserID: "alice", Score: fp(8)},
		{UserID: "mallory", Score: fp(5)},
	}
	if _, err := engine.Finish(second.ID, "alice", raw, "alice", "api"); !errors.Is(err, ErrInvalidScores) {
		t.Fatalf("got %v, want ErrInvalidScores", err)
	}
	reloaded, _ := engine.GetMatch(second.ID)
	if reloaded.Status != models.MatchStatusOngoing {
		t.Fatalf("rejected finish changed status to %q", reloaded.Status)
	}
}

func TestCancelRefundsBothPlayers(t *testing.T) {
	engine, events := newTestEngine(t)
	match := startMatch(t, engine, 50)

	result, err := engine.Cancel(match.ID, "user_request")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if result.AlreadySettled || result.RefundPerPlayer != 50 {
		t.Fatalf("cancel result: alreadySettled=%v refund=%.2f", result.AlreadySettled, result.RefundPerPlayer)
	}

	for _, id := range []string{"alice", "bob"} {
		if bal := loadPlayer(t, engine.DB, id).AvailableBalance; bal != 50 {
			t.Fatalf("player %s balance after cancel = %.2f, want 50", id, bal)
		}
	}

	entries, err := engine.MatchLedger(match.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	refunds := 0
	for _, e := range entries {
		if e.Type == models.TxTypeRefund {
			refunds++
		}
	}
	if refunds != 2 {
		t.Fatalf("ledger has %d refund entries, want 2", refunds)
	}
	if got := events.count(EventMatchCancelled); got != 2 {
		t.Fatalf("match:cancelled emitted %d times, want 2 (one per player)", got)
	}

	// Cancel replay: no double refund.
	replay, err := engine.Cancel(match.ID, "user_request")
	if err != nil {
		t.Fatalf("replay cancel: %v", err)
	}
	if !replay.AlreadySettled || replay.RefundPerPlayer != 50 {
		t.Fatalf("replay: alreadySettled=%v refund=%.2f", replay.AlreadySettled, replay.RefundPerPlayer)
	}
	if bal := loadPlayer(t, engine.DB, "alice").AvailableBalance; bal != 50 {
		t.Fatalf("replay cancel moved funds: %.2f", bal)
	}
}

func TestCancelFreeMatchWritesNoLedger(t *testing.T) {
	engine, _ := newTestEngine(t)
	match := startMatch(t, engine, 0)

	if _, err := engine.Cancel(match.ID, "user_request"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	entries, err := engine.MatchLedger(match.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("free match wrote %d ledger entries, want 0", len(entries))
	}
}

func TestCancelAfterFinishReplaysOutcome(t *testing.T) {
	engine, _ := newTestEngine(t)
	match := startMatch(t, engine, 100)

	if _, err := engine.Finish(match.ID, "alice", twoScores(8, 5), "alice", "api"); err != nil {
		t.Fatalf("finish: %v", err)
	}

	result, err := engine.Cancel(match.ID, "late_cancel")
	if err != nil {
		t.Fatalf("cancel after finish: %v", err)
	}
	if !result.AlreadySettled {
		t.Fatal("cancel after finish did not report AlreadySettled")
	}
	if result.Payout != 180 || result.RefundPerPlayer != 0 {
		t.Fatalf("replayed outcome: payout=%.2f refund=%.2f, want 180/0", result.Payout, result.RefundPerPlayer)
	}
	fresh, _ := engine.GetMatch(match.ID)
	if fresh.Status != models.MatchStatusFinished {
		t.Fatalf("cancel flipped a finished match to %q", fresh.Status)
	}
}
