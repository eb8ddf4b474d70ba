package services

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
)

// MatchService is the HTTP face of the settlement engine.
type MatchService struct {
	Engine *MatchEngine
}

func NewMatchService(engine *MatchEngine) *MatchService {
	return &MatchService{Engine: engine}
}

func callerID(c *fiber.Ctx) string {
	if v, ok := c.Locals("user_id").(string); ok {
		return v
	}
	return ""
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMatchNotFound), errors.Is(err, ErrPlayerNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrNotParticipant):
		return fiber.StatusForbidden
	case errors.Is(err, ErrWinnerNotInMatch),
		errors.Is(err, ErrInvalidScores),
		errors.Is(err, ErrInvalidEntryFee),
		errors.Is(err, ErrSelfChallenge),
		errors.Is(err, ErrMissingFields),
		errors.Is(err, ErrInvalidStatus):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func engineError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("❌ match engine error: %v", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// CreateChallenge handles POST /api/match/challenge.
func (s *MatchService) CreateChallenge(c *fiber.Ctx) error {
	var req struct {
		OpponentID string  `json:"opponentId"`
		EntryFee   float64 `json:"entryFee"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.OpponentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "opponentId is required"})
	}

	match, err := s.Engine.CreateChallenge(callerID(c), req.OpponentID, req.EntryFee)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(fiber.Map{"match": match})
}

// AcceptChallenge handles POST /api/match/accept.
func (s *MatchService) AcceptChallenge(c *fiber.Ctx) error {
	var req struct {
		MatchID string `json:"matchId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	match, err := s.Engine.Accept(req.MatchID, callerID(c))
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(fiber.Map{"match": match})
}

// FinishMatch handles POST /api/match/finish. Idempotent: a terminal match
// replays its recorded outcome with ok=true rather than settling twice.
func (s *MatchService) FinishMatch(c *fiber.Ctx) error {
	var req struct {
		MatchID  string     `json:"matchId"`
		WinnerID string     `json:"winnerId"`
		Scores   []RawScore `json:"scores"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	caller := callerID(c)
	match, err := s.Engine.GetMatch(req.MatchID)
	if err != nil {
		return engineError(c, err)
	}
	if !match.HasPlayer(caller) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": ErrNotParticipant.Error()})
	}

	result, err := s.Engine.Finish(req.MatchID, req.WinnerID, req.Scores, caller, "http")
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(fiber.Map{
		"ok":              true,
		"alreadyFinished": result.AlreadySettled,
		"match":           result.Match,
		"payout":          result.Payout,
		"commission":      result.Commission,
	})
}

// CancelMatch handles POST /api/match/cancel. Idempotent like FinishMatch.
func (s *MatchService) CancelMatch(c *fiber.Ctx) error {
	var req struct {
		MatchID string `json:"matchId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	caller := callerID(c)
	match, err := s.Engine.GetMatch(req.MatchID)
	if err != nil {
		return engineError(c, err)
	}
	if !match.HasPlayer(caller) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": ErrNotParticipant.Error()})
	}

	result, err := s.Engine.Cancel(req.MatchID, "http")
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(fiber.Map{
		"ok":              true,
		"alreadyFinished": result.AlreadySettled,
		"match":           result.Match,
		"refundPerPlayer": result.RefundPerPlayer,
	})
}

// GetMatch handles GET /api/match/:id.
func (s *MatchService) GetMatch(c *fiber.Ctx) error {
	match, err := s.Engine.GetMatch(c.Params("id"))
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(fiber.Map{"match": match})
}

// GetMatchTransactions handles GET /api/match/:id/transactions — the audit
// trail of every fund movement the match produced.
func (s *MatchService) GetMatchTransactions(c *fiber.Ctx) error {
	if _, err := s.Engine.GetMatch(c.Params("id")); err != nil {
		return engineError(c, err)
	}
	entries, err := s.Engine.MatchLedger(c.Params("id"))
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(fiber.Map{"transactions": entries})
}
