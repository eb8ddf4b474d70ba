package realtime

import (
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/Metavative/RealtimepoolproNewApis/models"
	"github.com/Metavative/RealtimepoolproNewApis/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handler owns the realtime side of the API: presence, location and the
// score-synchronization channel. One canonical contract per concern; the
// legacy event names older app builds still send are registered as aliases
// here and nowhere else.
type Handler struct {
	Hub     *Hub
	Engine  *services.MatchEngine
	Players *services.PlayerService
}

func NewHandler(hub *Hub, engine *services.MatchEngine, players *services.PlayerService) *Handler {
	return &Handler{Hub: hub, Engine: engine, Players: players}
}

// Upgrade gates /ws to websocket requests.
func Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// wsConn serializes writes; fasthttp websocket conns are not safe for
// concurrent writers and broadcasts arrive from many goroutines.
type wsConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func (w *wsConn) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteJSON(v)
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type locationPayload struct {
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (l *locationPayload) coords() (lat, lng *float64) {
	if l == nil {
		return nil, nil
	}
	lat, lng = l.Lat, l.Lng
	if lat == nil {
		lat = l.Latitude
	}
	if lng == nil {
		lng = l.Longitude
	}
	return lat, lng
}

type identifyPayload struct {
	UserID   string           `json:"userId"`
	ID       string           `json:"id"`
	MongoID  string           `json:"_id"`
	Nickname string           `json:"nickname"`
	Location *locationPayload `json:"location"`
	Lat      *float64         `json:"lat"`
	Lng      *float64         `json:"lng"`
}

func (p *identifyPayload) userID() string {
	for _, v := range []string{p.UserID, p.ID, p.MongoID} {
		if v != "" {
			return v
		}
	}
	return ""
}

func (p *identifyPayload) coords() (lat, lng *float64) {
	lat, lng = p.Location.coords()
	if lat == nil {
		lat = p.Lat
	}
	if lng == nil {
		lng = p.Lng
	}
	return lat, lng
}

type matchJoinPayload struct {
	MatchID string `json:"matchId"`
	UserID  string `json:"userId"`
}

type scoreConfirmPayload struct {
	MatchID     string              `json:"matchId"`
	ConfirmedBy string              `json:"confirmedBy"`
	Scores      []services.RawScore `json:"scores"`
}

type presenceCheckPayload struct {
	UserIDs []string `json:"userIds"`
}

type declinePayload struct {
	MatchID      string `json:"matchId"`
	ChallengerID string `json:"challengerId"`
}

// Serve is the per-connection loop. Malformed events are logged and dropped;
// they never tear down the connection or reach the engine.
func (h *Handler) Serve(c *websocket.Conn) {
	connID := uuid.NewString()
	conn := &wsConn{c: c}
	h.Hub.Add(connID, conn)
	log.Printf("⚡ socket connected: %s", connID)

	defer func() {
		userID, last := h.Hub.Remove(connID)
		if last && userID != "" {
			if err := h.Players.SetOffline(userID); err != nil {
				log.Printf("presence offline update failed for %s: %v", userID, err)
			}
			h.Hub.EmitToAll("presence:user_offline", fiber.Map{"userId": userID})
			h.broadcastRoster()
		}
		log.Printf("🔌 socket disconnected: %s", connID)
	}()

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var in inbound
		if err := json.Unmarshal(msg, &in); err != nil {
			log.Printf("dropping malformed frame on %s: %v", connID, err)
			continue
		}
		h.dispatch(connID, in)
	}
}

func (h *Handler) dispatch(connID string, in inbound) {
	switch in.Event {
	case "user:identify", "identify", "userOnline", "player:online":
		h.onIdentify(connID, in.Data)
	case "user:move", "updateLocation", "player:move":
		h.onMove(connID, in.Data)
	case "presence:check":
		h.onPresenceCheck(connID, in.Data)
	case "match:join":
		h.onMatchJoin(connID, in.Data)
	case "match:leave":
		h.onMatchLeave(connID, in.Data)
	case "match:score_get":
		h.onScoreGet(connID, in.Data)
	case "match:score_confirm":
		h.onScoreConfirm(connID, in.Data)
	case "match:challenge_declined":
		h.onChallengeDeclined(connID, in.Data)
	default:
		log.Printf("dropping unknown event %q on %s", in.Event, connID)
	}
}

// decodeIdentify tolerates both the object payload and the legacy
// bare-string userId form.
func decodeIdentify(data json.RawMessage) (*identifyPayload, error) {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		return &identifyPayload{UserID: asString}, nil
	}
	var p identifyPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (h *Handler) onIdentify(connID string, data json.RawMessage) {
	p, err := decodeIdentify(data)
	if err != nil {
		log.Printf("user:identify malformed payload: %v", err)
		return
	}
	userID := p.userID()
	if userID == "" {
		log.Printf("user:identify missing userId")
		return
	}
	lat, lng := p.coords()

	if _, err := h.Players.EnsurePlayer(userID, p.Nickname); err != nil {
		log.Printf("ensure player %s failed: %v", userID, err)
	}

	first := h.Hub.Identify(connID, userID)
	if err := h.Players.SetOnline(userID, lat, lng); err != nil {
		log.Printf("presence online update failed for %s: %v", userID, err)
		return
	}

	if first {
		h.Hub.EmitToAll("presence:user_online", fiber.Map{"userId": userID})
	}
	h.broadcastRoster()
	h.Hub.EmitToConn(connID, "presence:online_list", fiber.Map{"userIds": h.Hub.OnlineUserIDs()})

	if lat != nil && lng != nil {
		h.emitNearby(connID, userID, *lat, *lng)
	}
}

func (h *Handler) onMove(connID string, data json.RawMessage) {
	p, err := decodeIdentify(data)
	if err != nil {
		log.Printf("user:move malformed payload: %v", err)
		return
	}
	userID := p.userID()
	lat, lng := p.coords()
	if userID == "" || lat == nil || lng == nil {
		return
	}
	if err := h.Players.UpdateLocation(userID, *lat, *lng); err != nil {
		log.Printf("location update failed for %s: %v", userID, err)
		return
	}
	h.emitNearby(connID, userID, *lat, *lng)
}

func (h *Handler) emitNearby(connID, userID string, lat, lng float64) {
	nearby, err := h.Players.NearbyPlayers(userID, lat, lng, 5)
	if err != nil {
		log.Printf("nearby lookup failed for %s: %v", userID, err)
		return
	}
	h.Hub.EmitToConn(connID, "nearbyPlayers", nearby)
}

func (h *Handler) onPresenceCheck(connID string, data json.RawMessage) {
	var p presenceCheckPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("presence:check malformed payload: %v", err)
		return
	}
	status := make(map[string]bool, len(p.UserIDs))
	for _, id := range p.UserIDs {
		status[id] = h.Hub.IsOnline(id)
	}
	h.Hub.EmitToConn(connID, "presence:status", fiber.Map{"status": status})
}

func (h *Handler) onMatchJoin(connID string, data json.RawMessage) {
	var p matchJoinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.MatchID == "" {
		log.Printf("match:join invalid payload: %v", err)
		return
	}

	h.Hub.Join(MatchGroup(p.MatchID), connID)
	if p.UserID != "" {
		// A join may be the connection's first identification; run the full
		// online transition so the stored flag and the directory agree.
		first := h.Hub.Identify(connID, p.UserID)
		if err := h.Players.SetOnline(p.UserID, nil, nil); err != nil {
			log.Printf("presence online update failed for %s: %v", p.UserID, err)
		}
		if first {
			h.Hub.EmitToAll("presence:user_online", fiber.Map{"userId": p.UserID})
			h.broadcastRoster()
		}
	}

	// Late-join hydration: the joining connection immediately gets the
	// current canonical state so reconnects never show stale zeros.
	if state, err := h.Engine.LoadScoreState(p.MatchID); err == nil {
		state.Source = "join"
		h.Hub.EmitToConn(connID, services.EventScoreState, state)
	} else if !errors.Is(err, services.ErrMatchNotFound) {
		log.Printf("match:join state load failed for %s: %v", p.MatchID, err)
	}

	h.Hub.EmitToConn(connID, "match:joined", fiber.Map{
		"matchId": p.MatchID,
		"room":    MatchGroup(p.MatchID),
	})
}

func (h *Handler) onMatchLeave(connID string, data json.RawMessage) {
	var p matchJoinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.MatchID == "" {
		return
	}
	h.Hub.Leave(MatchGroup(p.MatchID), connID)
}

func (h *Handler) onScoreGet(connID string, data json.RawMessage) {
	var p matchJoinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.MatchID == "" {
		return
	}
	state, err := h.Engine.LoadScoreState(p.MatchID)
	if err != nil {
		if errors.Is(err, services.ErrMatchNotFound) {
			h.Hub.EmitToConn(connID, services.EventScoreState, services.ScoreState{
				MatchID: p.MatchID,
				Scores:  []services.ScoreEntry{},
				Source:  "get_empty",
			})
		}
		return
	}
	state.Source = "get"
	h.Hub.EmitToConn(connID, services.EventScoreState, state)
}

func (h *Handler) onScoreConfirm(connID string, data json.RawMessage) {
	var p scoreConfirmPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("match:score_confirm malformed payload: %v", err)
		return
	}

	state, result, err := h.Engine.SubmitScore(p.MatchID, p.ConfirmedBy, p.Scores)
	if err != nil {
		log.Printf("match:score_confirm rejected for %s: %v", p.MatchID, err)
		h.Hub.EmitToConn(connID, "match:error", fiber.Map{
			"matchId": p.MatchID,
			"error":   err.Error(),
		})
		return
	}

	// A stale event against a terminal match gets the terminal state back
	// instead of a broadcast; settled broadcasts were already emitted by the
	// engine.
	if result == nil && state != nil &&
		(state.Status == models.MatchStatusFinished || state.Status == models.MatchStatusCancelled) {
		state.Source = "terminal"
		h.Hub.EmitToConn(connID, services.EventScoreState, state)
	}
}

func (h *Handler) onChallengeDeclined(connID string, data json.RawMessage) {
	var p declinePayload
	if err := json.Unmarshal(data, &p); err != nil || p.MatchID == "" || p.ChallengerID == "" {
		log.Printf("match:challenge_declined invalid payload")
		return
	}
	h.Hub.EmitToUser(p.ChallengerID, services.EventMatchDeclined, fiber.Map{
		"matchId": p.MatchID,
		"message": "Challenge declined",
	})
}

func (h *Handler) broadcastRoster() {
	roster, err := h.Players.Roster(h.Hub.OnlineUserIDs())
	if err != nil {
		log.Printf("roster load failed: %v", err)
		return
	}
	h.Hub.EmitToAll("presence:update", roster)
}
