package services

import (
	"errors"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Metavative/RealtimepoolproNewApis/models"
	"github.com/Metavative/RealtimepoolproNewApis/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PresenceChecker is the read side of the presence directory.
type PresenceChecker interface {
	IsOnline(userID string) bool
}

type offlinePresence struct{}

func (offlinePresence) IsOnline(string) bool { return false }

// PlayerService covers the profile-store collaborator: cards, roster
// lookups, presence flags and avatar storage.
type PlayerService struct {
	DB       *gorm.DB
	Presence PresenceChecker
}

func NewPlayerService(db *gorm.DB) *PlayerService {
	return &PlayerService{DB: db, Presence: offlinePresence{}}
}

// PlayerSummary is the roster row shape used by presence and nearby lists.
type PlayerSummary struct {
	UserID        string   `json:"userId"`
	Nickname      string   `json:"nickname"`
	Avatar        string   `json:"avatar"`
	PlayerTag     string   `json:"playerTag"`
	Rank          string   `json:"rank"`
	TotalWinnings float64  `json:"totalWinnings"`
	OnlineStatus  bool     `json:"onlineStatus"`
	Verified      bool     `json:"verified"`
	DistanceKm    *float64 `json:"distanceKm,omitempty"`
}

func summarize(p *models.Player) PlayerSummary {
	return PlayerSummary{
		UserID:        p.ID,
		Nickname:      p.Nickname,
		Avatar:        p.Avatar,
		PlayerTag:     p.PlayerTag,
		Rank:          p.Rank,
		TotalWinnings: p.TotalWinnings,
		OnlineStatus:  p.OnlineStatus,
		Verified:      p.Verified,
	}
}

// EnsurePlayer registers a player row on first sight of an identity, with
// construction-time defaulting (avatar fallback, slug-derived tag).
func (s *PlayerService) EnsurePlayer(userID, nickname string) (*models.Player, error) {
	userID = normID(userID)
	if userID == "" {
		return nil, ErrMissingFields
	}

	var p models.Player
	err := s.DB.First(&p, "id = ?", userID).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if nickname == "" {
		nickname = "player"
	}
	np := models.NewPlayer(userID, nickname, "")
	np.PlayerTag = utils.PlayerTag(nickname)
	if err := s.DB.Create(np).Error; err != nil {
		return nil, err
	}
	return np, nil
}

// SetOnline flips the durable presence flag and stores the reported location
// when one was sent along.
func (s *PlayerService) SetOnline(userID string, lat, lng *float64) error {
	now := time.Now()
	update := map[string]any{
		"online_status": true,
		"last_seen":     now,
	}
	if lat != nil && lng != nil {
		update["latitude"] = *lat
		update["longitude"] = *lng
	}
	return s.DB.Model(&models.Player{}).Where("id = ?", normID(userID)).Updates(update).Error
}

// SetOffline marks the player offline once their last connection is gone.
func (s *PlayerService) SetOffline(userID string) error {
	now := time.Now()
	return s.DB.Model(&models.Player{}).Where("id = ?", normID(userID)).Updates(map[string]any{
		"online_status": false,
		"last_seen":     now,
	}).Error
}

// UpdateLocation stores a movement ping.
func (s *PlayerService) UpdateLocation(userID string, lat, lng float64) error {
	now := time.Now()
	return s.DB.Model(&models.Player{}).Where("id = ?", normID(userID)).Updates(map[string]any{
		"latitude":  lat,
		"longitude": lng,
		"last_seen": now,
	}).Error
}

// Roster loads summaries for a set of user ids, preserving input order.
func (s *PlayerService) Roster(userIDs []string) ([]PlayerSummary, error) {
	if len(userIDs) == 0 {
		return []PlayerSummary{}, nil
	}
	var players []models.Player
	if err := s.DB.Where("id IN ?", userIDs).Find(&players).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Player, len(players))
	for i := range players {
		byID[players[i].ID] = &players[i]
	}
	out := make([]PlayerSummary, 0, len(players))
	for _, id := range userIDs {
		if p, ok := byID[id]; ok {
			out = append(out, summarize(p))
		}
	}
	return out, nil
}

// NearbyPlayers finds online players within radiusKm of a point. The coarse
// cut is a bounding box in SQL; exact distance is haversine, computed here so
// the query stays portable across drivers.
func (s *PlayerService) NearbyPlayers(excludeID string, lat, lng, radiusKm float64) ([]PlayerSummary, error) {
	if radiusKm <= 0 {
		radiusKm = 5
	}
	latDelta := radiusKm / 111.0
	lngDelta := radiusKm / (111.0 * math.Max(math.Cos(lat*math.Pi/180), 0.01))

	var players []models.Player
	err := s.DB.
		Where("id <> ? AND online_status = ?", normID(excludeID), true).
		Where("latitude BETWEEN ? AND ?", lat-latDelta, lat+latDelta).
		Where("longitude BETWEEN ? AND ?", lng-lngDelta, lng+lngDelta).
		Find(&players).Error
	if err != nil {
		return nil, err
	}

	out := make([]PlayerSummary, 0, len(players))
	for i := range players {
		p := &players[i]
		if p.Latitude == nil || p.Longitude == nil {
			continue
		}
		d := haversineKm(lat, lng, *p.Latitude, *p.Longitude)
		if d > radiusKm {
			continue
		}
		sum := summarize(p)
		sum.DistanceKm = &d
		out = append(out, sum)
	}
	return out, nil
}

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// --- HTTP handlers ---

// GetCard handles GET /api/user/card/:id.
func (s *PlayerService) GetCard(c *fiber.Ctx) error {
	var p models.Player
	if err := s.DB.First(&p, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "player not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(summarize(&p))
}

// GetStatus handles GET /api/user/status/:id — the live presence flag.
func (s *PlayerService) GetStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	return c.JSON(fiber.Map{"userId": id, "online": s.Presence.IsOnline(id)})
}

// SearchPlayers handles GET /api/user/search?q=&limit=.
func (s *PlayerService) SearchPlayers(c *fiber.Ctx) error {
	query := c.Query("q", "")
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}

	db := s.DB.Model(&models.Player{}).Limit(limit)
	if query != "" {
		term := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
		db = db.Where("LOWER(nickname) LIKE ? OR LOWER(player_tag) LIKE ?", term, term)
	}

	var players []models.Player
	if err := db.Find(&players).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "search failed"})
	}

	out := make([]PlayerSummary, 0, len(players))
	for i := range players {
		out = append(out, summarize(&players[i]))
	}
	return c.JSON(out)
}

// GetNearby handles GET /api/user/nearby?lat=&lng=&radiusKm=.
func (s *PlayerService) GetNearby(c *fiber.Ctx) error {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "lat and lng are required"})
	}
	radius, _ := strconv.ParseFloat(c.Query("radiusKm", "5"), 64)

	players, err := s.NearbyPlayers(callerID(c), lat, lng, radius)
	if err != nil {
		log.Printf("nearby lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "nearby lookup failed"})
	}
	return c.JSON(players)
}

// UploadAvatar handles POST /api/user/avatar (multipart field "avatar").
func (s *PlayerService) UploadAvatar(c *fiber.Ctx) error {
	userID := callerID(c)
	file, err := c.FormFile("avatar")
	if err != nil || file.Size == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "avatar file is required"})
	}

	ext := filepath.Ext(file.Filename)
	if ext == "" {
		ext = ".jpg"
	}
	key := "avatars/" + uuid.NewString() + ext
	url, err := utils.UploadFileToR2(file, key)
	if err != nil {
		log.Printf("❌ avatar upload failed for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to upload avatar"})
	}

	if err := s.DB.Model(&models.Player{}).Where("id = ?", userID).
		Update("avatar", url).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save avatar"})
	}
	return c.JSON(fiber.Map{"avatar": url})
}
