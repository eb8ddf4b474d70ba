package services

import (
	"math"
	"strings"
)

const maxScore = 999

// RawScore tolerates the score shapes mobile clients actually send:
// user/userId/_id/id for the player and score/points/value for the count.
type RawScore struct {
	User    string `json:"user"`
	UserID  string `json:"userId"`
	MongoID string `json:"_id"`
	ID      string `json:"id"`

	Score  *float64 `json:"score"`
	Points *float64 `json:"points"`
	Value  *float64 `json:"value"`
}

// ScoreEntry is the canonical score row used everywhere past the transport
// boundary.
type ScoreEntry struct {
	UserID string `json:"userId"`
	Score  int    `json:"score"`
}

func normID(v string) string {
	return strings.TrimSpace(v)
}

func (r RawScore) userID() string {
	for _, v := range []string{r.User, r.UserID, r.MongoID, r.ID} {
		if id := normID(v); id != "" {
			return id
		}
	}
	return ""
}

func (r RawScore) points() float64 {
	for _, v := range []*float64{r.Score, r.Points, r.Value} {
		if v != nil {
			return *v
		}
	}
	return 0
}

// ClampScore rounds and clamps a point count into [0, 999].
func ClampScore(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	n := int(math.Round(v))
	if n < 0 {
		return 0
	}
	if n > maxScore {
		return maxScore
	}
	return n
}

// NormalizeScores maps tolerated input shapes to canonical entries: key
// variants resolved, counts clamped, duplicates de-duped by user with the
// last write winning. Output order follows first appearance of each user.
func NormalizeScores(raw []RawScore) []ScoreEntry {
	out := make([]ScoreEntry, 0, len(raw))
	index := make(map[string]int, len(raw))

	for _, item := range raw {
		uid := item.userID()
		if uid == "" {
			continue
		}
		sc := ClampScore(item.points())
		if i, ok := index[uid]; ok {
			out[i].Score = sc
			continue
		}
		index[uid] = len(out)
		out = append(out, ScoreEntry{UserID: uid, Score: sc})
	}

	return out
}

// topScorer returns the leader and whether their score is strictly highest.
func topScorer(scores []ScoreEntry) (ScoreEntry, bool) {
	var top ScoreEntry
	strict := false
	for i, s := range scores {
		if i == 0 || s.Score > top.Score {
			top = s
			strict = true
		} else if s.Score == top.Score {
			strict = false
		}
	}
	return top, strict
}
