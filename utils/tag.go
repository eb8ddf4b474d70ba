package utils

import (
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// PlayerTag derives a unique, URL-safe player tag from a nickname, e.g.
// "Kai Müller" -> "kai-muller-3f2a". The random suffix keeps tags unique
// across players sharing a nickname.
func PlayerTag(nickname string) string {
	base := slug.Make(nickname)
	if base == "" {
		base = "player"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return base + "-" + suffix
}
