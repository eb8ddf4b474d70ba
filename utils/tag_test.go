package utils

import (
	"strings"
	"testing"
)

func TestPlayerTag(t *testing.T) {
	tag := PlayerTag("Kai Müller")
	if !strings.HasPrefix(tag, "kai-muller-") {
		t.Fatalf("tag = %q, want kai-muller- prefix", tag)
	}
	suffix := strings.TrimPrefix(tag, "kai-muller-")
	if len(suffix) != 4 {
		t.Fatalf("suffix %q, want 4 chars", suffix)
	}

	if !strings.HasPrefix(PlayerTag(""), "player-") {
		t.Fatal("empty nickname did not fall back to player-")
	}

	// Two players with the same nickname get distinct tags.
	if PlayerTag("alice") == PlayerTag("alice") {
		t.Fatal("tags collided for identical nicknames")
	}
}
