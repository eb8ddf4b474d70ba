package models

import "testing"

func TestDefaultAvatar(t *testing.T) {
	cases := []struct {
		nickname string
		want     string
	}{
		{"alice", "A"},
		{"Bob", "B"},
		{"ülkü", "Ü"},
		{"", "?"},
	}
	for _, tc := range cases {
		if got := DefaultAvatar(tc.nickname); got != tc.want {
			t.Errorf("DefaultAvatar(%q) = %q, want %q", tc.nickname, got, tc.want)
		}
	}
}

func TestNewPlayerAvatarFallback(t *testing.T) {
	p := NewPlayer("u1", "alice", "")
	if p.Avatar != "A" {
		t.Fatalf("avatar = %q, want fallback A", p.Avatar)
	}
	p = NewPlayer("u2", "alice", "https://cdn/x.png")
	if p.Avatar != "https://cdn/x.png" {
		t.Fatalf("explicit avatar overwritten: %q", p.Avatar)
	}
	if p.Rank != "Beginner" {
		t.Fatalf("rank = %q, want Beginner", p.Rank)
	}
}

func TestMatchHelpers(t *testing.T) {
	m := &Match{ChallengerID: "a", OpponentID: "b", Status: MatchStatusOngoing}

	if !m.HasPlayer("a") || !m.HasPlayer("b") || m.HasPlayer("c") || m.HasPlayer("") {
		t.Fatal("HasPlayer membership wrong")
	}
	if m.OtherPlayer("a") != "b" || m.OtherPlayer("b") != "a" || m.OtherPlayer("c") != "" {
		t.Fatal("OtherPlayer wrong")
	}
	if m.Terminal() {
		t.Fatal("ongoing match reported terminal")
	}
	m.Status = MatchStatusFinished
	if !m.Terminal() {
		t.Fatal("finished match not terminal")
	}
	m.Status = MatchStatusCancelled
	if !m.Terminal() {
		t.Fatal("cancelled match not terminal")
	}
}
