package fragments

import (
	"strings"
	"testing"
)

func TestAttributesTierTransitions(t *testing.T) {
	attrs := NewAttributes()
	attrs.SetupData(map[string]any{"title": "Lord", "house": "Lannister"})

	if attrs.HasChanges() {
		t.Fatalf("expected canonical data to be clean")
	}
	if changed := attrs.Set("title", "Lord"); changed {
		t.Fatalf("expected equal write to be a no-op")
	}
	if !attrs.Set("title", "Hand") || !attrs.IsModified("title") {
		t.Fatalf("expected title to be modified")
	}

	attrs.WillCommit()
	if attrs.IsModified("title") || attrs.HasChanges() {
		t.Fatalf("expected modifications to move in flight")
	}
	if value, _ := attrs.Get("title"); value != "Hand" {
		t.Fatalf("expected in-flight value to be visible, got %v", value)
	}
	if original, _ := attrs.Original("title"); original != "Hand" {
		t.Fatalf("expected original to report in-flight value, got %v", original)
	}

	attrs.DidCommit(map[string]any{"house": "Stark"})
	if keys := attrs.ChangedKeys(); len(keys) != 0 {
		t.Fatalf("expected no changes after commit, got %v", keys)
	}
	if value, _ := attrs.Get("house"); value != "Stark" {
		t.Fatalf("expected committed payload, got %v", value)
	}
}

func TestAttributesSaveWasRejectedKeepsNewerEdits(t *testing.T) {
	attrs := NewAttributes()
	attrs.SetupData(map[string]any{"title": "Lord", "house": "Lannister"})
	attrs.Set("title", "Hand")
	attrs.Set("house", "Stark")
	attrs.WillCommit()
	attrs.Set("house", "Targaryen")

	attrs.SaveWasRejected()
	changed := attrs.Changed()
	if changed["title"].New != "Hand" || changed["title"].Old != "Lord" {
		t.Fatalf("unexpected title change %+v", changed["title"])
	}
	if changed["house"].New != "Targaryen" {
		t.Fatalf("expected newer edit to win, got %+v", changed["house"])
	}

	keys := attrs.Rollback()
	if strings.Join(keys, ",") != "house,title" {
		t.Fatalf("unexpected rollback keys %v", keys)
	}
	if value, _ := attrs.Get("house"); value != "Lannister" {
		t.Fatalf("expected canonical house, got %v", value)
	}
}

func TestAttributesSetupDataDropsMatchingEdits(t *testing.T) {
	attrs := NewAttributes()
	attrs.Set("title", "Lord")
	attrs.Set("house", "Stark")

	attrs.SetupData(map[string]any{"title": "Lord", "house": "Lannister"})
	if attrs.IsModified("title") {
		t.Fatalf("expected edit equal to canonical data to be dropped")
	}
	if !attrs.IsModified("house") {
		t.Fatalf("expected diverging edit to survive")
	}
	if attrs.Set("house", "Lannister") != true || attrs.IsModified("house") {
		t.Fatalf("expected write back to original to clear the modification")
	}
}

func TestAttributesCloneCanonicalPayload(t *testing.T) {
	payload := map[string]any{"tags": []any{"a"}}
	attrs := NewAttributes()
	attrs.SetupData(payload)
	payload["tags"].([]any)[0] = "b"

	value, _ := attrs.Get("tags")
	if value.([]any)[0] != "a" {
		t.Fatalf("expected canonical data to be copied, got %v", value)
	}

	attrs.Reset()
	if attrs.Has("tags") {
		t.Fatalf("expected reset to drop every tier")
	}
}
