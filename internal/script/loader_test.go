package script

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
id: greetings-1
unit: unit-1
topic: topic-greetings
title: Greetings
steps:
  - id: intro
    kind: narration
    prompt: Welcome to the lesson.
  - id: q1
    kind: interactive
    prompt: How do you greet someone?
    expected: Hello, nice to meet you.
    max_replays: 2
  - id: q2
    kind: interactive
    prompt: Pick the polite reply.
    choices:
      - text: Thanks, you too!
        correct: true
      - text: Whatever.
`

func TestLoadFromReader(t *testing.T) {
	sc, err := LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader returned error: %v", err)
	}

	if sc.ID != "greetings-1" || sc.UnitID != "unit-1" || sc.TopicID != "topic-greetings" {
		t.Errorf("metadata = %q/%q/%q, want greetings-1/unit-1/topic-greetings", sc.ID, sc.UnitID, sc.TopicID)
	}
	if sc.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", sc.Len())
	}
	if got := sc.At(1).MaxReplays; got != 2 {
		t.Errorf("step q1 MaxReplays = %d, want 2", got)
	}
	if !sc.At(2).MultipleChoice() {
		t.Error("step q2 should be multiple choice")
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	yaml := strings.Replace(sampleYAML, "title:", "titel:", 1)
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Error("unknown field accepted, want decode error")
	}
}

func TestLoadFromReaderRejectsInvalidScript(t *testing.T) {
	yaml := strings.Replace(sampleYAML, "expected: Hello, nice to meet you.", "", 1)
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Error("invalid script accepted, want validation error")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "greetings.yaml"), []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	second := strings.NewReplacer(
		"greetings-1", "greetings-2",
		"unit-1", "unit-2",
	).Replace(sampleYAML)
	if err := os.WriteFile(filepath.Join(dir, "more.yml"), []byte(second), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	cat, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir returned error: %v", err)
	}
	if got := len(cat.List()); got != 2 {
		t.Fatalf("loaded %d scripts, want 2", got)
	}

	if _, ok := cat.Get("greetings-2"); !ok {
		t.Error("script greetings-2 not found in catalog")
	}

	units := cat.UnitsForTopic("topic-greetings")
	if len(units) != 2 {
		t.Errorf("UnitsForTopic = %v, want 2 units", units)
	}
}

func TestLoadDirFailsOnBrokenScript(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("id: x\nsteps: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDir(dir); err == nil {
		t.Error("LoadDir accepted a broken script, want error")
	}
}
