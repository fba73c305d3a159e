package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/timmy/emoreply/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestAdapter_JSONL(t *testing.T) {
	path := writeFile(t, t.TempDir(), "support.jsonl", `{"id":"a1","text":"Love the new dashboard"}
not json

{"text":"Refund is taking forever","emotion":{"anger":0.7,"sadness":0.2,"dominant_emotion":"joy"}}
{"id":"a3","text":""}
`)

	a := NewAdapter(path)
	if a.GetSourceID() != "file:support" {
		t.Errorf("unexpected source id %q", a.GetSourceID())
	}

	items, next, err := a.FetchBatch(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if next != "" {
		t.Errorf("expected no next cursor, got %q", next)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}

	if items[0].SourceID != "support_a1" || items[0].Emotion != nil {
		t.Errorf("unexpected first item %+v", items[0])
	}
	if items[1].SourceID != "support_4" {
		t.Errorf("expected line-number id, got %q", items[1].SourceID)
	}
	if items[1].Emotion == nil || items[1].Emotion.DominantEmotion != domain.EmotionAnger {
		t.Errorf("expected pre-labeled anger with recomputed dominant, got %+v", items[1].Emotion)
	}
	if items[2].Text != "" {
		t.Errorf("expected empty text item to be kept for the seeder, got %q", items[2].Text)
	}
}

func TestAdapter_TextPagination(t *testing.T) {
	path := writeFile(t, t.TempDir(), "lines.txt", "one\n\ntwo\nthree\n  \nfour\nfive\n")
	a := NewAdapter(path)

	var texts []string
	cursor := ""
	batches := 0
	for {
		items, next, err := a.FetchBatch(context.Background(), cursor, 2)
		if err != nil {
			t.Fatalf("FetchBatch: %v", err)
		}
		batches++
		for _, item := range items {
			texts = append(texts, item.Text)
		}
		if next == "" {
			break
		}
		cursor = next
	}

	if batches != 3 {
		t.Errorf("expected 3 batches, got %d", batches)
	}
	want := []string{"one", "two", "three", "four", "five"}
	if len(texts) != len(want) {
		t.Fatalf("expected %v, got %v", want, texts)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("item %d: expected %q, got %q", i, want[i], texts[i])
		}
	}

	if n, _ := a.GetTotalCount(); n != 5 {
		t.Errorf("expected 5 items, got %d", n)
	}
}

func TestAdapter_Errors(t *testing.T) {
	if _, _, err := NewAdapter(filepath.Join(t.TempDir(), "missing.txt")).FetchBatch(context.Background(), "", 5); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeFile(t, t.TempDir(), "x.txt", "a\n")
	if _, _, err := NewAdapter(path).FetchBatch(context.Background(), "abc", 5); err == nil {
		t.Error("expected error for invalid cursor")
	}
}

func TestListFeedbackFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "x")
	writeFile(t, dir, "a.jsonl", "{}")
	writeFile(t, dir, "notes.md", "x")

	files, err := ListFeedbackFiles(dir)
	if err != nil {
		t.Fatalf("ListFeedbackFiles: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.jsonl" || filepath.Base(files[1]) != "b.txt" {
		t.Errorf("unexpected files %v", files)
	}

	files, err = ListFeedbackFiles(filepath.Join(dir, "missing"))
	if err != nil || len(files) != 0 {
		t.Errorf("expected empty list for missing dir, got %v, %v", files, err)
	}
}
