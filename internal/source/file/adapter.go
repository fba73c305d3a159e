package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/timmy/emoreply/internal/domain"
	"github.com/timmy/emoreply/internal/source"
)

const (
	// FormatJSONL is one {"text": ..., "id"?: ..., "emotion"?: {...}} object per line.
	FormatJSONL = "jsonl"
	// FormatText is one feedback item per non-blank line.
	FormatText = "txt"
)

// ManifestItem represents a line of a .jsonl feedback file.
type ManifestItem struct {
	ID      string                `json:"id"`
	Text    string                `json:"text"`
	Emotion *domain.EmotionResult `json:"emotion,omitempty"`
}

// Adapter implements the Source interface for a local feedback file.
type Adapter struct {
	path     string
	sourceID string
	format   string
	items    []source.FeedbackItem
	loaded   bool
}

// NewAdapter creates a new file adapter. The format follows the file
// extension: .jsonl and .ndjson are JSON Lines, anything else is plain text.
func NewAdapter(path string) *Adapter {
	format := FormatText
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		format = FormatJSONL
	}

	return &Adapter{
		path:     path,
		sourceID: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		format:   format,
	}
}

// GetSourceID returns the unique identifier for this source.
func (a *Adapter) GetSourceID() string {
	return "file:" + a.sourceID
}

// GetDisplayName returns a human-readable name for this source.
func (a *Adapter) GetDisplayName() string {
	return fmt.Sprintf("File (%s)", filepath.Base(a.path))
}

// FetchBatch fetches a batch of feedback items. The cursor is the index of
// the next item.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.FeedbackItem, string, error) {
	// Load all items on first call
	if !a.loaded {
		if err := a.loadItems(); err != nil {
			return nil, "", fmt.Errorf("failed to load feedback file: %w", err)
		}
		a.loaded = true
	}

	startIndex := 0
	if cursor != "" {
		var err error
		startIndex, err = strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
	}

	if startIndex >= len(a.items) {
		return []source.FeedbackItem{}, "", nil
	}

	endIndex := startIndex + limit
	if endIndex > len(a.items) {
		endIndex = len(a.items)
	}

	nextCursor := ""
	if endIndex < len(a.items) {
		nextCursor = strconv.Itoa(endIndex)
	}

	return a.items[startIndex:endIndex], nextCursor, nil
}

// GetTotalCount returns the number of items in the file.
func (a *Adapter) GetTotalCount() (int, error) {
	if !a.loaded {
		if err := a.loadItems(); err != nil {
			return 0, err
		}
		a.loaded = true
	}
	return len(a.items), nil
}

func (a *Adapter) loadItems() error {
	file, err := os.Open(a.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", a.path, err)
	}
	defer file.Close()

	a.items = []source.FeedbackItem{}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		item := source.FeedbackItem{
			SourceID: fmt.Sprintf("%s_%d", a.sourceID, lineNo),
			Text:     line,
		}

		if a.format == FormatJSONL {
			var m ManifestItem
			if err := json.Unmarshal([]byte(line), &m); err != nil {
				// Skip malformed lines
				continue
			}
			item.Text = m.Text
			if m.ID != "" {
				item.SourceID = fmt.Sprintf("%s_%s", a.sourceID, m.ID)
			}
			if m.Emotion != nil {
				normalized := m.Emotion.Normalize()
				item.Emotion = &normalized
			}
		}

		a.items = append(a.items, item)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading %s: %w", a.path, err)
	}

	return nil
}

// ListFeedbackFiles lists the feedback files in dir, sorted by name.
func ListFeedbackFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jsonl", ".ndjson", ".txt":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	return files, nil
}
