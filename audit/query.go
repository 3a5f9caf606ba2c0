package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// QueryFilter is the parameter set of spec §4.6's query/export_*
// functions.
type QueryFilter struct {
	Destination    string    `json:"destination,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	EventType      EventType `json:"event_type,omitempty"`
	LastHour       bool      `json:"last_hour,omitempty"`
}

// Query reads the JSON-Lines destination (the trail's configured one if
// filter.Destination is empty) and returns every record matching the
// filter, in file order. If the destination is the sqlite index is
// configured it is queried instead of re-scanning the file.
func (t *Trail) Query(filter QueryFilter) ([]Record, error) {
	t.mu.RLock()
	index := t.Index
	dest := filter.Destination
	if dest == "" {
		dest = t.destination
	}
	t.mu.RUnlock()

	if index != nil {
		return index.Query(context.Background(), filter)
	}
	return queryFile(dest, filter)
}

func queryFile(destination string, filter QueryFilter) ([]Record, error) {
	if destination == "" || destination == "stdout" {
		return nil, fmt.Errorf("audit: query requires a file destination, got %q", destination)
	}
	f, err := os.Open(destination)
	if err != nil {
		return nil, fmt.Errorf("audit: open destination for query: %w", err)
	}
	defer f.Close()

	var out []Record
	cutoff := time.Now().Add(-time.Hour)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		if !matches(r, filter, cutoff) {
			continue
		}
		out = append(out, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan destination: %w", err)
	}
	return out, nil
}

func matches(r Record, filter QueryFilter, cutoff time.Time) bool {
	if filter.UserID != "" && r.UserID != filter.UserID {
		return false
	}
	if filter.ConversationID != "" && r.ConversationID != filter.ConversationID {
		return false
	}
	if filter.EventType != "" && r.EventType != filter.EventType {
		return false
	}
	if filter.LastHour && r.Timestamp.Before(cutoff) {
		return false
	}
	return true
}
