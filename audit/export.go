package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// exportEnvelope wraps the matched records with the export timestamp and
// filter used to produce them (spec §4.6).
type exportEnvelope struct {
	ExportedAt time.Time   `json:"exported_at"`
	Filter     QueryFilter `json:"filter"`
	Records    []Record    `json:"records"`
}

// ExportJSON writes Query(filter)'s results plus an envelope to
// outputFile (auto-named if empty) and returns the path written.
func (t *Trail) ExportJSON(filter QueryFilter, outputFile string) (string, error) {
	records, err := t.Query(filter)
	if err != nil {
		return "", err
	}
	envelope := exportEnvelope{ExportedAt: time.Now(), Filter: filter, Records: records}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return "", fmt.Errorf("audit: encode json export: %w", err)
	}
	if outputFile == "" {
		outputFile = fmt.Sprintf("audit_export_%d.json", time.Now().Unix())
	}
	if err := os.WriteFile(outputFile, data, 0o644); err != nil {
		return "", fmt.Errorf("audit: write json export: %w", err)
	}
	return outputFile, nil
}

// ExportCSV writes Query(filter)'s results as a flat CSV file, with the
// export envelope (timestamp + filter parameters) as a leading comment
// line, and returns the path written.
func (t *Trail) ExportCSV(filter QueryFilter, outputFile string) (string, error) {
	records, err := t.Query(filter)
	if err != nil {
		return "", err
	}
	if outputFile == "" {
		outputFile = fmt.Sprintf("audit_export_%d.csv", time.Now().Unix())
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return "", fmt.Errorf("audit: create csv export: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "# exported_at=%s user_id=%q conversation_id=%q event_type=%q last_hour=%t\n",
		time.Now().Format(time.RFC3339), filter.UserID, filter.ConversationID, string(filter.EventType), filter.LastHour); err != nil {
		return "", fmt.Errorf("audit: write csv envelope: %w", err)
	}

	w := csv.NewWriter(f)
	header := []string{
		"timestamp", "event_type", "user_id", "conversation_id", "request_id",
		"guardrail_name", "decision", "reason", "confidence", "prompt", "response", "message",
	}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Timestamp.Format(time.RFC3339Nano),
			string(r.EventType),
			r.UserID,
			r.ConversationID,
			r.RequestID,
			r.GuardrailName,
			string(r.Decision),
			r.Reason,
			strconv.FormatFloat(r.Confidence, 'f', -1, 64),
			r.Prompt,
			r.Response,
			r.Message,
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("audit: flush csv export: %w", err)
	}
	return outputFile, nil
}
