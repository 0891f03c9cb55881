package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Export is the on-disk form of a finished recording.
type Export struct {
	RunID     string    `json:"runId"`
	Language  string    `json:"language,omitempty"`
	Snippet   string    `json:"snippet"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Steps     []Step    `json:"steps"`
}

func SaveToFile(path string, tr Export) error {
	b, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return fmt.Errorf("trace: marshal: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("trace: write %q: %w", path, err)
	}
	return nil
}

func LoadFromFile(path string) (Export, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Export{}, fmt.Errorf("trace: read %q: %w", path, err)
	}
	var tr Export
	if err := json.Unmarshal(b, &tr); err != nil {
		return Export{}, fmt.Errorf("trace: unmarshal %q: %w", path, err)
	}
	return tr, nil
}
