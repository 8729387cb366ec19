package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// CardFileName is the model card written next to the bundle.
	CardFileName = "model_card.json"

	// AutoDetected is recorded as the label setting when none was given.
	AutoDetected = "auto-detected"
)

// Metrics are the validation scores of a trained model.
type Metrics struct {
	ValidPRAUC  float64 `json:"valid_pr_auc" yaml:"valid_pr_auc"`
	ValidROCAUC float64 `json:"valid_roc_auc" yaml:"valid_roc_auc"`
}

// ModelCard describes a training run.
type ModelCard struct {
	RunID            string  `json:"run_id" yaml:"run_id"`
	Metrics          Metrics `json:"metrics" yaml:"metrics"`
	PrevalenceValid  float64 `json:"prevalence_valid" yaml:"prevalence_valid"`
	NTrain           int     `json:"n_train" yaml:"n_train"`
	NValid           int     `json:"n_valid" yaml:"n_valid"`
	NEligible        int     `json:"n_eligible" yaml:"n_eligible"`
	NFeatures        int     `json:"n_features" yaml:"n_features"`
	LabelCol         string  `json:"label_col" yaml:"label_col"`
	DetectedLabelCol string  `json:"detected_label_col" yaml:"detected_label_col"`
	JoinKey          string  `json:"join_key,omitempty" yaml:"join_key,omitempty"`
	Split            string  `json:"split" yaml:"split"`
	GeneratedAt      string  `json:"generated_at" yaml:"generated_at"`
	Version          string  `json:"version" yaml:"version"`
}

// Timestamp formats t as UTC RFC3339 with a trailing Z.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}

// SaveCard writes the card as indented JSON.
func SaveCard(path string, c *ModelCard) error {
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal card: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// LoadCard reads a card written by SaveCard.
func LoadCard(path string) (*ModelCard, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read card: %w", err)
	}
	var c ModelCard
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &c, nil
}
