// Package features turns raw claims and patient tables into labeled,
// split feature tables ready for training.
package features

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/mchmarny/readmit/pkg/schema"
	"github.com/mchmarny/readmit/pkg/table"
)

const (
	// EligibleColumn marks claims whose follow-up window is fully observed.
	EligibleColumn = "label_eligible"
	// MissingLabelColumn marks claims without a usable label.
	MissingLabelColumn = "readmitted_missing"
	// MissingSuffix names the indicator column added per patient attribute.
	MissingSuffix = "_was_missing"
	// UnknownCategory fills missing categorical patient values.
	UnknownCategory = "Unknown"
	// PatientSuffix is appended to patient columns that clash with claims.
	PatientSuffix = "_pt"

	// SplitGroup and SplitStratified name the holdout strategy used.
	SplitGroup      = "group"
	SplitStratified = "stratified"
)

var (
	// DateCandidates are the discharge date columns, in priority order.
	DateCandidates = []string{"discharge_date", "index_discharge_date", "encounter_end", "claim_end_date", "service_to"}

	// KeyCandidates are the patient join keys, in priority order.
	KeyCandidates = []string{"patient_id", "member_id", "person_id"}

	// ErrNoTrainingRows is returned when no claim is both eligible and labeled.
	ErrNoTrainingRows = errors.New("no eligible labeled rows")

	// ErrSingleClass is returned when the label has fewer than two classes.
	ErrSingleClass = errors.New("label has a single class")

	// ErrNonBinaryLabel is returned when label values fall outside {0, 1}.
	ErrNonBinaryLabel = errors.New("label is not binary")
)

// Options control feature preparation.
type Options struct {
	LabelCol      string
	FollowupDays  int
	MaxMissingPct float64
	TestSize      float64
	Seed          uint64
}

// DefaultOptions returns the standard preparation settings.
func DefaultOptions() Options {
	return Options{
		FollowupDays:  30,
		MaxMissingPct: 60,
		TestSize:      0.25,
		Seed:          42,
	}
}

// Result is the output of Prepare.
type Result struct {
	XTrain *table.Table
	XValid *table.Table
	YTrain []float64
	YValid []float64

	GroupsTrain []string
	GroupsValid []string

	FeatureNames       []string
	LabelCol           string
	DateCol            string
	JoinKey            string
	Split              string
	NEligible          int
	DroppedPatientCols []string
}

// Prepare detects the label, applies the follow-up eligibility window,
// cleans and joins patient attributes, drops identifier and date columns
// and splits the rows into training and validation sets.
func Prepare(claims, patients *table.Table, opts Options) (*Result, error) {
	label, err := schema.DetectLabel(claims, opts.LabelCol)
	if err != nil {
		return nil, err
	}
	res := &Result{LabelCol: label}

	lc, _ := claims.Column(label)
	lc = schema.EncodeLabel(lc)
	claims = claims.Drop()
	if err := claims.Set(lc); err != nil {
		return nil, err
	}

	eligible, dateCol := eligibility(claims, opts.FollowupDays)
	res.DateCol = dateCol

	missing := make([]float64, claims.Len())
	keep := make([]bool, claims.Len())
	for i := range missing {
		if lc.IsNull(i) {
			missing[i] = 1
		}
		keep[i] = eligible[i] == 1 && missing[i] == 0
	}
	if err := claims.Set(table.NewNumeric(EligibleColumn, eligible)); err != nil {
		return nil, err
	}
	if err := claims.Set(table.NewNumeric(MissingLabelColumn, missing)); err != nil {
		return nil, err
	}

	labeled, err := claims.Filter(keep)
	if err != nil {
		return nil, err
	}
	res.NEligible = labeled.Len()
	if labeled.Len() == 0 {
		return nil, ErrNoTrainingRows
	}

	cleaned, dropped, err := CleanPatients(patients, opts.MaxMissingPct)
	if err != nil {
		return nil, fmt.Errorf("clean patients: %w", err)
	}
	res.DroppedPatientCols = dropped
	if len(dropped) > 0 {
		slog.Debug("dropped sparse patient columns", "columns", dropped)
	}

	data := labeled
	var groups []string
	for _, k := range KeyCandidates {
		if labeled.Has(k) && cleaned.Has(k) {
			res.JoinKey = k
			break
		}
	}
	if res.JoinKey != "" {
		data, err = table.LeftJoin(labeled, cleaned, res.JoinKey, PatientSuffix)
		if err != nil {
			return nil, fmt.Errorf("join patients: %w", err)
		}
		kc, _ := data.Column(res.JoinKey)
		groups = make([]string, data.Len())
		for i := range groups {
			groups[i] = kc.Key(i)
		}
	}

	for _, name := range data.Names() {
		if !Excluded(name, label) {
			res.FeatureNames = append(res.FeatureNames, name)
		}
	}
	X, err := data.Select(res.FeatureNames)
	if err != nil {
		return nil, err
	}

	yc, _ := data.Column(label)
	y := yc.Floats()
	classes := map[float64]bool{}
	for _, v := range y {
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("%w: value %v in %s", ErrNonBinaryLabel, v, label)
		}
		classes[v] = true
	}
	if len(classes) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrSingleClass, label)
	}

	var split Split
	if groups != nil && len(uniqueSorted(groups)) > 1 {
		res.Split = SplitGroup
		split = GroupSplit(groups, opts.TestSize, opts.Seed)
	} else {
		res.Split = SplitStratified
		split = StratifiedSplit(y, opts.TestSize, opts.Seed)
	}

	res.XTrain = X.Take(split.Train)
	res.XValid = X.Take(split.Valid)
	res.YTrain = pick(y, split.Train)
	res.YValid = pick(y, split.Valid)
	if groups != nil {
		res.GroupsTrain = pick(groups, split.Train)
		res.GroupsValid = pick(groups, split.Valid)
	}

	slog.Debug("features prepared",
		"label", label,
		"date_col", dateCol,
		"join_key", res.JoinKey,
		"split", res.Split,
		"eligible", res.NEligible,
		"features", len(res.FeatureNames),
		"train", len(res.YTrain),
		"valid", len(res.YValid))

	return res, nil
}

// Excluded reports whether a column is kept out of the feature set: the
// label itself and anything that looks like an identifier or a date.
func Excluded(name, label string) bool {
	if name == label {
		return true
	}
	l := strings.ToLower(name)
	return strings.Contains(l, "id") || strings.Contains(l, "date")
}

// eligibility returns 1 for claims discharged at least followupDays before
// the latest discharge, 0 otherwise. Without a date column every claim is
// eligible.
func eligibility(claims *table.Table, followupDays int) ([]float64, string) {
	out := make([]float64, claims.Len())
	var dc *table.Column
	for _, name := range DateCandidates {
		if c, ok := claims.Column(name); ok {
			dc = c
			break
		}
	}
	if dc == nil {
		for i := range out {
			out[i] = 1
		}
		return out, ""
	}

	dates, ok := parseDates(dc)
	var latest time.Time
	found := false
	for i, d := range dates {
		if ok[i] && (!found || d.After(latest)) {
			latest, found = d, true
		}
	}
	if !found {
		return out, dc.Name
	}
	cutoff := latest.Add(-time.Duration(followupDays) * 24 * time.Hour)
	for i, d := range dates {
		if ok[i] && !d.After(cutoff) {
			out[i] = 1
		}
	}
	return out, dc.Name
}

func pick[T any](vals []T, idx []int) []T {
	out := make([]T, len(idx))
	for j, i := range idx {
		out[j] = vals[i]
	}
	return out
}

// Prevalence is the share of positive labels, NaN for an empty slice.
func Prevalence(y []float64) float64 {
	if len(y) == 0 {
		return math.NaN()
	}
	var s float64
	for _, v := range y {
		s += v
	}
	return s / float64(len(y))
}
