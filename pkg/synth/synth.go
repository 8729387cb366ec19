// Package synth generates small claims and patients datasets with a known
// share of eligible, labeled encounters.
package synth

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/mchmarny/readmit/pkg/table"
)

const (
	// ClaimsFile and PatientsFile are the names the trainer reads.
	ClaimsFile   = "claims.csv"
	PatientsFile = "patients.csv"

	dateLayout = "2006-01-02"
	// rows cycle through ten slots; the last three are not trainable
	cycle         = 10
	slotRecent    = 7
	slotUnlabeled = 8
	slotNoDate    = 9
	windowDays    = 365
	followupDays  = 30
)

var (
	genders    = []string{"F", "M"}
	smokers    = []string{"never", "former", "current"}
	insurance  = []string{"medicare", "medicaid", "commercial", "self_pay"}
	ethnicity  = []string{"hispanic", "non_hispanic"}
	icdCodes   = []string{"I50", "J44", "N18", "E11", "I21", "A41", "K70"}
	icdEffects = map[string]float64{"I50": 0.8, "J44": 0.5, "N18": 0.6, "E11": 0.1, "I21": 0.4, "A41": 0.7, "K70": 0.3}

	// ErrTooFewRows is returned when Rows cannot produce both classes.
	ErrTooFewRows = errors.New("at least 20 rows required")
)

// Options controls the generated dataset.
type Options struct {
	Rows     int
	Patients int
	Seed     uint64
	Start    time.Time
}

// DefaultOptions returns 1000 claims over 250 patients.
func DefaultOptions() Options {
	return Options{
		Rows:     1000,
		Patients: 250,
		Seed:     42,
		Start:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Dataset is a generated claims and patients pair.
type Dataset struct {
	Claims   *table.Table
	Patients *table.Table
	// Trainable is the number of claims that are both labeled and
	// outside the follow-up window.
	Trainable int
}

type patient struct {
	id     string
	gender string
	age    float64
	smoker string
}

// Generate builds a dataset. Seven in ten claims are labeled with a
// discharge date at least 30 days before the last one; the rest are
// recent, unlabeled or undated.
func Generate(opts Options) (*Dataset, error) {
	if opts.Rows < 20 {
		return nil, ErrTooFewRows
	}
	if opts.Patients < 2 {
		opts.Patients = 2
	}
	if opts.Start.IsZero() {
		opts.Start = DefaultOptions().Start
	}
	r := rand.New(rand.NewPCG(opts.Seed, opts.Seed))

	pts := make([]patient, opts.Patients)
	pcols := newColumns("patient_id", "gender", "age", "bmi", "smoker", "insurance_type", "ethnicity")
	for i := range pts {
		p := patient{
			id:     fmt.Sprintf("P%05d", i+1),
			gender: genders[r.IntN(len(genders))],
			age:    float64(18 + r.IntN(75)),
			smoker: smokers[r.IntN(len(smokers))],
		}
		pts[i] = p

		gender := p.gender
		if r.Float64() < 0.1 {
			gender = ""
		}
		bmi := ""
		if r.Float64() >= 0.2 {
			bmi = fmt.Sprintf("%.1f", 18+r.Float64()*20)
		}
		eth := ""
		if r.Float64() < 0.3 {
			eth = ethnicity[r.IntN(len(ethnicity))]
		}
		pcols.add(p.id, gender, fmt.Sprintf("%.0f", p.age), bmi, p.smoker, insurance[r.IntN(len(insurance))], eth)
	}

	last := opts.Start.AddDate(0, 0, windowDays)
	cutoff := windowDays - followupDays

	ccols := newColumns("claim_id", "patient_id", "discharge_date", "icd_code", "length_of_stay", "cost", "readmitted")
	trainable := 0
	for i := 0; i < opts.Rows; i++ {
		p := pts[r.IntN(len(pts))]
		icd := icdCodes[r.IntN(len(icdCodes))]
		los := 1 + r.IntN(14)
		cost := 2000 + float64(los)*850 + r.Float64()*3000

		logit := -1.6 + 0.035*(p.age-55) + 0.12*float64(los-5) + icdEffects[icd]
		if p.smoker == "current" {
			logit += 0.4
		}
		label := "No"
		if r.Float64() < 1/(1+math.Exp(-logit)) {
			label = "Yes"
		}

		var date string
		switch i % cycle {
		case slotRecent:
			// the first recent row pins the max date
			days := windowDays - (i/cycle)%(followupDays-5)
			date = opts.Start.AddDate(0, 0, days).Format(dateLayout)
		case slotNoDate:
			date = ""
		default:
			date = opts.Start.AddDate(0, 0, r.IntN(cutoff+1)).Format(dateLayout)
		}
		if i%cycle == slotUnlabeled {
			label = ""
		}
		if i%cycle < slotRecent {
			trainable++
		}

		ccols.add(fmt.Sprintf("C%06d", i+1), p.id, date, icd, fmt.Sprint(los), fmt.Sprintf("%.2f", cost), label)
	}

	claims, err := ccols.table()
	if err != nil {
		return nil, err
	}
	patients, err := pcols.table()
	if err != nil {
		return nil, err
	}
	slog.Debug("synthetic dataset generated",
		"claims", claims.Len(),
		"patients", patients.Len(),
		"trainable", trainable,
		"last_discharge", last.Format(dateLayout))

	return &Dataset{Claims: claims, Patients: patients, Trainable: trainable}, nil
}

// Write saves the dataset as ClaimsFile and PatientsFile under dir.
func Write(dir string, ds *Dataset) error {
	if err := table.WriteCSVFile(filepath.Join(dir, ClaimsFile), ds.Claims); err != nil {
		return fmt.Errorf("write claims: %w", err)
	}
	if err := table.WriteCSVFile(filepath.Join(dir, PatientsFile), ds.Patients); err != nil {
		return fmt.Errorf("write patients: %w", err)
	}
	return nil
}

type columns struct {
	names []string
	vals  [][]string
}

func newColumns(names ...string) *columns {
	return &columns{names: names, vals: make([][]string, len(names))}
}

func (c *columns) add(row ...string) {
	for i, v := range row {
		c.vals[i] = append(c.vals[i], v)
	}
}

func (c *columns) table() (*table.Table, error) {
	cols := make([]*table.Column, len(c.names))
	for i, n := range c.names {
		cols[i] = table.FromStrings(n, c.vals[i])
	}
	return table.New(cols...)
}
