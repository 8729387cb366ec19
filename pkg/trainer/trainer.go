// Package trainer runs the end-to-end training job: load the raw tables,
// prepare features, fit the pipeline, score the validation split and
// persist the bundle, the model card and the validation predictions.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/readmit/pkg/bundle"
	"github.com/mchmarny/readmit/pkg/features"
	"github.com/mchmarny/readmit/pkg/model"
	"github.com/mchmarny/readmit/pkg/registry"
	"github.com/mchmarny/readmit/pkg/table"
	"golang.org/x/sync/errgroup"
)

const (
	// PredictionsFileName holds the validation predictions.
	PredictionsFileName = "valid_predictions.parquet"

	claimsName   = "claims"
	patientsName = "patients"
)

// ErrInputMissing is returned when a claims or patients file is absent.
var ErrInputMissing = errors.New("input file missing")

// RunRecorder stores a summary of each successful run.
type RunRecorder interface {
	SaveTrainingRun(ctx context.Context, r *registry.TrainingRun) error
}

// Options configure a training run. Empty paths resolve inside DataDir.
type Options struct {
	DataDir      string
	ClaimsPath   string
	PatientsPath string
	ArtifactsDir string
	LabelCol     string
	Features     features.Options
	Booster      model.BoosterConfig
	Recorder     RunRecorder
	Now          func() time.Time
}

// DefaultOptions returns the standard data and artifacts layout.
func DefaultOptions() Options {
	return Options{
		DataDir:      "data",
		ArtifactsDir: "artifacts",
		Features:     features.DefaultOptions(),
		Booster:      model.DefaultBoosterConfig(),
	}
}

// Result points at the persisted artifacts.
type Result struct {
	Card            *bundle.ModelCard
	BundlePath      string
	CardPath        string
	PredictionsPath string
}

// Train runs the training job described by opts.
func Train(ctx context.Context, opts Options) (*Result, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ArtifactsDir == "" {
		opts.ArtifactsDir = "artifacts"
	}

	claimsPath, err := resolveInput(opts.ClaimsPath, opts.DataDir, claimsName)
	if err != nil {
		return nil, err
	}
	patientsPath, err := resolveInput(opts.PatientsPath, opts.DataDir, patientsName)
	if err != nil {
		return nil, err
	}

	claims, err := table.ReadFile(claimsPath)
	if err != nil {
		return nil, fmt.Errorf("read claims %s: %w", claimsPath, err)
	}
	patients, err := table.ReadFile(patientsPath)
	if err != nil {
		return nil, fmt.Errorf("read patients %s: %w", patientsPath, err)
	}
	slog.Debug("inputs loaded", "claims", claims.Len(), "patients", patients.Len())

	fo := opts.Features
	fo.LabelCol = opts.LabelCol
	prep, err := features.Prepare(claims, patients, fo)
	if err != nil {
		return nil, err
	}

	p := model.NewPipeline(opts.Booster)
	if err := p.Fit(ctx, prep.XTrain, prep.YTrain); err != nil {
		return nil, fmt.Errorf("fit pipeline: %w", err)
	}

	proba, err := p.PredictProba(prep.XValid)
	if err != nil {
		return nil, fmt.Errorf("score validation rows: %w", err)
	}
	pr, err := model.AveragePrecision(prep.YValid, proba)
	if err != nil {
		return nil, fmt.Errorf("validation pr auc: %w", err)
	}
	auc, err := model.ROCAUC(prep.YValid, proba)
	if err != nil {
		return nil, fmt.Errorf("validation roc auc: %w", err)
	}
	slog.Info("validation metrics", "valid_pr_auc", round3(pr), "valid_roc_auc", round3(auc))

	res := &Result{
		BundlePath:      filepath.Join(opts.ArtifactsDir, bundle.FileName),
		CardPath:        filepath.Join(opts.ArtifactsDir, bundle.CardFileName),
		PredictionsPath: filepath.Join(opts.ArtifactsDir, PredictionsFileName),
	}

	labelSetting := opts.LabelCol
	if labelSetting == "" {
		labelSetting = bundle.AutoDetected
	}
	res.Card = &bundle.ModelCard{
		RunID:            uuid.NewString(),
		Metrics:          bundle.Metrics{ValidPRAUC: pr, ValidROCAUC: auc},
		PrevalenceValid:  features.Prevalence(prep.YValid),
		NTrain:           len(prep.YTrain),
		NValid:           len(prep.YValid),
		NEligible:        prep.NEligible,
		NFeatures:        len(prep.FeatureNames),
		LabelCol:         labelSetting,
		DetectedLabelCol: prep.LabelCol,
		JoinKey:          prep.JoinKey,
		Split:            prep.Split,
		GeneratedAt:      bundle.Timestamp(opts.Now()),
		Version:          bundle.Version,
	}

	// the three artifacts share no state
	var g errgroup.Group
	g.Go(func() error {
		return bundle.Save(res.BundlePath, bundle.New(p, prep.FeatureNames))
	})
	g.Go(func() error {
		return bundle.SaveCard(res.CardPath, res.Card)
	})
	g.Go(func() error {
		return writePredictions(res.PredictionsPath, prep.GroupsValid, prep.YValid, proba)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slog.Info("saved model", "path", res.BundlePath, "run_id", res.Card.RunID)

	if opts.Recorder != nil {
		if err := opts.Recorder.SaveTrainingRun(ctx, trainingRun(res.Card, opts.ArtifactsDir)); err != nil {
			slog.Warn("failed to record training run", "run_id", res.Card.RunID, "error", err)
		}
	}

	return res, nil
}

// resolveInput returns path when set, otherwise <dir>/<name>.csv or
// <dir>/<name>.parquet, whichever exists first.
func resolveInput(path, dir, name string) (string, error) {
	candidates := []string{path}
	if path == "" {
		candidates = []string{
			filepath.Join(dir, name+".csv"),
			filepath.Join(dir, name+".parquet"),
		}
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s: %w", ErrInputMissing, c, err)
		}
	}
	return "", fmt.Errorf("%w: %s in %v: %w", ErrInputMissing, name, candidates, os.ErrNotExist)
}

func trainingRun(c *bundle.ModelCard, dir string) *registry.TrainingRun {
	created, err := time.Parse("2006-01-02T15:04:05.000000Z", c.GeneratedAt)
	if err != nil {
		created = time.Now().UTC()
	}
	return &registry.TrainingRun{
		RunID:            c.RunID,
		CreatedAt:        created,
		LabelCol:         c.LabelCol,
		DetectedLabelCol: c.DetectedLabelCol,
		JoinKey:          c.JoinKey,
		Split:            c.Split,
		NTrain:           c.NTrain,
		NValid:           c.NValid,
		NEligible:        c.NEligible,
		NFeatures:        c.NFeatures,
		ValidPRAUC:       c.Metrics.ValidPRAUC,
		ValidROCAUC:      c.Metrics.ValidROCAUC,
		ArtifactsDir:     dir,
		Version:          c.Version,
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
