// Package registry records training and scoring runs in sqlite or postgres.
package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	// DefaultListLimit is used when a non-positive limit is requested.
	DefaultListLimit = 20

	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

var (
	//go:embed migrations/*.sql
	migrationsFS embed.FS

	// ErrDSNRequired is returned by Open for an empty DSN.
	ErrDSNRequired = errors.New("registry DSN required")
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// TrainingRun is one successful training invocation.
type TrainingRun struct {
	RunID            string    `json:"run_id" yaml:"run_id"`
	CreatedAt        time.Time `json:"created_at" yaml:"created_at"`
	LabelCol         string    `json:"label_col" yaml:"label_col"`
	DetectedLabelCol string    `json:"detected_label_col" yaml:"detected_label_col"`
	JoinKey          string    `json:"join_key,omitempty" yaml:"join_key,omitempty"`
	Split            string    `json:"split" yaml:"split"`
	NTrain           int       `json:"n_train" yaml:"n_train"`
	NValid           int       `json:"n_valid" yaml:"n_valid"`
	NEligible        int       `json:"n_eligible" yaml:"n_eligible"`
	NFeatures        int       `json:"n_features" yaml:"n_features"`
	ValidPRAUC       float64   `json:"valid_pr_auc" yaml:"valid_pr_auc"`
	ValidROCAUC      float64   `json:"valid_roc_auc" yaml:"valid_roc_auc"`
	ArtifactsDir     string    `json:"artifacts_dir" yaml:"artifacts_dir"`
	Version          string    `json:"version" yaml:"version"`
}

// ScoringRun is one batch scoring invocation.
type ScoringRun struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	ModelPath string    `json:"model_path" yaml:"model_path"`
	Input     string    `json:"input" yaml:"input"`
	Output    string    `json:"output" yaml:"output"`
	Rows      int       `json:"n_rows" yaml:"n_rows"`
	MeanProba float64   `json:"mean_proba" yaml:"mean_proba"`
}

// Store is a migrated registry database.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the registry and applies pending migrations. DSNs with a
// postgres:// or postgresql:// scheme use postgres; anything else is a
// sqlite file path, optionally prefixed with sqlite://.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrDSNRequired
	}

	d, driver, conn, migrateURL := parseDSN(dsn)

	db, err := sql.Open(driver, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	if d == dialectSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to registry: %w", err)
	}

	if err := runMigrations(migrateURL); err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("registry ready", "driver", driver)

	return &Store{db: db, dialect: d}, nil
}

func parseDSN(dsn string) (d dialect, driver, conn, migrateURL string) {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return dialectPostgres, "postgres", dsn, dsn
	}
	path := strings.TrimPrefix(dsn, "sqlite://")
	normalized := filepath.ToSlash(path)
	if filepath.IsAbs(path) && !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	return dialectSQLite, "sqlite", path, "sqlite://" + normalized
}

func runMigrations(url string) error {
	dir, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to access migrations directory: %w", err)
	}
	src, err := iofs.New(dir, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(q string) string {
	if s.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveTrainingRun inserts r, stamping CreatedAt when it is zero.
func (s *Store) SaveTrainingRun(ctx context.Context, r *TrainingRun) error {
	if r == nil || r.RunID == "" {
		return errors.New("training run with id required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	q := s.rebind(`INSERT INTO training_run (
		run_id, created_at, label_col, detected_label_col, join_key, split,
		n_train, n_valid, n_eligible, n_features, valid_pr_auc, valid_roc_auc,
		artifacts_dir, version
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q,
		r.RunID, r.CreatedAt.UTC().Format(timeLayout), r.LabelCol, r.DetectedLabelCol, r.JoinKey, r.Split,
		r.NTrain, r.NValid, r.NEligible, r.NFeatures, r.ValidPRAUC, r.ValidROCAUC,
		r.ArtifactsDir, r.Version); err != nil {
		return fmt.Errorf("failed to insert training run %s: %w", r.RunID, err)
	}
	return nil
}

// ListTrainingRuns returns up to limit runs, newest first.
func (s *Store) ListTrainingRuns(ctx context.Context, limit int) (list []*TrainingRun, retErr error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := s.rebind(`SELECT run_id, created_at, label_col, detected_label_col, join_key, split,
		n_train, n_valid, n_eligible, n_features, valid_pr_auc, valid_roc_auc,
		artifacts_dir, version
	FROM training_run ORDER BY created_at DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query training runs: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()

	list = make([]*TrainingRun, 0)
	for rows.Next() {
		r := &TrainingRun{}
		var created string
		if err := rows.Scan(&r.RunID, &created, &r.LabelCol, &r.DetectedLabelCol, &r.JoinKey, &r.Split,
			&r.NTrain, &r.NValid, &r.NEligible, &r.NFeatures, &r.ValidPRAUC, &r.ValidROCAUC,
			&r.ArtifactsDir, &r.Version); err != nil {
			return nil, fmt.Errorf("failed to scan training run: %w", err)
		}
		if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", created, err)
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// SaveScoringRun inserts r, stamping CreatedAt when it is zero.
func (s *Store) SaveScoringRun(ctx context.Context, r *ScoringRun) error {
	if r == nil || r.RunID == "" {
		return errors.New("scoring run with id required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	q := s.rebind(`INSERT INTO scoring_run (
		run_id, created_at, model_path, input_path, output_path, n_rows, mean_proba
	) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q,
		r.RunID, r.CreatedAt.UTC().Format(timeLayout), r.ModelPath, r.Input, r.Output,
		r.Rows, r.MeanProba); err != nil {
		return fmt.Errorf("failed to insert scoring run %s: %w", r.RunID, err)
	}
	return nil
}

// ListScoringRuns returns up to limit runs, newest first.
func (s *Store) ListScoringRuns(ctx context.Context, limit int) (list []*ScoringRun, retErr error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := s.rebind(`SELECT run_id, created_at, model_path, input_path, output_path, n_rows, mean_proba
	FROM scoring_run ORDER BY created_at DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scoring runs: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()

	list = make([]*ScoringRun, 0)
	for rows.Next() {
		r := &ScoringRun{}
		var created string
		if err := rows.Scan(&r.RunID, &created, &r.ModelPath, &r.Input, &r.Output,
			&r.Rows, &r.MeanProba); err != nil {
			return nil, fmt.Errorf("failed to scan scoring run: %w", err)
		}
		if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", created, err)
		}
		list = append(list, r)
	}
	return list, rows.Err()
}
