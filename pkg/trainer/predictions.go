package trainer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// Prediction is one row of the validation predictions file.
type Prediction struct {
	Row   int64   `parquet:"row"`
	Group string  `parquet:"group"`
	Label int32   `parquet:"label"`
	Proba float64 `parquet:"proba"`
}

func writePredictions(path string, groups []string, y, proba []float64) (retErr error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()

	rows := make([]Prediction, len(y))
	for i := range y {
		rows[i] = Prediction{Row: int64(i), Label: int32(y[i]), Proba: proba[i]}
		if i < len(groups) {
			rows[i].Group = groups[i]
		}
	}

	w := parquet.NewGenericWriter[Prediction](f, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		return fmt.Errorf("write predictions: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close predictions writer: %w", err)
	}
	return nil
}

// ReadPredictions loads a validation predictions file.
func ReadPredictions(path string) ([]Prediction, error) {
	rows, err := parquet.ReadFile[Prediction](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}
