// Package bundle persists trained pipelines together with the feature
// schema they expect, and the model card that describes them.
package bundle

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mchmarny/readmit/pkg/model"
)

const (
	// FileName is the bundle file written into the artifacts directory.
	FileName = "model.gob"

	formatMagic   = "readmit-bundle"
	formatVersion = 2
	dirMode       = 0o755
)

// Version is reported by the model card and the API. Set at build time.
var Version = "0.1.0"

// ErrFormat is returned when a file is not a bundle this build can read.
var ErrFormat = errors.New("unsupported bundle format")

// Bundle is an immutable trained pipeline and its ordered feature schema.
type Bundle struct {
	Pipeline     *model.Pipeline
	FeatureNames []string
}

type header struct {
	Magic   string
	Version int
}

// New returns a bundle for pipeline p trained on features.
func New(p *model.Pipeline, features []string) *Bundle {
	names := make([]string, len(features))
	copy(names, features)
	return &Bundle{Pipeline: p, FeatureNames: names}
}

// Encode writes the bundle with a format header.
func (b *Bundle) Encode(w io.Writer) error {
	if b.Pipeline == nil {
		return errors.New("bundle has no pipeline")
	}
	enc := gob.NewEncoder(w)
	if err := enc.Encode(header{Magic: formatMagic, Version: formatVersion}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	return nil
}

// Decode reads a bundle written by Encode.
func Decode(r io.Reader) (*Bundle, error) {
	dec := gob.NewDecoder(r)
	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if h.Magic != formatMagic || h.Version != formatVersion {
		return nil, fmt.Errorf("%w: %q v%d", ErrFormat, h.Magic, h.Version)
	}
	var b Bundle
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if b.Pipeline == nil || b.Pipeline.Prep == nil || b.Pipeline.Model == nil {
		return nil, fmt.Errorf("%w: incomplete pipeline", ErrFormat)
	}
	return &b, nil
}

// Save writes the bundle to path, creating parent directories.
func Save(path string, b *Bundle) (retErr error) {
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing file: %w", cerr)
		}
	}()
	return b.Encode(f)
}

// Load reads a bundle from a local file.
func Load(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()
	b, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return b, nil
}
