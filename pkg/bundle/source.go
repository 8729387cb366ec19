package bundle

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// SourceKind is where a bundle is loaded from.
type SourceKind int

const (
	// SourceLocal is a path on the local filesystem.
	SourceLocal SourceKind = iota
	// SourceGCS is a gs://bucket/object reference.
	SourceGCS
	// SourceHTTP is a plain http(s) URL.
	SourceHTTP
)

const gcsDownloadURL = "https://storage.googleapis.com/download/storage/v1/b/%s/o/%s?alt=media"

// ErrUnsupportedSource is returned for schemes other than gs, http and https.
var ErrUnsupportedSource = errors.New("unsupported model source")

// Source is a parsed model location.
type Source struct {
	Raw  string
	Kind SourceKind
	// Path is set for local sources.
	Path string
	// URL is the download URL for remote sources.
	URL string
}

// Remote reports whether the source has to be downloaded.
func (s Source) Remote() bool { return s.Kind != SourceLocal }

// ParseSource parses a local path, a gs://bucket/object reference or an
// http(s) URL.
func ParseSource(raw string) (Source, error) {
	s := Source{Raw: raw}
	switch {
	case raw == "":
		return s, fmt.Errorf("%w: empty", ErrUnsupportedSource)
	case strings.HasPrefix(raw, "gs://"):
		rest := strings.TrimPrefix(raw, "gs://")
		bucket, object, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || object == "" {
			return s, fmt.Errorf("%w: %s is not gs://bucket/object", ErrUnsupportedSource, raw)
		}
		s.Kind = SourceGCS
		s.URL = fmt.Sprintf(gcsDownloadURL, url.PathEscape(bucket), url.PathEscape(object))
		return s, nil
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		if _, err := url.Parse(raw); err != nil {
			return s, fmt.Errorf("%w: %w", ErrUnsupportedSource, err)
		}
		s.Kind = SourceHTTP
		s.URL = raw
		return s, nil
	case strings.Contains(raw, "://"):
		return s, fmt.Errorf("%w: %s", ErrUnsupportedSource, raw)
	}
	s.Kind = SourceLocal
	s.Path = raw
	return s, nil
}
