package sink

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quoteharvest/harvester/pkg/extract"
	"gopkg.in/yaml.v3"
)

// TimestampLayout is appended to the destination stem: name_MM_DD_YYYY_HHMMSS.ext
const TimestampLayout = "01_02_2006_150405"

var (
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_sink_writes_total",
		Help: "Total persistence attempts by format and status",
	}, []string{"format", "status"})

	recordsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_sink_records_written_total",
		Help: "Total records written to disk",
	})
)

func init() {
	gob.Register(extract.Quote{})
	gob.Register(extract.Author{})
	gob.Register(extract.Topic{})
}

type encoder func(w io.Writer, records []extract.Record) error

var encoders = map[string]encoder{
	".json":  encodeJSON,
	".jsonl": encodeJSONLines,
	".yaml":  encodeYAML,
	".yml":   encodeYAML,
	".gob":   encodeGob,
}

// Formats returns the supported destination extensions.
func Formats() []string {
	return []string{".json", ".jsonl", ".yaml", ".yml", ".gob"}
}

// CheckFormat returns a PersistenceError wrapping ErrUnsupportedFormat when
// no encoder handles the extension of dest.
func CheckFormat(dest string) error {
	ext := strings.ToLower(filepath.Ext(dest))
	if _, ok := encoders[ext]; ok {
		return nil
	}
	return &PersistenceError{
		Path: dest,
		Op:   "select format",
		Err:  fmt.Errorf("%w: %q (want one of %s)", ErrUnsupportedFormat, ext, strings.Join(Formats(), ", ")),
	}
}

// TimestampedPath inserts the timestamp suffix before the extension of dest.
func TimestampedPath(dest string, now time.Time) string {
	ext := filepath.Ext(dest)
	return strings.TrimSuffix(dest, ext) + "_" + now.Format(TimestampLayout) + ext
}

// Save writes records to the timestamped variant of dest, selecting the
// encoding from the extension, and returns the written path.
func Save(records []extract.Record, dest string, now time.Time) (string, error) {
	ext := strings.ToLower(filepath.Ext(dest))
	enc, ok := encoders[ext]
	if !ok {
		writesTotal.WithLabelValues("unsupported", "error").Inc()
		return "", CheckFormat(dest)
	}

	path := TimestampedPath(dest, now)
	if err := writeFile(path, records, enc); err != nil {
		writesTotal.WithLabelValues(ext, "error").Inc()
		return "", err
	}

	writesTotal.WithLabelValues(ext, "ok").Inc()
	recordsWrittenTotal.Add(float64(len(records)))
	return path, nil
}

// writeFile encodes into a temporary file next to path and renames it.
func writeFile(path string, records []extract.Record, enc encoder) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Path: path, Op: "create directory", Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return &PersistenceError{Path: path, Op: "create file", Err: err}
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := enc(w, records); err != nil {
		tmp.Close()
		return &PersistenceError{Path: path, Op: "encode", Err: err}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return &PersistenceError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &PersistenceError{Path: path, Op: "close", Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &PersistenceError{Path: path, Op: "rename", Err: err}
	}
	return nil
}

func nonNil(records []extract.Record) []extract.Record {
	if records == nil {
		return []extract.Record{}
	}
	return records
}

func encodeJSON(w io.Writer, records []extract.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(nonNil(records))
}

func encodeJSONLines(w io.Writer, records []extract.Record) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func encodeYAML(w io.Writer, records []extract.Record) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(nonNil(records)); err != nil {
		return err
	}
	return enc.Close()
}

func encodeGob(w io.Writer, records []extract.Record) error {
	return gob.NewEncoder(w).Encode(nonNil(records))
}
