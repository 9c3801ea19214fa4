package extract

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// StreamFromDir re-extracts saved raw pages. It writes a single JSON array to
// w with one object per file (or per record in record mode), adding
// "source_file" to each object.
//
//   - stable ordering by filename
//   - unreadable/unparseable files are skipped and logged
//   - ambiguous labels are logged as warnings
func StreamFromDir(w io.Writer, dir string, lf *LocatorFile, enc *json.Encoder, log logrus.FieldLogger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	if _, err := io.WriteString(w, "["); err != nil {
		return fmt.Errorf("write [: %w", err)
	}

	first := true
	emit := func(name string, res Result) error {
		LogAmbiguities(log.WithField("file", name), res.Ambiguities)
		if allAbsent(res.Record) {
			return nil
		}
		obj := make(map[string]any, len(res.Record)+1)
		for k, v := range res.Record {
			obj[k] = v
		}
		obj["source_file"] = name

		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return fmt.Errorf("write comma: %w", err)
			}
		}
		first = false
		if err := enc.Encode(obj); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		return nil
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		full := filepath.Join(dir, e.Name())
		b, err := os.ReadFile(full)
		if err != nil {
			log.WithFields(logrus.Fields{"file": e.Name(), "reason": err}).Warn("skip unreadable file")
			continue
		}

		doc, err := ParseDocument(b, "")
		if err != nil {
			log.WithFields(logrus.Fields{"file": e.Name(), "reason": err}).Warn("skip unparseable file")
			continue
		}

		if strings.TrimSpace(lf.RecordSelector) != "" {
			for _, res := range ExtractRecords(doc, lf.RecordSelector, lf.Table) {
				if err := emit(e.Name(), res); err != nil {
					return err
				}
			}
			continue
		}

		if err := emit(e.Name(), Extract(doc, lf.Table)); err != nil {
			return err
		}
	}

	if _, err := io.WriteString(w, "]"); err != nil {
		return fmt.Errorf("write ]: %w", err)
	}
	return nil
}

// LogAmbiguities writes one warning per ambiguous label.
func LogAmbiguities(log logrus.FieldLogger, amb []Ambiguity) {
	for _, a := range amb {
		log.WithFields(logrus.Fields{
			"field":   a.Field,
			"label":   a.Label,
			"rule":    a.Rule.String(),
			"matches": a.Matches,
		}).Warn("ambiguous label, using first match")
	}
}
