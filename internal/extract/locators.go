package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// LocatorFile describes a locator JSON file.
type LocatorFile struct {
	RecordSelector string       `json:"record_selector,omitempty"` // if set => record mode
	Table          LocatorTable `json:"table"`
}

// LoadLocatorFile loads and validates a JSON locator file.
func LoadLocatorFile(path string) (*LocatorFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locator file: %w", err)
	}

	var lf LocatorFile
	if err := json.Unmarshal(b, &lf); err != nil {
		return nil, fmt.Errorf("parse locator json: %w", err)
	}
	if err := lf.Table.Validate(); err != nil {
		return nil, err
	}
	return &lf, nil
}

// Validate checks that every locator names a field, that patterns compile and
// that nested tables are well formed.
func (t LocatorTable) Validate() error {
	if len(t.Fields) == 0 {
		return errors.New("locator table has no fields")
	}
	var errs []error
	seen := map[string]bool{}
	for i, f := range t.Fields {
		if strings.TrimSpace(f.Field) == "" {
			errs = append(errs, fmt.Errorf("fields[%d]: missing field name", i))
			continue
		}
		if seen[f.Field] {
			errs = append(errs, fmt.Errorf("field %q: duplicate", f.Field))
		}
		seen[f.Field] = true

		if f.Pattern != "" {
			if _, err := regexp.Compile(f.Pattern); err != nil {
				errs = append(errs, fmt.Errorf("field %q: bad pattern: %w", f.Field, err))
			}
		}
		if f.Shape == ShapeFreeTextPattern && f.Pattern == "" && len(f.labels()) == 0 {
			errs = append(errs, fmt.Errorf("field %q: free-text-pattern needs a pattern or a label", f.Field))
		}
		if f.Dest == DestRecord || f.Dest == DestRecords {
			if f.Pattern == "" || f.Dest == DestRecords {
				if err := (LocatorTable{Fields: f.Fields}).Validate(); err != nil {
					errs = append(errs, fmt.Errorf("field %q: %w", f.Field, err))
				}
			}
		}
	}
	return errors.Join(errs...)
}
