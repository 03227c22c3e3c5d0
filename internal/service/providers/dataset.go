package providers

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// LoadDataset reads a JSON dataset file keyed by subject name, then by
// check type:
//
//	{"Jordan Smith": {"criminal_records": [{"kind": "record", ...}]}}
//
// Names are canonicalized on load.
func LoadDataset(path string) (Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", path, err)
	}

	var decoded map[string]map[screening.CheckType][]screening.Record
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}

	d := Dataset{}
	for name, byCheck := range decoded {
		for ct, records := range byCheck {
			d.Add(name, ct, records...)
		}
	}
	return d, nil
}
