package records

import (
	"encoding/json"
	"fmt"
	"io"
)

// DecodeSnapshot reads one export document from r. Unknown keys are an
// error so a misspelled collection is not silently imported as empty.
func DecodeSnapshot(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode export: %w", err)
	}
	return snap, nil
}
