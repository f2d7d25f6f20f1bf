package report

import (
	"encoding/json"
	"io"

	"github.com/foxzi/numcheck/internal/batch"
)

// WriteJSON writes an object with "results", "summary" and run metadata
func WriteJSON(w io.Writer, run *batch.Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}
