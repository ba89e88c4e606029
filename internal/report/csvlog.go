package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CSVHeader is written once at the top of every CSV log.
var CSVHeader = []string{"run_id", "timestamp", "command", "name", "passed", "status", "description", "value", "reasons"}

// AppendCSV appends one row per result to path, writing the header only when
// the file is new or empty.
func AppendCSV(path, runID string, at time.Time, results []TestResult) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("report: open csv log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(CSVHeader); err != nil {
			f.Close()
			return err
		}
	}
	stamp := at.UTC().Format(time.RFC3339)
	for _, rec := range Records(results) {
		status := ""
		if rec.Status != nil {
			status = *rec.Status
		}
		row := []string{
			runID,
			stamp,
			rec.Command,
			rec.Name,
			strconv.FormatBool(rec.Passed),
			status,
			rec.Description,
			valueText(rec.Value),
			strings.Join(rec.Reasons, "; "),
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("report: write csv log: %w", err)
	}
	return f.Close()
}
