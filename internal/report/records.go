package report

import (
	"encoding/json"
	"io"
	"os"
)

// Record is the structured form of a TestResult. Status is null when the
// device never answered.
type Record struct {
	Command     string   `json:"command"`
	Name        string   `json:"name"`
	Passed      bool     `json:"passed"`
	Status      *string  `json:"status"`
	Description string   `json:"description"`
	Value       any      `json:"value"`
	Reasons     []string `json:"reasons"`
}

func NewRecord(res TestResult) Record {
	rec := Record{
		Command:     res.Command,
		Name:        res.Name,
		Passed:      res.Passed,
		Description: res.Description(),
		Reasons:     res.Reasons,
	}
	if rec.Reasons == nil {
		rec.Reasons = []string{}
	}
	if res.Status.Observed() {
		s := string(res.Status)
		rec.Status = &s
	}
	if v := res.Value(); v != nil {
		rec.Value = v.Interface()
	}
	return rec
}

func Records(results []TestResult) []Record {
	out := make([]Record, 0, len(results))
	for _, r := range results {
		out = append(out, NewRecord(r))
	}
	return out
}

// WriteJSON encodes records as an indented JSON array.
func WriteJSON(w io.Writer, results []TestResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Records(results))
}

// WriteJSONFile replaces path with the JSON records.
func WriteJSONFile(path string, results []TestResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteJSON(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// valueText renders a record value for tabular logs.
func valueText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
