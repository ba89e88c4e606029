package report

import (
	"time"

	"github.com/google/uuid"
)

// Run groups the results of one station pass for durable logs.
type Run struct {
	ID      string
	Started time.Time
	Results []TestResult
}

func NewRun(started time.Time, results []TestResult) Run {
	return Run{ID: uuid.NewString(), Started: started, Results: results}
}
