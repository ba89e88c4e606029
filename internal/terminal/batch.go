package terminal

import (
	"time"

	"github.com/rs/zerolog/log"
)

// ProgressFunc is called with each command before it is sent.
type ProgressFunc func(index, total int, command string)

// BatchResult maps each command to its envelope. Order lists distinct
// commands by first appearance; a repeated command keeps its first position
// and its latest envelope.
type BatchResult struct {
	Order     []string
	Responses map[string]ResponseEnvelope
}

// Envelopes returns responses in Order.
func (r BatchResult) Envelopes() []ResponseEnvelope {
	out := make([]ResponseEnvelope, 0, len(r.Order))
	for _, cmd := range r.Order {
		out = append(out, r.Responses[cmd])
	}
	return out
}

// RunBatch issues commands strictly in order, sleeping dwell after each
// regardless of outcome. Failures are recorded on the envelope and never
// abort the batch.
func (t *Terminal) RunBatch(commands []string, timeout, dwell time.Duration, onProgress ProgressFunc) BatchResult {
	result := BatchResult{
		Order:     make([]string, 0, len(commands)),
		Responses: make(map[string]ResponseEnvelope, len(commands)),
	}
	for i, cmd := range commands {
		if onProgress != nil {
			onProgress(i, len(commands), cmd)
		}
		env, _ := t.CommandQuery(cmd, timeout)
		if _, seen := result.Responses[cmd]; !seen {
			result.Order = append(result.Order, cmd)
		}
		result.Responses[cmd] = env
		// Dwell is cut short on stop; later commands then record ErrStopped.
		t.sleep(dwell)
	}
	log.Info().Int("commands", len(commands)).Int("distinct", len(result.Order)).Msg("terminal.RunBatch complete")
	return result
}
