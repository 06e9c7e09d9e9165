package call

import (
	json "github.com/goccy/go-json"
)

// BatchMode selects how a batch is executed.
type BatchMode string

const (
	BatchParallel   BatchMode = "parallel"
	BatchSequential BatchMode = "sequential"
)

// BatchItem is one call of a batch.
type BatchItem struct {
	Key     string
	Params  map[string]any
	Options Options
}

// BatchOptions apply to every item of a batch. Item options win over them.
type BatchOptions struct {
	Options
	Mode        BatchMode
	Concurrency int // parallel mode only; 0 = unbounded
}

// BatchResult is the isolated outcome of one batch item.
type BatchResult struct {
	Key     string
	Success bool
	Data    any
	Err     error
}

// MarshalJSON renders the error as a string.
func (r BatchResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Key     string `json:"key"`
		Success bool   `json:"success"`
		Data    any    `json:"data,omitempty"`
		Error   string `json:"error,omitempty"`
		Code    Code   `json:"code,omitempty"`
	}{Key: r.Key, Success: r.Success, Data: r.Data}
	if r.Err != nil {
		out.Error = r.Err.Error()
		out.Code = CodeOf(r.Err)
	}
	return json.Marshal(out)
}
