package memserver

import (
	"context"
	"sync"

	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// ResultOf builds a single-set result. Each row must have one value per column.
func ResultOf(columns []tablekit.Column, rows ...[]tablekit.Value) (*tablekit.Result, error) {
	set := tablekit.ResultSet{Columns: columns}
	for _, values := range rows {
		row, err := tablekit.NewRow(columns, values)
		if err != nil {
			return nil, err
		}
		set.Rows = append(set.Rows, row)
	}
	return &tablekit.Result{Sets: []tablekit.ResultSet{set}}, nil
}

// Static returns a handler that always answers with res.
func Static(res *tablekit.Result) Handler {
	return func(context.Context, Call) (*tablekit.Result, error) {
		return res, nil
	}
}

// Empty is a handler for statements without result sets.
func Empty(context.Context, Call) (*tablekit.Result, error) {
	return &tablekit.Result{}, nil
}

// Recorder is a handler that remembers every call it served.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	next  Handler
}

// NewRecorder wraps next, or Empty when next is nil.
func NewRecorder(next Handler) *Recorder {
	if next == nil {
		next = Empty
	}
	return &Recorder{next: next}
}

// Handle serves a call and records it.
func (r *Recorder) Handle(ctx context.Context, call Call) (*tablekit.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
	return r.next(ctx, call)
}

// Calls returns the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}
