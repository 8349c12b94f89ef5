// Package savecoord is the single entry point for writes to the dashboard
// data. Requests are validated, checked against the stored data, merged
// per the writer's strategy and persisted one batch at a time.
package savecoord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// Execution methods reported in Result.Method.
const (
	MethodUnified = "unified"
	MethodLegacy  = "legacy"
)

// Store is the persistence the coordinator writes through. The data
// manager satisfies it.
type Store interface {
	CurrentConfigData(ctx context.Context) (*types.ConfigData, error)
	SaveCurrentConfigData(ctx context.Context, data *types.ConfigData) error
}

// Options configures a Coordinator. Store takes precedence; Legacy is the
// sync area used when no Store is available.
type Options struct {
	Store  Store
	Legacy types.StorageArea
	Logger *slog.Logger
	Now    func() time.Time
}

// Result is the outcome of one save request.
type Result struct {
	ID       string   `json:"id"`
	Success  bool     `json:"success"`
	Method   string   `json:"method,omitempty"`
	Source   string   `json:"source"`
	Priority Priority `json:"priority"`
	Warnings []string `json:"warnings,omitempty"`
	Err      error    `json:"-"`
}

// Stats is a snapshot of the coordinator's counters.
type Stats struct {
	Processed int
	Failed    int
	Queued    int
	Busy      bool
	LastBatch []Result
}

type request struct {
	ctx      context.Context
	data     *types.ConfigData
	opts     SaveOptions
	id       string
	warnings []string
	done     chan Result
}

// Coordinator serializes writes. Normal and low priority requests go
// through a FIFO queue drained by whichever caller found the coordinator
// idle; high priority requests run immediately.
type Coordinator struct {
	store     Store
	method    string
	validator *Validator
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	busy      bool
	queue     []*request
	processed int
	failed    int
	lastBatch []Result
}

// New returns a coordinator writing through opts.Store, or through the
// legacy layout in opts.Legacy when no store is given.
func New(opts Options) (*Coordinator, error) {
	c := &Coordinator{logger: opts.Logger, now: opts.Now}
	switch {
	case opts.Store != nil:
		c.store, c.method = opts.Store, MethodUnified
	case opts.Legacy != nil:
		c.store, c.method = legacyStore{area: opts.Legacy}, MethodLegacy
	default:
		return nil, errors.New("savecoord: a store or a legacy storage area is required")
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	c.validator = v
	return c, nil
}

// Method reports which executor the coordinator writes through.
func (c *Coordinator) Method() string { return c.method }

// SaveData validates, merges and persists data. The returned error equals
// Result.Err. Validation failures abort before any backend is touched.
func (c *Coordinator) SaveData(ctx context.Context, data *types.ConfigData, opts SaveOptions) (Result, error) {
	opts = opts.withDefaults()
	req := c.newRequest(ctx, data, opts)
	if *opts.ValidateBefore {
		warnings, err := c.validator.Validate(data, opts.Source)
		if err != nil {
			return c.reject(req, err)
		}
		req.warnings = warnings
	}
	return c.submit(req)
}

// SaveJSON is SaveData for a raw JSON payload.
func (c *Coordinator) SaveJSON(ctx context.Context, raw []byte, opts SaveOptions) (Result, error) {
	opts = opts.withDefaults()
	req := c.newRequest(ctx, nil, opts)
	if *opts.ValidateBefore {
		warnings, err := c.validator.ValidateJSON(raw, opts.Source)
		if err != nil {
			return c.reject(req, err)
		}
		req.warnings = warnings
	}
	var data types.ConfigData
	if err := json.Unmarshal(raw, &data); err != nil {
		return c.reject(req, &ValidationError{Source: opts.Source, Err: fmt.Errorf("payload is not a JSON object: %w", err)})
	}
	req.data = &data
	return c.submit(req)
}

func (c *Coordinator) newRequest(ctx context.Context, data *types.ConfigData, opts SaveOptions) *request {
	return &request{
		ctx:  ctx,
		data: data,
		opts: opts,
		id:   uuid.NewString(),
		done: make(chan Result, 1),
	}
}

func (c *Coordinator) reject(req *request, err error) (Result, error) {
	c.logger.Warn("save rejected", "id", req.id, "source", req.opts.Source, "error", err)
	res := req.result(false, err)
	c.mu.Lock()
	c.failed++
	c.mu.Unlock()
	return res, err
}

func (c *Coordinator) submit(req *request) (Result, error) {
	if req.data == nil {
		return c.reject(req, &ValidationError{Source: req.opts.Source, Err: errors.New("payload is empty")})
	}
	if req.opts.Priority == PriorityHigh {
		res := c.process(req)
		c.record([]Result{res})
		return res, res.Err
	}

	c.mu.Lock()
	c.queue = append(c.queue, req)
	drain := !c.busy
	c.busy = true
	c.mu.Unlock()
	if drain {
		c.drain()
	}

	select {
	case res := <-req.done:
		return res, res.Err
	case <-req.ctx.Done():
		err := req.ctx.Err()
		return req.result(false, err), err
	}
}

// drain processes queued batches until the queue is empty, then clears
// the busy flag.
func (c *Coordinator) drain() {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.busy = false
			c.mu.Unlock()
			return
		}
		batch := c.queue
		c.queue = nil
		c.mu.Unlock()

		sort.SliceStable(batch, func(i, j int) bool {
			return batch[i].opts.Priority.rank() < batch[j].opts.Priority.rank()
		})
		results := make([]Result, 0, len(batch))
		for _, req := range batch {
			res := c.process(req)
			req.done <- res
			results = append(results, res)
		}
		c.record(results)
	}
}

func (c *Coordinator) process(req *request) Result {
	if err := req.ctx.Err(); err != nil {
		return req.result(false, err)
	}
	existing, err := c.store.CurrentConfigData(req.ctx)
	if err != nil {
		return req.result(false, fmt.Errorf("read current data: %w", err))
	}
	warnings := CheckDataConsistency(existing, req.data, req.opts.Source, req.opts.MergeStrategy)
	for _, w := range warnings {
		c.logger.Warn("save consistency", "id", req.id, "source", req.opts.Source, "warning", w)
	}
	req.warnings = append(req.warnings, warnings...)

	merged := MergeData(existing, req.data, req.opts.MergeStrategy, req.opts.Source, c.now())
	if err := c.store.SaveCurrentConfigData(req.ctx, merged); err != nil {
		c.logger.Error("save failed", "id", req.id, "source", req.opts.Source, "method", c.method, "error", err)
		return req.result(false, err)
	}
	c.logger.Debug("save complete", "id", req.id, "source", req.opts.Source,
		"priority", req.opts.Priority, "strategy", req.opts.MergeStrategy)
	res := req.result(true, nil)
	res.Method = c.method
	return res
}

func (c *Coordinator) record(results []Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range results {
		if r.Success {
			c.processed++
		} else {
			c.failed++
		}
	}
	c.lastBatch = results
}

// Stats returns the counters and the results of the last batch.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Processed: c.processed,
		Failed:    c.failed,
		Queued:    len(c.queue),
		Busy:      c.busy,
		LastBatch: append([]Result(nil), c.lastBatch...),
	}
}

func (r *request) result(ok bool, err error) Result {
	return Result{
		ID:       r.id,
		Success:  ok,
		Source:   r.opts.Source,
		Priority: r.opts.Priority,
		Warnings: append([]string(nil), r.warnings...),
		Err:      err,
	}
}
