package harness

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/ataa/internal/clock"
	"github.com/roach88/ataa/internal/matching"
	"github.com/roach88/ataa/internal/metrics"
	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/orchestrator"
	"github.com/roach88/ataa/internal/queue"
	"github.com/roach88/ataa/internal/store"
	"github.com/roach88/ataa/internal/testutil"
)

// Harness holds the receiving tier of one scenario run.
type Harness struct {
	store *store.Store
	orch  *orchestrator.Orchestrator
	queue *queue.Queue
	clock *clock.Fake
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. Execution flow:
//  1. Wire an orchestrator with the scenario's policy, relay and matching
//  2. Upsert setup records
//  3. Execute flow steps, checking each expect clause
//  4. Evaluate assertions against the final store
//
// The returned error reports a broken scenario or store; expectation and
// assertion failures are recorded in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario)
	if err != nil {
		return nil, err
	}

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	actx := &AssertionContext{Ctx: ctx, Store: st, Queue: h.queue}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(st *store.Store, s *Scenario) (*Harness, error) {
	policy, err := orchestrator.PolicyByName(s.Policy)
	if err != nil {
		return nil, err
	}
	clk := testutil.NewClock()
	logger := testutil.Logger()
	ids := model.NewSequenceGenerator("id")
	m := metrics.New()

	h := &Harness{store: st, clock: clk}
	var rec queue.Recorder = queue.Direct{Clock: clk}
	if s.Relay {
		h.queue = queue.New(clk, logger)
		rec = h.queue
	}
	var eng *matching.Engine
	if s.AutoMatch {
		eng = matching.New(st, nil, rec, ids, clk, logger, m)
	}
	h.orch = orchestrator.New(st, policy, h.queue, eng, ids, clk, logger, m,
		orchestrator.Options{Relay: s.Relay, PullExchange: s.PullExchange})
	return h, nil
}

func (h *Harness) executeSetup(ctx context.Context, steps []RecordStep) error {
	recs := make([]model.Record, 0, len(steps))
	for i, step := range steps {
		rec, err := step.Decode()
		if err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		recs = append(recs, rec)
	}
	return h.store.InTx(ctx, func(tx *store.Tx) error {
		for _, rec := range recs {
			if err := tx.Upsert(ctx, rec); err != nil {
				return fmt.Errorf("%s %s: %w", rec.Entity(), rec.RecordID(), err)
			}
		}
		return nil
	})
}

func (h *Harness) executeStep(ctx context.Context, i int, step FlowStep, result *Result) error {
	var ev TraceEvent
	switch {
	case step.Push != nil:
		p := model.NewPushPayload(step.Push.HubID, clock.Stamp(h.clock))
		for j, rs := range step.Push.Records {
			rec, err := rs.Decode()
			if err != nil {
				return fmt.Errorf("push.records[%d]: %w", j, err)
			}
			if err := p.Add(rec); err != nil {
				return fmt.Errorf("push.records[%d]: %w", j, err)
			}
		}
		ev = TraceEvent{Type: EventPush, HubID: step.Push.HubID, Records: p.Len()}
		resp, err := h.orch.Push(ctx, p)
		if err != nil {
			ev.Error = errorCode(err)
		} else {
			ev.Status = string(resp.Status)
			ev.Accepted = resp.RecordsAccepted
			for _, c := range resp.Conflicts {
				ev.Conflicts = append(ev.Conflicts, string(c.EntityType)+":"+c.EntityID)
			}
		}

	case step.Pull != nil:
		since, _ := model.ParseTime(step.Pull.Since)
		req := &model.PullRequest{HubID: step.Pull.HubID, ZoneID: step.Pull.ZoneID, SinceTimestamp: since}
		ev = TraceEvent{Type: EventPull, HubID: step.Pull.HubID}
		resp, err := h.orch.Pull(ctx, req)
		if err != nil {
			ev.Error = errorCode(err)
		} else {
			ev.Status = string(resp.Status)
			ev.Updates = updateCounts(resp.Updates)
		}

	default:
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		ev = TraceEvent{Type: EventAdvance, Advance: d.String()}
	}

	result.add(ev)
	if step.Expect != nil {
		for _, msg := range checkExpect(i, ev, step.Expect) {
			result.AddError(msg)
		}
	}
	return nil
}

// errorCode is the model error code of err, or INTERNAL.
func errorCode(err error) string {
	if code := model.CodeOf(err); code != "" {
		return string(code)
	}
	return "INTERNAL"
}

// updateCounts counts pulled records per entity type, omitting empty ones.
func updateCounts(p *model.PushPayload) map[string]int {
	if p == nil {
		return nil
	}
	counts := make(map[string]int)
	for _, rec := range p.Records() {
		counts[string(rec.Entity())]++
	}
	if len(counts) == 0 {
		return nil
	}
	return counts
}

func checkExpect(i int, ev TraceEvent, e *ExpectClause) []string {
	var errs []string
	failf := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("flow[%d] %s: ", i, ev.Type)+fmt.Sprintf(format, args...))
	}

	if e.Error != "" || ev.Error != "" {
		if e.Error != ev.Error {
			failf("expected error %q, got %q", e.Error, ev.Error)
		}
		return errs
	}
	if e.Status != "" && e.Status != ev.Status {
		failf("expected status %q, got %q", e.Status, ev.Status)
	}
	if e.Accepted != nil && *e.Accepted != ev.Accepted {
		failf("expected %d accepted, got %d", *e.Accepted, ev.Accepted)
	}
	if e.Conflicts != nil && !slices.Equal(e.Conflicts, ev.Conflicts) {
		failf("expected conflicts %v, got %v", e.Conflicts, ev.Conflicts)
	}
	if e.Updates != nil {
		for entity, want := range e.Updates {
			if got := ev.Updates[entity]; got != want {
				failf("expected %d %s updates, got %d", want, entity, got)
			}
		}
		for entity, got := range ev.Updates {
			if _, ok := e.Updates[entity]; !ok {
				failf("unexpected %d %s updates", got, entity)
			}
		}
	}
	return errs
}
