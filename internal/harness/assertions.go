package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/queue"
	"github.com/roach88/ataa/internal/store"
)

// syncLogScan bounds how many sync log entries a sync_log assertion reads.
const syncLogScan = 1000

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Type)
		if ev.HubID != "" {
			fmt.Fprintf(&buf, " hub=%s", ev.HubID)
		}
		if ev.Status != "" {
			fmt.Fprintf(&buf, " status=%s", ev.Status)
		}
		if ev.Error != "" {
			fmt.Fprintf(&buf, " error=%s", ev.Error)
		}
		if ev.Advance != "" {
			fmt.Fprintf(&buf, " by=%s", ev.Advance)
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// AssertionContext provides store access to assertions.
type AssertionContext struct {
	Ctx   context.Context
	Store *store.Store
	Queue *queue.Queue
}

// assertRecord checks that the record exists and that each expected field
// has the same JSON encoding as the stored one.
func assertRecord(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	var rec model.Record
	err := actx.Store.View(actx.Ctx, func(tx *store.Tx) error {
		var err error
		rec, err = tx.Get(actx.Ctx, a.Entity, a.ID)
		return err
	})
	if model.IsNotFound(err) {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("%s %s to exist", a.Entity, a.ID),
			Actual:   "not found",
			Trace:    trace,
		}
	}
	if err != nil {
		return err
	}

	actual, err := fields(rec)
	if err != nil {
		return err
	}
	var mismatches []string
	for _, key := range sortedKeys(a.Expect) {
		if !jsonEqual(a.Expect[key], actual[key]) {
			mismatches = append(mismatches, fmt.Sprintf("%s=%s (want %s)", key, compact(actual[key]), compact(a.Expect[key])))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("%s %s with %v", a.Entity, a.ID, a.Expect),
			Actual:   strings.Join(mismatches, ", "),
			Trace:    trace,
		}
	}
	return nil
}

// assertMissing checks that the record does not exist.
func assertMissing(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	var exists bool
	err := actx.Store.View(actx.Ctx, func(tx *store.Tx) error {
		var err error
		exists, err = tx.Exists(actx.Ctx, a.Entity, a.ID)
		return err
	})
	if err != nil {
		return err
	}
	if exists {
		return &AssertionError{
			Type:     AssertMissing,
			Expected: fmt.Sprintf("%s %s to be absent", a.Entity, a.ID),
			Actual:   "found",
			Trace:    trace,
		}
	}
	return nil
}

// assertSyncLog counts sync log entries, filtered by direction and outcome.
func assertSyncLog(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	var entries []model.SyncLogEntry
	err := actx.Store.View(actx.Ctx, func(tx *store.Tx) error {
		var err error
		entries, err = tx.SyncLog(actx.Ctx, syncLogScan)
		return err
	})
	if err != nil {
		return err
	}
	n := 0
	for _, e := range entries {
		if a.Direction != "" && string(e.Direction) != a.Direction {
			continue
		}
		if a.Outcome != "" && string(e.Outcome) != a.Outcome {
			continue
		}
		n++
	}
	return countError(AssertSyncLog, "sync log entries", a.Count, n, trace)
}

// assertQueueDepth counts relay queue items.
func assertQueueDepth(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	n := 0
	if actx.Queue != nil {
		err := actx.Store.View(actx.Ctx, func(tx *store.Tx) error {
			var err error
			n, err = actx.Queue.Count(actx.Ctx, tx)
			return err
		})
		if err != nil {
			return err
		}
	}
	return countError(AssertQueueDepth, "queued items", a.Count, n, trace)
}

// assertMatches counts matches in a status.
func assertMatches(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	var ms []model.Match
	err := actx.Store.View(actx.Ctx, func(tx *store.Tx) error {
		var err error
		ms, err = tx.Matches(actx.Ctx, model.MatchStatus(a.Status))
		return err
	})
	if err != nil {
		return err
	}
	return countError(AssertMatches, a.Status+" matches", a.Count, len(ms), trace)
}

// assertTraceCount counts flow events of one type.
func assertTraceCount(result *Result, a Assertion) error {
	return countError(AssertTraceCount, a.Event+" events", a.Count, result.Count(a.Event), result.Trace)
}

func countError(typ, what string, want, got int, trace []TraceEvent) error {
	if want == got {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("%d %s", want, what),
		Actual:   fmt.Sprintf("%d %s", got, what),
		Trace:    trace,
	}
}

// fields decodes rec's JSON encoding into a generic map.
func fields(rec model.Record) (map[string]any, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// jsonEqual compares two values by their JSON encoding, so YAML ints match
// JSON floats.
func jsonEqual(expected, actual any) bool {
	a, errA := json.Marshal(normalize(expected))
	b, errB := json.Marshal(normalize(actual))
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// normalize round-trips v through JSON so numbers become float64.
func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func compact(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceCount:
			err = assertTraceCount(result, assertion)
		case AssertRecord, AssertMissing, AssertSyncLog, AssertQueueDepth, AssertMatches:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertRecord:
				err = assertRecord(actx, result.Trace, assertion)
			case AssertMissing:
				err = assertMissing(actx, result.Trace, assertion)
			case AssertSyncLog:
				err = assertSyncLog(actx, result.Trace, assertion)
			case AssertQueueDepth:
				err = assertQueueDepth(actx, result.Trace, assertion)
			case AssertMatches:
				err = assertMatches(actx, result.Trace, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
