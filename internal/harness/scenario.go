package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/orchestrator"
)

// Scenario defines one sync scenario run against a receiving tier.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policy is the conflict policy name; empty means last_write_wins.
	Policy string `yaml:"policy,omitempty"`

	// Relay makes the receiving tier a hub that queues accepted records
	// for its own upstream.
	Relay bool `yaml:"relay,omitempty"`

	// AutoMatch runs offer/request matching after each push.
	AutoMatch bool `yaml:"auto_match,omitempty"`

	// PullExchange makes pulls carry offers, requests and distributions.
	PullExchange bool `yaml:"pull_exchange,omitempty"`

	// Setup records are upserted as-is before the flow.
	Setup []RecordStep `yaml:"setup,omitempty"`

	// Flow is executed in order. Each step sets exactly one of Push, Pull
	// and Advance.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final store.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// RecordStep is one record of a given entity type, written as the JSON
// fields of that type.
type RecordStep struct {
	Entity model.EntityType `yaml:"entity"`
	Record map[string]any   `yaml:"record"`
}

// Decode converts the step into a typed record.
func (s RecordStep) Decode() (model.Record, error) {
	data, err := json.Marshal(s.Record)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", s.Entity, err)
	}
	return model.DecodeRecord(s.Entity, data)
}

// FlowStep is one push, pull or clock advance.
type FlowStep struct {
	Push    *PushStep     `yaml:"push,omitempty"`
	Pull    *PullStep     `yaml:"pull,omitempty"`
	Advance string        `yaml:"advance,omitempty"`
	Expect  *ExpectClause `yaml:"expect,omitempty"`
}

// PushStep sends records in one batch from HubID.
type PushStep struct {
	HubID   string       `yaml:"hub_id"`
	Records []RecordStep `yaml:"records"`
}

// PullStep asks for ZoneID's changes. Since is a timestamp, or empty for
// everything.
type PullStep struct {
	HubID  string `yaml:"hub_id"`
	ZoneID string `yaml:"zone_id"`
	Since  string `yaml:"since,omitempty"`
}

// ExpectClause specifies the expected outcome of a push or pull. Only the
// fields that are set are checked.
type ExpectClause struct {
	// Status is ok, partial or error.
	Status string `yaml:"status,omitempty"`

	// Accepted is the push's records_accepted.
	Accepted *int `yaml:"accepted,omitempty"`

	// Conflicts lists "entity:id" of the rejected records, in order.
	Conflicts []string `yaml:"conflicts,omitempty"`

	// Updates maps entity type to the number of records pulled.
	Updates map[string]int `yaml:"updates,omitempty"`

	// Error is the error code the step must fail with.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final store.
type Assertion struct {
	// Type specifies the assertion type:
	// - "record": the record exists and Expect is a subset of its JSON
	// - "missing": the record does not exist
	// - "sync_log": the sync log has Count entries, filtered by Direction
	//   and Outcome when set
	// - "queue_depth": the relay queue holds Count items
	// - "matches": Count matches have Status
	// - "trace_count": Count flow events have Event type
	Type string `yaml:"type"`

	Entity    model.EntityType `yaml:"entity,omitempty"`
	ID        string           `yaml:"id,omitempty"`
	Expect    map[string]any   `yaml:"expect,omitempty"`
	Direction string           `yaml:"direction,omitempty"`
	Outcome   string           `yaml:"outcome,omitempty"`
	Status    string           `yaml:"status,omitempty"`
	Event     string           `yaml:"event,omitempty"`
	Count     int              `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertRecord     = "record"
	AssertMissing    = "missing"
	AssertSyncLog    = "sync_log"
	AssertQueueDepth = "queue_depth"
	AssertMatches    = "matches"
	AssertTraceCount = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := orchestrator.PolicyByName(s.Policy); err != nil {
		return err
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateRecordStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	for i, step := range s.Flow {
		if err := validateFlowStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateRecordStep(step RecordStep) error {
	if model.NewRecord(step.Entity) == nil {
		return fmt.Errorf("unknown entity %q", step.Entity)
	}
	if step.Record == nil {
		return fmt.Errorf("record is required")
	}
	return nil
}

func validateFlowStep(step FlowStep) error {
	set := 0
	if step.Push != nil {
		set++
	}
	if step.Pull != nil {
		set++
	}
	if step.Advance != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of push, pull and advance is required")
	}

	switch {
	case step.Push != nil:
		for j, r := range step.Push.Records {
			if err := validateRecordStep(r); err != nil {
				return fmt.Errorf("push.records[%d]: %w", j, err)
			}
			if !slices.Contains(model.SyncableEntities, r.Entity) {
				return fmt.Errorf("push.records[%d]: %s is not carried by pushes", j, r.Entity)
			}
		}
	case step.Pull != nil:
		if step.Pull.Since != "" {
			if _, err := model.ParseTime(step.Pull.Since); err != nil {
				return fmt.Errorf("pull.since: %w", err)
			}
		}
	default:
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("advance must be positive, got %s", d)
		}
		if step.Expect != nil {
			return fmt.Errorf("advance takes no expect clause")
		}
	}
	if e := step.Expect; e != nil && e.Status != "" {
		switch model.Outcome(e.Status) {
		case model.OutcomeOK, model.OutcomePartial, model.OutcomeError:
		default:
			return fmt.Errorf("expect.status: unknown outcome %q", e.Status)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertRecord:
		if a.Entity == "" || a.ID == "" {
			return fmt.Errorf("entity and id are required for record")
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("expect is required for record")
		}
	case AssertMissing:
		if a.Entity == "" || a.ID == "" {
			return fmt.Errorf("entity and id are required for missing")
		}
	case AssertSyncLog, AssertQueueDepth:
	case AssertMatches:
		if !model.MatchStatus(a.Status).Valid() {
			return fmt.Errorf("unknown match status %q", a.Status)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("event is required for trace_count")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("count must be non-negative")
	}
	return nil
}
