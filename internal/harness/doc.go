// Package harness runs sync scenarios against a real orchestrator.
//
// A scenario is a YAML file describing the receiving tier (conflict policy,
// relay, auto-matching), the records it holds before the flow, and a flow of
// pushes, pulls and clock advances with their expected outcomes. After the
// flow, assertions check the final store: records and their fields, the
// sync log, the relay queue and matches.
//
// Every scenario runs in a fresh in-memory database with a fake clock
// starting at testutil.Epoch and sequential IDs, so traces are stable and
// can be compared against golden files:
//
//	func TestScenarios(t *testing.T) {
//	    s, err := harness.LoadScenario("testdata/scenarios/newer-wins.yaml")
//	    require.NoError(t, err)
//	    require.NoError(t, harness.RunWithGolden(t, s))
//	}
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// # Scenario format
//
//	name: newer-wins
//	description: A stale edit from a second hub is rejected.
//	policy: newer_wins
//	setup:
//	  - entity: zone
//	    record: {id: z1, name: North}
//	flow:
//	  - push:
//	      hub_id: hub-a
//	      records:
//	        - entity: household
//	          record: {id: h1, token: HH-1, zone_id: z1, ...}
//	    expect:
//	      status: ok
//	      accepted: 1
//	  - advance: 1h
//	assertions:
//	  - type: record
//	    entity: household
//	    id: h1
//	    expect: {family_size: 6}
package harness
