// Package harness runs provenance scenarios against the invalidation engine.
//
// A scenario builds a graph from a manifest, runs invalidations against it,
// and asserts on the resulting graph and on the trace of what happened.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	setup:                      # a manifest, see package manifest
//	  actions:
//	    - name: notify
//	      command: notify
//	      args: ["{name}"]
//	  records:
//	    - name: raw
//	      ref: raw
//	      kind: fact
//	      derivations:
//	        - {name: out, ref: out, action: notify}
//	flow:
//	  - invalidate: raw
//	    cause: corrupted
//	    expect:
//	      invalidated: [raw, out]
//	  - invalidate_tag: {key: site, value: ornl}
//	    root: raw
//	    expect:
//	      invalidated: []
//	assertions:
//	  - type: invalid
//	    records: [raw, out]
//	  - type: action_order
//	    records: [out]
//
// # Assertion Types
//
//   - valid, invalid: every listed record has that state
//   - same_root: the listed records belong to one cascade
//   - cause: the listed records' cascade root carries the given cause
//   - action_order: actions fired for exactly the listed records, in order
//   - action_count: exactly count actions fired
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory database, sequential ids ("inv-1",
// "inv-2", ...) and a stepping clock. Shell actions are not executed; the
// runner reports the exit code configured in exit_codes. Traces are
// therefore identical across runs and are compared against golden files
// with RunWithGolden.
package harness
