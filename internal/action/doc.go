// Package action fires the invalidation action bound to a record.
//
// An action's Command and every string inside its Params are templates.
// Placeholders of the form {key} are replaced from the record's tags plus the
// reserved keys "name" and "uri". "{{" and "}}" produce literal braces.
//
// Dispatch by type:
//   - shell: run Command with Params["args"] through a Runner
//   - external_event: hand the substituted payload to a Publisher
//
// Failures of the side effect itself (non-zero exit, unreachable broker) are
// reported in the Result and logged; they never undo the invalidation.
package action
