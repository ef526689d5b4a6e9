// Package vars is the scoped key/value API: get, set and delete a dot path
// in the document of a workflow or of one execution.
//
// A Ref names the document:
//
//	vars.WorkflowRef("wf1")           // <base>/workflows/wf1/workflow-data.json
//	vars.ExecutionRef("wf1", "e1")    // <base>/workflows/wf1/e1.json
//
// Workflow documents are shared by every execution of the workflow and
// persist across runs. Execution documents are isolated per run.
//
// Identifiers become path elements, so Ref.Validate rejects empty IDs and
// anything containing a separator or equal to "." or "..".
//
// Snapshot gathers the workflow document and all execution documents of a
// workflow for read-only display.
package vars
