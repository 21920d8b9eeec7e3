package workflow

import (
	"fmt"
	"sort"
)

// Report is the outcome of structural validation.
type Report struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Validate checks the structural integrity of a workflow graph: the entry
// node exists and is a trigger, every transition endpoint references an
// existing node, every node is reachable from the entry, and at least one
// end node is reachable. All violations are collected rather than failing
// fast, so a caller can present the full picture before deciding whether to
// block persistence.
func Validate(wf *Workflow) Report {
	errs := []string{}

	entry, entryOK := wf.Nodes[wf.EntryNodeID]
	if !entryOK {
		errs = append(errs, fmt.Sprintf("entry node %q not found", wf.EntryNodeID))
	} else if entry.Type != NodeTypeTrigger {
		errs = append(errs, fmt.Sprintf("entry node %q must be of type %q, got %q", wf.EntryNodeID, NodeTypeTrigger, entry.Type))
	}

	for _, t := range wf.Transitions {
		if _, ok := wf.Nodes[t.FromNodeID]; !ok {
			errs = append(errs, fmt.Sprintf("transition %q references unknown source node %q", t.ID, t.FromNodeID))
		}
		if _, ok := wf.Nodes[t.ToNodeID]; !ok {
			errs = append(errs, fmt.Sprintf("transition %q references unknown target node %q", t.ID, t.ToNodeID))
		}
	}

	// Reachability checks only make sense relative to a real entry node.
	if entryOK {
		seen := newGraph(wf).reachable(wf.EntryNodeID)

		ids := make([]string, 0, len(wf.Nodes))
		for id := range wf.Nodes {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		endReachable := false
		for _, id := range ids {
			if !seen[id] {
				errs = append(errs, fmt.Sprintf("node %q is not reachable from the entry node", id))
				continue
			}
			if wf.Nodes[id].Type == NodeTypeEnd {
				endReachable = true
			}
		}
		if !endReachable {
			errs = append(errs, "no end node is reachable from the entry node")
		}
	}

	return Report{Valid: len(errs) == 0, Errors: errs}
}
