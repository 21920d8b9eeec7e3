package workflow

import (
	"time"

	"ticket-automation/engine/services/rules"
)

// Node types.
const (
	NodeTypeTrigger = "trigger"
	NodeTypeState   = "state"
	NodeTypeAction  = "action"
	NodeTypeEnd     = "end"
)

// Workflow is a persisted declarative state graph for a ticket lifecycle:
// states, transitions, and the triggers that move tickets between them.
// Version increments on every structural edit.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Nodes       map[string]Node `json:"nodes"`
	Transitions []Transition    `json:"transitions"`
	EntryNodeID string          `json:"entryNodeId"`
	Enabled     bool            `json:"enabled"`
	Version     int             `json:"version"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Node is a single vertex in the workflow graph.
type Node struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// Position holds x/y coordinates for rendering the node in the editor
// canvas. Layout metadata is UI-only; the engine ignores it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData is the type-specific payload of a node: Event on trigger nodes,
// Label on state and end nodes, Action on action nodes (forwarded verbatim
// into compiled rules).
type NodeData struct {
	Label  string        `json:"label,omitempty"`
	Event  string        `json:"event,omitempty"`
	Action *rules.Action `json:"action,omitempty"`
}

// Transition is a directed edge between two nodes. Label is an optional
// human-readable guard name.
type Transition struct {
	ID         string `json:"id"`
	FromNodeID string `json:"fromNodeId"`
	ToNodeID   string `json:"toNodeId"`
	Label      string `json:"label,omitempty"`
}
