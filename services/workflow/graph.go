package workflow

// graph is an immutable adjacency view of a workflow, built once so the
// validator and decomposer can never disagree about graph shape
// mid-operation.
type graph struct {
	nodes    map[string]Node
	outgoing map[string][]Transition
}

func newGraph(wf *Workflow) *graph {
	g := &graph{
		nodes:    make(map[string]Node, len(wf.Nodes)),
		outgoing: make(map[string][]Transition),
	}
	for id, node := range wf.Nodes {
		g.nodes[id] = node
	}
	for _, t := range wf.Transitions {
		g.outgoing[t.FromNodeID] = append(g.outgoing[t.FromNodeID], t)
	}
	return g
}

func (g *graph) node(id string) (Node, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// reachable returns the set of node ids reachable from the given node,
// including the node itself, following transitions forward.
func (g *graph) reachable(from string) map[string]bool {
	seen := map[string]bool{}
	if _, ok := g.nodes[from]; !ok {
		return seen
	}

	queue := []string{from}
	seen[from] = true
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, t := range g.outgoing[current] {
			if seen[t.ToNodeID] {
				continue
			}
			if _, ok := g.nodes[t.ToNodeID]; !ok {
				continue
			}
			seen[t.ToNodeID] = true
			queue = append(queue, t.ToNodeID)
		}
	}
	return seen
}
