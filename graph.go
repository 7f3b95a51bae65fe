package magicbus

import "sort"

// edge is a (from, to) pair used as a Graph map key.
type edge struct {
	from, to State
}

// Graph is an immutable routing table: Graph[(A, C)] is the next single hop
// B on a shortest path from A to C. Any pair not present has no path.
//
// Built with a Floyd-Warshall-style all-pairs computation over edges of unit
// weight, exactly as magicbus/base.py's Graph.from_edges does it. Ties
// between equally-short paths are broken by whichever edge is discovered
// first during pivot relaxation; callers must not depend on which one wins.
type Graph struct {
	next   map[edge]State
	states map[State]struct{}
}

// Edges declares one-hop legal transitions: a mapping from a state to the
// state(s) directly reachable from it.
type Edges map[State][]State

// NewGraph builds a Graph from the given edge map. Every state named,
// whether as a key or as a value, is closed into the graph's state set.
func NewGraph(edges Edges) *Graph {
	states := make(map[State]struct{})
	dist := make(map[edge]int)
	next := make(map[edge]State)

	for from, tos := range edges {
		states[from] = struct{}{}
		dist[edge{from, from}] = 0
		for _, to := range tos {
			states[to] = struct{}{}
			dist[edge{from, to}] = 1
			next[edge{from, to}] = to
		}
	}

	all := make([]State, 0, len(states))
	for s := range states {
		all = append(all, s)
	}
	// Fixed pivot order, so tie-breaking does not vary between runs.
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	for _, k := range all {
		for _, i := range all {
			d1, ok1 := dist[edge{i, k}]
			if !ok1 {
				continue
			}
			for _, j := range all {
				d2, ok2 := dist[edge{k, j}]
				if !ok2 {
					continue
				}
				candidate := d1 + d2
				cur, ok := dist[edge{i, j}]
				if !ok || cur > candidate {
					dist[edge{i, j}] = candidate
					if n, ok := next[edge{i, k}]; ok {
						next[edge{i, j}] = n
					} else {
						next[edge{i, j}] = k
					}
				}
			}
		}
	}

	return &Graph{next: next, states: states}
}

// NextHop returns the next single-hop state on a shortest path from `from`
// to `to`, and whether a path exists at all. It returns (Initial, false) when
// `from` and `to` are identical, and the zero State with false when `to` is
// unreachable.
func (g *Graph) NextHop(from, to State) (State, bool) {
	if from == to {
		return Initial, false
	}
	n, ok := g.next[edge{from, to}]
	return n, ok
}

// States returns the set of every state mentioned anywhere in the edge map
// this Graph was built from.
func (g *Graph) States() []State {
	out := make([]State, 0, len(g.states))
	for s := range g.states {
		out = append(out, s)
	}
	return out
}

// HasState reports whether s is a member of this graph's closed state set.
func (g *Graph) HasState(s State) bool {
	_, ok := g.states[s]
	return ok
}
