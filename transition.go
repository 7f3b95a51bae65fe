package magicbus

// HopResult is the outcome of one single-hop transition taken as part of a
// multi-hop Transition call.
type HopResult struct {
	State  State
	Output []any
	Err    error
}

// Transition moves the bus toward desired, one single hop at a time, as
// planned by the routing Graph. It stops (silently — this is by design) as
// soon as no further hop toward desired exists from the bus's current state,
// which can happen either because desired was reached or because an error
// transition taken mid-walk stranded the bus somewhere desired is no longer
// reachable from.
//
// It returns early with a non-nil error only when a hop's failure could not
// be routed through the error map (no entry for that state) or was fatal
// (see IsFatal) — in both cases the error propagates to the caller exactly
// as the hop raised it.
func (b *Bus) Transition(desired State) ([]HopResult, error) {
	var results []HopResult
	for {
		current := b.State()
		if current == desired {
			return results, nil
		}
		next, ok := b.graph.NextHop(current, desired)
		if !ok {
			return results, nil
		}
		output, err := b.singleHop(next)
		results = append(results, HopResult{State: next, Output: output, Err: err})
		if err != nil {
			return results, err
		}
	}
}

// singleHop performs the one-hop transition to newstate: it must only be
// called when newstate is a direct successor of the current state (or, for
// error transitions, regardless of adjacency — error transitions bypass the
// routing Graph entirely).
func (b *Bus) singleHop(newstate State, args ...any) ([]any, error) {
	b.mu.Lock()
	b.state = newstate
	b.mu.Unlock()

	b.wake()
	b.Log("Bus state: "+string(newstate), LevelInfo, false)

	output, err := b.Publish(string(newstate), args...)
	if err == nil {
		return output, nil
	}
	if b.IsFatal(err) {
		return output, err
	}

	mapped, ok := b.errors[newstate]
	if !ok {
		// No error route for this state: re-raise, exactly as the failing
		// listener reported it.
		return output, err
	}

	// Error transitions are single-hop only: they are never re-routed by
	// the multi-hop planner, and they pass the captured failure as the
	// error channel's publish argument.
	_, nestedErr := b.singleHop(mapped, err)
	if nestedErr != nil {
		return nil, nestedErr
	}
	// The error was routed and handled; this hop contributes no output of
	// its own, matching the reference implementation's behavior of
	// swallowing the original failure once it has been rerouted.
	return nil, nil
}
