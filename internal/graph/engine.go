package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dyike/agenttrader/consts"
	"github.com/dyike/agenttrader/models"
	"github.com/kataras/golog"
)

// END is the terminal pseudo-node.
const END = consts.End

const defaultMaxSteps = 100

var (
	ErrInvalidGraph   = errors.New("invalid graph")
	ErrRecursionLimit = errors.New("recursion limit reached")
	ErrUnknownRoute   = errors.New("unknown route")
)

// NodeFunc reads the state and returns the fields it writes.
type NodeFunc func(ctx context.Context, state *models.TradingState) (*models.StateDelta, error)

// Policy picks a route label from the state. It must not mutate the state.
type Policy func(state *models.TradingState) string

type EdgeKind int

const (
	EdgeStatic EdgeKind = iota
	EdgeConditional
)

// Edge is either a fixed successor or a policy whose labels map to successors.
type Edge struct {
	Kind   EdgeKind
	To     string
	Policy Policy
	Routes map[string]string
}

func Static(to string) Edge {
	return Edge{Kind: EdgeStatic, To: to}
}

func Conditional(policy Policy, routes map[string]string) Edge {
	return Edge{Kind: EdgeConditional, Policy: policy, Routes: routes}
}

// Definition is the graph as data: every node and exactly one outgoing edge per node.
type Definition struct {
	Entry string
	Nodes map[string]NodeFunc
	Edges map[string]Edge
}

type Option func(*Graph)

// WithMaxSteps bounds the number of node executions per run.
func WithMaxSteps(n int) Option {
	return func(g *Graph) {
		g.maxSteps = n
	}
}

// Graph is a validated, immutable Definition. It holds no per-run state and
// may be shared by concurrent runs.
type Graph struct {
	def      Definition
	maxSteps int
}

func Compile(def Definition, opts ...Option) (*Graph, error) {
	g := &Graph{def: def, maxSteps: defaultMaxSteps}
	for _, opt := range opts {
		opt(g)
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) validate() error {
	if g.maxSteps < 1 {
		return fmt.Errorf("%w: max steps must be positive, got %d", ErrInvalidGraph, g.maxSteps)
	}
	if _, ok := g.def.Nodes[g.def.Entry]; !ok {
		return fmt.Errorf("%w: entry node %q is not defined", ErrInvalidGraph, g.def.Entry)
	}
	known := func(id string) bool {
		if id == END {
			return true
		}
		_, ok := g.def.Nodes[id]
		return ok
	}

	for _, id := range g.NodeIDs() {
		if g.def.Nodes[id] == nil {
			return fmt.Errorf("%w: node %q has no function", ErrInvalidGraph, id)
		}
		if _, ok := g.def.Edges[id]; !ok {
			return fmt.Errorf("%w: node %q has no outgoing edge", ErrInvalidGraph, id)
		}
	}
	for from, edge := range g.def.Edges {
		if _, ok := g.def.Nodes[from]; !ok {
			return fmt.Errorf("%w: edge from unknown node %q", ErrInvalidGraph, from)
		}
		switch edge.Kind {
		case EdgeStatic:
			if !known(edge.To) {
				return fmt.Errorf("%w: edge %s -> %q targets an unknown node", ErrInvalidGraph, from, edge.To)
			}
		case EdgeConditional:
			if edge.Policy == nil || len(edge.Routes) == 0 {
				return fmt.Errorf("%w: conditional edge from %q needs a policy and routes", ErrInvalidGraph, from)
			}
			for label, to := range edge.Routes {
				if !known(to) {
					return fmt.Errorf("%w: route %s[%s] -> %q targets an unknown node", ErrInvalidGraph, from, label, to)
				}
			}
		default:
			return fmt.Errorf("%w: edge from %q has unknown kind %d", ErrInvalidGraph, from, edge.Kind)
		}
	}
	return nil
}

// NodeIDs returns the node ids in sorted order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.def.Nodes))
	for id := range g.def.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (g *Graph) MaxSteps() int { return g.maxSteps }

// Step is one node execution within a run.
type Step struct {
	Index int                `json:"index"`
	Node  string             `json:"node"`
	Delta *models.StateDelta `json:"delta"`
}

// Event is an element of a Stream. The last event has Done set and carries
// the final (or partial) state and the run error, if any.
type Event struct {
	Step  *Step
	Done  bool
	State *models.TradingState
	Err   error
}

// Invoke runs the graph to END. On failure the partially updated state is
// returned together with the error.
func (g *Graph) Invoke(ctx context.Context, input *models.TradingState) (*models.TradingState, error) {
	return g.run(ctx, input, nil)
}

// Stream runs the graph in a goroutine and reports every step. The channel
// is closed after the final event. Callers should drain it or cancel ctx; once
// ctx is cancelled, undelivered events (the final one included) are dropped.
func (g *Graph) Stream(ctx context.Context, input *models.TradingState) <-chan Event {
	ch := make(chan Event, 1)
	go func() {
		defer close(ch)
		send := func(ev Event) {
			select {
			case ch <- ev:
				return
			default:
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		}
		state, err := g.run(ctx, input, func(step Step) {
			send(Event{Step: &step})
		})
		send(Event{Done: true, State: state, Err: err})
	}()
	return ch
}

func (g *Graph) run(ctx context.Context, input *models.TradingState, emit func(Step)) (*models.TradingState, error) {
	if input == nil {
		return nil, errors.New("graph: nil input state")
	}
	state := input.Clone()
	current := g.def.Entry
	started := time.Now()

	for step := 0; current != END; step++ {
		if err := ctx.Err(); err != nil {
			return state, fmt.Errorf("before %s: %w", current, err)
		}
		if step >= g.maxSteps {
			return state, fmt.Errorf("%w: %d steps without reaching the end (next node %s)", ErrRecursionLimit, g.maxSteps, current)
		}

		delta, err := g.exec(ctx, step, current, state)
		if err != nil {
			return state, fmt.Errorf("node %s: %w", current, err)
		}
		if err := state.Apply(delta); err != nil {
			return state, fmt.Errorf("node %s: %w", current, err)
		}
		if emit != nil {
			emit(Step{Index: step, Node: current, Delta: delta})
		}

		next, err := g.next(current, state)
		if err != nil {
			return state, err
		}
		current = next
	}

	golog.Debugf("graph: %s %s reached end in %s", state.CompanyOfInterest, state.TradeDate, time.Since(started).Round(time.Millisecond))
	return state, nil
}

func (g *Graph) exec(ctx context.Context, step int, node string, state *models.TradingState) (*models.StateDelta, error) {
	ctx, span := startNodeSpan(ctx, node, step)
	start := time.Now()
	golog.Debugf("graph: step %d start %s", step, node)

	delta, err := g.def.Nodes[node](ctx, state)
	endNodeSpan(span, delta, err)
	if err != nil {
		golog.Errorf("graph: step %d %s failed: %v", step, node, err)
		return nil, err
	}
	golog.Debugf("graph: step %d done %s in %s", step, node, time.Since(start).Round(time.Millisecond))
	if delta == nil {
		delta = &models.StateDelta{}
	}
	return delta, nil
}

func (g *Graph) next(from string, state *models.TradingState) (string, error) {
	edge := g.def.Edges[from]
	if edge.Kind == EdgeStatic {
		return edge.To, nil
	}
	label := edge.Policy(state)
	to, ok := edge.Routes[label]
	if !ok {
		return "", fmt.Errorf("%w: %q from node %s", ErrUnknownRoute, label, from)
	}
	return to, nil
}
