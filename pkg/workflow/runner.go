package workflow

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/errors"
	"github.com/evoflow-ai/evoflow-go/pkg/logging"
)

// RunnerConfig bounds a single workflow run.
type RunnerConfig struct {
	// MaxTotalNodeInvocations caps dispatches across the whole run.
	// Zero means unlimited.
	MaxTotalNodeInvocations int

	// MaxPerNodeInvocations caps dispatches of any single node. Zero
	// means unlimited. Mostly relevant for hierarchical (cyclic) graphs.
	MaxPerNodeInvocations int

	// MaxRetriesForWorkflowRepair is how often a repairable node error
	// (malformed structured output) is retried before the run fails.
	MaxRetriesForWorkflowRepair int

	// NodeTimeout bounds one node invocation. Zero means no timeout.
	NodeTimeout time.Duration

	// MaxParallelNodes bounds concurrent invocations within one run.
	MaxParallelNodes int
}

// DefaultRunnerConfig returns the limits used when none are supplied.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MaxTotalNodeInvocations:     50,
		MaxPerNodeInvocations:       10,
		MaxRetriesForWorkflowRepair: 2,
		NodeTimeout:                 2 * time.Minute,
		MaxParallelNodes:            8,
	}
}

// RunResult is the structured outcome of one workflow run. Budget and
// node failures are reported here with the partial invocation trail
// preserved; they never escape as panics or raw errors.
type RunResult struct {
	RunID        string
	Status       core.RunState
	Invocations  []*core.WorkflowInvocation
	Outputs      []any // payloads delivered to the end sentinel, arrival order
	TotalCostUSD float64
	Err          error
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithBudget attaches a shared cost budget charged per node invocation.
func WithBudget(b *Budget) RunnerOption {
	return func(r *Runner) { r.budget = b }
}

// WithStore persists node invocations as the run progresses.
func WithStore(s core.Store) RunnerOption {
	return func(r *Runner) { r.store = s }
}

// Runner traverses a validated workflow graph, dispatching node
// invocations, routing outputs along taken handoffs and releasing join
// barriers. One Runner may serve many runs; per-run state lives on the
// stack of Execute.
type Runner struct {
	cfg    RunnerConfig
	nodes  core.NodeRunner
	budget *Budget
	store  core.Store
}

// NewRunner creates a runner that invokes nodes through the given
// NodeRunner.
func NewRunner(nodes core.NodeRunner, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	if cfg.MaxParallelNodes <= 0 {
		cfg.MaxParallelNodes = DefaultRunnerConfig().MaxParallelNodes
	}
	r := &Runner{cfg: cfg, nodes: nodes}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// completion is one finished node invocation, delivered to the run loop.
type completion struct {
	node   *core.Node
	inv    *core.WorkflowInvocation
	result *core.NodeResult
	err    error
}

// chain holds back the remaining targets of a sequential fan-out. The
// next target is delivered once the previous one's invocation completes
// or turns out to be parked at a join barrier.
type chain struct {
	from      string
	payload   any
	targets   []string
	waitingOn string
}

// runState is the single-writer state of one run; only the Execute loop
// touches it.
type runState struct {
	graph       *core.WorkflowGraph
	runID       string
	inbox       map[string][]core.AggregatedMessage
	delivered   map[string]map[string]bool
	running     map[string]int
	perNode     map[string]int
	total       int
	inFlight    int
	invocations []*core.WorkflowInvocation
	outputs     []any
	totalCost   float64
	chains      []*chain
	runErr      error
	stopping    bool
}

// Execute runs the graph to completion. Validation is the caller's job;
// the runner assumes the graph has passed the Validator.
func (r *Runner) Execute(ctx context.Context, graph *core.WorkflowGraph, input any) *RunResult {
	runID := core.NewRunID()
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.GetLogger()

	st := &runState{
		graph:     graph,
		runID:     runID,
		inbox:     make(map[string][]core.AggregatedMessage),
		delivered: make(map[string]map[string]bool),
		running:   make(map[string]int),
		perNode:   make(map[string]int),
	}

	completions := make(chan *completion)
	sem := make(chan struct{}, r.cfg.MaxParallelNodes)

	logger.Info(ctx, "starting workflow run with %d nodes, entry=%s", len(graph.Nodes), graph.EntryNodeID)

	entry := graph.NodeByID(graph.EntryNodeID)
	r.dispatch(ctx, st, entry, core.NewSequentialPayload(input), completions, sem)

	cancelled := false
	for st.inFlight > 0 {
		select {
		case <-ctx.Done():
			if !cancelled {
				cancelled = true
				st.stopping = true
				logger.Info(ctx, "run cancelling, waiting for %d in-flight invocations", st.inFlight)
			}
			// Keep draining; in-flight invocations observe the context
			// at their next await point and come back through the
			// completions channel.
			c := <-completions
			r.handleCompletion(ctx, st, c)
		case c := <-completions:
			r.handleCompletion(ctx, st, c)
			if !st.stopping {
				r.dispatchEligible(ctx, st, completions, sem)
			}
		}
	}

	result := &RunResult{
		RunID:        runID,
		Invocations:  st.invocations,
		Outputs:      st.outputs,
		TotalCostUSD: st.totalCost,
	}

	switch {
	// The completion branch of the select can win the race with
	// ctx.Done, so the context is the authority on cancellation.
	case ctx.Err() != nil:
		result.Status = core.RunCancelled
		result.Err = errors.Wrap(ctx.Err(), errors.Canceled, "workflow run cancelled")
	case st.runErr != nil:
		result.Status = core.RunFailed
		result.Err = st.runErr
	default:
		result.Status = core.RunCompleted
		for target, msgs := range st.inbox {
			if len(msgs) > 0 {
				logger.Warn(ctx, "join node %s never became eligible; %d buffered messages dropped", target, len(msgs))
			}
		}
	}

	logger.Info(ctx, "workflow run finished: status=%s invocations=%d cost_usd=%.4f",
		result.Status, len(result.Invocations), result.TotalCostUSD)
	return result
}

// dispatch starts one node invocation, enforcing the invocation budgets
// first. Budget violations fail the run as a structured result.
func (r *Runner) dispatch(ctx context.Context, st *runState, node *core.Node, payload core.Payload,
	completions chan *completion, sem chan struct{}) {

	if st.stopping {
		return
	}

	if r.cfg.MaxTotalNodeInvocations > 0 && st.total >= r.cfg.MaxTotalNodeInvocations {
		st.failRun(errors.WithFields(
			errors.New(errors.BudgetExceeded, "max total node invocations exceeded"),
			errors.Fields{"limit": r.cfg.MaxTotalNodeInvocations, "node_id": node.NodeID}))
		return
	}
	if r.cfg.MaxPerNodeInvocations > 0 && st.perNode[node.NodeID] >= r.cfg.MaxPerNodeInvocations {
		st.failRun(errors.WithFields(
			errors.New(errors.BudgetExceeded, "max per-node invocations exceeded"),
			errors.Fields{"limit": r.cfg.MaxPerNodeInvocations, "node_id": node.NodeID}))
		return
	}

	st.total++
	st.perNode[node.NodeID]++
	st.inFlight++
	st.running[node.NodeID]++

	inv := &core.WorkflowInvocation{
		NodeID:               node.NodeID,
		WorkflowInvocationID: core.NewInvocationID(),
		Status:               core.InvocationRunning,
		StartTime:            time.Now(),
	}
	st.invocations = append(st.invocations, inv)

	go func() {
		sem <- struct{}{}
		defer func() { <-sem }()

		result, err := r.invokeWithRepair(ctx, node, payload)
		completions <- &completion{node: node, inv: inv, result: result, err: err}
	}()
}

// invokeWithRepair runs one node, retrying repairable failures up to the
// configured repair limit.
func (r *Runner) invokeWithRepair(ctx context.Context, node *core.Node, payload core.Payload) (*core.NodeResult, error) {
	invokeCtx := logging.WithNodeID(ctx, node.NodeID)

	var lastErr error
	attempts := 1 + r.cfg.MaxRetriesForWorkflowRepair
	for attempt := 0; attempt < attempts; attempt++ {
		if err := errors.CheckContext(ctx, "node invocation"); err != nil {
			return nil, err
		}

		callCtx := invokeCtx
		cancel := context.CancelFunc(func() {})
		if r.cfg.NodeTimeout > 0 {
			callCtx, cancel = context.WithTimeout(invokeCtx, r.cfg.NodeTimeout)
		}
		result, err := r.nodes.Invoke(callCtx, node, payload)
		cancel()

		if err == nil {
			return result, nil
		}
		lastErr = err

		// Only malformed structured output is worth repairing; anything
		// else escalates immediately.
		if errors.Code(err) != errors.InvalidResponse {
			return nil, err
		}
		logging.GetLogger().Warn(invokeCtx, "repairable node failure (attempt %d/%d): %v", attempt+1, attempts, err)
	}

	return nil, errors.Wrap(lastErr, errors.NodeExecutionFailed, "node repair attempts exhausted")
}

func (r *Runner) handleCompletion(ctx context.Context, st *runState, c *completion) {
	logger := logging.GetLogger()

	st.inFlight--
	st.running[c.node.NodeID]--

	c.inv.EndTime = time.Now()

	if c.err != nil {
		c.inv.Status = core.InvocationFailed
		c.inv.Error = c.err.Error()
		c.inv.UsdCost = costFromError(c.err)
		st.totalCost += c.inv.UsdCost
		r.persistInvocation(ctx, st.runID, c.inv)

		if !st.stopping && ctx.Err() == nil {
			st.failRun(errors.WithFields(
				errors.Wrap(c.err, errors.WorkflowExecutionFailed, "node invocation failed"),
				errors.Fields{"node_id": c.node.NodeID}))
		}
		r.advanceChains(ctx, st, c.node.NodeID)
		return
	}

	c.inv.Status = core.InvocationCompleted
	c.inv.Output = c.result.Output
	c.inv.UsdCost = c.result.UsdCost
	c.inv.Accuracy = c.result.Accuracy
	st.totalCost += c.result.UsdCost
	r.persistInvocation(ctx, st.runID, c.inv)

	if r.budget != nil {
		if err := r.budget.Charge(c.result.UsdCost); err != nil {
			st.failRun(err)
		}
	}

	taken := c.result.TakenHandoffs
	logger.Debug(ctx, "node %s completed, taking %d of %d declared handoffs",
		c.node.NodeID, len(taken), len(c.node.HandOffs))

	if st.stopping || len(taken) == 0 {
		r.advanceChains(ctx, st, c.node.NodeID)
		return
	}

	if c.node.HandOffType == core.HandoffParallel || len(taken) == 1 {
		for _, target := range taken {
			st.deliver(c.node.NodeID, target, c.result.Output)
		}
	} else {
		// Sequential fan-out: deliver the first target now, hold the
		// rest back until the previous branch's head completes.
		st.deliver(c.node.NodeID, taken[0], c.result.Output)
		st.chains = append(st.chains, &chain{
			from:      c.node.NodeID,
			payload:   c.result.Output,
			targets:   taken[1:],
			waitingOn: taken[0],
		})
	}

	r.advanceChains(ctx, st, c.node.NodeID)
}

// advanceChains releases held sequential deliveries whose previous
// branch head has completed or is parked at an unsatisfied join barrier.
func (r *Runner) advanceChains(ctx context.Context, st *runState, completedNode string) {
	remaining := st.chains[:0]
	for _, ch := range st.chains {
		for len(ch.targets) > 0 && (ch.waitingOn == completedNode || ch.waitingOn == core.EndNodeID || st.parkedAtBarrier(ch.waitingOn)) {
			next := ch.targets[0]
			ch.targets = ch.targets[1:]
			st.deliver(ch.from, next, ch.payload)
			ch.waitingOn = next
		}
		if len(ch.targets) > 0 {
			remaining = append(remaining, ch)
		}
	}
	st.chains = remaining
}

// parkedAtBarrier reports whether the node has buffered messages but an
// unsatisfied waitFor barrier, meaning its completion cannot be waited on.
func (st *runState) parkedAtBarrier(nodeID string) bool {
	if nodeID == core.EndNodeID {
		return false
	}
	node := st.graph.NodeByID(nodeID)
	if node == nil || len(node.WaitFor) == 0 {
		return false
	}
	if len(st.inbox[nodeID]) == 0 {
		return false
	}
	for _, pred := range node.WaitFor {
		if !st.delivered[nodeID][pred] {
			return true
		}
	}
	return false
}

// deliver buffers one message on the target's inbox, or records a branch
// output when the target is the end sentinel.
func (st *runState) deliver(from, target string, payload any) {
	if target == core.EndNodeID {
		st.outputs = append(st.outputs, payload)
		return
	}
	st.inbox[target] = append(st.inbox[target], core.AggregatedMessage{Payload: payload, FromNodeID: from})
	if st.delivered[target] == nil {
		st.delivered[target] = make(map[string]bool)
	}
	st.delivered[target][from] = true
}

// dispatchEligible scans buffered targets in graph order and dispatches
// every node whose barrier is satisfied. The scan repeats until no
// additional node becomes eligible.
func (r *Runner) dispatchEligible(ctx context.Context, st *runState, completions chan *completion, sem chan struct{}) {
	for {
		dispatched := false
		for _, node := range st.graph.Nodes {
			if st.stopping {
				return
			}
			msgs := st.inbox[node.NodeID]
			if len(msgs) == 0 || !st.eligible(node) {
				continue
			}

			payload := buildPayload(node, st.graph, msgs)
			delete(st.inbox, node.NodeID)
			delete(st.delivered, node.NodeID)

			r.dispatch(ctx, st, node, payload, completions, sem)
			dispatched = true
		}
		if !dispatched {
			return
		}
	}
}

// eligible decides whether a buffered node may be dispatched now. The
// join rules guarantee a join node is invoked exactly once with all of
// its predecessors' messages aggregated.
func (st *runState) eligible(node *core.Node) bool {
	if st.running[node.NodeID] > 0 {
		return false
	}
	if len(node.WaitFor) > 0 {
		for _, pred := range node.WaitFor {
			if !st.delivered[node.NodeID][pred] {
				return false
			}
		}
		return true
	}

	preds := st.graph.Predecessors(node.NodeID)
	if len(preds) <= 1 {
		return true
	}

	// Implicit join: wait until no pending work can still deliver. A
	// branch counts as pending while any of its nodes is in flight,
	// buffered or chain-held, even when the delivery is several hops away.
	return !st.canStillDeliver(node.NodeID)
}

// canStillDeliver reports whether an in-flight, buffered or chain-held
// node can reach target through static handoffs. Reachability is
// transitive, so an implicit join with asymmetric branches stays blocked
// until the longer branch has fully settled. Paths through the target
// itself are not followed.
func (st *runState) canStillDeliver(target string) bool {
	seen := map[string]bool{target: true}
	var frontier []string
	add := func(id string) {
		if id == core.EndNodeID || seen[id] {
			return
		}
		seen[id] = true
		frontier = append(frontier, id)
	}

	for id, n := range st.running {
		if n > 0 {
			add(id)
		}
	}
	for id, msgs := range st.inbox {
		if len(msgs) > 0 {
			add(id)
		}
	}
	for _, ch := range st.chains {
		for _, t := range ch.targets {
			if t == target {
				return true
			}
			add(t)
		}
	}

	for len(frontier) > 0 {
		id := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		node := st.graph.NodeByID(id)
		if node == nil {
			continue
		}
		for _, next := range node.HandOffs {
			if next == target {
				return true
			}
			add(next)
		}
	}
	return false
}

// buildPayload merges the buffered messages into the payload handed to
// the node: sequential for a single-predecessor node without waitFor,
// aggregated otherwise.
func buildPayload(node *core.Node, graph *core.WorkflowGraph, msgs []core.AggregatedMessage) core.Payload {
	if len(node.WaitFor) == 0 && len(msgs) == 1 && len(graph.Predecessors(node.NodeID)) <= 1 {
		return core.NewSequentialPayload(msgs[0].Payload)
	}
	return core.NewAggregatedPayload(msgs)
}

func (st *runState) failRun(err error) {
	if st.runErr == nil {
		st.runErr = err
	}
	st.stopping = true
}

func (r *Runner) persistInvocation(ctx context.Context, runID string, inv *core.WorkflowInvocation) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveNodeInvocation(ctx, runID, inv); err != nil {
		logging.GetLogger().Error(ctx, "failed to persist node invocation %s: %v", inv.WorkflowInvocationID, err)
	}
}

// costFromError recovers gateway spend attached to a failed invocation
// so failed calls still count against the run's cost.
func costFromError(err error) float64 {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		return 0
	}
	if cost, ok := e.Fields()["usd_cost"].(float64); ok {
		return cost
	}
	return 0
}
