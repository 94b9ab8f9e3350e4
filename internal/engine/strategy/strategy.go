// Package strategy implements ExecutionStrategy (§4.6 step 5): the retry
// envelope around a node's function or lifecycle body. Grounded on the
// teacher's execution.Executor.ExecuteWithRetry (fixed exponential-ish
// backoff loop around a single node-type switch), generalized into two
// strategies selected by which contract (Func vs LifecycleNode) the registry
// resolved, and into the lifecycle's distinct prep/exec/post/fallback/recover
// phases where only exec is retried.
package strategy

import (
	"time"

	"github.com/flowcraft/flowcraft/internal/engine/executor"
	"github.com/flowcraft/flowcraft/internal/pkg/errors"
)

// Strategy executes one node body to a settled NodeResult, applying retry
// semantics. It never emits events itself — the caller (NodeExecutor) owns
// event emission and fallback routing.
type Strategy interface {
	Execute(nc executor.NodeContext) (executor.NodeResult, error)
}

// RetryHook is invoked before each attempt after the first, letting the
// caller emit node:retry.
type RetryHook func(nc executor.NodeContext, attempt int)

func defaultMaxRetries(configured int) int {
	if configured <= 0 {
		return 1
	}
	return configured
}

func defaultRetryDelay(configuredMs int) time.Duration {
	if configuredMs <= 0 {
		return 0
	}
	return time.Duration(configuredMs) * time.Millisecond
}

// isCancelled reports whether nc's Go context has been cancelled, the signal
// that must stop a retry loop immediately regardless of remaining attempts
// (§5 "must check for cancellation between attempts").
func isCancelled(nc executor.NodeContext) bool {
	if nc.GoCtx == nil {
		return false
	}
	select {
	case <-nc.GoCtx.Done():
		return true
	default:
		return false
	}
}

// FunctionStrategy retries the whole Func body on failure, up to maxRetries
// attempts, waiting retryDelay between attempts, stopping early on
// cancellation or a fatal error (§4.6 step 5, §5).
type FunctionStrategy struct {
	Fn           executor.Func
	MaxRetries   int
	RetryDelayMs int
	OnRetry      RetryHook
}

func (s FunctionStrategy) Execute(nc executor.NodeContext) (executor.NodeResult, error) {
	maxAttempts := defaultMaxRetries(s.MaxRetries)
	delay := defaultRetryDelay(s.RetryDelayMs)

	var lastResult executor.NodeResult
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if isCancelled(nc) {
			return executor.NodeResult{}, errors.Cancelled("node execution cancelled")
		}
		if attempt > 1 {
			if s.OnRetry != nil {
				s.OnRetry(nc, attempt)
			}
			if delay > 0 {
				time.Sleep(delay)
			}
		}

		result, err := s.Fn(nc)
		if err == nil {
			return result, nil
		}

		lastResult, lastErr = result, err
		if fe, ok := err.(*errors.FlowError); ok && fe.IsFatal() {
			break // fatal errors never retry (§4.6 step 5)
		}
	}
	return lastResult, lastErr
}

// LifecycleStrategy runs prep once, retries exec up to maxRetries, and on
// final exec failure calls fallback once (skipped for a fatal error). Post
// runs once on exec or fallback success; otherwise recover runs once (§4.6
// step 5, §6 LifecycleNode contract).
type LifecycleStrategy struct {
	Node         executor.LifecycleNode
	MaxRetries   int
	RetryDelayMs int
	OnRetry      RetryHook
}

func (s LifecycleStrategy) Execute(nc executor.NodeContext) (executor.NodeResult, error) {
	prepResult, err := s.Node.Prep(nc)
	if err != nil {
		s.Node.Recover(err, nc)
		return executor.NodeResult{}, err
	}

	maxAttempts := defaultMaxRetries(s.MaxRetries)
	delay := defaultRetryDelay(s.RetryDelayMs)

	var execResult executor.NodeResult
	var execErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if isCancelled(nc) {
			return executor.NodeResult{}, errors.Cancelled("node execution cancelled")
		}
		if attempt > 1 {
			if s.OnRetry != nil {
				s.OnRetry(nc, attempt)
			}
			if delay > 0 {
				time.Sleep(delay)
			}
		}

		execResult, execErr = s.Node.Exec(prepResult, nc)
		if execErr == nil {
			break
		}
		if fe, ok := execErr.(*errors.FlowError); ok && fe.IsFatal() {
			break
		}
	}

	if execErr != nil {
		if fe, ok := execErr.(*errors.FlowError); !ok || !fe.IsFatal() {
			execResult, execErr = s.Node.Fallback(execErr, nc)
		}
	}
	if execErr != nil {
		s.Node.Recover(execErr, nc)
		return execResult, execErr
	}

	return s.Node.Post(execResult, nc)
}

// Select builds the correct Strategy for whatever the registry resolved for
// a node's `uses` key, per §6: Func -> FunctionStrategy, LifecycleFactory ->
// LifecycleStrategy (constructed with this node's params/nodeID).
func Select(resolved interface{}, nodeID string, params map[string]interface{}, maxRetries, retryDelayMs int, onRetry RetryHook) (Strategy, error) {
	switch impl := resolved.(type) {
	case executor.Func:
		return FunctionStrategy{Fn: impl, MaxRetries: maxRetries, RetryDelayMs: retryDelayMs, OnRetry: onRetry}, nil
	case executor.LifecycleFactory:
		return LifecycleStrategy{Node: impl(params, nodeID), MaxRetries: maxRetries, RetryDelayMs: retryDelayMs, OnRetry: onRetry}, nil
	default:
		return nil, errors.Configuration("registry entry is neither a Func nor a LifecycleFactory")
	}
}
