// Package middleware implements the before/around/after hook chain around
// node execution (§4.6 step 4). Grounded on the teacher's lack of a
// middleware layer — there is none in duragraph's execution pipeline — so
// this package follows the pack's general convention for ordered handler
// chains (the same LIFO-around-a-core shape used by HTTP middleware in
// labstack/echo, which the teacher already depends on and uses elsewhere for
// its own HTTP layer).
package middleware

import "github.com/flowcraft/flowcraft/internal/engine/executor"

// Before runs before the core strategy executes. Returning an error aborts
// execution before `around`/core ever run.
type Before func(nc *executor.NodeContext) error

// Core is the wrapped strategy invocation an Around hook surrounds.
type Core func() (executor.NodeResult, error)

// Around wraps the core strategy invocation only: every Before has already
// run when the chain starts, and every After runs once it returns. The first
// registered Around is outermost.
type Around func(nc *executor.NodeContext, next Core) (executor.NodeResult, error)

// After runs after core settles (success or error), in registration order,
// regardless of whether a fatal error occurred.
type After func(nc *executor.NodeContext, result executor.NodeResult, err error)

// Chain holds every registered hook in registration order.
type Chain struct {
	befores []Before
	arounds []Around
	afters  []After
}

// NewChain builds an empty chain.
func NewChain() *Chain { return &Chain{} }

// UseBefore appends a before hook.
func (c *Chain) UseBefore(b Before) { c.befores = append(c.befores, b) }

// UseAround appends an around hook.
func (c *Chain) UseAround(a Around) { c.arounds = append(c.arounds, a) }

// UseAfter appends an after hook.
func (c *Chain) UseAfter(a After) { c.afters = append(c.afters, a) }

// Execute runs every `before` in order, then wraps core into the `around`
// chain (reverse registration order, so the first registered middleware's
// before/after surround the entire chain), then runs every `after` in order
// with the settled result/error (§4.6 step 4, §5a ordering guarantee).
func (c *Chain) Execute(nc *executor.NodeContext, core Core) (executor.NodeResult, error) {
	for _, before := range c.befores {
		if err := before(nc); err != nil {
			result, execErr := executor.NodeResult{Err: err}, err
			c.runAfters(nc, result, execErr)
			return result, execErr
		}
	}

	wrapped := core
	for i := len(c.arounds) - 1; i >= 0; i-- {
		around := c.arounds[i]
		next := wrapped
		wrapped = func() (executor.NodeResult, error) {
			return around(nc, next)
		}
	}

	result, err := wrapped()
	c.runAfters(nc, result, err)
	return result, err
}

func (c *Chain) runAfters(nc *executor.NodeContext, result executor.NodeResult, err error) {
	for _, after := range c.afters {
		after(nc, result, err)
	}
}
