package session

import "sync"

// outcome is the terminal result of one operation.
type outcome struct {
	path  string
	err   error
	state State // state when the operation resolved
}

// pendingOp is a caller waiting for a result from the executor. It resolves
// exactly once; later resolutions are ignored.
type pendingOp struct {
	done chan outcome
	once sync.Once
}

func newPendingOp() *pendingOp {
	return &pendingOp{done: make(chan outcome, 1)}
}

// resolve reports whether this call was the one that resolved op.
func (op *pendingOp) resolve(o outcome) bool {
	resolved := false
	op.once.Do(func() {
		op.done <- o
		resolved = true
	})
	return resolved
}

// coordinator holds at most one preview request waiting for SessionReady.
// It is only touched on the session executor.
type coordinator struct {
	preview *pendingOp
}

// enqueue stores op, resolving any request it replaces with ErrSuperseded.
func (c *coordinator) enqueue(op *pendingOp, state State) {
	if c.preview != nil {
		c.preview.resolve(outcome{err: ErrSuperseded, state: state})
	}
	c.preview = op
}

// take removes and returns the waiting request, if any.
func (c *coordinator) take() *pendingOp {
	op := c.preview
	c.preview = nil
	return op
}

// withdraw drops op if it is still waiting.
func (c *coordinator) withdraw(op *pendingOp) bool {
	if c.preview != op {
		return false
	}
	c.preview = nil
	return true
}

// cancel resolves the waiting request with err and reports whether there was one.
func (c *coordinator) cancel(err error, state State) bool {
	op := c.take()
	if op == nil {
		return false
	}
	return op.resolve(outcome{err: err, state: state})
}
