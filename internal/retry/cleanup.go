package retry

import "sync"

// CleanupGuard is a scoped acquisition that runs a cleanup action on exit
// unless dismissed, or runs it early exactly once via Trigger. Guards are
// typically deferred immediately after acquiring a resource, matching the
// teacher's defer-heavy resource handling (resp.Body.Close(), tracer.Close()).
type CleanupGuard struct {
	mu        sync.Mutex
	action    func()
	ran       bool
	dismissed bool
}

// NewCleanupGuard wraps action for scoped, exactly-once execution.
func NewCleanupGuard(action func()) *CleanupGuard {
	return &CleanupGuard{action: action}
}

// Dismiss prevents the cleanup action from ever running.
func (g *CleanupGuard) Dismiss() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dismissed = true
}

// Trigger runs the cleanup action now, if it has not already run or been
// dismissed. Safe to call multiple times; only the first call has effect.
func (g *CleanupGuard) Trigger() {
	g.mu.Lock()
	shouldRun := !g.ran && !g.dismissed
	g.ran = true
	g.mu.Unlock()

	if shouldRun {
		g.runSafely()
	}
}

// Close runs the cleanup action unless already run or dismissed. Intended
// for `defer guard.Close()`; it is the destructor-equivalent scope exit.
func (g *CleanupGuard) Close() {
	g.Trigger()
}

func (g *CleanupGuard) runSafely() {
	defer func() {
		// An exception in the cleanup action is swallowed, per spec.md §4.2.
		recover()
	}()
	if g.action != nil {
		g.action()
	}
}

// GuardStack runs a LIFO sequence of cleanup guards, mirroring how multiple
// scoped guards unwind within a single function scope.
type GuardStack struct {
	guards []*CleanupGuard
}

// Push adds a new guard to the top of the stack and returns it.
func (s *GuardStack) Push(action func()) *CleanupGuard {
	g := NewCleanupGuard(action)
	s.guards = append(s.guards, g)
	return g
}

// Unwind triggers every guard on the stack in LIFO order.
func (s *GuardStack) Unwind() {
	for i := len(s.guards) - 1; i >= 0; i-- {
		s.guards[i].Trigger()
	}
	s.guards = nil
}
