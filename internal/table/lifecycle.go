package table

import "sync"

// Lifecycle is a core.Navigator driven by explicit page transitions.
type Lifecycle struct {
	mu     sync.Mutex
	before []func()
	after  []func()
}

// OnBeforeNavigate registers fn to run before the current page is left.
func (l *Lifecycle) OnBeforeNavigate(fn func()) {
	l.mu.Lock()
	l.before = append(l.before, fn)
	l.mu.Unlock()
}

// OnAfterNavigate registers fn to run once a new page has been built.
func (l *Lifecycle) OnAfterNavigate(fn func()) {
	l.mu.Lock()
	l.after = append(l.after, fn)
	l.mu.Unlock()
}

// Leave runs the before-navigate hooks.
func (l *Lifecycle) Leave() {
	l.run(&l.before)
}

// Arrive runs the after-navigate hooks.
func (l *Lifecycle) Arrive() {
	l.run(&l.after)
}

func (l *Lifecycle) run(hooks *[]func()) {
	l.mu.Lock()
	fns := append([]func(){}, *hooks...)
	l.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
