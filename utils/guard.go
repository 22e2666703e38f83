package utils

// Guard runs a cleanup when a constructor bails out early, so every error return does not have to
// repeat it. Typical use:
//
//	guard := NewGuard(func() { transport.Close() })
//	defer guard.OnFail()
//	...
//	guard.Success()
type Guard struct {
	OnFail  func()
	success bool
}

// NewGuard returns a guard that calls onFailCleanup from OnFail unless Success was called first.
func NewGuard(onFailCleanup func()) *Guard {
	g := &Guard{}
	g.OnFail = func() {
		if !g.success {
			onFailCleanup()
		}
	}
	return g
}

// Success disarms the cleanup.
func (g *Guard) Success() {
	g.success = true
}
