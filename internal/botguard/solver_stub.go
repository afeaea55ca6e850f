//go:build !botguard

package botguard

// Available reports whether this build can run solver scripts.
const Available = false

// NewSolver always returns nil; build with -tags botguard to run scripts.
func NewSolver(scriptPath string) Solver {
	return nil
}
