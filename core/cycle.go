package core

import "fmt"

// CycleState is the stage a block production cycle is in.
type CycleState int

const (
	StateIdle CycleState = iota
	StateCollecting
	StateSigning
	StateSubmitting
	StateAppended
)

var cycleStateNames = []string{"idle", "collecting", "signing", "submitting", "appended"}

// String implements fmt.Stringer.
func (s CycleState) String() string {
	if s >= 0 && int(s) < len(cycleStateNames) {
		return cycleStateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}
