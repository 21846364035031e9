package flowmanager

import "sync"

var (
	instanceMu sync.Mutex
	instance   *FlowManager
)

// Instance returns the process-wide default FlowManager, constructing it
// with opts on first call. Later calls ignore opts once an instance
// already exists — use ResetInstance first to reconfigure it.
func Instance(opts ...Option) *FlowManager {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance == nil {
		instance = New(opts...)
	}
	return instance
}

// ResetInstance discards the process-wide default FlowManager. The next
// Instance call constructs a fresh one. Existing references to the old
// instance keep working; they are simply no longer "the" singleton.
func ResetInstance() {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = nil
}
