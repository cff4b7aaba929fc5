package records

// Mutation outcomes reported to an Observer.
const (
	outcomeWritten  = "written"
	outcomeNoop     = "noop"
	outcomeRejected = "rejected"
	outcomeConflict = "conflict"
	outcomeError    = "error"
)

// Observer receives store events; internal/platform/telemetry implements it
// with Prometheus counters.
type Observer interface {
	Mutation(collection, op, outcome string)
	ConflictRetry(collection string)
}

type nopObserver struct{}

func (nopObserver) Mutation(string, string, string) {}
func (nopObserver) ConflictRetry(string)            {}
