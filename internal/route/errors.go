package route

import "errors"

// Sentinel errors for hop analysis. Callers match them with errors.Is; the
// returned errors wrap them with the entity and LID involved.
var (
	// ErrFabricNotFound means no usable fabric is loaded. Fatal for a whole run.
	ErrFabricNotFound = errors.New("route: fabric not found")

	// ErrSourceUnresolved means the source node is unknown or cannot reach the fabric.
	ErrSourceUnresolved = errors.New("route: source unresolved")

	// ErrTargetUnresolved means the target node is unknown or cannot be reached off the fabric.
	ErrTargetUnresolved = errors.New("route: target unresolved")

	// ErrNoRoute means a forwarding table had no usable entry for the target LID.
	ErrNoRoute = errors.New("route: no route found")

	// ErrRoutingLoop means the walk revisited an entity without reaching the target.
	ErrRoutingLoop = errors.New("route: routing loop detected")
)

// Outcome classifies a query result for sinks and metrics.
type Outcome string

const (
	OutcomeOK         Outcome = "ok"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeNoRoute    Outcome = "no_route"
	OutcomeLoop       Outcome = "loop"
	OutcomeNoFabric   Outcome = "no_fabric"
	OutcomeError      Outcome = "error"
)

// OutcomeOf maps an error returned by this package to its Outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrNoRoute):
		return OutcomeNoRoute
	case errors.Is(err, ErrRoutingLoop):
		return OutcomeLoop
	case errors.Is(err, ErrSourceUnresolved), errors.Is(err, ErrTargetUnresolved):
		return OutcomeUnresolved
	case errors.Is(err, ErrFabricNotFound):
		return OutcomeNoFabric
	}
	return OutcomeError
}
