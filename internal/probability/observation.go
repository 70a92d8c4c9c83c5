package probability

// Observation kinds.
const (
	KindDiscrete = "discrete"
	KindNumeric  = "numeric"
)

// Observation is the external descriptor for one selected candidate,
// consumed by the simulator and the config renderer.
type Observation struct {
	EntityID       string   `json:"entity_id"`
	Kind           string   `json:"kind"`
	ProbGivenTrue  float64  `json:"prob_given_true"`
	ProbGivenFalse float64  `json:"prob_given_false"`
	ToState        string   `json:"to_state,omitempty"`
	Above          *float64 `json:"above,omitempty"`
	Below          *float64 `json:"below,omitempty"`
}

// ToObservation converts a scored candidate into its external descriptor.
func (ep EntityProbability) ToObservation() Observation {
	obs := Observation{
		EntityID:       ep.EntityID,
		ProbGivenTrue:  ep.ProbGivenTrue,
		ProbGivenFalse: ep.ProbGivenFalse,
	}
	if ep.OptimalThresholds != nil {
		obs.Kind = KindNumeric
		obs.Above = ep.OptimalThresholds.Above
		obs.Below = ep.OptimalThresholds.Below
	} else {
		obs.Kind = KindDiscrete
		obs.ToState = ep.State
	}
	return obs
}
