package orchestrator

import "fmt"

// ConfigurationError marks a batch that cannot run at all, such as a period
// set missing one of the two classes. No per-entity work starts.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid analysis configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// FetchError marks one entity whose history could not be retrieved. The
// rest of the batch continues.
type FetchError struct {
	EntityID string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch history for %s: %v", e.EntityID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AnalysisError marks one entity whose analysis failed or panicked. The
// rest of the batch continues.
type AnalysisError struct {
	EntityID string
	Err      error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analyze %s: %v", e.EntityID, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }
