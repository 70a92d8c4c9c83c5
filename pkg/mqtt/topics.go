package mqtt

import "fmt"

// Topic constants for the Bayesian analysis request/response flow
const (
	// Request topics (input)
	TopicAnalyzeRequest  = "automation/bayes/analyze"
	TopicSimulateRequest = "automation/bayes/simulate"

	// Response topic prefixes (output, suffixed with the request id)
	TopicProgressBase         = "automation/bayes/progress"
	TopicResultBase           = "automation/bayes/result"
	TopicSimulationResultBase = "automation/bayes/simulation"
)

// ProgressTopic constructs the per-request topic for incremental entity status updates
// Pattern: automation/bayes/progress/{request_id}
func ProgressTopic(requestID string) string {
	return fmt.Sprintf("%s/%s", TopicProgressBase, requestID)
}

// ResultTopic constructs the per-request topic for the final ranked observation list
// Pattern: automation/bayes/result/{request_id}
func ResultTopic(requestID string) string {
	return fmt.Sprintf("%s/%s", TopicResultBase, requestID)
}

// SimulationResultTopic constructs the per-request topic for simulation summaries
// Pattern: automation/bayes/simulation/{request_id}
func SimulationResultTopic(requestID string) string {
	return fmt.Sprintf("%s/%s", TopicSimulationResultBase, requestID)
}
