package metrics

/*
Labels and so on for metrics used across imagepromote.
*/

const (
	Namespace = "imagepromote"

	LabelSuccess   = "success"
	LabelOperation = "operation"

	// Labels for promotion metrics
	LabelOutcome = "outcome"
	LabelStage   = "stage"

	// Labels for health metrics
	LabelCheck = "check"

	// Labels for the monitor's HTTP server
	LabelMethod = "method"
	LabelRoute  = "route"
)
