package enum

// ProcessingStatus tracks an email log through its lifecycle.
// RECEIVED is the only initial state; COMPLETE, FAILED_PARSING and
// FAILED_ANALYSIS are terminal for automatic transitions.
type ProcessingStatus string

const (
	StatusReceived       ProcessingStatus = "RECEIVED"
	StatusParsing        ProcessingStatus = "PARSING"
	StatusParsed         ProcessingStatus = "PARSED"
	StatusAnalyzing      ProcessingStatus = "ANALYZING"
	StatusComplete       ProcessingStatus = "COMPLETE"
	StatusFailedParsing  ProcessingStatus = "FAILED_PARSING"
	StatusFailedAnalysis ProcessingStatus = "FAILED_ANALYSIS"
)

func (s ProcessingStatus) String() string {
	return string(s)
}

// Terminal reports whether no automatic transition may leave this state.
func (s ProcessingStatus) Terminal() bool {
	switch s {
	case StatusComplete, StatusFailedParsing, StatusFailedAnalysis:
		return true
	}
	return false
}

// Failed reports whether the state is one of the failure branches.
func (s ProcessingStatus) Failed() bool {
	return s == StatusFailedParsing || s == StatusFailedAnalysis
}

// Analyzable reports whether an analysis run may target an email in
// this state: PARSED or later, but not a terminal failure.
func (s ProcessingStatus) Analyzable() bool {
	switch s {
	case StatusParsed, StatusAnalyzing, StatusComplete:
		return true
	}
	return false
}
