package model

// Status is the lifecycle state of a job
type Status string

const (
	StatusIngested          Status = "INGESTED"
	StatusProcessing        Status = "PROCESSING"
	StatusExtractingText    Status = "EXTRACTING_TEXT"
	StatusTextReady         Status = "TEXT_READY"
	StatusClaimExtraction   Status = "CLAIM_EXTRACTION"
	StatusClaimsReady       Status = "CLAIMS_READY"
	StatusEvidenceRetrieval Status = "EVIDENCE_RETRIEVAL"
	StatusEvidenceReady     Status = "EVIDENCE_READY"
	StatusGeminiReview      Status = "GEMINI_REVIEW"
	StatusGeminiReady       Status = "GEMINI_READY"
	StatusScoring           Status = "SCORING"
	StatusReady             Status = "READY"
	StatusFailed            Status = "FAILED"
)

// statusOrder is the strict forward sequence a successful job walks through
var statusOrder = []Status{
	StatusIngested,
	StatusProcessing,
	StatusExtractingText,
	StatusTextReady,
	StatusClaimExtraction,
	StatusClaimsReady,
	StatusEvidenceRetrieval,
	StatusEvidenceReady,
	StatusGeminiReview,
	StatusGeminiReady,
	StatusScoring,
	StatusReady,
}

// AllStatuses returns every status value, forward order first, FAILED last
func AllStatuses() []Status {
	out := make([]Status, 0, len(statusOrder)+1)
	out = append(out, statusOrder...)
	return append(out, StatusFailed)
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	return s == StatusFailed || s.index() >= 0
}

// Terminal reports whether no further transition is expected from s
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Runnable reports whether a pipeline run may start from s
func (s Status) Runnable() bool {
	return s == StatusIngested || s == StatusFailed
}

func (s Status) index() int {
	for i, st := range statusOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// CanTransition reports whether moving from s to next is legal.
//
// Rules:
//   - forward by exactly one step along the status order
//   - CLAIM_EXTRACTION may jump straight to READY (no claims found)
//   - any non-terminal status may move to FAILED
//   - FAILED may re-enter at PROCESSING
//   - setting the same status again is a no-op and allowed
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch {
	case next == StatusFailed:
		return !s.Terminal()
	case s == StatusFailed:
		return next == StatusProcessing
	case s == StatusClaimExtraction && next == StatusReady:
		return true
	}
	from, to := s.index(), next.index()
	return from >= 0 && to == from+1
}
