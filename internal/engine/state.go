package engine

import "news-forecaster/internal/types"

// State is the outcome of one (model, article) or (model, ticker) run.
type State int

const (
	Pending State = iota
	Dispatched
	Declined
	ParseFailed
	ValidationFailed
	QuotaExceeded
	PayloadTooLarge
	TransientFailure
	SaveFailed
	Saved
)

var stateNames = [...]string{
	Pending:          "Pending",
	Dispatched:       "Dispatched",
	Declined:         "Declined",
	ParseFailed:      "ParseFailed",
	ValidationFailed: "ValidationFailed",
	QuotaExceeded:    "QuotaExceeded",
	PayloadTooLarge:  "PayloadTooLarge",
	TransientFailure: "TransientFailure",
	SaveFailed:       "SaveFailed",
	Saved:            "Saved",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

func stateForKind(k types.ErrorKind) State {
	switch k {
	case types.KindSuccess:
		return Dispatched
	case types.KindQuotaExceeded:
		return QuotaExceeded
	case types.KindPayloadTooLarge:
		return PayloadTooLarge
	default:
		return TransientFailure
	}
}
