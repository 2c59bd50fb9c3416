package types

import (
	"errors"
	"fmt"
)

// ErrorKind is the provider-independent classification of a completion failure.
type ErrorKind int

const (
	KindSuccess ErrorKind = iota
	KindQuotaExceeded
	KindPayloadTooLarge
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindSuccess:
		return "Success"
	case KindQuotaExceeded:
		return "QuotaExceeded"
	case KindPayloadTooLarge:
		return "PayloadTooLarge"
	case KindTransient:
		return "TransientFailure"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ProviderError is returned by every ProviderClient variant.
type ProviderError struct {
	Kind       ErrorKind
	Provider   string
	Model      string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: %s (status %d): %v", e.Provider, e.Model, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Model, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// KindOf classifies err. Errors that are not a *ProviderError count as transient.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindSuccess
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}
