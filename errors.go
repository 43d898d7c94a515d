package tradesync

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("tradesync: not found")
	ErrTransient = errors.New("tradesync: transient failure")
	ErrPermanent = errors.New("tradesync: permanent failure")
	ErrMalformed = errors.New("tradesync: malformed response")
)

// OutcomeError is the error form of a failed Outcome.
// errors.Is matches it against ErrNotFound and the class sentinels.
type OutcomeError struct {
	Kind    Kind
	Code    int
	Reason  string
	Message string
}

func (e *OutcomeError) Error() string {
	switch {
	case e.Code != 0 && e.Message != "":
		return fmt.Sprintf("tradesync: %s (%d): %s", e.Kind, e.Code, e.Message)
	case e.Code != 0:
		return fmt.Sprintf("tradesync: %s (%d)", e.Kind, e.Code)
	case e.Message != "":
		return fmt.Sprintf("tradesync: %s: %s", e.Kind, e.Message)
	default:
		return "tradesync: " + e.Kind.String()
	}
}

func (e *OutcomeError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindClientError && e.Reason == ReasonNotFound
	case ErrTransient:
		return e.Kind == KindServerError || e.Kind == KindNetworkFailure
	case ErrPermanent:
		return e.Kind == KindClientError
	case ErrMalformed:
		return e.Kind == KindMalformed
	}
	return false
}

type InvalidateError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("invalidate %q failed: gen bump and delete failed: bump=%v; delete=%v",
			e.Key, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("invalidate %q: gen bump failed: %v", e.Key, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("invalidate %q: delete failed: %v", e.Key, e.DelErr)
	default:
		return fmt.Sprintf("invalidate %q: unknown error", e.Key)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
