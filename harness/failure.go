package harness

import (
	"errors"
	"fmt"

	"github.com/marcodamonte/concurrency/lazy-cache/cache"
)

// PanicError carries a value recovered from a panicking client.
type PanicError struct {
	Value any
}

// Error reports the recovered value.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// recoverLoads turns a panic in load into a *PanicError. The eager cache
// runs its loader while Run builds it, outside any worker, so the recover in
// the worker goroutine cannot catch that one.
func recoverLoads(load cache.Loader) cache.Loader {
	return func() (v int, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = &PanicError{Value: p}
			}
		}()
		return load()
	}
}

// Failure describes one failed client.
type Failure struct {
	Thread  int    // index of the worker that failed
	Number  int64  // 1-based order in which the failure was counted
	Kind    string // Go type of the underlying error, e.g. "*errors.errorString"
	Message string
	Err     error
}

// String renders f as one line of the failure banner.
func (f Failure) String() string {
	return fmt.Sprintf("Failure number %d (%s:%s)", f.Number, f.Kind, f.Message)
}

func newFailure(thread int, number int64, err error) Failure {
	return Failure{
		Thread:  thread,
		Number:  number,
		Kind:    kindOf(err),
		Message: err.Error(),
		Err:     err,
	}
}

// kindOf names the type of the innermost error in err's wrap chain.
// Recovered panics always report as *harness.PanicError.
func kindOf(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return fmt.Sprintf("%T", pe)
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}
