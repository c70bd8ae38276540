package try

// Fataler is something having `Fatal`, like *testing.T or *log.Logger.
type Fataler interface {
	Fatal(...any)
}

// Either holds a result of a fallible call: a value or an error.
type Either[T any] interface {
	// Get returns the pair as it was passed to To.
	Get() (T, error)

	// OrFatal returns the value, or calls ftl.Fatal(err) when there is an error.
	//
	// When ftl has `Helper()` (as *testing.T), it is called before Fatal.
	OrFatal(ftl Fataler) T

	// OrDefault returns the value, or d when there is an error.
	OrDefault(d T) T
}

// To wraps the result of a (T, error) returning call.
//
// Example:
//
//	f := try.To(os.Open(name)).OrFatal(t)
func To[T any](v T, err error) Either[T] {
	if err != nil {
		return failed[T]{err: err}
	}
	return succeeded[T]{value: v}
}

// Map converts the value of either, keeping its error as is.
func Map[T, R any](either Either[T], mapper func(T) R) Either[R] {
	v, err := either.Get()
	if err != nil {
		return failed[R]{err: err}
	}
	return succeeded[R]{value: mapper(v)}
}

type succeeded[T any] struct{ value T }

func (s succeeded[T]) Get() (T, error)   { return s.value, nil }
func (s succeeded[T]) OrFatal(Fataler) T { return s.value }
func (s succeeded[T]) OrDefault(T) T     { return s.value }

type failed[T any] struct{ err error }

func (f failed[T]) Get() (T, error) { return *new(T), f.err }
func (f failed[T]) OrDefault(d T) T { return d }

func (f failed[T]) OrFatal(ftl Fataler) T {
	if h, ok := ftl.(interface{ Helper() }); ok {
		h.Helper()
	}
	ftl.Fatal(f.err)
	return *new(T)
}
