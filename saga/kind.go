package saga

// Kind names an effect for logs, metrics and tracing.
type Kind string

const (
	KindSelect Kind = "select"
	KindPut    Kind = "put"
	KindCall   Kind = "call"
	KindSleep  Kind = "sleep"
	KindFork   Kind = "fork"
	KindTake   Kind = "take"
	KindJoin   Kind = "join"
	KindCancel Kind = "cancel"

	KindTakeEvery   Kind = "take_every"
	KindTakeLatest  Kind = "take_latest"
	KindTakeLeading Kind = "take_leading"
	KindDebounce    Kind = "debounce"
	KindThrottle    Kind = "throttle"
	KindAll         Kind = "all"
	KindFirst       Kind = "first"
	KindRun         Kind = "run"
	KindDelay       Kind = "delay"
	KindRetry       Kind = "retry"
)
