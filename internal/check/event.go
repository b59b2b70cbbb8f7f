package check

import "time"

// EventKind tells a sink what an Event carries.
type EventKind int

const (
	// EventResult is the single terminal line for one candidate. It also
	// carries the progress value after the increment.
	EventResult EventKind = iota + 1
	// EventStatus is an informational line (run start, rate-limit retry).
	EventStatus
	// EventCooldown is a cooldown start, countdown tick, or completion line.
	EventCooldown
	// EventDebug is an adapter or engine trace line, only sent in debug mode.
	EventDebug
	// EventDone is sent once, after every task and hook has returned.
	EventDone
)

// Category lets consumers tell lines apart without parsing the message.
type Category string

const (
	CategoryAvailable Category = "AVAILABLE"
	CategoryTaken     Category = "TAKEN"
	CategoryUnclear   Category = "UNCLEAR"
	CategoryRateLimit Category = "RATE LIMIT"
	CategoryAuthError Category = "AUTH ERROR"
	CategoryError     Category = "ERROR"
	CategoryTimeout   Category = "TIMEOUT"
	CategoryCooldown  Category = "COOLDOWN"
	CategoryInfo      Category = "INFO"
	CategoryDebug     Category = "DEBUG"
)

// CategoryOf maps an outcome onto its display category.
func CategoryOf(o Outcome) Category {
	switch o.Verdict {
	case Available:
		return CategoryAvailable
	case Taken:
		return CategoryTaken
	case Unclear:
		return CategoryUnclear
	case RateLimited:
		return CategoryRateLimit
	case AuthError:
		return CategoryAuthError
	}
	if o.Timeout {
		return CategoryTimeout
	}
	return CategoryError
}

// StopReason says why a run ended.
type StopReason int

const (
	StopExhausted StopReason = iota + 1
	StopCancelled
)

func (r StopReason) String() string {
	switch r {
	case StopExhausted:
		return "exhausted"
	case StopCancelled:
		return "cancelled"
	default:
		return "running"
	}
}

// Event is one entry of the run's output stream.
type Event struct {
	RunID     string
	Platform  string
	Kind      EventKind
	Category  Category
	Candidate string
	Verdict   Verdict
	Message   string

	// Progress and Total are set on every event; Progress only changes on
	// EventResult.
	Progress int
	Total    int

	// Remaining is the countdown value for EventCooldown ticks.
	Remaining int
	// Stop is set on EventDone.
	Stop StopReason

	Time time.Time
}

// Sink consumes events. The engine never calls it concurrently.
type Sink func(Event)

// Tee fans one event out to several sinks in order.
func Tee(sinks ...Sink) Sink {
	return func(ev Event) {
		for _, s := range sinks {
			if s != nil {
				s(ev)
			}
		}
	}
}
