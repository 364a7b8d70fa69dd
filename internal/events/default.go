package events

var std = NewJournal(DefaultBufferSize)

// Default returns the process-wide journal used by the package functions.
func Default() *Journal { return std }

func Emit(level, name, msg string, fields map[string]interface{}) (Event, error) {
	return std.Emit(level, name, msg, fields)
}

func Snapshot() []Event { return std.Snapshot() }

// RecentEvents returns the last n events from the default journal.
func RecentEvents(n int) []Event { return std.Recent(n) }

func Subscribe() Subscriber { return std.Subscribe() }

func Unsubscribe(sub Subscriber) { std.Unsubscribe(sub) }

func SubscriberCount() int { return std.SubscriberCount() }

// TotalCount returns how many events the default journal has recorded.
func TotalCount() uint64 { return std.Total() }

// Clear resets the default journal's buffer. Used for testing.
func Clear() { std.Clear() }
