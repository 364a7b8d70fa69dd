package events

import "fmt"

// Levels used by journal entries.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

var allowedEvents = map[string]struct{}{
	// play session
	"play.started": {},
	"play.stopped": {},
	"play.paused":  {},
	"play.resumed": {},
	"play.stepped": {},

	// sessions a previous process left running
	"play.interrupted": {},

	// behaviors
	"behavior.bound":   {},
	"behavior.unbound": {},
	"behavior.error":   {},

	// graphs
	"graph.loaded":      {},
	"graph.load_failed": {},
	"graph.warning":     {},

	// variables
	"variable.readonly": {},

	// entities
	"entity.spawned":   {},
	"entity.destroyed": {},

	// operator commands
	"command.received": {},
	"command.rejected": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

// Validate rejects names outside the allow-list.
func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
