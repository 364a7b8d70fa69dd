package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/AaronLay10/SentientPlay/internal/events"
)

// Command names accepted by Execute.
const (
	CommandStart  = "start"
	CommandStop   = "stop"
	CommandPause  = "pause"
	CommandResume = "resume"
	CommandStep   = "step"
	CommandKey    = "key"
)

// ErrUnknownCommand rejects a command name Execute does not know.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a remote play-mode command as carried by the API and MQTT.
type Command struct {
	Name   string `json:"command"`
	Apply  bool   `json:"apply,omitempty"`
	Frames int    `json:"frames,omitempty"`
	Key    string `json:"key,omitempty"`
	Down   bool   `json:"down,omitempty"`
}

// ParseCommand decodes a JSON command. Names are case-insensitive.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("invalid command JSON: %w", err)
	}
	cmd.Name = strings.ToLower(strings.TrimSpace(cmd.Name))
	if cmd.Name == "" {
		return Command{}, fmt.Errorf("command is required")
	}
	return cmd, nil
}

// Execute journals cmd as received from source and runs it. A step with no
// frame count steps one frame.
func (o *Orchestrator) Execute(cmd Command, source string) error {
	o.emit(events.LevelInfo, "command.received", "", map[string]interface{}{
		"command": cmd.Name,
		"source":  source,
	})

	switch cmd.Name {
	case CommandStart:
		return o.Start()
	case CommandStop:
		return o.Stop(cmd.Apply)
	case CommandPause:
		return o.Pause()
	case CommandResume:
		return o.Resume()
	case CommandStep:
		n := cmd.Frames
		if n == 0 {
			n = 1
		}
		return o.StepFrame(n)
	case CommandKey:
		if cmd.Key == "" {
			return o.rejectLocked(cmd.Name, fmt.Errorf("key: key is required"))
		}
		if cmd.Down {
			o.input.KeyDown(cmd.Key)
		} else {
			o.input.KeyUp(cmd.Key)
		}
		return nil
	default:
		return o.rejectLocked(cmd.Name, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name))
	}
}

func (o *Orchestrator) rejectLocked(command string, err error) error {
	o.mu.Lock()
	defer o.unlock()
	return o.reject(command, err)
}
