package engine

// Signals the runtime delivers on its own.
const (
	SignalInit          = "Init"
	SignalFixedUpdate   = "FixedUpdate"
	SignalUpdate        = "Update"
	SignalLateUpdate    = "LateUpdate"
	SignalDestroy       = "Destroy"
	SignalKeyDown       = "KeyDown"
	SignalKeyUp         = "KeyUp"
	SignalTimer         = "Timer"
	SignalTweenComplete = "TweenComplete"
)
