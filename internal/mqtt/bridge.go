package mqtt

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/SentientPlay/internal/orchestrator"
)

// Source tags commands that arrived over MQTT in the journal.
const Source = "mqtt"

// Transport is the part of Client the bridge needs.
type Transport interface {
	Subscribe(topic string, handler paho.MessageHandler) error
	Publish(topic string, retained bool, payload []byte) error
}

// Controller is the play-mode surface the bridge drives.
type Controller interface {
	Execute(cmd orchestrator.Command, source string) error
	Status() orchestrator.Status
	Stats() orchestrator.Stats
}

// Topics are the bridge's topics under one prefix.
type Topics struct {
	Command   string
	Reply     string
	Status    string
	Heartbeat string
}

// TopicsFor derives the topic set for prefix.
func TopicsFor(prefix string) Topics {
	return Topics{
		Command:   prefix + "/command",
		Reply:     prefix + "/reply",
		Status:    prefix + "/status",
		Heartbeat: prefix + "/heartbeat",
	}
}

// Reply answers every command message on the reply topic.
type Reply struct {
	Command string              `json:"command,omitempty"`
	OK      bool                `json:"ok"`
	Error   string              `json:"error,omitempty"`
	Status  orchestrator.Status `json:"status"`
}

// StatusMessage is published, retained, on every state transition.
type StatusMessage struct {
	Transition orchestrator.Transition `json:"transition"`
	Status     orchestrator.Status     `json:"status"`
}

// Bridge subscribes to the command topic and publishes play-mode state.
// Subscription tracking is idempotent across reconnects.
type Bridge struct {
	mu         sync.Mutex
	transport  Transport
	ctrl       Controller
	topics     Topics
	logger     *slog.Logger
	subscribed map[string]bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewBridge creates a bridge for ctrl under prefix.
func NewBridge(t Transport, ctrl Controller, prefix string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		transport:  t,
		ctrl:       ctrl,
		topics:     TopicsFor(prefix),
		logger:     logger.With("component", "mqtt-bridge"),
		subscribed: make(map[string]bool),
	}
}

// Topics returns the bridge's topics.
func (b *Bridge) Topics() Topics { return b.topics }

// Subscribe subscribes to the command topic if not already subscribed.
func (b *Bridge) Subscribe() error {
	topic := b.topics.Command

	b.mu.Lock()
	if b.subscribed[topic] {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	if err := b.transport.Subscribe(topic, b.handleCommand); err != nil {
		return err
	}

	b.mu.Lock()
	b.subscribed[topic] = true
	b.mu.Unlock()
	b.logger.Info("subscribed", "topic", topic)
	return nil
}

// Resubscribe forgets the tracked subscriptions and subscribes again. It is
// the client's on-connect hook.
func (b *Bridge) Resubscribe() {
	b.ClearSubscriptions()
	if err := b.Subscribe(); err != nil {
		b.logger.Error("resubscribe failed", "topic", b.topics.Command, "error", err)
	}
}

// IsSubscribed returns true if the topic is already subscribed.
func (b *Bridge) IsSubscribed(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribed[topic]
}

// SubscribedTopics returns the subscribed topics, sorted.
func (b *Bridge) SubscribedTopics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	topics := make([]string, 0, len(b.subscribed))
	for topic := range b.subscribed {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// ClearSubscriptions clears the subscription tracking.
func (b *Bridge) ClearSubscriptions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = make(map[string]bool)
}

func (b *Bridge) handleCommand(_ paho.Client, msg paho.Message) {
	cmd, err := orchestrator.ParseCommand(msg.Payload())
	if err == nil {
		err = b.ctrl.Execute(cmd, Source)
	}

	reply := Reply{Command: cmd.Name, OK: err == nil, Status: b.ctrl.Status()}
	if err != nil {
		reply.Error = err.Error()
		b.logger.Warn("command failed", "topic", msg.Topic(), "command", cmd.Name, "error", err)
	}
	b.publish(b.topics.Reply, false, reply)
}

// PublishTransition publishes the new state, retained so late subscribers
// see the current one. Register it with Orchestrator.OnStateChange.
func (b *Bridge) PublishTransition(t orchestrator.Transition) {
	b.publish(b.topics.Status, true, StatusMessage{Transition: t, Status: b.ctrl.Status()})
}

func (b *Bridge) publish(topic string, retained bool, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("encode failed", "topic", topic, "error", err)
		return
	}
	if err := b.transport.Publish(topic, retained, payload); err != nil {
		b.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}

// HeartbeatMessage is the periodic telemetry payload.
type HeartbeatMessage struct {
	Timestamp time.Time           `json:"ts"`
	Status    orchestrator.Status `json:"status"`
	Stats     orchestrator.Stats  `json:"stats"`
}
