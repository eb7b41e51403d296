package entity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/taarskog/somweb-bridge/internal/infrastructure/logging"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/mqtt"
	"github.com/taarskog/somweb-bridge/internal/somweb"
)

// Actor executes door actions. Separate from Coordinator so command
// tests can script action outcomes without a full coordinator.
type Actor interface {
	ExecuteDoorAction(ctx context.Context, doorID int, target somweb.DoorStatus) bool
	DoorByID(doorID int) (somweb.Door, bool)
	UDI() string
}

// CommandListener subscribes to a device's door command topics and
// drives the coordinator.
//
// While an action is in flight the door's transitional flag is set on
// the publisher, and cleared when the action completes either way; the
// forced refresh after a successful action then republishes the settled
// state.
type CommandListener struct {
	broker  Broker
	actor   Actor
	pub     *Publisher
	log     *logging.Logger
	topics  mqtt.Topics
	qos     byte
	timeout time.Duration
}

// NewCommandListener creates a command listener for the actor's device.
func NewCommandListener(broker Broker, actor Actor, pub *Publisher, log *logging.Logger, qos byte, timeout time.Duration) *CommandListener {
	return &CommandListener{
		broker:  broker,
		actor:   actor,
		pub:     pub,
		log:     log.With("component", "commands", "udi", actor.UDI()),
		qos:     qos,
		timeout: timeout,
	}
}

// Start subscribes to the device's door command topics.
func (l *CommandListener) Start() error {
	topic := l.topics.DoorCommandWildcard(l.actor.UDI())
	if err := l.broker.Subscribe(topic, l.qos, l.handleCommand); err != nil {
		return fmt.Errorf("subscribing to door commands: %w", err)
	}
	return nil
}

// Stop removes the command subscription.
func (l *CommandListener) Stop() error {
	return l.broker.Unsubscribe(l.topics.DoorCommandWildcard(l.actor.UDI()))
}

// handleCommand processes one door command message. The MQTT wrapper
// already runs handlers on their own goroutine, so blocking on the
// action here is fine.
func (l *CommandListener) handleCommand(topic string, payload []byte) error {
	doorID, err := doorIDFromTopic(topic)
	if err != nil {
		return err
	}
	if _, ok := l.actor.DoorByID(doorID); !ok {
		return fmt.Errorf("command for unknown door %d", doorID)
	}

	var target somweb.DoorStatus
	switch strings.TrimSpace(strings.ToLower(string(payload))) {
	case "open":
		target = somweb.DoorOpen
	case "close":
		target = somweb.DoorClosed
	default:
		return fmt.Errorf("unsupported door command %q", payload)
	}

	l.log.Debug("door command received", "door_id", doorID, "target", target)

	l.pub.SetTransitional(doorID, target.Action())
	defer l.pub.ClearTransitional(doorID)

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	if !l.actor.ExecuteDoorAction(ctx, doorID, target) {
		return fmt.Errorf("door action failed for door %d", doorID)
	}
	return nil
}

// doorIDFromTopic extracts the door ID from a command topic of the form
// somweb/{udi}/door/{id}/set.
func doorIDFromTopic(topic string) (int, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[2] != "door" || parts[4] != "set" {
		return 0, fmt.Errorf("unexpected command topic %q", topic)
	}
	id, err := strconv.Atoi(parts[3])
	if err != nil {
		return 0, fmt.Errorf("invalid door id in topic %q", topic)
	}
	return id, nil
}
