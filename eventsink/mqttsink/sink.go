// Package mqttsink publishes controller events to an MQTT broker as retained
// messages, one topic per event kind, so late subscribers see the last known
// state. It is a reference zwave.EventSink implementation; the core driver
// does not depend on it.
package mqttsink

import (
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gozwave/internal/config"
	"github.com/nerrad567/gozwave/zwave"
)

// Logger is the subset of logging this sink needs. Compatible with
// *logging.Logger and *slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
}

// Sink implements zwave.EventSink by publishing each Event to a topic rooted
// at cfg.Topic.
//
// Thread Safety: OnEvent is safe for concurrent calls, matching the
// listenerList's concurrent dispatch contract.
type Sink struct {
	client pahomqtt.Client
	root   string
	qos    byte
	logger Logger
}

// Connect opens a paho client and returns a ready Sink.
func Connect(cfg config.MQTTConfig, logger Logger) (*Sink, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true)

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqttsink: connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqttsink: connect failed: %w", err)
	}

	root := cfg.Topic
	if root == "" {
		root = "gozwave"
	}

	return &Sink{client: client, root: root, qos: cfg.QoS, logger: logger}, nil
}

// OnEvent implements zwave.EventSink.
func (s *Sink) OnEvent(e zwave.Event) {
	switch e.Kind {
	case zwave.EventTransactionCompleted:
		s.publish(s.root+"/transaction/completed", transactionPayload(e))
	case zwave.EventInitializationCompleted:
		s.publish(s.root+"/system/status", initPayload(e))
	case zwave.EventNodeStatus:
		s.publish(fmt.Sprintf("%s/node/%d/status", s.root, e.NodeID), nodeStatusPayload(e))
	}
}

func (s *Sink) publish(topic string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("mqttsink: marshal failed", "topic", topic, "err", err)
		return
	}
	token := s.client.Publish(topic, s.qos, true, body)
	token.Wait()
	if err := token.Error(); err != nil {
		s.logger.Warn("mqttsink: publish failed", "topic", topic, "err", err)
	}
}

func transactionPayload(e zwave.Event) map[string]any {
	payload := map[string]any{"timestamp": e.Timestamp}
	if e.Message != nil {
		payload["message_class"] = e.Message.MessageClass
		payload["target_node"] = e.Message.TargetNodeID
	}
	return payload
}

func initPayload(e zwave.Event) map[string]any {
	return map[string]any{
		"timestamp":   e.Timestamp,
		"own_node_id": e.OwnNodeID,
		"status":      "initialized",
	}
}

func nodeStatusPayload(e zwave.Event) map[string]any {
	status := "alive"
	if e.Status == zwave.NodeDead {
		status = "dead"
	}
	return map[string]any{
		"timestamp": e.Timestamp,
		"node_id":   e.NodeID,
		"status":    status,
	}
}

// Close disconnects from the broker.
func (s *Sink) Close() error {
	s.client.Disconnect(250)
	return nil
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}
