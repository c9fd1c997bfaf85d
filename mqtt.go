package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTBridge feeds commands from the message bus into the inbox and publishes
// the customer count after every welcome.
type MQTTBridge struct {
	cfg    MQTTConfig
	client mqtt.Client
	topics Topics
	inbox  *Inbox
	logger *slog.Logger
}

var _ Announcer = (*MQTTBridge)(nil)

// NewMQTTBridge prepares a client for cfg.  Nothing is sent until Connect.
func NewMQTTBridge(cfg MQTTConfig, inbox *Inbox, logger *slog.Logger) *MQTTBridge {
	b := &MQTTBridge{
		cfg:    cfg,
		topics: NewTopics(cfg.TopicPrefix),
		inbox:  inbox,
		logger: logger.With("component", "mqtt"),
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetOnConnectHandler(b.subscribe).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			b.logger.Warn("connection lost", "err", err)
		})
	b.client = mqtt.NewClient(opts)
	return b
}

// Connect dials the broker.  Subscriptions are (re)established by the
// on-connect handler.
func (b *MQTTBridge) Connect() error {
	token := b.client.Connect()
	if !token.WaitTimeout(b.cfg.Timeout) {
		return fmt.Errorf("mqtt connect to %s: timed out after %s", b.cfg.Broker, b.cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", b.cfg.Broker, err)
	}
	return nil
}

func (b *MQTTBridge) subscribe(c mqtt.Client) {
	filters := map[string]byte{b.topics.Eyes: 0, b.topics.Servo: 0, b.topics.Events: 0}
	token := c.SubscribeMultiple(filters, func(_ mqtt.Client, m mqtt.Message) {
		b.handle(m.Topic(), m.Payload())
	})
	go func() {
		if token.WaitTimeout(b.cfg.Timeout) && token.Error() != nil {
			b.logger.Error("subscribe failed", "err", token.Error())
			return
		}
		b.logger.Info("subscribed", "eyes", b.topics.Eyes, "servo", b.topics.Servo, "events", b.topics.Events)
	}()
}

// handle decodes one message and queues it.  Malformed payloads and commands
// arriving while the inbox is full are logged and dropped.
func (b *MQTTBridge) handle(topic string, payload []byte) bool {
	cmd, err := b.topics.Decode(topic, payload)
	if err != nil {
		b.logger.Warn("discarding malformed message", "topic", topic, "err", err)
		return false
	}
	if !b.inbox.Push(cmd) {
		b.logger.Warn("inbox full, dropping command", "command", cmd.String())
		return false
	}
	return true
}

// Name identifies the bridge among announcers.
func (b *MQTTBridge) Name() string { return "mqtt" }

// Announce publishes the running count after a welcome.  The publish is not
// awaited.
func (b *MQTTBridge) Announce(a Announcement) error {
	if a.Kind != AnnounceWelcome {
		return nil
	}
	if !b.client.IsConnectionOpen() {
		return errors.New("not connected")
	}
	b.client.Publish(b.topics.Count, 0, false, strconv.FormatUint(a.Count, 10))
	return nil
}

// Close disconnects, allowing in-flight work 250ms to complete.
func (b *MQTTBridge) Close() {
	b.client.Disconnect(250)
}
