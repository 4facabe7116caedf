package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/ukydev/fleet-logbook/internal/db"
	"github.com/ukydev/fleet-logbook/internal/models"
)

// MongoSink stores entries in the audit_logs collection.
type MongoSink struct {
	Collection db.AuditCollection
}

// Name identifies the sink in logs.
func (MongoSink) Name() string { return "mongo" }

// Write inserts the entry.
func (s MongoSink) Write(ctx context.Context, entry models.AuditEntry) error {
	return s.Collection.InsertAudit(ctx, &entry)
}

// Publisher is the part of an MQTT client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes each entry as JSON on <prefix>/<action>, with dots in
// the action turned into topic levels.
type MQTTSink struct {
	Client  Publisher
	Prefix  string
	QoS     byte
	Timeout time.Duration
}

// Name identifies the sink in logs.
func (MQTTSink) Name() string { return "mqtt" }

// Topic returns the topic an action is published on.
func (s MQTTSink) Topic(action string) string {
	prefix := strings.TrimSuffix(s.Prefix, "/")
	if prefix == "" {
		prefix = "fleet/logbook"
	}
	return prefix + "/" + strings.ReplaceAll(action, ".", "/")
}

// Write publishes the entry and waits for the broker acknowledgement.
func (s MQTTSink) Write(ctx context.Context, entry models.AuditEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	timeout := s.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); timeout <= 0 || d < timeout {
			timeout = d
		}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	token := s.Client.Publish(s.Topic(entry.Action), s.QoS, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt publish %s: timed out after %s", entry.Action, timeout)
	}
	return token.Error()
}

// ConnectMQTT connects to broker with auto-reconnect enabled.
func ConnectMQTT(broker, username, password string, timeout time.Duration) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("fleet-logbook-" + uuid.NewString()[:8]).
		SetUsername(username).
		SetPassword(password).
		SetConnectTimeout(timeout).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return client, nil
}
