// Package events emits bridge audit events (credential checks, provisioning)
// to Kafka. Publishing is fire-and-forget: a broker outage must never block
// or fail an authentication call.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Event types.
const (
	TypeLoginSucceeded = "LOGIN_SUCCEEDED"
	TypeLoginFailed    = "LOGIN_FAILED"
	TypeProvisioned    = "USER_PROVISIONED"
)

// Publisher is the gateway's audit sink.
type Publisher interface {
	Login(realm, username string, ok bool)
	Provisioned(realm, username string)
	Close()
}

// Event is the JSON payload written to the audit topic.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Realm     string    `json:"realm"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// Kafka publishes events via franz-go.
type Kafka struct {
	client *kgo.Client
	topic  string
}

// NewKafka creates a producer against the given brokers.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, err
	}
	return &Kafka{client: client, topic: topic}, nil
}

func (k *Kafka) Login(realm, username string, ok bool) {
	typ := TypeLoginFailed
	if ok {
		typ = TypeLoginSucceeded
	}
	k.publish(typ, realm, username)
}

func (k *Kafka) Provisioned(realm, username string) {
	k.publish(TypeProvisioned, realm, username)
}

func (k *Kafka) publish(typ, realm, username string) {
	payload, err := json.Marshal(Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Realm:     realm,
		Username:  username,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}

	record := &kgo.Record{Topic: k.topic, Key: []byte(realm + ":" + username), Value: payload}
	k.client.Produce(context.Background(), record, func(_ *kgo.Record, err error) {
		if err != nil {
			log.Warn().Err(err).Str("type", typ).Msg("audit event publish failed")
		}
	})
}

func (k *Kafka) Close() {
	k.client.Close()
}

// Nop discards all events; used when no brokers are configured.
type Nop struct{}

func (Nop) Login(string, string, bool) {}
func (Nop) Provisioned(string, string) {}
func (Nop) Close()                     {}
