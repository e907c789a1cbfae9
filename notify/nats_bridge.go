package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// DefaultSubject is the NATS subject used when BridgeConfig.Subject is empty.
const DefaultSubject = "simbridgefs.datastore.update"

// BridgeConfig selects which bus topic is mirrored and on which subject.
type BridgeConfig struct {
	Topic   string
	Subject string
}

type wireMessage struct {
	Origin string `json:"origin"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// NATSBridge mirrors local notifications for one topic onto a NATS subject and
// replays notifications published by other processes into the local bus.
// Replayed messages are dispatched on the NATS delivery goroutine.
type NATSBridge struct {
	id      string
	bus     *Bus
	conn    *nats.Conn
	cfg     BridgeConfig
	dispose func()
	sub     *nats.Subscription

	mu     sync.Mutex
	closed bool
}

// NewNATSBridge starts mirroring cfg.Topic between bus and conn.
func NewNATSBridge(bus *Bus, conn *nats.Conn, cfg BridgeConfig) (*NATSBridge, error) {
	if bus == nil || conn == nil {
		return nil, errors.New("notify: bus and nats connection are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("notify: bridge topic is required")
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}

	br := &NATSBridge{
		id:   uuid.NewString(),
		bus:  bus,
		conn: conn,
		cfg:  cfg,
	}

	sub, err := conn.Subscribe(cfg.Subject, br.onRemote)
	if err != nil {
		return nil, fmt.Errorf("notify: subscribe %s: %w", cfg.Subject, err)
	}
	br.sub = sub
	br.dispose = bus.Subscribe(cfg.Topic, br.onLocal)

	log.WithField("subject", cfg.Subject).WithField("origin", br.id).Debug("NATS bridge started")
	return br, nil
}

// ID is the origin id stamped on messages this bridge sends.
func (br *NATSBridge) ID() string { return br.id }

func (br *NATSBridge) onLocal(msg Message) {
	if msg.Origin != "" {
		return
	}
	data, err := json.Marshal(wireMessage{Origin: br.id, Key: msg.Key, Value: msg.Value})
	if err != nil {
		log.WithError(err).Warn("Failed to encode notification")
		return
	}
	if err := br.conn.Publish(br.cfg.Subject, data); err != nil {
		log.WithError(err).WithField("key", msg.Key).Warn("Failed to forward notification to NATS")
	}
}

func (br *NATSBridge) onRemote(m *nats.Msg) {
	var wm wireMessage
	if err := json.Unmarshal(m.Data, &wm); err != nil {
		log.WithError(err).WithField("subject", m.Subject).Warn("Dropping malformed notification")
		return
	}
	if wm.Origin == br.id {
		return
	}
	br.bus.Deliver(Message{Topic: br.cfg.Topic, Key: wm.Key, Value: wm.Value, Origin: wm.Origin})
}

// Close stops mirroring. The NATS connection is left open.
func (br *NATSBridge) Close() error {
	br.mu.Lock()
	defer br.mu.Unlock()
	if br.closed {
		return nil
	}
	br.closed = true
	br.dispose()
	return br.sub.Unsubscribe()
}
