// Package datastore keeps the aircraft's persistent settings. Values are plain
// strings stored under a product namespace, and every write is announced on a
// shared notification bus so interested parties can react to it.
package datastore

import (
	"context"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/prologic/simbridgefs/notify"
	"github.com/prologic/simbridgefs/store"
)

const (
	// DefaultPrefix namespaces every key before it reaches the store.
	DefaultPrefix = "A32NX_"

	// UpdateTopic is the bus topic carrying setting changes.
	UpdateTopic = "A32NX_NXDATASTORE_UPDATE"

	// Wildcard subscribes to every key.
	Wildcard = "*"
)

// Callback receives the un-namespaced key and its new value.
type Callback func(key, value string)

// DataStore reads and writes namespaced settings and publishes changes.
type DataStore struct {
	store  store.Store
	bus    *notify.Bus
	prefix string
}

// Option configures a DataStore.
type Option func(*DataStore)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(ds *DataStore) {
		ds.prefix = prefix
	}
}

// New wires a DataStore to its persistence and notification handles. Both are
// expected to be created once at startup and shared.
func New(s store.Store, bus *notify.Bus, opts ...Option) *DataStore {
	ds := &DataStore{store: s, bus: bus, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(ds)
	}
	return ds
}

func (ds *DataStore) namespaced(key string) string {
	return ds.prefix + key
}

// Get returns the value stored for key, or defaultValue when the value is
// missing, empty or cannot be read.
func (ds *DataStore) Get(ctx context.Context, key, defaultValue string) string {
	v, err := ds.store.GetValue(ctx, ds.namespaced(key))
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("Failed to read setting, using default")
		return defaultValue
	}
	if len(v) == 0 {
		return defaultValue
	}
	return string(v)
}

// GetInt parses the stored value as an integer.
func (ds *DataStore) GetInt(ctx context.Context, key string, defaultValue int) int {
	raw := ds.Get(ctx, key, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		log.WithField("key", key).WithField("value", raw).Debug("Setting is not an integer")
		return defaultValue
	}
	return n
}

// GetBool parses the stored value as a boolean ("1", "true", "0", "false", ...).
func (ds *DataStore) GetBool(ctx context.Context, key string, defaultValue bool) bool {
	raw := ds.Get(ctx, key, "")
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		log.WithField("key", key).WithField("value", raw).Debug("Setting is not a boolean")
		return defaultValue
	}
	return b
}

// Set stores value and then notifies subscribers. Nothing is published when
// the write fails.
func (ds *DataStore) Set(ctx context.Context, key, value string) error {
	if err := ds.store.PutValue(ctx, ds.namespaced(key), []byte(value)); err != nil {
		log.WithError(err).WithField("key", key).Error("Failed to write setting")
		return err
	}
	ds.bus.Publish(UpdateTopic, key, value)
	return nil
}

// Delete removes key. Subscribers are notified with an empty value, so they
// fall back to their default like any reader of a missing key.
func (ds *DataStore) Delete(ctx context.Context, key string) error {
	if err := ds.store.DeleteKey(ctx, ds.namespaced(key)); err != nil {
		log.WithError(err).WithField("key", key).Error("Failed to delete setting")
		return err
	}
	ds.bus.Publish(UpdateTopic, key, "")
	return nil
}

// Subscribe calls cb for every change to key, or to any key when key is
// Wildcard. Callbacks run on the goroutine that made the change.
func (ds *DataStore) Subscribe(key string, cb Callback) (dispose func()) {
	return ds.bus.Subscribe(UpdateTopic, func(msg notify.Message) {
		if key == Wildcard || key == msg.Key {
			cb(msg.Key, msg.Value)
		}
	})
}

// GetAndSubscribe calls cb once with the current value and then subscribes it.
func (ds *DataStore) GetAndSubscribe(ctx context.Context, key string, cb Callback, defaultValue string) (dispose func()) {
	cb(key, ds.Get(ctx, key, defaultValue))
	return ds.Subscribe(key, cb)
}

// Keys lists the stored setting keys without their namespace.
func (ds *DataStore) Keys(ctx context.Context) ([]string, error) {
	full, err := ds.store.ListKeys(ctx, ds.prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(full))
	for _, k := range full {
		keys = append(keys, strings.TrimPrefix(k, ds.prefix))
	}
	return keys, nil
}
