// Package events publishes record change notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/PersistedObjects/internal/crud"
	"github.com/router-for-me/PersistedObjects/internal/model"
	"github.com/router-for-me/PersistedObjects/internal/store"
	log "github.com/sirupsen/logrus"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "persisted-objects"

// Operation names carried by change events.
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// Change describes one committed write.
type Change struct {
	Model     string       `json:"model"`
	Table     string       `json:"table"`
	Operation string       `json:"operation"`
	Record    store.Record `json:"record"`
	At        time.Time    `json:"at"`
}

// Publisher delivers change events.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// RedisPublisher publishes changes to a Redis pub/sub channel as JSON.
type RedisPublisher struct {
	Client  *redis.Client
	Channel string
}

// NewRedisPublisher connects to the server described by url (redis://...).
func NewRedisPublisher(url, channel string) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("events: parse redis url: %w", err)
	}
	if strings.TrimSpace(channel) == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{Client: redis.NewClient(opt), Channel: channel}, nil
}

// Ping checks that the server is reachable.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}

// Publish sends change to the configured channel.
func (p *RedisPublisher) Publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("events: encode change: %w", err)
	}
	return p.Client.Publish(ctx, p.Channel, payload).Err()
}

// Close releases the client.
func (p *RedisPublisher) Close() error {
	return p.Client.Close()
}

// Hooks returns after-hooks that publish every committed write of def.
// Publish failures are returned to the service, which logs them without undoing the write.
func Hooks(pub Publisher, def *model.Definition) crud.Hooks {
	if pub == nil {
		return crud.Hooks{}
	}
	publish := func(op string) func(context.Context, store.Record) error {
		return func(ctx context.Context, rec store.Record) error {
			change := Change{
				Model:     def.Name(),
				Table:     def.Table(),
				Operation: op,
				Record:    rec,
				At:        time.Now().UTC(),
			}
			if err := pub.Publish(ctx, change); err != nil {
				return fmt.Errorf("events: publish %s %s: %w", def.Name(), op, err)
			}
			log.WithFields(log.Fields{"model": def.Name(), "operation": op}).Debug("change published")
			return nil
		}
	}
	return crud.Hooks{
		AfterCreate: publish(OperationCreate),
		AfterUpdate: publish(OperationUpdate),
		AfterDelete: publish(OperationDelete),
	}
}
