// Package notify broadcasts account lifecycle events to interested
// consumers (the live game channel, audit tooling). Delivery is
// fire-and-forget: failures are logged and never surfaced to the caller.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/prophecyclub/server/internal/models"
)

// Event names published to consumers.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// Sink receives account lifecycle events.
type Sink interface {
	UserCreated(user models.User)
	UserUpdated(user models.User)
	UserDeleted(userID uint64, username string)
}

// LogSink writes events to the structured log.
type LogSink struct{}

// UserCreated logs a user creation.
func (LogSink) UserCreated(user models.User) {
	log.WithField("user_id", user.ID).WithField("username", user.Username).Info("user created")
}

// UserUpdated logs a user update.
func (LogSink) UserUpdated(user models.User) {
	log.WithField("user_id", user.ID).WithField("username", user.Username).Info("user updated")
}

// UserDeleted logs a user deletion.
func (LogSink) UserDeleted(userID uint64, username string) {
	log.WithField("user_id", userID).WithField("username", username).Info("user deleted")
}

// userEventChannel is the Redis pub/sub channel for account events.
const userEventChannel = "events:users"

// publishTimeout bounds how long a publish may take; events are advisory.
const publishTimeout = 2 * time.Second

// RedisSink publishes events to a Redis channel so other nodes and the
// real-time broadcast layer can react.
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink constructs a RedisSink.
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

// userEvent is the published payload.
type userEvent struct {
	Event    string `json:"event"`
	UserID   uint64 `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
	Status   string `json:"status,omitempty"`
}

// publish serializes and sends one event, logging failures.
func (s *RedisSink) publish(event userEvent) {
	raw, errMarshal := json.Marshal(event)
	if errMarshal != nil {
		log.WithError(errMarshal).Warn("user event marshal failed")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if errPublish := s.client.Publish(ctx, userEventChannel, raw).Err(); errPublish != nil {
		log.WithError(errPublish).WithField("event", event.Event).Warn("user event publish failed")
	}
}

// UserCreated publishes a user creation.
func (s *RedisSink) UserCreated(user models.User) {
	s.publish(userEvent{Event: EventUserCreated, UserID: user.ID, Username: user.Username, Role: user.Role, Status: user.Status})
}

// UserUpdated publishes a user update.
func (s *RedisSink) UserUpdated(user models.User) {
	s.publish(userEvent{Event: EventUserUpdated, UserID: user.ID, Username: user.Username, Role: user.Role, Status: user.Status})
}

// UserDeleted publishes a user deletion.
func (s *RedisSink) UserDeleted(userID uint64, username string) {
	s.publish(userEvent{Event: EventUserDeleted, UserID: userID, Username: username})
}

// MultiSink fans events out to several sinks.
type MultiSink []Sink

// UserCreated forwards to every sink.
func (m MultiSink) UserCreated(user models.User) {
	for _, sink := range m {
		sink.UserCreated(user)
	}
}

// UserUpdated forwards to every sink.
func (m MultiSink) UserUpdated(user models.User) {
	for _, sink := range m {
		sink.UserUpdated(user)
	}
}

// UserDeleted forwards to every sink.
func (m MultiSink) UserDeleted(userID uint64, username string) {
	for _, sink := range m {
		sink.UserDeleted(userID, username)
	}
}
