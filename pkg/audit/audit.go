// Package audit records administrative actions per tenant.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dirhub/pkg/kvstore"
)

// EventType identifies the action recorded.
type EventType string

const (
	EventRoleCreated  EventType = "role.created"
	EventRoleUpdated  EventType = "role.updated"
	EventRoleDeleted  EventType = "role.deleted"
	EventRoleAssigned EventType = "role.assigned"
	EventRoleRemoved  EventType = "role.removed"
	EventAccessDenied EventType = "access.denied"
)

// Event is a single audit record. TargetID names the object acted on
// (role ID, user ID), ActorID the authenticated user acting.
type Event struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	Type      EventType         `json:"type"`
	ActorID   string            `json:"actor_id"`
	TargetID  string            `json:"target_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Logger records audit events and reads them back newest first.
type Logger interface {
	Log(ctx context.Context, event *Event) error
	Recent(ctx context.Context, tenantID string, limit int64) ([]*Event, error)
}

// KVLogger keeps a capped list of events per tenant in the key-value
// store. The cap bounds memory; older events fall off the end.
type KVLogger struct {
	store     kvstore.Store
	maxEvents int64
}

func NewKVLogger(store kvstore.Store, maxEvents int64) *KVLogger {
	if maxEvents <= 0 {
		maxEvents = 1000
	}
	return &KVLogger{store: store, maxEvents: maxEvents}
}

func auditKey(tenantID string) string {
	return "audit:events:" + tenantID
}

// Log appends the event to the tenant's trail and trims to the cap.
func (l *KVLogger) Log(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	key := auditKey(event.TenantID)
	if err := l.store.LPush(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	if err := l.store.LTrim(ctx, key, 0, l.maxEvents-1); err != nil {
		return fmt.Errorf("failed to trim audit trail: %w", err)
	}
	return nil
}

// Recent returns up to limit events for the tenant, newest first.
// Records that fail to decode are skipped rather than failing the read.
func (l *KVLogger) Recent(ctx context.Context, tenantID string, limit int64) ([]*Event, error) {
	if limit <= 0 || limit > l.maxEvents {
		limit = l.maxEvents
	}

	raw, err := l.store.LRange(ctx, auditKey(tenantID), 0, limit-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit trail: %w", err)
	}

	events := make([]*Event, 0, len(raw))
	for _, item := range raw {
		var event Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			continue
		}
		events = append(events, &event)
	}
	return events, nil
}

// NopLogger discards events. Used when auditing is disabled and in
// tests that do not assert on the trail.
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }

func (NopLogger) Recent(ctx context.Context, tenantID string, limit int64) ([]*Event, error) {
	return nil, nil
}
