package services

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Gsaudx/Advision-sub001/interfaces"
	"github.com/Gsaudx/Advision-sub001/models"
)

// GormAuditRecorder persists audit snapshots through the transaction
// handle it is given, so audit rows commit or roll back together with
// the mutation they describe.
type GormAuditRecorder struct{}

// NewGormAuditRecorder creates an audit recorder backed by the ledger store
func NewGormAuditRecorder() *GormAuditRecorder {
	return &GormAuditRecorder{}
}

// Record appends one audit entry inside tx
func (r *GormAuditRecorder) Record(tx *gorm.DB, entry interfaces.AuditEntry) error {
	before, err := marshalSnapshot(entry.Before)
	if err != nil {
		return fmt.Errorf("failed to marshal before snapshot: %w", err)
	}
	after, err := marshalSnapshot(entry.After)
	if err != nil {
		return fmt.Errorf("failed to marshal after snapshot: %w", err)
	}

	return tx.Create(&models.AuditLog{
		TableRef: entry.TableRef,
		RecordID: entry.RecordID,
		Action:   entry.Action,
		Before:   before,
		After:    after,
		Context:  entry.Context,
	}).Error
}

// GormEventRecorder persists typed domain events through the supplied
// transaction handle.
type GormEventRecorder struct{}

// NewGormEventRecorder creates an event recorder backed by the ledger store
func NewGormEventRecorder() *GormEventRecorder {
	return &GormEventRecorder{}
}

// Record appends one domain event inside tx
func (r *GormEventRecorder) Record(tx *gorm.DB, event interfaces.Event) error {
	payload, err := marshalSnapshot(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return tx.Create(&models.DomainEvent{
		EventID:       uuid.NewString(),
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		ActorID:       event.ActorID,
	}).Error
}

func marshalSnapshot(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
