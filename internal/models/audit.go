package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuditEntry records who changed what.
type AuditEntry struct {
	ID      primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	EventID string             `json:"event_id" bson:"event_id"`
	Action  string             `json:"action" bson:"action"`
	Actor   string             `json:"actor" bson:"actor"`
	Target  string             `json:"target" bson:"target"`
	Details map[string]string  `json:"details,omitempty" bson:"details,omitempty"`
	At      time.Time          `json:"at" bson:"at"`
}

// AuditPage is one page of audit entries, newest first.
type AuditPage struct {
	Items    []AuditEntry `json:"items"`
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}
