package db

import (
	"context"

	"github.com/ukydev/fleet-logbook/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoAuditCollection implements AuditCollection for MongoDB.
type MongoAuditCollection struct {
	Collection *mongo.Collection
}

// InsertAudit stores an audit entry.
func (c *MongoAuditCollection) InsertAudit(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	_, err := c.Collection.InsertOne(ctx, entry)
	return classify("insert audit", err)
}

// FindAudit pages audit entries newest first, optionally for one action.
func (c *MongoAuditCollection) FindAudit(ctx context.Context, action string, skip, limit int64) ([]models.AuditEntry, int64, error) {
	filter := bson.M{}
	if action != "" {
		filter["action"] = action
	}
	total, err := c.Collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, classify("count audit", err)
	}
	cursor, err := c.Collection.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "at", Value: -1}}).SetSkip(skip).SetLimit(limit),
	)
	entries, err := decodeAll[models.AuditEntry](ctx, "find audit", cursor, err)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
