package db

import (
	"context"
	"fmt"

	"github.com/ukydev/fleet-logbook/internal/clock"
	"github.com/ukydev/fleet-logbook/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRefillCollection implements RefillCollection for MongoDB.
type MongoRefillCollection struct {
	Collection *mongo.Collection
}

// InsertRefill inserts a refill and assigns its ID.
func (c *MongoRefillCollection) InsertRefill(ctx context.Context, refill *models.Refill) error {
	if refill.ID.IsZero() {
		refill.ID = primitive.NewObjectID()
	}
	_, err := c.Collection.InsertOne(ctx, refill)
	return classify("insert refill", err)
}

// FindRefillByID finds a refill by its ID.
func (c *MongoRefillCollection) FindRefillByID(ctx context.Context, id primitive.ObjectID) (*models.Refill, error) {
	var refill models.Refill
	if err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&refill); err != nil {
		return nil, classify("find refill", err)
	}
	return &refill, nil
}

// FindRefillsByPlate returns the full refill history of a plate, oldest first.
func (c *MongoRefillCollection) FindRefillsByPlate(ctx context.Context, plate string) ([]models.Refill, error) {
	cursor, err := c.Collection.Find(ctx,
		bson.M{"vehicle_plate": plate},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}),
	)
	return decodeAll[models.Refill](ctx, "find refills", cursor, err)
}

// FindRefillsPage returns a page of a plate's refills, newest first.
func (c *MongoRefillCollection) FindRefillsPage(ctx context.Context, plate string, skip, limit int64) ([]models.Refill, int64, error) {
	filter := bson.M{"vehicle_plate": plate}
	total, err := c.Collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, classify("count refills", err)
	}
	cursor, err := c.Collection.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetSkip(skip).SetLimit(limit),
	)
	refills, err := decodeAll[models.Refill](ctx, "find refills page", cursor, err)
	if err != nil {
		return nil, 0, err
	}
	return refills, total, nil
}

// FindRefills lists refills newest first, optionally for one plate and period.
func (c *MongoRefillCollection) FindRefills(ctx context.Context, plate string, period *clock.Range, limit int64) ([]models.Refill, error) {
	filter := bson.M{}
	if plate != "" {
		filter["vehicle_plate"] = plate
	}
	if period != nil {
		filter["timestamp"] = rangeQuery(*period)
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := c.Collection.Find(ctx, filter, opts)
	return decodeAll[models.Refill](ctx, "find refills", cursor, err)
}

// ReplaceRefill overwrites a refill document.
func (c *MongoRefillCollection) ReplaceRefill(ctx context.Context, refill *models.Refill) error {
	res, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": refill.ID}, refill)
	if err != nil {
		return classify("replace refill", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("replace refill: %w", ErrNotFound)
	}
	return nil
}

// DeleteRefill removes a refill.
func (c *MongoRefillCollection) DeleteRefill(ctx context.Context, id primitive.ObjectID) error {
	return deleteOne(ctx, c.Collection, "delete refill", bson.M{"_id": id})
}

// SumLitersByPlate totals liters per plate, optionally inside period.
func (c *MongoRefillCollection) SumLitersByPlate(ctx context.Context, period *clock.Range) (map[string]float64, error) {
	match := bson.M{"liters": bson.M{"$ne": nil}}
	if period != nil {
		match["timestamp"] = rangeQuery(*period)
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$vehicle_plate"},
			{Key: "liters", Value: bson.D{{Key: "$sum", Value: "$liters"}}},
		}}},
	}
	cursor, err := c.Collection.Aggregate(ctx, pipeline)
	rows, err := decodeAll[struct {
		Plate  string  `bson:"_id"`
		Liters float64 `bson:"liters"`
	}](ctx, "sum liters", cursor, err)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[r.Plate] = r.Liters
	}
	return out, nil
}
