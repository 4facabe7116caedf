package db

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ukydev/fleet-logbook/internal/clock"
	"github.com/ukydev/fleet-logbook/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoTripCollection implements TripCollection for MongoDB.
type MongoTripCollection struct {
	Collection *mongo.Collection
}

// newestFirst orders in-progress trips ahead of finished ones ("in_progress"
// sorts after "finished"), then by departure descending.
var newestFirst = bson.D{{Key: "status", Value: -1}, {Key: "departure_time", Value: -1}}

// InsertTrip inserts a trip and assigns its ID. The partial unique index on
// vehicle_plate turns a second in-progress trip into ErrDuplicate.
func (c *MongoTripCollection) InsertTrip(ctx context.Context, trip *models.Trip) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	if trip.ID.IsZero() {
		trip.ID = primitive.NewObjectID()
	}
	_, err := c.Collection.InsertOne(ctx, trip)
	return classify("insert trip", err)
}

// FindTripByID finds a trip by its ID.
func (c *MongoTripCollection) FindTripByID(ctx context.Context, id primitive.ObjectID) (*models.Trip, error) {
	var trip models.Trip
	if err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&trip); err != nil {
		return nil, classify("find trip", err)
	}
	return &trip, nil
}

// FindActiveTrip returns the most recent in-progress trip of a plate.
func (c *MongoTripCollection) FindActiveTrip(ctx context.Context, plate string) (*models.Trip, error) {
	var trip models.Trip
	err := c.Collection.FindOne(ctx,
		bson.M{"vehicle_plate": plate, "status": models.TripInProgress},
		options.FindOne().SetSort(bson.D{{Key: "departure_time", Value: -1}}),
	).Decode(&trip)
	if err != nil {
		return nil, classify("find active trip", err)
	}
	return &trip, nil
}

// FindActiveTrips lists every in-progress trip, oldest departure first.
func (c *MongoTripCollection) FindActiveTrips(ctx context.Context) ([]models.Trip, error) {
	cursor, err := c.Collection.Find(ctx,
		bson.M{"status": models.TripInProgress},
		options.Find().SetSort(bson.D{{Key: "departure_time", Value: 1}}),
	)
	return decodeAll[models.Trip](ctx, "find active trips", cursor, err)
}

// FinishTrip closes an in-progress trip. It fails with ErrNotFound when the
// trip is gone or was already finished.
func (c *MongoTripCollection) FinishTrip(ctx context.Context, id primitive.ObjectID, arrival time.Time, arrivalClock string) error {
	res, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.TripInProgress},
		bson.M{"$set": bson.M{
			"status":        models.TripFinished,
			"arrival_time":  arrival,
			"arrival_clock": arrivalClock,
			"updated_at":    time.Now().UTC(),
		}},
	)
	if err != nil {
		return classify("finish trip", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("finish trip: %w", ErrNotFound)
	}
	return nil
}

// ReplaceTrip overwrites a trip document.
func (c *MongoTripCollection) ReplaceTrip(ctx context.Context, trip *models.Trip) error {
	res, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": trip.ID}, trip)
	if err != nil {
		return classify("replace trip", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("replace trip: %w", ErrNotFound)
	}
	return nil
}

// DeleteTrip removes a trip.
func (c *MongoTripCollection) DeleteTrip(ctx context.Context, id primitive.ObjectID) error {
	res, err := c.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return classify("delete trip", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete trip: %w", ErrNotFound)
	}
	return nil
}

// FindTrips returns a page of trips matching filter plus the total match count.
func (c *MongoTripCollection) FindTrips(ctx context.Context, filter TripFilter, skip, limit int64) ([]models.Trip, int64, error) {
	query := tripQuery(filter)
	total, err := c.Collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, classify("count trips", err)
	}
	opts := options.Find().SetSort(newestFirst).SetSkip(skip)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := c.Collection.Find(ctx, query, opts)
	trips, err := decodeAll[models.Trip](ctx, "find trips", cursor, err)
	if err != nil {
		return nil, 0, err
	}
	return trips, total, nil
}

// FindTripsBetween returns up to limit trips departing inside period, newest first.
func (c *MongoTripCollection) FindTripsBetween(ctx context.Context, period clock.Range, limit int64) ([]models.Trip, error) {
	cursor, err := c.Collection.Find(ctx,
		bson.M{"departure_time": rangeQuery(period)},
		options.Find().SetSort(bson.D{{Key: "departure_time", Value: -1}}).SetLimit(limit),
	)
	return decodeAll[models.Trip](ctx, "find trips between", cursor, err)
}

// CountTripsBetween counts trips departing inside period.
func (c *MongoTripCollection) CountTripsBetween(ctx context.Context, period clock.Range) (int64, error) {
	n, err := c.Collection.CountDocuments(ctx, bson.M{"departure_time": rangeQuery(period)})
	return n, classify("count trips between", err)
}

// FindRecentTrips returns the latest trips by departure.
func (c *MongoTripCollection) FindRecentTrips(ctx context.Context, limit int64) ([]models.Trip, error) {
	cursor, err := c.Collection.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "departure_time", Value: -1}}).SetLimit(limit),
	)
	return decodeAll[models.Trip](ctx, "find recent trips", cursor, err)
}

// CountTripsPerEntity recounts trips per driver name and per plate.
func (c *MongoTripCollection) CountTripsPerEntity(ctx context.Context) (map[string]int64, map[string]int64, error) {
	drivers, err := c.countBy(ctx, "$driver_name")
	if err != nil {
		return nil, nil, err
	}
	vehicles, err := c.countBy(ctx, "$vehicle_plate")
	if err != nil {
		return nil, nil, err
	}
	return drivers, vehicles, nil
}

func (c *MongoTripCollection) countBy(ctx context.Context, field string) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: field},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := c.Collection.Aggregate(ctx, pipeline)
	rows, err := decodeAll[struct {
		Key   string `bson:"_id"`
		Count int64  `bson:"count"`
	}](ctx, "count trips by "+field, cursor, err)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		if r.Key != "" {
			out[r.Key] = r.Count
		}
	}
	return out, nil
}

func tripQuery(filter TripFilter) bson.M {
	query := bson.M{}
	if filter.Period != nil {
		query["departure_time"] = rangeQuery(*filter.Period)
	}
	if filter.Plate != "" {
		query["vehicle_plate"] = containsIgnoreCase(filter.Plate)
	}
	if filter.Driver != "" {
		query["driver_name"] = containsIgnoreCase(filter.Driver)
	}
	return query
}

func rangeQuery(r clock.Range) bson.M {
	return bson.M{"$gte": r.From, "$lte": r.To}
}

func containsIgnoreCase(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}
