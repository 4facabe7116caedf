package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/fleet-logbook/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDriverCollection implements DriverCollection for MongoDB.
type MongoDriverCollection struct {
	Collection *mongo.Collection
}

// IncrementDriverTrips atomically adds one trip to a driver, creating the
// driver with total_trips=1 when it is not registered yet.
func (c *MongoDriverCollection) IncrementDriverTrips(ctx context.Context, name string) error {
	now := time.Now().UTC()
	return upsertIncrement(ctx, c.Collection, "increment driver trips",
		bson.M{"name": name},
		bson.M{"status": models.DriverNotCredentialed, "created_at": now},
		now,
	)
}

// DecrementDriverTrips takes back one trip from a driver. It undoes an
// increment whose checkout could not complete and never goes below zero.
func (c *MongoDriverCollection) DecrementDriverTrips(ctx context.Context, name string) error {
	return updateOne(ctx, c.Collection, "decrement driver trips",
		bson.M{"name": name, "total_trips": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"total_trips": -1}, "$set": bson.M{"updated_at": time.Now().UTC()}},
	)
}

// InsertDriver registers a new driver.
func (c *MongoDriverCollection) InsertDriver(ctx context.Context, driver *models.Driver) error {
	if driver.ID.IsZero() {
		driver.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	driver.CreatedAt, driver.UpdatedAt = now, now
	_, err := c.Collection.InsertOne(ctx, driver)
	return classify("insert driver", err)
}

// FindDrivers lists drivers by name.
func (c *MongoDriverCollection) FindDrivers(ctx context.Context) ([]models.Driver, error) {
	cursor, err := c.Collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	return decodeAll[models.Driver](ctx, "find drivers", cursor, err)
}

// FindDriverByID finds a driver by its ID.
func (c *MongoDriverCollection) FindDriverByID(ctx context.Context, id primitive.ObjectID) (*models.Driver, error) {
	var driver models.Driver
	if err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&driver); err != nil {
		return nil, classify("find driver", err)
	}
	return &driver, nil
}

// FindDriverByName finds a driver by normalized name.
func (c *MongoDriverCollection) FindDriverByName(ctx context.Context, name string) (*models.Driver, error) {
	var driver models.Driver
	if err := c.Collection.FindOne(ctx, bson.M{"name": name}).Decode(&driver); err != nil {
		return nil, classify("find driver by name", err)
	}
	return &driver, nil
}

// UpdateDriver sets role and company, leaving the trip counter alone.
func (c *MongoDriverCollection) UpdateDriver(ctx context.Context, id primitive.ObjectID, update models.DriverUpdate) (*models.Driver, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if update.Role != nil {
		set["role"] = *update.Role
	}
	if update.Company != nil {
		set["company"] = *update.Company
	}
	var driver models.Driver
	err := c.Collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&driver)
	if err != nil {
		return nil, classify("update driver", err)
	}
	return &driver, nil
}

// SetDriverStatus changes the credential status of a driver.
func (c *MongoDriverCollection) SetDriverStatus(ctx context.Context, id primitive.ObjectID, status models.DriverStatus) error {
	return updateOne(ctx, c.Collection, "set driver status", bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}})
}

// SetDriverTrips overwrites the trip counter, registering the driver if needed.
func (c *MongoDriverCollection) SetDriverTrips(ctx context.Context, name string, total int64) error {
	now := time.Now().UTC()
	_, err := c.Collection.UpdateOne(ctx,
		bson.M{"name": name},
		bson.M{
			"$set":         bson.M{"total_trips": total, "updated_at": now},
			"$setOnInsert": bson.M{"status": models.DriverNotCredentialed, "created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	return classify("set driver trips", err)
}

// AddDriverDocument appends a document reference to a driver.
func (c *MongoDriverCollection) AddDriverDocument(ctx context.Context, id primitive.ObjectID, doc models.Document) error {
	return updateOne(ctx, c.Collection, "add driver document", bson.M{"_id": id},
		bson.M{"$push": bson.M{"documents": doc}, "$set": bson.M{"updated_at": time.Now().UTC()}})
}

// DeleteDriver removes a driver.
func (c *MongoDriverCollection) DeleteDriver(ctx context.Context, id primitive.ObjectID) error {
	return deleteOne(ctx, c.Collection, "delete driver", bson.M{"_id": id})
}

// MongoVehicleCollection implements VehicleCollection for MongoDB.
type MongoVehicleCollection struct {
	Collection *mongo.Collection
}

// IncrementVehicleTrips atomically adds one trip to a vehicle, creating it
// with total_trips=1 when it is not registered yet.
func (c *MongoVehicleCollection) IncrementVehicleTrips(ctx context.Context, plate string) error {
	now := time.Now().UTC()
	return upsertIncrement(ctx, c.Collection, "increment vehicle trips",
		bson.M{"plate": plate},
		bson.M{"status": models.VehicleActive, "visible": true, "created_at": now},
		now,
	)
}

// InsertVehicle registers a new vehicle.
func (c *MongoVehicleCollection) InsertVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	if vehicle.ID.IsZero() {
		vehicle.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	vehicle.CreatedAt, vehicle.UpdatedAt = now, now
	_, err := c.Collection.InsertOne(ctx, vehicle)
	return classify("insert vehicle", err)
}

// FindVehicles lists vehicles by plate.
func (c *MongoVehicleCollection) FindVehicles(ctx context.Context) ([]models.Vehicle, error) {
	cursor, err := c.Collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "plate", Value: 1}}))
	return decodeAll[models.Vehicle](ctx, "find vehicles", cursor, err)
}

// FindVehicleByPlate finds a vehicle by normalized plate.
func (c *MongoVehicleCollection) FindVehicleByPlate(ctx context.Context, plate string) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	if err := c.Collection.FindOne(ctx, bson.M{"plate": plate}).Decode(&vehicle); err != nil {
		return nil, classify("find vehicle", err)
	}
	return &vehicle, nil
}

// UpdateVehicle applies descriptive changes and the efficiency override.
func (c *MongoVehicleCollection) UpdateVehicle(ctx context.Context, plate string, update models.VehicleUpdate) (*models.Vehicle, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if update.Category != nil {
		set["category"] = *update.Category
	}
	if update.Visible != nil {
		set["visible"] = *update.Visible
	}
	if update.LastOdometer != nil {
		set["last_odometer"] = *update.LastOdometer
	}
	doc := bson.M{}
	switch {
	case update.ClearOverride:
		doc["$unset"] = bson.M{"efficiency_override": ""}
	case update.EfficiencyOverride != nil:
		set["efficiency_override"] = *update.EfficiencyOverride
	}
	doc["$set"] = set

	var vehicle models.Vehicle
	err := c.Collection.FindOneAndUpdate(ctx, bson.M{"plate": plate}, doc,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&vehicle)
	if err != nil {
		return nil, classify("update vehicle", err)
	}
	return &vehicle, nil
}

// SetVehicleStatus changes the operational status of a vehicle.
func (c *MongoVehicleCollection) SetVehicleStatus(ctx context.Context, plate string, status models.VehicleStatus) error {
	return updateOne(ctx, c.Collection, "set vehicle status", bson.M{"plate": plate},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}})
}

// RaiseOdometer stores odometer as the last known reading unless a higher one
// is already recorded.
func (c *MongoVehicleCollection) RaiseOdometer(ctx context.Context, plate string, odometer int64) error {
	return updateOne(ctx, c.Collection, "raise odometer", bson.M{"plate": plate},
		bson.M{"$max": bson.M{"last_odometer": odometer}, "$set": bson.M{"updated_at": time.Now().UTC()}})
}

// SetVehicleTrips overwrites the trip counter, registering the vehicle if needed.
func (c *MongoVehicleCollection) SetVehicleTrips(ctx context.Context, plate string, total int64) error {
	now := time.Now().UTC()
	_, err := c.Collection.UpdateOne(ctx,
		bson.M{"plate": plate},
		bson.M{
			"$set":         bson.M{"total_trips": total, "updated_at": now},
			"$setOnInsert": bson.M{"status": models.VehicleActive, "visible": true, "created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	return classify("set vehicle trips", err)
}

// AddVehicleDocument appends a document reference to a vehicle.
func (c *MongoVehicleCollection) AddVehicleDocument(ctx context.Context, plate string, doc models.Document) error {
	return updateOne(ctx, c.Collection, "add vehicle document", bson.M{"plate": plate},
		bson.M{"$push": bson.M{"documents": doc}, "$set": bson.M{"updated_at": time.Now().UTC()}})
}

// DeleteVehicle removes a vehicle.
func (c *MongoVehicleCollection) DeleteVehicle(ctx context.Context, plate string) error {
	return deleteOne(ctx, c.Collection, "delete vehicle", bson.M{"plate": plate})
}

// upsertIncrement runs {$inc: total_trips} with upsert. Two concurrent upserts
// of a brand-new key can race on the unique index; the loser retries once and
// then matches the document the winner created.
func upsertIncrement(ctx context.Context, coll *mongo.Collection, op string, filter, onInsert bson.M, now time.Time) error {
	update := bson.M{
		"$inc":         bson.M{"total_trips": 1},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": onInsert,
	}
	opts := options.Update().SetUpsert(true)
	_, err := coll.UpdateOne(ctx, filter, update, opts)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		_, err = coll.UpdateOne(ctx, filter, update, opts)
	}
	return classify(op, err)
}

func updateOne(ctx context.Context, coll *mongo.Collection, op string, filter, update bson.M) error {
	res, err := coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return classify(op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func deleteOne(ctx context.Context, coll *mongo.Collection, op string, filter bson.M) error {
	res, err := coll.DeleteOne(ctx, filter)
	if err != nil {
		return classify(op, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
