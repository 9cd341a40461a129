package database

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Migration struct {
	Version     int
	Description string
	Up          func(*mongo.Database) error
	Down        func(*mongo.Database) error
}

type Migrator struct {
	db         *mongo.Database
	migrations []Migration
}

func NewMigrator(db *mongo.Database) *Migrator {
	return &Migrator{
		db:         db,
		migrations: getMigrations(),
	}
}

func (m *Migrator) Up() error {
	err := m.createMigrationsCollection()
	if err != nil {
		return err
	}

	currentVersion, err := m.getCurrentVersion()
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if migration.Version > currentVersion {
			log.Printf("Running migration %d: %s", migration.Version, migration.Description)

			err := migration.Up(m.db)
			if err != nil {
				return fmt.Errorf("migration %d failed: %w", migration.Version, err)
			}

			err = m.updateVersion(migration.Version)
			if err != nil {
				return fmt.Errorf("failed to update migration version: %w", err)
			}
		}
	}

	return nil
}

func (m *Migrator) createMigrationsCollection() error {
	ctx := context.Background()
	names, err := m.db.ListCollectionNames(ctx, bson.M{"name": "schema_migrations"})
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return m.db.CreateCollection(ctx, "schema_migrations")
	}
	return nil
}

func (m *Migrator) getCurrentVersion() (int, error) {
	ctx := context.Background()

	var result struct {
		Version int `bson:"version"`
	}

	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	err := m.db.Collection("schema_migrations").FindOne(ctx, bson.M{}, opts).Decode(&result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, nil
		}
		return 0, err
	}

	return result.Version, nil
}

func (m *Migrator) updateVersion(version int) error {
	ctx := context.Background()
	_, err := m.db.Collection("schema_migrations").InsertOne(ctx, bson.M{"version": version})
	return err
}

func getMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create trips collection with indexes",
			Up: func(db *mongo.Database) error {
				return createTripsIndexes(db)
			},
			Down: func(db *mongo.Database) error {
				return db.Collection("trips").Drop(context.Background())
			},
		},
		{
			Version:     2,
			Description: "Create location_updates collection with indexes",
			Up: func(db *mongo.Database) error {
				return createLocationUpdatesIndexes(db)
			},
			Down: func(db *mongo.Database) error {
				return db.Collection("location_updates").Drop(context.Background())
			},
		},
		{
			Version:     3,
			Description: "Create sos_requests collection with indexes",
			Up: func(db *mongo.Database) error {
				return createSOSRequestsIndexes(db)
			},
			Down: func(db *mongo.Database) error {
				return db.Collection("sos_requests").Drop(context.Background())
			},
		},
		{
			Version:     4,
			Description: "Create safety_profiles collection with indexes",
			Up: func(db *mongo.Database) error {
				return createSafetyProfilesIndexes(db)
			},
			Down: func(db *mongo.Database) error {
				return db.Collection("safety_profiles").Drop(context.Background())
			},
		},
		{
			Version:     5,
			Description: "Create community_posts collection with indexes",
			Up: func(db *mongo.Database) error {
				return createCommunityPostsIndexes(db)
			},
			Down: func(db *mongo.Database) error {
				return db.Collection("community_posts").Drop(context.Background())
			},
		},
	}
}

func createTripsIndexes(db *mongo.Database) error {
	ctx := context.Background()
	collection := db.Collection("trips")

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			// The reaper and backfill jobs scan by status.
			Keys: bson.D{{Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func createLocationUpdatesIndexes(db *mongo.Database) error {
	ctx := context.Background()
	collection := db.Collection("location_updates")

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "trip_id", Value: 1}, {Key: "timestamp", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func createSOSRequestsIndexes(db *mongo.Database) error {
	ctx := context.Background()
	collection := db.Collection("sos_requests")

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "trip_id", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			// The auto-resolver scans open tickets by last update.
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func createSafetyProfilesIndexes(db *mongo.Database) error {
	ctx := context.Background()
	collection := db.Collection("safety_profiles")

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func createCommunityPostsIndexes(db *mongo.Database) error {
	ctx := context.Background()
	collection := db.Collection("community_posts")

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
