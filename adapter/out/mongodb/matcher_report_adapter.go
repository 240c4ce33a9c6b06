// Package mongodb implements MongoDB adapters for the application.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"matcher_server/core/domain"
)

const collectionCycleReports = "cycle_reports"

// CycleReportAdapter implements domain.CycleReportRepository using MongoDB.
// Reports are small and append-mostly, so they are archived as-is with the
// config snapshot embedded.
type CycleReportAdapter struct {
	collection *mongo.Collection
}

// NewCycleReportAdapter creates a new CycleReportAdapter.
func NewCycleReportAdapter(db *mongo.Database) *CycleReportAdapter {
	return &CycleReportAdapter{collection: db.Collection(collectionCycleReports)}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *CycleReportAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "cycle_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "started_at", Value: -1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Save archives a cycle report. Re-running a cycle ID replaces its report.
func (a *CycleReportAdapter) Save(ctx context.Context, report *domain.CycleReport) error {
	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"cycle_id": report.CycleID}

	if _, err := a.collection.ReplaceOne(ctx, filter, report, opts); err != nil {
		return fmt.Errorf("failed to save cycle report: %w", err)
	}

	return nil
}

// GetByCycleID retrieves one archived report.
func (a *CycleReportAdapter) GetByCycleID(ctx context.Context, cycleID string) (*domain.CycleReport, error) {
	var report domain.CycleReport
	filter := bson.M{"cycle_id": cycleID}

	err := a.collection.FindOne(ctx, filter).Decode(&report)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cycle report: %w", err)
	}

	return &report, nil
}

// Latest retrieves the most recent reports, newest first.
func (a *CycleReportAdapter) Latest(ctx context.Context, limit int) ([]*domain.CycleReport, error) {
	findOpts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := a.collection.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle reports: %w", err)
	}
	defer cursor.Close(ctx)

	var reports []*domain.CycleReport
	for cursor.Next(ctx) {
		var report domain.CycleReport
		if err := cursor.Decode(&report); err != nil {
			return nil, fmt.Errorf("failed to decode cycle report: %w", err)
		}
		reports = append(reports, &report)
	}

	return reports, nil
}

var _ domain.CycleReportRepository = (*CycleReportAdapter)(nil)
