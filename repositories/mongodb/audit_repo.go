package mongodb

import (
	// Go Internal Packages
	"context"

	// Local Packages
	errors "remit-orchestrator/errors"
	models "remit-orchestrator/models"

	// External Packages
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditRepository is append-only; events are never mutated or deleted.
type AuditRepository struct {
	client     *mongo.Client
	database   string
	collection string
}

func NewAuditRepository(client *mongo.Client, database string) *AuditRepository {
	return &AuditRepository{client: client, database: database, collection: "audit_events"}
}

func (r *AuditRepository) coll() *mongo.Collection {
	return r.client.Database(r.database).Collection(r.collection)
}

// Append inserts one audit event.
func (r *AuditRepository) Append(ctx context.Context, event models.AuditEvent) error {
	_, err := r.coll().InsertOne(ctx, event.Transform())
	if err != nil {
		return errors.E(errors.Internal, "failed to append audit event", err)
	}
	return nil
}

// ListByTransaction returns a transaction's audit trail in event order.
func (r *AuditRepository) ListByTransaction(ctx context.Context, transactionID string) ([]models.AuditEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := r.coll().Find(ctx, bson.M{"transaction_id": transactionID}, opts)
	if err != nil {
		return nil, errors.E(errors.Internal, "failed to list audit events", err)
	}
	defer cursor.Close(ctx)

	var events []models.AuditEvent
	for cursor.Next(ctx) {
		var m models.MongoAuditEvent
		if err := cursor.Decode(&m); err != nil {
			return nil, errors.E(errors.Internal, "failed to decode audit event", err)
		}
		events = append(events, m.ToDomain())
	}
	return events, cursor.Err()
}
