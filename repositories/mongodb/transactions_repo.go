package mongodb

import (
	// Go Internal Packages
	"context"
	"time"

	// Local Packages
	errors "remit-orchestrator/errors"
	models "remit-orchestrator/models"

	// External Packages
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type TxRepository struct {
	client     *mongo.Client
	database   string
	collection string
}

func NewTxRepository(client *mongo.Client, database string) *TxRepository {
	return &TxRepository{client: client, database: database, collection: "transactions"}
}

func (r *TxRepository) coll() *mongo.Collection {
	return r.client.Database(r.database).Collection(r.collection)
}

// Insert persists a newly created transaction.
func (r *TxRepository) Insert(ctx context.Context, tx *models.Transaction) error {
	_, err := r.coll().InsertOne(ctx, tx.Transform())
	if err != nil {
		return errors.E(errors.Internal, "failed to insert transaction", err)
	}
	return nil
}

// Get loads a transaction by id, including its current version.
func (r *TxRepository) Get(ctx context.Context, id string) (*models.Transaction, error) {
	var m models.MongoTransaction
	err := r.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, errors.TxNotFoundErr(id)
	}
	if err != nil {
		return nil, errors.E(errors.Internal, "failed to load transaction", err)
	}
	return m.ToDomain(), nil
}

// GetByLegReference loads the transaction holding the given partner-issued
// reference for a leg.
func (r *TxRepository) GetByLegReference(ctx context.Context, leg models.Leg, ref string) (*models.Transaction, error) {
	var m models.MongoTransaction
	filter := bson.M{"leg_references." + string(leg): ref}
	err := r.coll().FindOne(ctx, filter).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, errors.E(errors.NotFound, "no transaction for leg reference "+ref, nil)
	}
	if err != nil {
		return nil, errors.E(errors.Internal, "failed to load transaction", err)
	}
	return m.ToDomain(), nil
}

// Update writes the transaction conditioned on the version it was loaded
// with. When a concurrent writer advanced the version first the write
// matches nothing and a Conflict error is returned; on success the
// in-memory version is bumped to the stored one.
func (r *TxRepository) Update(ctx context.Context, tx *models.Transaction) error {
	loadedVersion := tx.Version
	tx.UpdatedAt = time.Now().UTC()
	tx.Version = loadedVersion + 1

	filter := bson.M{"_id": tx.ID, "version": loadedVersion}
	res, err := r.coll().ReplaceOne(ctx, filter, tx.Transform())
	if err != nil {
		tx.Version = loadedVersion
		return errors.E(errors.Internal, "failed to update transaction", err)
	}
	if res.MatchedCount == 0 {
		tx.Version = loadedVersion
		return errors.VersionConflictErr(tx.ID, loadedVersion)
	}
	return nil
}

// SumBySenderSince returns the sender's total source amount across
// non-FAILED transactions created after the given instant.
func (r *TxRepository) SumBySenderSince(ctx context.Context, senderID string, since time.Time) (decimal.Decimal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"sender_id":  senderID,
			"status":     bson.M{"$ne": models.StatusFailed},
			"created_at": bson.M{"$gte": since},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$source_amount"},
		}}},
	}

	cursor, err := r.coll().Aggregate(ctx, pipeline)
	if err != nil {
		return decimal.Zero, errors.E(errors.Internal, "failed to sum sender transactions", err)
	}
	defer cursor.Close(ctx)

	var result struct {
		Total float64 `bson:"total"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&result); err != nil {
			return decimal.Zero, errors.E(errors.Internal, "failed to decode sender total", err)
		}
	}
	return decimal.NewFromFloat(result.Total), nil
}

// ListBySender returns the sender's most recent transactions.
func (r *TxRepository) ListBySender(ctx context.Context, senderID string, limit int) ([]*models.Transaction, error) {
	return r.list(ctx, bson.M{"sender_id": senderID}, limit)
}

// ListByRecipient returns the most recent transactions payable to the given
// bank account reference.
func (r *TxRepository) ListByRecipient(ctx context.Context, bankAccount string, limit int) ([]*models.Transaction, error) {
	return r.list(ctx, bson.M{"recipient.bank_account": bankAccount}, limit)
}

// ListUnresolved returns all non-terminal transactions. The reconciliation
// scheduler rebuilds its tracking set from this at startup.
func (r *TxRepository) ListUnresolved(ctx context.Context) ([]*models.Transaction, error) {
	filter := bson.M{"status": bson.M{"$nin": bson.A{models.StatusCompleted, models.StatusFailed}}}
	return r.list(ctx, filter, 0)
}

func (r *TxRepository) list(ctx context.Context, filter bson.M, limit int) ([]*models.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := r.coll().Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.E(errors.Internal, "failed to list transactions", err)
	}
	defer cursor.Close(ctx)

	var txs []*models.Transaction
	for cursor.Next(ctx) {
		var m models.MongoTransaction
		if err := cursor.Decode(&m); err != nil {
			return nil, errors.E(errors.Internal, "failed to decode transaction", err)
		}
		txs = append(txs, m.ToDomain())
	}
	return txs, cursor.Err()
}
