package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/blockvault/internal/apperr"
	"github.com/blockvault/internal/identity"
	"github.com/blockvault/internal/models"
)

// MongoStore implements Store on MongoDB, one collection per repository.
type MongoStore struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

// OpenMongo connects and ensures the unique indexes every repository relies
// on.
func OpenMongo(ctx context.Context, uri, database string, timeout time.Duration) (*MongoStore, error) {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(database), timeout: timeout}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		tableNonces: {{Keys: bson.D{{Key: "address", Value: 1}}, Options: options.Index().SetUnique(true)}},
		tableUsers:  {{Keys: bson.D{{Key: "address", Value: 1}}, Options: options.Index().SetUnique(true)}},
		tableFiles:  {{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "created_at", Value: 1}}}},
		tableShares: {
			{
				Keys:    bson.D{{Key: "file_id", Value: 1}, {Key: "owner", Value: 1}, {Key: "recipient", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "recipient", Value: 1}}},
			{Keys: bson.D{{Key: "owner", Value: 1}}},
		},
	}
	for coll, idx := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", coll, err)
		}
	}
	return nil
}

func (s *MongoStore) Nonces() NonceRepository { return mongoNonces{s, s.db.Collection(tableNonces)} }
func (s *MongoStore) Users() UserRepository   { return mongoUsers{s, s.db.Collection(tableUsers)} }
func (s *MongoStore) Files() FileRepository   { return mongoFiles{s, s.db.Collection(tableFiles)} }
func (s *MongoStore) Shares() ShareRepository { return mongoShares{s, s.db.Collection(tableShares)} }

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func mongoErr(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return apperr.Upstream(op, err)
}

type mongoNonces struct {
	s    *MongoStore
	coll *mongo.Collection
}

func (r mongoNonces) Upsert(ctx context.Context, c *models.NonceChallenge) error {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	_, err := r.coll.ReplaceOne(ctx, bson.M{"address": c.Address}, c, options.Replace().SetUpsert(true))
	return mongoErr("nonce store", err)
}

func (r mongoNonces) Get(ctx context.Context, address identity.Address) (*models.NonceChallenge, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	var c models.NonceChallenge
	if err := r.coll.FindOne(ctx, bson.M{"address": address}).Decode(&c); err != nil {
		return nil, mongoErr("nonce store", err)
	}
	return &c, nil
}

func (r mongoNonces) DeleteIfMatch(ctx context.Context, address identity.Address, nonce string) (bool, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"address": address, "nonce": nonce})
	if err != nil {
		return false, mongoErr("nonce store", err)
	}
	return res.DeletedCount > 0, nil
}

type mongoUsers struct {
	s    *MongoStore
	coll *mongo.Collection
}

func (r mongoUsers) EnsureUser(ctx context.Context, address identity.Address, createdAt int64) error {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	update := bson.M{"$setOnInsert": bson.M{"address": address, "created_at": createdAt}}
	_, err := r.coll.UpdateOne(ctx, bson.M{"address": address}, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// a concurrent login created it first
		return nil
	}
	return mongoErr("user store", err)
}

func (r mongoUsers) Get(ctx context.Context, address identity.Address) (*models.User, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	var u models.User
	if err := r.coll.FindOne(ctx, bson.M{"address": address}).Decode(&u); err != nil {
		return nil, mongoErr("user store", err)
	}
	return &u, nil
}

func (r mongoUsers) SetSharingKey(ctx context.Context, address identity.Address, pem string) error {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	update := bson.M{"$set": bson.M{"sharing_pubkey": pem}}
	if pem == "" {
		update = bson.M{"$unset": bson.M{"sharing_pubkey": ""}}
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"address": address}, update)
	if err != nil {
		return mongoErr("user store", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type mongoFiles struct {
	s    *MongoStore
	coll *mongo.Collection
}

func (r mongoFiles) Insert(ctx context.Context, f *models.FileRecord) error {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	_, err := r.coll.InsertOne(ctx, f)
	return mongoErr("file store", err)
}

func (r mongoFiles) Get(ctx context.Context, id string) (*models.FileRecord, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	var f models.FileRecord
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&f); err != nil {
		return nil, mongoErr("file store", err)
	}
	return &f, nil
}

func (r mongoFiles) ListByOwner(ctx context.Context, owner identity.Address, after *int64, limit int) ([]*models.FileRecord, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	filter := bson.M{"owner": owner}
	if after != nil {
		filter["created_at"] = bson.M{"$gt": *after}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, mongoErr("file store", err)
	}
	var out []*models.FileRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, mongoErr("file store", err)
	}
	return out, nil
}

func (r mongoFiles) Delete(ctx context.Context, id string, owner identity.Address) (bool, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id, "owner": owner})
	if err != nil {
		return false, mongoErr("file store", err)
	}
	return res.DeletedCount > 0, nil
}

type mongoShares struct {
	s    *MongoStore
	coll *mongo.Collection
}

func (r mongoShares) Upsert(ctx context.Context, g *models.ShareGrant) (*models.ShareGrant, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	filter := bson.M{"file_id": g.FileID, "owner": g.Owner, "recipient": g.Recipient}
	update := bson.M{
		"$set": bson.M{
			"encrypted_key": g.EncryptedKey,
			"note":          g.Note,
			"updated_at":    g.UpdatedAt,
			"expires_at":    g.ExpiresAt,
			"file_name":     g.FileName,
			"file_size":     g.FileSize,
			"sha256":        g.ContentHash,
			"cid":           g.ContentID,
		},
		"$setOnInsert": bson.M{"_id": g.ID, "created_at": g.CreatedAt},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored models.ShareGrant
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	if mongo.IsDuplicateKeyError(err) {
		// lost the insert race; the second attempt takes the update path
		err = r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	}
	if err != nil {
		return nil, mongoErr("share store", err)
	}
	return &stored, nil
}

func (r mongoShares) Get(ctx context.Context, id string) (*models.ShareGrant, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	var g models.ShareGrant
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		return nil, mongoErr("share store", err)
	}
	return &g, nil
}

func (r mongoShares) FindForRecipient(ctx context.Context, fileID string, recipient identity.Address) (*models.ShareGrant, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	var g models.ShareGrant
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if err := r.coll.FindOne(ctx, bson.M{"file_id": fileID, "recipient": recipient}, opts).Decode(&g); err != nil {
		return nil, mongoErr("share store", err)
	}
	return &g, nil
}

func (r mongoShares) ListByRecipient(ctx context.Context, recipient identity.Address) ([]*models.ShareGrant, error) {
	return r.list(ctx, bson.M{"recipient": recipient})
}

func (r mongoShares) ListByOwner(ctx context.Context, owner identity.Address) ([]*models.ShareGrant, error) {
	return r.list(ctx, bson.M{"owner": owner})
}

func (r mongoShares) list(ctx context.Context, filter bson.M) ([]*models.ShareGrant, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, mongoErr("share store", err)
	}
	var out []*models.ShareGrant
	if err := cur.All(ctx, &out); err != nil {
		return nil, mongoErr("share store", err)
	}
	return out, nil
}

func (r mongoShares) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, mongoErr("share store", err)
	}
	return res.DeletedCount > 0, nil
}
