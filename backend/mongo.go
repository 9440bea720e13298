package backend

import (
	"context"
	"errors"
	"time"

	"cropwise/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Mongo stores rows in three collections and serves change feeds from change
// streams. Change streams require a replica set.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	users  *mongo.Collection
	farms  *mongo.Collection
	crops  *mongo.Collection
	log    *zap.Logger
}

func NewMongo(ctx context.Context, uri, database string, log *zap.Logger) (*Mongo, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	db := client.Database(database)
	m := &Mongo{
		client: client,
		db:     db,
		users:  db.Collection("users"),
		farms:  db.Collection(string(TableFarms)),
		crops:  db.Collection(string(TableCrops)),
		log:    log,
	}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	// email and phone are each optional, so uniqueness only applies when present
	for _, key := range []string{"email", "phone"} {
		if _, err := m.users.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: key, Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{key: bson.M{"$type": "string"}}),
		}); err != nil {
			return err
		}
	}
	for _, c := range []*mongo.Collection{m.farms, m.crops} {
		if _, err := c.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: 1}},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mongo) ListFarms(ctx context.Context, ownerID string) ([]models.Farm, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	out := []models.Farm{}
	if err := m.findOwned(ctx, m.farms, ownerID, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Mongo) ListCrops(ctx context.Context, ownerID string) ([]models.Crop, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	out := []models.Crop{}
	if err := m.findOwned(ctx, m.crops, ownerID, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Mongo) findOwned(ctx context.Context, c *mongo.Collection, ownerID string, out any) error {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := c.Find(ctx, bson.M{"ownerId": ownerID}, opts)
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	return cur.All(ctx, out)
}

func (m *Mongo) InsertFarm(ctx context.Context, f models.Farm) (models.Farm, error) {
	if err := requireOwner(f.OwnerID); err != nil {
		return models.Farm{}, err
	}
	f.ID = primitive.NewObjectID().Hex()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if f.Crops == nil {
		f.Crops = []string{}
	}
	if _, err := m.farms.InsertOne(ctx, f); err != nil {
		return models.Farm{}, err
	}
	return f, nil
}

func (m *Mongo) InsertCrop(ctx context.Context, c models.Crop) (models.Crop, error) {
	if err := requireOwner(c.OwnerID); err != nil {
		return models.Crop{}, err
	}
	c.ID = primitive.NewObjectID().Hex()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if _, err := m.crops.InsertOne(ctx, c); err != nil {
		return models.Crop{}, err
	}
	return c, nil
}

func (m *Mongo) UpdateCropImage(ctx context.Context, ownerID, cropID, url string) (models.Crop, error) {
	if err := requireOwner(ownerID); err != nil {
		return models.Crop{}, err
	}
	var out models.Crop
	err := m.crops.FindOneAndUpdate(ctx,
		bson.M{"_id": cropID, "ownerId": ownerID},
		bson.M{"$set": bson.M{"image": url}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Crop{}, ErrNotFound
	}
	if err != nil {
		return models.Crop{}, err
	}
	return out, nil
}

func (m *Mongo) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	u.ID = primitive.NewObjectID().Hex()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if _, err := m.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, ErrDuplicate
		}
		return models.User{}, err
	}
	return u, nil
}

func (m *Mongo) FindUser(ctx context.Context, email, phone string) (models.User, error) {
	filter := bson.M{"email": email}
	if email == "" {
		filter = bson.M{"phone": phone}
	}
	if email == "" && phone == "" {
		return models.User{}, ErrNotFound
	}
	var u models.User
	err := m.users.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

func (m *Mongo) GetUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := m.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

type changeDoc struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
}

// Subscribe watches table for the owner's inserts and updates. Deletes carry no
// full document, so every delete on the collection is passed through and the
// consumer refetches.
func (m *Mongo) Subscribe(ctx context.Context, table Table, ownerID string) (Subscription, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	coll := m.db.Collection(string(table))
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "fullDocument.ownerId", Value: ownerID}},
			bson.D{{Key: "operationType", Value: "delete"}},
		}}}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	cs, err := coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, err
	}
	log := m.log.With(zap.String("table", string(table)), zap.String("owner", ownerID))

	produce := func(ctx context.Context, emit func(Change) bool) {
		for cs.Next(ctx) {
			var doc changeDoc
			if err := cs.Decode(&doc); err != nil {
				log.Warn("decode change event", zap.Error(err))
				continue
			}
			if !emit(Change{Table: table, Op: mongoOp(doc.OperationType), ID: doc.DocumentKey.ID}) {
				return
			}
		}
		if err := cs.Err(); err != nil && ctx.Err() == nil {
			log.Warn("change stream stopped", zap.Error(err))
		}
	}
	return newFeed(context.WithoutCancel(ctx), produce, func() error {
		return cs.Close(context.Background())
	}), nil
}

func mongoOp(op string) ChangeOp {
	switch op {
	case "insert":
		return OpInsert
	case "delete":
		return OpDelete
	case "update", "replace":
		return OpUpdate
	default:
		return OpResync
	}
}

func (m *Mongo) Close(ctx context.Context) error { return m.client.Disconnect(ctx) }
