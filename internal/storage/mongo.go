package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/maneesh/filesmanager/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type userDocument struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Email    string             `bson:"email"`
	Password string             `bson:"password"`
}

// fileDocument keeps parentId as the string "0" for the root and as an
// ObjectID otherwise.
type fileDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    primitive.ObjectID `bson:"userId"`
	Name      string             `bson:"name"`
	Type      string             `bson:"type"`
	IsPublic  bool               `bson:"isPublic"`
	ParentID  any                `bson:"parentId"`
	LocalPath string             `bson:"localPath,omitempty"`
}

// MongoClient stores users and file metadata in MongoDB
type MongoClient struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoClient connects to uri and pings the primary
func NewMongoClient(ctx context.Context, uri, database string) (*MongoClient, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoClient{client: client, db: client.Database(database)}, nil
}

// NewMongoClientFromDB wraps an already connected database
func NewMongoClientFromDB(db *mongo.Database) *MongoClient {
	return &MongoClient{client: db.Client(), db: db}
}

// Ping checks that the primary answers
func (mc *MongoClient) Ping(ctx context.Context) error {
	return mc.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client
func (mc *MongoClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return mc.client.Disconnect(ctx)
}

func (mc *MongoClient) users() *mongo.Collection { return mc.db.Collection(usersCollection) }
func (mc *MongoClient) files() *mongo.Collection { return mc.db.Collection(filesCollection) }

// CreateUser inserts user and assigns its ID
func (mc *MongoClient) CreateUser(ctx context.Context, user *models.User) error {
	ctx, span := tracer.Start(ctx, "mongo.create_user")
	defer span.End()

	res, err := mc.users().InsertOne(ctx, userDocument{Email: user.Email, Password: user.PasswordHash})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert user: %w", err)
	}
	user.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return nil
}

// GetUser returns the user with id
func (mc *MongoClient) GetUser(ctx context.Context, id string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "mongo.get_user",
		trace.WithAttributes(attribute.String("user_id", id)),
	)
	defer span.End()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.ErrNoRecord
	}
	return mc.findUser(ctx, bson.M{"_id": oid})
}

// FindUserByEmail returns the user registered with email
func (mc *MongoClient) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "mongo.find_user_by_email")
	defer span.End()

	return mc.findUser(ctx, bson.M{"email": email})
}

// FindUserByCredentials returns the user matching both email and password hash
func (mc *MongoClient) FindUserByCredentials(ctx context.Context, email, passwordHash string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "mongo.find_user_by_credentials")
	defer span.End()

	return mc.findUser(ctx, bson.M{"email": email, "password": passwordHash})
}

func (mc *MongoClient) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDocument
	err := mc.users().FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNoRecord
	} else if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &models.User{ID: doc.ID.Hex(), Email: doc.Email, PasswordHash: doc.Password}, nil
}

// CreateFile inserts entry and assigns its ID
func (mc *MongoClient) CreateFile(ctx context.Context, entry *models.FileEntry) error {
	ctx, span := tracer.Start(ctx, "mongo.create_file",
		trace.WithAttributes(
			attribute.String("file_name", entry.Name),
			attribute.String("file_type", string(entry.Type)),
		),
	)
	defer span.End()

	userID, err := primitive.ObjectIDFromHex(entry.UserID)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", entry.UserID, err)
	}
	parentID, err := parentValue(entry.ParentID)
	if err != nil {
		return fmt.Errorf("invalid parent id %q: %w", entry.ParentID.ID(), err)
	}

	res, err := mc.files().InsertOne(ctx, fileDocument{
		UserID:    userID,
		Name:      entry.Name,
		Type:      string(entry.Type),
		IsPublic:  entry.IsPublic,
		ParentID:  parentID,
		LocalPath: entry.LocalPath,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert file: %w", err)
	}

	entry.ID = res.InsertedID.(primitive.ObjectID).Hex()
	span.SetAttributes(attribute.String("file_id", entry.ID))
	return nil
}

// GetFile returns the entry with id regardless of its owner
func (mc *MongoClient) GetFile(ctx context.Context, id string) (*models.FileEntry, error) {
	ctx, span := tracer.Start(ctx, "mongo.get_file",
		trace.WithAttributes(attribute.String("file_id", id)),
	)
	defer span.End()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.ErrNoRecord
	}
	return mc.findFile(ctx, bson.M{"_id": oid})
}

// GetUserFile returns the entry with id owned by userID
func (mc *MongoClient) GetUserFile(ctx context.Context, id, userID string) (*models.FileEntry, error) {
	ctx, span := tracer.Start(ctx, "mongo.get_user_file",
		trace.WithAttributes(
			attribute.String("file_id", id),
			attribute.String("user_id", userID),
		),
	)
	defer span.End()

	filter, err := ownedFilter(id, userID)
	if err != nil {
		return nil, err
	}
	return mc.findFile(ctx, filter)
}

func (mc *MongoClient) findFile(ctx context.Context, filter bson.M) (*models.FileEntry, error) {
	var doc fileDocument
	err := mc.files().FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNoRecord
	} else if err != nil {
		return nil, fmt.Errorf("failed to query file: %w", err)
	}
	return doc.entry(), nil
}

// ListFiles returns up to limit entries of userID directly under parent,
// skipping the first skip matches
func (mc *MongoClient) ListFiles(ctx context.Context, userID string, parent models.ParentRef, skip, limit int) ([]*models.FileEntry, error) {
	ctx, span := tracer.Start(ctx, "mongo.list_files",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("parent_id", parent.String()),
			attribute.Int("skip", skip),
		),
	)
	defer span.End()

	entries := make([]*models.FileEntry, 0)
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return entries, nil
	}
	parentID, err := parentValue(parent)
	if err != nil {
		return entries, nil
	}

	cursor, err := mc.files().Find(ctx,
		bson.M{"userId": uid, "parentId": parentID},
		options.Find().
			SetSort(bson.D{{Key: "_id", Value: 1}}).
			SetSkip(int64(skip)).
			SetLimit(int64(limit)),
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []fileDocument
	if err := cursor.All(ctx, &docs); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to decode files: %w", err)
	}
	for i := range docs {
		entries = append(entries, docs[i].entry())
	}

	span.SetAttributes(attribute.Int("count", len(entries)))
	return entries, nil
}

// SetFilePublic updates the visibility of the entry id owned by userID
func (mc *MongoClient) SetFilePublic(ctx context.Context, id, userID string, isPublic bool) (*models.FileEntry, error) {
	ctx, span := tracer.Start(ctx, "mongo.set_file_public",
		trace.WithAttributes(
			attribute.String("file_id", id),
			attribute.Bool("is_public", isPublic),
		),
	)
	defer span.End()

	filter, err := ownedFilter(id, userID)
	if err != nil {
		return nil, err
	}

	var doc fileDocument
	err = mc.files().FindOneAndUpdate(ctx, filter,
		bson.M{"$set": bson.M{"isPublic": isPublic}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNoRecord
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to update file: %w", err)
	}
	return doc.entry(), nil
}

// CountUsers returns the number of users
func (mc *MongoClient) CountUsers(ctx context.Context) (int64, error) {
	return mc.users().CountDocuments(ctx, bson.D{})
}

// CountFiles returns the number of entries
func (mc *MongoClient) CountFiles(ctx context.Context) (int64, error) {
	return mc.files().CountDocuments(ctx, bson.D{})
}

func ownedFilter(id, userID string) (bson.M, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.ErrNoRecord
	}
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, apperr.ErrNoRecord
	}
	return bson.M{"_id": oid, "userId": uid}, nil
}

func parentValue(p models.ParentRef) (any, error) {
	if p.IsRoot() {
		return models.RootParentID, nil
	}
	return primitive.ObjectIDFromHex(p.ID())
}

func (doc *fileDocument) entry() *models.FileEntry {
	entry := &models.FileEntry{
		ID:        doc.ID.Hex(),
		UserID:    doc.UserID.Hex(),
		Name:      doc.Name,
		Type:      models.FileType(doc.Type),
		IsPublic:  doc.IsPublic,
		ParentID:  models.Root,
		LocalPath: doc.LocalPath,
	}
	switch v := doc.ParentID.(type) {
	case primitive.ObjectID:
		entry.ParentID = models.FolderRef(v.Hex())
	case string:
		entry.ParentID = models.ParseParentRef(v)
	case int32, int64:
		entry.ParentID = models.Root
	}
	return entry
}
