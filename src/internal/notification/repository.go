package notification

import (
	"context"
	"errors"
	"time"

	"challengehub-realtime-svc/src/clients"
	"challengehub-realtime-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	List(ctx context.Context, userID string, page, pageSize int) ([]*Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	// Owners maps each existing id to its owner. Unknown ids are absent.
	Owners(ctx context.Context, ids []string) (map[string]string, error)
	MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int64, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type notificationRepository struct {
	collection *mongo.Collection
}

func NewRepository(mongoClient *clients.MongoDB, collectionName string) Repository {
	return &notificationRepository{
		collection: mongoClient.Database.Collection(collectionName),
	}
}

func (r *notificationRepository) Create(ctx context.Context, n *Notification) error {
	if _, err := r.collection.InsertOne(ctx, n); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id": n.UserID,
			"kind":    n.Kind,
		}).Error("Failed to insert notification")
		return errors.Join(models.ErrDatabaseInsert, err)
	}
	return nil
}

func (r *notificationRepository) List(ctx context.Context, userID string, page, pageSize int) ([]*Notification, error) {
	filter := bson.M{"user_id": userID}

	skip := (page - 1) * pageSize
	opts := options.Find().
		SetLimit(int64(pageSize)).
		SetSkip(int64(skip)).
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to find notifications")
		return nil, errors.Join(models.ErrDatabaseQuery, err)
	}
	defer cursor.Close(ctx)

	items := make([]*Notification, 0, pageSize)
	for cursor.Next(ctx) {
		var n Notification
		if err := cursor.Decode(&n); err != nil {
			logrus.WithError(err).Error("Failed to decode notification")
			continue
		}
		items = append(items, &n)
	}

	if err := cursor.Err(); err != nil {
		logrus.WithError(err).Error("Cursor error")
		return nil, errors.Join(models.ErrDatabaseQuery, err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":   userID,
		"count":     len(items),
		"page":      page,
		"page_size": pageSize,
	}).Debug("Retrieved notifications successfully")

	return items, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID, "is_read": false})
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to count unread notifications")
		return 0, errors.Join(models.ErrDatabaseQuery, err)
	}
	return count, nil
}

func (r *notificationRepository) Owners(ctx context.Context, ids []string) (map[string]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1, "user_id": 1})

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		logrus.WithError(err).Error("Failed to look up notification owners")
		return nil, errors.Join(models.ErrDatabaseQuery, err)
	}
	defer cursor.Close(ctx)

	owners := make(map[string]string, len(ids))
	for cursor.Next(ctx) {
		var row struct {
			ID     string `bson:"_id"`
			UserID string `bson:"user_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, errors.Join(models.ErrDatabaseQuery, err)
		}
		owners[row.ID] = row.UserID
	}

	if err := cursor.Err(); err != nil {
		return nil, errors.Join(models.ErrDatabaseQuery, err)
	}
	return owners, nil
}

// MarkRead updates only documents owned by userID, whatever ids contains.
func (r *notificationRepository) MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int64, error) {
	filter := bson.M{
		"_id":     bson.M{"$in": ids},
		"user_id": userID,
		"is_read": false,
	}
	return r.markRead(ctx, filter, at)
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	return r.markRead(ctx, bson.M{"user_id": userID, "is_read": false}, at)
}

func (r *notificationRepository) markRead(ctx context.Context, filter bson.M, at time.Time) (int64, error) {
	update := bson.M{"$set": bson.M{"is_read": true, "read_at": at}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		logrus.WithError(err).WithField("user_id", filter["user_id"]).Error("Failed to mark notifications read")
		return 0, errors.Join(models.ErrDatabaseUpdate, err)
	}
	return result.ModifiedCount, nil
}

func (r *notificationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_read", Value: 1}}},
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to create notification indexes")
		return errors.Join(models.ErrDatabaseConnection, err)
	}
	return nil
}
