// Package mongodirectory reads member accounts from the MongoDB users
// collection shared with the account service.
package mongodirectory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garagevoting/garage-node/access"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultDatabase   = "garage"
	DefaultCollection = "users"
)

// Directory implements access.Directory on a MongoDB collection.
type Directory struct {
	client *mongo.Client
	users  *mongo.Collection
}

// New connects to uri and checks the server is reachable.
func New(ctx context.Context, uri, database string) (*Directory, error) {
	if database == "" {
		database = DefaultDatabase
	}
	opts := options.Client().ApplyURI(uri).SetConnectTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &Directory{
		client: client,
		users:  client.Database(database).Collection(DefaultCollection),
	}, nil
}

func (d *Directory) GetUser(ctx context.Context, q access.Query) (*access.User, error) {
	filter := bson.M{}
	switch {
	case q.ID != "":
		filter["_id"] = q.ID
	case q.Email != "":
		filter["email"] = q.Email
	case len(q.TokenHash) > 0:
		filter["tokenHash"] = q.TokenHash
	default:
		return nil, access.ErrUserNotFound
	}
	var user access.User
	if err := d.users.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, access.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// PutUser upserts a user record. The account service owns these documents;
// the node only writes them when seeding a fresh deployment.
func (d *Directory) PutUser(ctx context.Context, user *access.User) error {
	_, err := d.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", user.ID, err)
	}
	return nil
}

func (d *Directory) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}
