package profile

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionProfiles = "profiles"
	defaultTimeout     = 10 * time.Second
)

type MongoStore struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection(collectionProfiles), now: time.Now}
}

// EnsureIndexes creates the indexes on the profiles collection.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("username_unique"),
		},
		{Keys: bson.D{{Key: "email", Value: 1}}},
		{Keys: bson.D{{Key: "active", Value: 1}, {Key: "username", Value: 1}}},
	}

	_, err := s.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func (s *MongoStore) Create(ctx context.Context, p *Profile) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.col.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (s *MongoStore) FindByUsername(ctx context.Context, username string) (*Profile, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

func (s *MongoStore) FindBySubject(ctx context.Context, subjectID string) (*Profile, error) {
	return s.findOne(ctx, bson.M{"_id": subjectID})
}

func (s *MongoStore) FindActiveByUsername(ctx context.Context, username string) (*Profile, error) {
	return s.findOne(ctx, bson.M{"username": username, "active": true})
}

func (s *MongoStore) FindActiveByEmail(ctx context.Context, email string) (*Profile, error) {
	return s.findOne(ctx, bson.M{"email": email, "active": true})
}

func (s *MongoStore) ApplyIdentityChange(ctx context.Context, subjectID string, seq int64, c IdentityChange) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var fields []bson.E
	if c.Username != nil {
		fields = append(fields, bson.E{Key: "username", Value: *c.Username})
	}
	if c.Email != nil {
		fields = append(fields, bson.E{Key: "email", Value: *c.Email})
	}
	if c.Active != nil {
		fields = append(fields, bson.E{Key: "active", Value: *c.Active})
	}

	// One conditional update per field, so a late event for one field is
	// not blocked by a newer change to another.
	applied := false
	for _, f := range fields {
		seqKey := f.Key + "_seq"
		filter := bson.M{
			"_id":  subjectID,
			seqKey: bson.M{"$not": bson.M{"$gte": seq}},
		}
		update := bson.M{
			"$set": bson.M{f.Key: f.Value, seqKey: seq, "updated_at": s.now().UTC()},
			"$max": bson.M{"sequence": seq},
		}
		res, err := s.col.UpdateOne(ctx, filter, update)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return applied, ErrDuplicate
			}
			return applied, err
		}
		if res.MatchedCount > 0 {
			applied = true
		}
	}
	return applied, nil
}

func (s *MongoStore) FindActiveByUsernames(ctx context.Context, usernames []string) ([]Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"username": bson.M{"$in": usernames}, "active": true}
	cur, err := s.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, err
	}

	profiles := []Profile{}
	if err := cur.All(ctx, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// SearchActive matches term anywhere in the username, ignoring case.
func (s *MongoStore) SearchActive(ctx context.Context, term string, limit, offset int) ([]Profile, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"active":   true,
		"username": bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"},
	}

	total, err := s.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "username", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}

	profiles := []Profile{}
	if err := cur.All(ctx, &profiles); err != nil {
		return nil, 0, err
	}
	return profiles, total, nil
}

func (s *MongoStore) UpdateDetails(ctx context.Context, username string, d Details) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{"updated_at": s.now().UTC()}
	setIf := func(key string, v *string) {
		if v != nil {
			set[key] = *v
		}
	}
	setIf("first_name", d.FirstName)
	setIf("middle_name", d.MiddleName)
	setIf("last_name", d.LastName)
	setIf("phone", d.Phone)
	setIf("profile_picture", d.ProfilePicture)
	if d.Status != nil {
		set["status"] = *d.Status
		set["last_seen"] = s.now().UTC()
	}

	var p Profile
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"username": username, "active": true},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var p Profile
	err := s.col.FindOne(ctx, filter).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
