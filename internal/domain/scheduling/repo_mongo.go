package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/CodePlayData/fhir/internal/domain/availability"
)

const MongoCollectionSchedules = "schedules"

// mongoSchedule is the stored shape of a ScheduleDocument. Ids are kept as
// strings and the FHIR resource as its JSON text.
type mongoSchedule struct {
	ID         string                        `bson:"_id"`
	FHIRID     string                        `bson:"fhir_id"`
	Active     bool                          `bson:"active"`
	Actors     []availability.BookableActor  `bson:"actors"`
	Start      time.Time                     `bson:"planning_horizon_start"`
	End        time.Time                     `bson:"planning_horizon_end"`
	Options    *availability.ScheduleOptions `bson:"options"`
	Resource   string                        `bson:"resource"`
	ReplacesID string                        `bson:"replaces_id,omitempty"`
	VersionID  int                           `bson:"version_id"`
	CreatedAt  time.Time                     `bson:"created_at"`
	UpdatedAt  time.Time                     `bson:"updated_at"`
}

func toMongo(d *ScheduleDocument) mongoSchedule {
	m := mongoSchedule{
		ID:        d.ID.String(),
		FHIRID:    d.FHIRID,
		Active:    d.Active,
		Actors:    d.Actors,
		Start:     d.Start,
		End:       d.End,
		Options:   d.Options,
		Resource:  string(d.Resource),
		VersionID: d.VersionID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if m.Actors == nil {
		m.Actors = []availability.BookableActor{}
	}
	if d.ReplacesID != nil {
		m.ReplacesID = d.ReplacesID.String()
	}
	return m
}

func (m mongoSchedule) document() (*ScheduleDocument, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("decode schedule id %q: %w", m.ID, err)
	}
	d := &ScheduleDocument{
		ID:        id,
		FHIRID:    m.FHIRID,
		Active:    m.Active,
		Actors:    m.Actors,
		Start:     m.Start,
		End:       m.End,
		Options:   m.Options,
		Resource:  []byte(m.Resource),
		VersionID: m.VersionID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.ReplacesID != "" {
		prior, err := uuid.Parse(m.ReplacesID)
		if err != nil {
			return nil, fmt.Errorf("decode replaces_id of %s: %w", m.ID, err)
		}
		d.ReplacesID = &prior
	}
	return d, nil
}

type scheduleRepoMongo struct {
	collection *mongo.Collection
	nowFunc    func() time.Time
}

func NewScheduleRepoMongo(client *mongo.Client, dbName string) ScheduleRepository {
	return &scheduleRepoMongo{
		collection: client.Database(dbName).Collection(MongoCollectionSchedules),
		nowFunc:    time.Now,
	}
}

// EnsureMongoIndexes creates the indexes the repository's filters rely on.
func EnsureMongoIndexes(ctx context.Context, client *mongo.Client, dbName string) error {
	_, err := client.Database(dbName).Collection(MongoCollectionSchedules).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "fhir_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "active", Value: 1}}},
		{Keys: bson.D{{Key: "actors.type", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create schedule indexes: %w", err)
	}
	return nil
}

func (r *scheduleRepoMongo) SaveSchedule(ctx context.Context, doc *ScheduleDocument) error {
	now := r.nowFunc().UTC()
	if doc.VersionID == 0 {
		doc.VersionID = 1
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if _, err := r.collection.InsertOne(ctx, toMongo(doc)); err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func (r *scheduleRepoMongo) UpdateSchedule(ctx context.Context, filter map[string]string, data map[string]interface{}) (int64, error) {
	f, err := parseFilter(filter)
	if err != nil {
		return 0, err
	}
	u, err := parseUpdate(data)
	if err != nil {
		return 0, err
	}
	res, err := r.collection.UpdateMany(ctx, mongoFilter(f), mongoUpdate(u, r.nowFunc().UTC()), options.Update().SetUpsert(false))
	if err != nil {
		return 0, fmt.Errorf("update schedule: %w", err)
	}
	return res.MatchedCount, nil
}

func (r *scheduleRepoMongo) DeactivateSchedule(ctx context.Context, filter map[string]string) (int64, error) {
	return r.UpdateSchedule(ctx, filter, map[string]interface{}{FieldActive: false})
}

func (r *scheduleRepoMongo) FindSchedule(ctx context.Context, filter map[string]string) (*ScheduleDocument, error) {
	f, err := parseFilter(filter)
	if err != nil {
		return nil, err
	}
	var m mongoSchedule
	err = r.collection.FindOne(ctx, mongoFilter(f)).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find schedule: %w", err)
	}
	return m.document()
}

func (r *scheduleRepoMongo) SearchSchedules(ctx context.Context, filter map[string]string, limit, offset int) ([]*ScheduleDocument, int, error) {
	f, err := parseFilter(filter)
	if err != nil {
		return nil, 0, err
	}
	q := mongoFilter(f)
	total, err := r.collection.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.collection.Find(ctx, q, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find schedules: %w", err)
	}
	defer cur.Close(ctx)

	items := []*ScheduleDocument{}
	for cur.Next(ctx) {
		var m mongoSchedule
		if err := cur.Decode(&m); err != nil {
			return nil, 0, fmt.Errorf("decode schedule: %w", err)
		}
		d, err := m.document()
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, int(total), cur.Err()
}

func mongoFilter(f scheduleFilter) bson.M {
	q := bson.M{}
	if f.ID != nil {
		q["_id"] = f.ID.String()
	}
	if f.FHIRID != nil {
		q["fhir_id"] = *f.FHIRID
	}
	if f.Active != nil {
		q["active"] = *f.Active
	}
	if f.ActorType != nil {
		q["actors.type"] = string(*f.ActorType)
	}
	return q
}

// mongoUpdate renders u as a $set, bumping the version like the other stores.
func mongoUpdate(u scheduleUpdate, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if u.Active != nil {
		set["active"] = *u.Active
	}
	if u.Actors != nil {
		actors := *u.Actors
		if actors == nil {
			actors = []availability.BookableActor{}
		}
		set["actors"] = actors
	}
	if u.Options != nil {
		set["options"] = *u.Options
	}
	if u.Start != nil {
		set["planning_horizon_start"] = *u.Start
	}
	if u.End != nil {
		set["planning_horizon_end"] = *u.End
	}
	if u.Resource != nil {
		set["resource"] = string(u.Resource)
	}
	if u.ReplacesID != nil {
		if id := *u.ReplacesID; id != nil {
			set["replaces_id"] = id.String()
		} else {
			set["replaces_id"] = ""
		}
	}
	return bson.M{
		"$set": set,
		"$inc": bson.M{"version_id": 1},
	}
}

// MongoTransactor runs fn inside a MongoDB session transaction. Calls made
// while a session is already bound to ctx join it.
type MongoTransactor struct {
	client *mongo.Client
}

func NewMongoTransactor(client *mongo.Client) *MongoTransactor {
	return &MongoTransactor{client: client}
}

func (t *MongoTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	sess, err := t.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
