// Package storage implements persistence for the admin panel on top of
// MongoDB: a thin collection wrapper plus repositories for roles, admins,
// submissions, reports and the moderation audit log.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joomcode/errorx"
	"github.com/maxbolgarin/contem"
	"github.com/maxbolgarin/errm"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	// Errors is the namespace for storage failures.
	Errors = errorx.NewNamespace("storage")
	// ErrNotFound is returned when a document is not found.
	ErrNotFound = Errors.NewType("not_found", errorx.NotFound())
	// ErrDuplicate is returned when a document already exists.
	ErrDuplicate = Errors.NewType("duplicate", errorx.Duplicate())
)

// Collection names used by the repositories.
const (
	RolesCollectionName       = "admin_roles"
	AdminsCollectionName      = "admins"
	SubmissionsCollectionName = "user_attachments"
	ReportsCollectionName     = "attachment_reports"
	UsersCollectionName       = "users"
	AuditCollectionName       = "moderation_audit"
)

// DatabaseConfig contains database configuration for creating a MongoDB client.
//
// You can use environment variables to fill it:
// ARMORY_DB_ADDRESS - MongoDB address
// ARMORY_DB_NAME - database name
// ARMORY_DB_USERNAME - MongoDB username
// ARMORY_DB_PASSWORD - MongoDB password
type DatabaseConfig struct {
	// Address is the MongoDB address in ip:port format.
	Address string `yaml:"address" json:"address" env:"ARMORY_DB_ADDRESS"`
	// DBName is the name of the MongoDB database.
	DBName string `yaml:"db_name" json:"db_name" env:"ARMORY_DB_NAME"`
	// Username is the MongoDB username.
	Username string `yaml:"username" json:"username" env:"ARMORY_DB_USERNAME"`
	// Password is the MongoDB password.
	Password string `yaml:"password" json:"password" env:"ARMORY_DB_PASSWORD"`
}

// Validate validates database configuration.
func (cfg DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&cfg,
		validation.Field(&cfg.Address, validation.Required),
		validation.Field(&cfg.DBName, validation.Required),
		validation.Field(&cfg.Username, validation.Required.When(len(cfg.Password) > 0)),
		validation.Field(&cfg.Password, validation.Required.When(len(cfg.Username) > 0)),
	)
}

// MongoDB is a MongoDB client that creates collections on demand.
type MongoDB struct {
	database *mongo.Database
	client   *mongo.Client

	colls map[string]*Collection
	mu    sync.RWMutex
}

// NewMongo creates a new MongoDB client and registers its disconnect in ctx.
func NewMongo(ctx contem.Context, cfg DatabaseConfig) (*MongoDB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("mongodb://%s/%s", cfg.Address, cfg.DBName)
	opts := options.Client().ApplyURI(dsn)
	if len(cfg.Username) > 0 && len(cfg.Password) > 0 {
		opts.SetAuth(options.Credential{
			AuthMechanism: "SCRAM-SHA-256",
			AuthSource:    cfg.DBName,
			Username:      cfg.Username,
			Password:      cfg.Password,
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	ctx.Add(client.Disconnect)

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, err
	}

	return &MongoDB{
		database: client.Database(cfg.DBName),
		client:   client,
		colls:    make(map[string]*Collection),
	}, nil
}

// Collection returns a collection object by name, creating the wrapper on
// first use.
func (m *MongoDB) Collection(name string) *Collection {
	m.mu.RLock()
	coll, ok := m.colls[name]
	m.mu.RUnlock()

	if ok {
		return coll
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.colls[name] = &Collection{
		coll: m.database.Collection(name),
		name: name,
	}

	return m.colls[name]
}

// Collection handles interactions with a MongoDB collection.
type Collection struct {
	coll *mongo.Collection
	name string
}

// CreateIndex creates an index for a collection with the given field names.
func (m *Collection) CreateIndex(ctx context.Context, fieldNames ...string) error {
	return m.createIndex(ctx, fieldNames, false)
}

// CreateUniqueIndex creates a unique index for a collection with the given field names.
func (m *Collection) CreateUniqueIndex(ctx context.Context, fieldNames ...string) error {
	return m.createIndex(ctx, fieldNames, true)
}

// FindOne finds a single document in the collection.
func (m *Collection) FindOne(ctx context.Context, dest any, filter Filter) error {
	result := m.coll.FindOne(ctx, prepareFilter(filter))
	err := result.Err()

	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound.New(m.name)
	case err != nil:
		return err
	}

	if err := result.Decode(dest); err != nil {
		return errm.Wrap(err, "decode")
	}

	return nil
}

// FindMany finds all documents in the collection matching filter.
func (m *Collection) FindMany(ctx context.Context, dest any, filter Filter) error {
	return m.find(ctx, dest, prepareFilter(filter))
}

// FindIn finds multiple documents using an $in filter,
// e.g. {key: {$in: [value1, value2, ...]}}, merged with filter.
func (m *Collection) FindIn(ctx context.Context, dest any, filter, filterIn Filter) error {
	return m.find(ctx, dest, mergeFilter(prepareFilter(filterIn, included), filter))
}

// FindFrom finds multiple documents using a $gte filter,
// e.g. {key: {$gte: value1}}, merged with filter.
func (m *Collection) FindFrom(ctx context.Context, dest any, filter, filterFrom Filter) error {
	return m.find(ctx, dest, mergeFilter(prepareFilter(filterFrom, from), filter))
}

// FindManySorted finds up to limit documents matching filter, sorted by
// sortField. A negative order sorts descending; limit 0 means no limit.
func (m *Collection) FindManySorted(ctx context.Context, dest any, filter Filter, sortField string, order, limit int) error {
	opts := options.Find().SetSort(bson.D{{Key: sortField, Value: order}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return m.find(ctx, dest, prepareFilter(filter), opts)
}

// FindAll finds all documents in the collection.
func (m *Collection) FindAll(ctx context.Context, dest any) error {
	return m.find(ctx, dest, prepareFilter(nil))
}

// Aggregate runs an aggregation pipeline and decodes all results into dest.
func (m *Collection) Aggregate(ctx context.Context, dest any, pipeline mongo.Pipeline) error {
	cur, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return errm.Wrap(err, "aggregate", "collection", m.name)
	}
	defer cur.Close(ctx)

	if err := cur.All(ctx, dest); err != nil {
		return err
	}
	return cur.Err()
}

// Count counts the number of documents in the collection matching filter.
func (m *Collection) Count(ctx context.Context, filter Filter) (int64, error) {
	count, err := m.coll.CountDocuments(ctx, prepareFilter(filter))
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountFrom counts documents matching filter plus a $gte bound,
// e.g. {key: {$gte: value}}.
func (m *Collection) CountFrom(ctx context.Context, filter, filterFrom Filter) (int64, error) {
	count, err := m.coll.CountDocuments(ctx, mergeFilter(prepareFilter(filterFrom, from), filter))
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Insert inserts a document into the collection.
func (m *Collection) Insert(ctx context.Context, record any) error {
	_, err := m.coll.InsertOne(ctx, record)
	switch {
	case isDuplicateErr(err):
		return ErrDuplicate.New(m.name)
	case err != nil:
		return err
	}
	return nil
}

// Upsert replaces a document matching filter, inserting it when missing.
func (m *Collection) Upsert(ctx context.Context, record any, filter Filter) error {
	_, err := m.coll.ReplaceOne(ctx, prepareFilter(filter), record,
		options.Replace().SetUpsert(true))
	return err
}

// SetFields sets fields in a document using an updates map.
// For example: {key1: value1} becomes {$set: {key1: value1}}
func (m *Collection) SetFields(ctx context.Context, filter Filter, update Updates) error {
	return m.updateOne(ctx, filter, prepareUpdate(set, update), false)
}

// AddToSet appends value to an array field without duplicating it,
// creating the document when it does not exist yet. Extra fields are set
// only on insert.
func (m *Collection) AddToSet(ctx context.Context, filter Filter, field string, value any, onInsert Updates) error {
	update := bson.M{addToSet.String(): bson.M{field: value}}
	if len(onInsert) > 0 {
		update[setOnInsert.String()] = bson.M(onInsert)
	}
	return m.updateOne(ctx, filter, update, true)
}

// Pull removes value from an array field.
func (m *Collection) Pull(ctx context.Context, filter Filter, field string, value any) error {
	return m.updateOne(ctx, filter, bson.M{pull.String(): bson.M{field: value}}, false)
}

// Delete deletes a document in the collection.
func (m *Collection) Delete(ctx context.Context, filter Filter) error {
	result, err := m.coll.DeleteOne(ctx, prepareFilter(filter))
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound.New(m.name)
	}
	return nil
}

func (m *Collection) createIndex(ctx context.Context, fieldNames []string, isUnique bool) error {
	indexModel := mongo.IndexModel{
		Options: options.Index().SetUnique(isUnique).SetName(m.name + "_" + strings.Join(fieldNames, "_") + "_index"),
	}

	keys := make(bson.D, 0, len(fieldNames))
	for _, field := range fieldNames {
		keys = append(keys, bson.E{
			Key:   field,
			Value: 1,
		})
	}
	indexModel.Keys = keys

	if _, err := m.coll.Indexes().CreateOne(ctx, indexModel); err != nil {
		return err
	}

	return nil
}

func (m *Collection) find(ctx context.Context, dest any, filter bson.M, opts ...*options.FindOptions) error {
	cur, err := m.coll.Find(ctx, filter, opts...)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound.New(m.name)
	case err != nil:
		return err
	}
	defer cur.Close(ctx)

	if err := cur.All(ctx, dest); err != nil {
		return err
	}

	return cur.Err()
}

func (m *Collection) updateOne(ctx context.Context, filter Filter, update bson.M, upsert bool) error {
	opts := options.Update().SetUpsert(upsert)
	result, err := m.coll.UpdateOne(ctx, prepareFilter(filter), update, opts)
	switch {
	case err != nil:
		return err
	case !upsert && result.MatchedCount == 0:
		return ErrNotFound.New(m.name)
	}
	return nil
}

// Filter is a map containing query operators to filter documents.
type Filter map[string]any

// NewFilter creates a new Filter based on pairs.
// Pairs must be in the form NewFilter(key1, value1, key2, value2, ...)
func NewFilter(pairs ...any) Filter {
	return newMap(pairs...)
}

// Add adds pairs to the Filter.
func (f Filter) Add(pairs ...any) Filter {
	add(f, pairs...)
	return f
}

// Updates is a map containing fields to update.
type Updates map[string]any

// NewUpdates creates a new Updates based on pairs.
// Pairs must be in the form NewUpdates(key1, value1, key2, value2, ...)
func NewUpdates(pairs ...any) Updates {
	return newMap(pairs...)
}

func newMap(pairs ...any) map[string]any {
	out := make(map[string]any, len(pairs)/2)
	add(out, pairs...)
	return out
}

func add(m map[string]any, pairs ...any) {
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if ok && i+1 < len(pairs) {
			m[key] = pairs[i+1]
		}
	}
}

type operationDB string

const (
	in          operationDB = "$in"
	gte         operationDB = "$gte"
	set         operationDB = "$set"
	addToSet    operationDB = "$addToSet"
	setOnInsert operationDB = "$setOnInsert"
	pull        operationDB = "$pull"
)

func (a operationDB) String() string {
	return string(a)
}

type optionDB string

const (
	included optionDB = "included"
	from     optionDB = "from"
)

func prepareFilter(inputFilter Filter, opts ...optionDB) bson.M {
	filter := make(bson.M, len(inputFilter))
	for k, v := range inputFilter {
		for _, o := range opts {
			switch o {
			case included:
				v = bson.M{in.String(): v}
			case from:
				v = bson.M{gte.String(): v}
			}
		}
		filter[k] = v
	}
	return filter
}

func mergeFilter(base bson.M, toMerge Filter) bson.M {
	for k, v := range toMerge {
		base[k] = v
	}
	return base
}

func prepareUpdate(operation operationDB, update Updates) bson.M {
	upd := bson.D{}
	for k, v := range update {
		upd = append(upd, bson.E{Key: k, Value: v})
	}

	return bson.M{operation.String(): upd}
}

func isDuplicateErr(err error) bool {
	var e mongo.WriteException
	if errors.As(err, &e) {
		for _, we := range e.WriteErrors {
			if we.Code == 11000 {
				return true
			}
		}
	}
	return false
}
