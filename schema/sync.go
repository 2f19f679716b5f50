package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

const (
	DefaultCollection = "_SCHEMA"

	defaultLockID = "schema_sync_lock"
	lockSuffix    = "_lock"
	lockTTL       = 600 // seconds

	metadataKey = "_metadata"
	syncedAtKey = "synced_at"
)

var (
	ErrLocked            = errors.New("schema: another sync holds the lock")
	ErrFieldTypeMismatch = errors.New("schema: field type mismatch")
)

// Result lists what a Sync did per class.
type Result struct {
	Created   []string `json:"created,omitempty"`
	Updated   []string `json:"updated,omitempty"`
	Unchanged []string `json:"unchanged,omitempty"`
	Skipped   []string `json:"skipped,omitempty"`
}

// Status describes one class as the backend sees it.
type Status struct {
	Class         string     `json:"class"`
	InBackend     bool       `json:"in_backend"`
	MissingFields []string   `json:"missing_fields,omitempty"`
	Conflicts     []Conflict `json:"conflicts,omitempty"`
	SyncedAt      *time.Time `json:"synced_at,omitempty"`
}

func (s Status) UpToDate() bool {
	return s.InBackend && len(s.MissingFields) == 0 && len(s.Conflicts) == 0
}

// Syncer publishes class schemas to the backend's schema collection.
type Syncer struct {
	db     *mongo.Database
	coll   string
	logger *zap.Logger
}

type Option func(*Syncer)

func WithCollection(name string) Option {
	return func(s *Syncer) {
		if name != "" {
			s.coll = name
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewSyncer(db *mongo.Database, opts ...Option) *Syncer {
	s := &Syncer{db: db, coll: DefaultCollection, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type write struct {
	class   string
	created bool
	set     bson.D
}

// Sync adds every class and every missing field to the schema collection.
// A class with a conflicting field type is skipped and reported through
// ErrFieldTypeMismatch; the remaining classes are still written.
func (s *Syncer) Sync(ctx context.Context, classes []Class) (Result, error) {
	var res Result
	if err := s.acquireLock(ctx); err != nil {
		return res, err
	}
	defer s.releaseLock(context.Background())

	stored, err := s.load(ctx, classes)
	if err != nil {
		return res, fmt.Errorf("schema: read %s: %w", s.coll, err)
	}

	now := time.Now().UTC()
	var (
		writes []write
		errs   []error
	)
	for _, c := range classes {
		doc, exists := stored[c.Name]
		missing, conflicts := Diff(c, doc.fields)
		if len(conflicts) > 0 {
			res.Skipped = append(res.Skipped, c.Name)
			errs = append(errs, fmt.Errorf("%w: %s: %s", ErrFieldTypeMismatch, c.Name, joinConflicts(conflicts)))
			continue
		}
		if exists && len(missing) == 0 {
			res.Unchanged = append(res.Unchanged, c.Name)
			continue
		}

		set := bson.D{}
		if !exists {
			for _, name := range []string{"objectId", "createdAt", "updatedAt"} {
				set = append(set, bson.E{Key: name, Value: string(defaultFields[name])})
			}
		}
		for _, name := range missing {
			set = append(set, bson.E{Key: name, Value: string(c.Fields[name])})
		}
		set = append(set, bson.E{Key: metadataKey + "." + syncedAtKey, Value: now})
		writes = append(writes, write{class: c.Name, created: !exists, set: set})
	}

	if len(writes) > 0 {
		if err := s.executeWithRetry(ctx, writes); err != nil {
			return Result{}, fmt.Errorf("schema: write %s: %w", s.coll, err)
		}
	}
	for _, w := range writes {
		if w.created {
			res.Created = append(res.Created, w.class)
		} else {
			res.Updated = append(res.Updated, w.class)
		}
		s.logger.Info("Schema synced", zap.String("class", w.class), zap.Bool("created", w.created))
	}

	return res, errors.Join(errs...)
}

// Status reports how each class compares to the stored schema.
func (s *Syncer) Status(ctx context.Context, classes []Class) ([]Status, error) {
	stored, err := s.load(ctx, classes)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", s.coll, err)
	}

	out := make([]Status, len(classes))
	for i, c := range classes {
		doc, exists := stored[c.Name]
		out[i] = Status{Class: c.Name, InBackend: exists}
		if !exists {
			out[i].MissingFields = c.FieldNames()
			continue
		}
		out[i].MissingFields, out[i].Conflicts = Diff(c, doc.fields)
		out[i].SyncedAt = doc.syncedAt
	}
	return out, nil
}

type storedClass struct {
	fields   map[string]FieldType
	syncedAt *time.Time
}

func (s *Syncer) load(ctx context.Context, classes []Class) (map[string]storedClass, error) {
	names := make([]string, len(classes))
	for i, c := range classes {
		names[i] = c.Name
	}

	cursor, err := s.db.Collection(s.coll).Find(ctx, bson.M{"_id": bson.M{"$in": names}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make(map[string]storedClass, len(docs))
	for _, doc := range docs {
		name, _ := doc["_id"].(string)
		sc := storedClass{fields: make(map[string]FieldType, len(doc))}
		for k, v := range doc {
			if t, ok := v.(string); ok && !strings.HasPrefix(k, "_") {
				sc.fields[k] = FieldType(t)
			}
		}
		sc.syncedAt = syncedAt(doc[metadataKey])
		out[name] = sc
	}
	return out, nil
}

func syncedAt(meta any) *time.Time {
	var v any
	switch m := meta.(type) {
	case bson.M:
		v = m[syncedAtKey]
	case bson.D:
		for _, e := range m {
			if e.Key == syncedAtKey {
				v = e.Value
			}
		}
	}
	switch t := v.(type) {
	case bson.DateTime:
		ts := t.Time().UTC()
		return &ts
	case time.Time:
		ts := t.UTC()
		return &ts
	}
	return nil
}

func (s *Syncer) executeWithRetry(ctx context.Context, writes []write) error {
	session, err := s.db.Client().StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(tCtx context.Context) (any, error) {
		return nil, s.perform(tCtx, writes)
	})

	if err != nil && isTransactionNotSupported(err) {
		s.logger.Debug("Transactions unavailable, writing schema directly", zap.Error(err))
		return s.perform(ctx, writes)
	}

	return err
}

func (s *Syncer) perform(ctx context.Context, writes []write) error {
	coll := s.db.Collection(s.coll)
	for _, w := range writes {
		_, err := coll.UpdateOne(ctx,
			bson.M{"_id": w.class},
			bson.M{"$set": w.set},
			options.UpdateOne().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("%s: %w", w.class, err)
		}
	}
	return nil
}

func joinConflicts(cs []Conflict) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, "; ")
}

func isTransactionNotSupported(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case 20, 251, 303: // IllegalOperation, NoSuchTransaction, TransactionNotSupportedInShardedCluster
			return true
		}
	}

	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) && writeErr.WriteConcernError != nil {
		switch writeErr.WriteConcernError.Code {
		case 20, 251, 303:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "transactions are not supported") ||
		strings.Contains(msg, "transaction numbers are only allowed")
}

func (s *Syncer) lockCollection() *mongo.Collection {
	return s.db.Collection(s.coll + lockSuffix)
}

func (s *Syncer) acquireLock(ctx context.Context) error {
	coll := s.lockCollection()

	_, _ = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "acquired_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(lockTTL),
	})
	_, _ = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "lock_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	_, err := coll.InsertOne(ctx, bson.M{
		"lock_id":     defaultLockID,
		"acquired_at": time.Now().UTC(),
	})

	if mongo.IsDuplicateKeyError(err) {
		return ErrLocked
	}
	return err
}

func (s *Syncer) releaseLock(ctx context.Context) {
	_, _ = s.lockCollection().DeleteOne(ctx, bson.M{"lock_id": defaultLockID})
}

// ForceUnlock removes a lock left behind by an interrupted sync.
func (s *Syncer) ForceUnlock(ctx context.Context) error {
	_, err := s.lockCollection().DeleteMany(ctx, bson.M{"lock_id": defaultLockID})
	return err
}
