// Package store reads and writes single records in Parse Server's MongoDB
// layout. Writes are last-write-wins; there is no query or cache layer.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	"github.com/drewjocham/parsemodel/model"
	"github.com/drewjocham/parsemodel/record"
)

var (
	ErrNotFound = errors.New("store: object not found")
	ErrNotSaved = errors.New("store: object has no objectId")
)

type Store struct {
	db     *mongo.Database
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(db *mongo.Database, opts ...Option) *Store {
	s := &Store{db: db, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) collection(className string) *mongo.Collection {
	return s.db.Collection(className)
}

// Get loads one record by class and objectId.
func (s *Store) Get(ctx context.Context, className, objectID string) (*record.Object, error) {
	if err := record.ValidateClassName(className); err != nil {
		return nil, err
	}

	var doc bson.M
	err := s.collection(className).FindOne(ctx, bson.M{record.DocKeyID: objectID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, className, objectID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s/%s: %w", className, objectID, err)
	}

	return record.FromDocument(className, doc)
}

// Save inserts a new record or writes the dirty fields of an existing one.
// A clean, already saved record is left alone.
func (s *Store) Save(ctx context.Context, obj *record.Object) error {
	if obj == nil {
		return model.ErrNilObject
	}
	if obj.IsNew() {
		return s.insert(ctx, obj)
	}
	if !obj.IsDirty() {
		return nil
	}
	return s.update(ctx, obj)
}

func (s *Store) insert(ctx context.Context, obj *record.Object) error {
	id, err := record.NewObjectID()
	if err != nil {
		return fmt.Errorf("store: new objectId: %w", err)
	}
	at := s.now().UTC().Truncate(time.Millisecond)

	doc := bson.D{
		{Key: record.DocKeyID, Value: id},
		{Key: record.DocKeyCreatedAt, Value: at},
		{Key: record.DocKeyUpdatedAt, Value: at},
	}
	for k, v := range obj.Fields() {
		key, val := record.DocumentEntry(k, v)
		doc = append(doc, bson.E{Key: key, Value: val})
	}

	if _, err := s.collection(obj.ClassName()).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("store: insert %s: %w", obj.ClassName(), err)
	}
	obj.MarkSaved(id, at)
	s.logger.Debug("Inserted object", zap.String("class", obj.ClassName()), zap.String("object_id", id))
	return nil
}

func (s *Store) update(ctx context.Context, obj *record.Object) error {
	at := s.now().UTC().Truncate(time.Millisecond)
	id := obj.ObjectID()

	set := bson.M{record.DocKeyUpdatedAt: at}
	unset := bson.M{}
	for _, k := range obj.DirtyKeys() {
		v, ok := obj.Get(k)
		if !ok {
			continue
		}
		key, val := record.DocumentEntry(k, v)
		set[key] = val
		// The other spelling may hold a previous value of a different kind.
		if key == k {
			unset[record.PointerPrefix+k] = ""
		} else {
			unset[k] = ""
		}
	}
	for _, k := range obj.RemovedKeys() {
		unset[k] = ""
		unset[record.PointerPrefix+k] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := s.collection(obj.ClassName()).UpdateOne(ctx, bson.M{record.DocKeyID: id}, update)
	if err != nil {
		return fmt.Errorf("store: update %s/%s: %w", obj.ClassName(), id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, obj.ClassName(), id)
	}
	obj.MarkSaved(id, at)
	return nil
}

// Delete removes the record from the backend.
func (s *Store) Delete(ctx context.Context, obj *record.Object) error {
	if obj == nil {
		return model.ErrNilObject
	}
	id := obj.ObjectID()
	if id == "" {
		return fmt.Errorf("%w: %s", ErrNotSaved, obj.ClassName())
	}

	res, err := s.collection(obj.ClassName()).DeleteOne(ctx, bson.M{record.DocKeyID: id})
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", obj.ClassName(), id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, obj.ClassName(), id)
	}
	return nil
}

// SaveModel flushes w's bound fields into its record and saves it.
func (s *Store) SaveModel(ctx context.Context, w model.Wrapper) error {
	if err := model.Flush(w); err != nil {
		return err
	}
	return s.Save(ctx, w.ParseObject())
}

// Fetch reloads w's record from the backend in place, so every holder of
// the record sees the server state, then refreshes w's bound fields.
func (s *Store) Fetch(ctx context.Context, w model.Wrapper) error {
	if w == nil || w.ParseObject() == nil {
		return model.ErrNilObject
	}
	obj := w.ParseObject()
	if obj.ObjectID() == "" {
		return fmt.Errorf("%w: %s", ErrNotSaved, obj.ClassName())
	}

	fresh, err := s.Get(ctx, obj.ClassName(), obj.ObjectID())
	if err != nil {
		return err
	}
	obj.Replace(fresh)
	return model.Refresh(w)
}

// GetModel loads a record and wraps it through reg.
func (s *Store) GetModel(ctx context.Context, reg *model.Registry, className, objectID string) (model.Wrapper, error) {
	obj, err := s.Get(ctx, className, objectID)
	if err != nil {
		return nil, err
	}
	return reg.Wrap(obj)
}
