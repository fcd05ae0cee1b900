// Package store is the document database adapter the messaging core runs on.
// It models a generic subscribable document store: flat collections of
// documents with fields, point partial updates, conjunctive equality queries,
// an atomic batch-write primitive, and live query subscriptions that emit the
// full current result set plus incremental change records on every change.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	// ErrNotFound is returned when the target document does not exist.
	ErrNotFound = errors.New("store: document not found")
	// ErrPreconditionFailed is returned when an Update's equality
	// precondition no longer matches. Callers treat this as a benign race.
	ErrPreconditionFailed = errors.New("store: precondition not met")
)

// Fields is the field set of a document. Values are canonical BSON types.
type Fields map[string]interface{}

// Filter is a conjunction of field equality constraints.
type Filter map[string]interface{}

// Document is one stored document.
type Document struct {
	ID     string
	Fields Fields
}

// Decode unmarshals the document's fields into a tagged struct.
func (d Document) Decode(v interface{}) error {
	raw, err := bson.Marshal(bson.M(d.Fields))
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, v)
}

// EncodeFields converts a tagged struct into canonical document fields.
func EncodeFields(v interface{}) (Fields, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	delete(m, "_id")
	return Fields(m), nil
}

// ChangeKind classifies a change record within an emission.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Change is one incremental change between two emissions of a subscription.
type Change struct {
	Kind ChangeKind
	Doc  Document
}

// Emission is one delivery from a live query subscription: the full current
// result set in timestamp order, plus the changes since the previous emission.
type Emission struct {
	Docs    []Document
	Changes []Change
}

// Subscription is a live query handle. Updates delivers emissions until
// Close is called; the first emission (the initial result set) is delivered
// as soon as the subscription is established.
type Subscription interface {
	Updates() <-chan Emission
	Close()
}

// BatchWrite is one partial update inside an atomic batch.
type BatchWrite struct {
	ID     string
	Fields Fields
}

// Store is the document store interface consumed by the message repository
// and the conversation merge engine.
type Store interface {
	// Create inserts a new document and returns it with its assigned id.
	// The reserved "timestamp" field is assigned server-side when absent.
	Create(ctx context.Context, collection string, fields Fields) (Document, error)

	// Update merges fields into an existing document. When a non-nil
	// precondition is given, the update applies only while the document
	// still matches it; a miss returns ErrPreconditionFailed.
	Update(ctx context.Context, collection, id string, fields Fields, when Filter) error

	// Get returns a single document by id.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Delete physically removes a document.
	Delete(ctx context.Context, collection, id string) error

	// BatchUpdate applies all writes through the store's batch primitive.
	BatchUpdate(ctx context.Context, collection string, writes []BatchWrite) error

	// Find returns all documents matching the filter, timestamp ascending.
	Find(ctx context.Context, collection string, filter Filter) ([]Document, error)

	// Subscribe opens a live query for the filter.
	Subscribe(ctx context.Context, collection string, filter Filter) (Subscription, error)
}
