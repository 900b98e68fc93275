// Package documentstest provides an in-memory document store that evaluates
// the aggregation stages the document service emits.
package documentstest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/schema"
)

// MemoryStore keeps collections in memory. It supports $match, $sort,
// $skip, $limit, $project, $count and $facet.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string][]bson.M
	pipelines   []bson.A
	failWrites  error
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: map[string][]bson.M{}}
}

// SetFailWrites makes every following insert and replace return err
func (s *MemoryStore) SetFailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = err
}

// Pipelines returns every pipeline run so far
func (s *MemoryStore) Pipelines() []bson.A {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bson.A(nil), s.pipelines...)
}

// Seed inserts copies of docs without any checks
func (s *MemoryStore) Seed(collection string, docs ...bson.M) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		s.collections[collection] = append(s.collections[collection], schema.CloneDoc(d))
	}
}

// All returns copies of the documents of a collection
func (s *MemoryStore) All(collection string) []bson.M {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bson.M, 0, len(s.collections[collection]))
	for _, d := range s.collections[collection] {
		out = append(out, schema.CloneDoc(d))
	}
	return out
}

// Aggregate implements documents.Store
func (s *MemoryStore) Aggregate(ctx context.Context, collection string, pipeline bson.A) ([]bson.M, error) {
	s.mu.Lock()
	s.pipelines = append(s.pipelines, pipeline)
	docs := make([]bson.M, 0, len(s.collections[collection]))
	for _, d := range s.collections[collection] {
		docs = append(docs, schema.CloneDoc(d))
	}
	s.mu.Unlock()
	return runPipeline(docs, pipeline)
}

// InsertOne implements documents.Store
func (s *MemoryStore) InsertOne(ctx context.Context, collection string, doc bson.M) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	for _, d := range s.collections[collection] {
		if equal(d["_id"], doc["_id"]) {
			return errors.New("duplicate key")
		}
	}
	s.collections[collection] = append(s.collections[collection], schema.CloneDoc(doc))
	return nil
}

// ReplaceOne implements documents.Store
func (s *MemoryStore) ReplaceOne(ctx context.Context, collection string, id primitive.ObjectID, doc bson.M) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	for i, d := range s.collections[collection] {
		if equal(d["_id"], id) {
			s.collections[collection][i] = schema.CloneDoc(doc)
			return nil
		}
	}
	s.collections[collection] = append(s.collections[collection], schema.CloneDoc(doc))
	return nil
}

// DeleteOne implements documents.Store
func (s *MemoryStore) DeleteOne(ctx context.Context, collection string, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collections[collection]
	for i, d := range docs {
		if equal(d["_id"], id) {
			s.collections[collection] = append(docs[:i:i], docs[i+1:]...)
			return nil
		}
	}
	return nil
}

func runPipeline(docs []bson.M, pipeline bson.A) ([]bson.M, error) {
	for _, raw := range pipeline {
		stage, ok := schema.AsMap(raw)
		if !ok || len(stage) != 1 {
			return nil, fmt.Errorf("bad stage %v", raw)
		}
		for op, arg := range stage {
			var err error
			docs, err = runStage(docs, op, arg)
			if err != nil {
				return nil, err
			}
		}
	}
	return docs, nil
}

func runStage(docs []bson.M, op string, arg interface{}) ([]bson.M, error) {
	switch op {
	case "$match":
		cond, _ := schema.AsMap(arg)
		var out []bson.M
		for _, d := range docs {
			if matches(d, cond) {
				out = append(out, d)
			}
		}
		return out, nil
	case "$sort":
		keys, ok := arg.(bson.D)
		if !ok {
			return nil, fmt.Errorf("$sort needs bson.D, got %T", arg)
		}
		sort.SliceStable(docs, func(i, j int) bool {
			for _, k := range keys {
				c := compare(schema.Get(docs[i], k.Key), schema.Get(docs[j], k.Key))
				if c == 0 {
					continue
				}
				if dir, _ := k.Value.(int); dir < 0 {
					return c > 0
				}
				return c < 0
			}
			return false
		})
		return docs, nil
	case "$skip":
		n := arg.(int)
		if n >= len(docs) {
			return nil, nil
		}
		return docs[n:], nil
	case "$limit":
		n := arg.(int)
		if n < len(docs) {
			return docs[:n], nil
		}
		return docs, nil
	case "$project":
		spec, _ := schema.AsMap(arg)
		out := make([]bson.M, len(docs))
		for i, d := range docs {
			out[i] = project(d, spec)
		}
		return out, nil
	case "$count":
		return []bson.M{{arg.(string): int32(len(docs))}}, nil
	case "$facet":
		facets, _ := schema.AsMap(arg)
		result := bson.M{}
		for name, sub := range facets {
			input := make([]bson.M, len(docs))
			copy(input, docs)
			res, err := runPipeline(input, sub.(bson.A))
			if err != nil {
				return nil, err
			}
			list := bson.A{}
			for _, r := range res {
				list = append(list, r)
			}
			result[name] = list
		}
		return []bson.M{result}, nil
	}
	return nil, fmt.Errorf("unsupported stage %s", op)
}

func matches(doc bson.M, cond map[string]interface{}) bool {
	for key, want := range cond {
		switch key {
		case "$and":
			items, _ := schema.AsSlice(want)
			for _, item := range items {
				sub, _ := schema.AsMap(item)
				if !matches(doc, sub) {
					return false
				}
			}
		case "$or":
			items, _ := schema.AsSlice(want)
			matched := false
			for _, item := range items {
				sub, _ := schema.AsMap(item)
				if matches(doc, sub) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		default:
			if !fieldMatches(schema.Get(doc, key), want) {
				return false
			}
		}
	}
	return true
}

func fieldMatches(value, want interface{}) bool {
	ops, ok := schema.AsMap(want)
	if !ok || !operators(ops) {
		return valueMatches(value, want)
	}
	for op, arg := range ops {
		switch op {
		case "$eq":
			if !valueMatches(value, arg) {
				return false
			}
		case "$ne":
			if valueMatches(value, arg) {
				return false
			}
		case "$in":
			items, _ := schema.AsSlice(arg)
			found := false
			for _, item := range items {
				if valueMatches(value, item) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case "$exists":
			if (value != nil) != arg.(bool) {
				return false
			}
		case "$gt", "$gte", "$lt", "$lte":
			if value == nil {
				return false
			}
			c := compare(value, arg)
			switch {
			case op == "$gt" && c <= 0, op == "$gte" && c < 0, op == "$lt" && c >= 0, op == "$lte" && c > 0:
				return false
			}
		default:
			panic("unsupported operator " + op)
		}
	}
	return true
}

func operators(m map[string]interface{}) bool {
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return len(m) > 0
}

// valueMatches follows the query rule that an array matches when any of
// its elements does.
func valueMatches(value, want interface{}) bool {
	if equal(value, want) {
		return true
	}
	if items, ok := schema.AsSlice(value); ok {
		for _, item := range items {
			if equal(item, want) {
				return true
			}
		}
	}
	return false
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func equal(a, b interface{}) bool {
	if na, ok := number(a); ok {
		nb, ok := number(b)
		return ok && na == nb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

func compare(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if na, ok := number(a); ok {
		nb, _ := number(b)
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	}
	switch av := a.(type) {
	case time.Time:
		bv, _ := b.(time.Time)
		return av.Compare(bv)
	case primitive.ObjectID:
		bv, _ := b.(primitive.ObjectID)
		return bytes.Compare(av[:], bv[:])
	case string:
		return strings.Compare(av, fmt.Sprint(b))
	}
	return 0
}

func included(v interface{}) bool {
	switch n := v.(type) {
	case bool:
		return n
	case int:
		return n != 0
	case int32:
		return n != 0
	case int64:
		return n != 0
	case float64:
		return n != 0
	}
	return true
}

func project(doc bson.M, spec map[string]interface{}) bson.M {
	inclusion := false
	for _, v := range spec {
		if included(v) {
			inclusion = true
		}
	}
	if !inclusion {
		out := schema.CloneDoc(doc)
		for k := range spec {
			schema.Unset(out, k)
		}
		return out
	}
	out := bson.M{}
	if v, ok := spec["_id"]; !ok || included(v) {
		out["_id"] = doc["_id"]
	}
	for k, v := range spec {
		if k == "_id" || !included(v) {
			continue
		}
		if value := schema.Get(doc, k); value != nil {
			schema.Set(out, k, value)
		}
	}
	return out
}
