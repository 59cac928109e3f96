package connector

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JonMunkholm/gobimport/internal/core"
)

// Sink receives the entities of one import in order.
type Sink interface {
	Write(ctx context.Context, e core.Entity) error
	// Location identifies where the contents went, for the result message.
	Location() string
	Close(ctx context.Context) error
}

// FileSink writes entities as JSON lines.
type FileSink struct {
	path  string
	file  *os.File
	w     *bufio.Writer
	enc   *json.Encoder
	count int
}

// NewFileSink creates the file and its parent directories.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create contents file: %w", err)
	}
	w := bufio.NewWriter(f)
	return &FileSink{path: path, file: f, w: w, enc: json.NewEncoder(w)}, nil
}

func (s *FileSink) Write(_ context.Context, e core.Entity) error {
	if err := s.enc.Encode(e); err != nil {
		return fmt.Errorf("write entity %s: %w", e.ID(), err)
	}
	s.count++
	return nil
}

func (s *FileSink) Location() string {
	return s.path
}

// Count returns the number of entities written.
func (s *FileSink) Count() int {
	return s.count
}

func (s *FileSink) Close(_ context.Context) error {
	if err := s.w.Flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("flush contents: %w", err)
	}
	return s.file.Close()
}

const mongoBatchSize = 1000

// MongoSink inserts entities into a collection in unordered batches.
type MongoSink struct {
	coll    *mongo.Collection
	batch   []any
	written int
}

// ConnectMongo connects to a MongoDB deployment and verifies the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(30 * time.Second)

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client, nil
}

// NewMongoSink writes to the collection of one import.
func NewMongoSink(coll *mongo.Collection) *MongoSink {
	return &MongoSink{coll: coll, batch: make([]any, 0, mongoBatchSize)}
}

func (s *MongoSink) Write(ctx context.Context, e core.Entity) error {
	doc := make(bson.M, len(e))
	for k, v := range e {
		doc[k] = v
	}
	s.batch = append(s.batch, doc)
	if len(s.batch) >= mongoBatchSize {
		return s.flush(ctx)
	}
	return nil
}

func (s *MongoSink) flush(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}
	res, err := s.coll.InsertMany(ctx, s.batch, options.InsertMany().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("insert into %s: %w", s.coll.Name(), err)
	}
	s.written += len(res.InsertedIDs)
	s.batch = s.batch[:0]
	return nil
}

func (s *MongoSink) Location() string {
	return "mongodb://" + s.coll.Database().Name() + "/" + s.coll.Name()
}

func (s *MongoSink) Close(ctx context.Context) error {
	return s.flush(ctx)
}
