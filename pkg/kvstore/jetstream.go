package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mpapenbr/weblynx-service-go/log"
)

type jetstreamStore struct {
	kv  jetstream.KeyValue
	log *log.Logger
}

var _ Store = (*jetstreamStore)(nil)

// NewJetStreamStore creates (or reuses) the key value bucket on the nats server.
func NewJetStreamStore(ctx context.Context, nc *nats.Conn, bucket string) (Store, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "weblynx display key values",
	})
	if err != nil {
		return nil, fmt.Errorf("kv bucket %s: %w", bucket, err)
	}
	ret := &jetstreamStore{
		kv:  kv,
		log: log.Default().Named("kvstore.jetstream"),
	}
	ret.log.Debug("Initialized kv bucket", log.String("bucket", bucket))
	return ret, nil
}

func (s *jetstreamStore) Get(ctx context.Context, key string) (string, error) {
	kve, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", ErrKeyNotFound
		}
		return "", err
	}
	return string(kve.Value()), nil
}

func (s *jetstreamStore) Set(ctx context.Context, key, value string) error {
	if value == "" {
		return s.Delete(ctx, key)
	}
	_, err := s.kv.PutString(ctx, key, value)
	return err
}

func (s *jetstreamStore) Delete(ctx context.Context, key string) error {
	err := s.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (s *jetstreamStore) All(ctx context.Context) (map[string]string, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lister.Stop() }()
	ret := make(map[string]string)
	for key := range lister.Keys() {
		v, err := s.Get(ctx, key)
		if errors.Is(err, ErrKeyNotFound) {
			// removed in between
			continue
		}
		if err != nil {
			return nil, err
		}
		ret[key] = v
	}
	return ret, nil
}
