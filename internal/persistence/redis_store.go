package persistence

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/flowgraph/pkg/api"
)

// RedisGraphStore is a GraphStore backed by Redis. Definitions live under
// <prefix>graph:<name>, with <prefix>idx:graphs as the name index.
type RedisGraphStore struct {
	client *redis.Client
	prefix string
}

var _ GraphStore = (*RedisGraphStore)(nil)

// NewRedisGraphStore creates a RedisGraphStore. prefix is optional but
// recommended (e.g. "flowgraph:").
func NewRedisGraphStore(client *redis.Client, prefix string) *RedisGraphStore {
	if prefix == "" {
		prefix = "flowgraph:"
	}
	return &RedisGraphStore{client: client, prefix: prefix}
}

func (s *RedisGraphStore) SaveGraph(ctx context.Context, g api.Graph) error {
	blob, err := EncodeValue(g)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.prefix+"graph:"+g.Name, blob, 0)
	pipe.SAdd(ctx, s.prefix+"idx:graphs", g.Name)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisGraphStore) GetGraph(ctx context.Context, name string) (api.Graph, error) {
	blob, err := s.client.Get(ctx, s.prefix+"graph:"+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return api.Graph{}, ErrGraphNotFound
	}
	if err != nil {
		return api.Graph{}, err
	}
	return DecodeValue[api.Graph](blob)
}

func (s *RedisGraphStore) ListGraphs(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.prefix+"idx:graphs").Result()
	if err != nil {
		return nil, err
	}
	return names, nil
}

// RedisRunStore is a RunStore backed by Redis. It uses a simple key
// structure:
//
//	<prefix>run:<id>              => gob-encoded redisRunPayload
//	<prefix>idx:all               => SET of all run IDs
//	<prefix>idx:graph:<name>      => SET of run IDs for a given graph
//	<prefix>idx:state:<state>     => SET of run IDs for a given state
//
// The indexes are always updated on Save/Update, and ListRuns uses set
// intersection for filtering.
type RedisRunStore struct {
	client *redis.Client
	prefix string
}

var _ RunStore = (*RedisRunStore)(nil)

type redisRunPayload struct {
	ID         string
	GraphName  string
	State      string
	NodeStates []byte
	Seed       []byte
	Outputs    []byte
	Log        []byte
	Error      string
	StartedAt  int64
	EndedAt    int64
}

// NewRedisRunStore creates a RedisRunStore. prefix is optional but
// recommended (e.g. "flowgraph:").
func NewRedisRunStore(client *redis.Client, prefix string) *RedisRunStore {
	if prefix == "" {
		prefix = "flowgraph:"
	}
	return &RedisRunStore{client: client, prefix: prefix}
}

func (s *RedisRunStore) keyRun(id string) string { return s.prefix + "run:" + id }

func (s *RedisRunStore) keyAll() string { return s.prefix + "idx:all" }

func (s *RedisRunStore) keyGraph(name string) string { return s.prefix + "idx:graph:" + name }

func (s *RedisRunStore) keyState(st api.RunState) string { return s.prefix + "idx:state:" + string(st) }

func encodeRedisRun(run *api.Run) ([]byte, error) {
	cols, err := encodeRunColumns(run)
	if err != nil {
		return nil, err
	}
	payload := redisRunPayload{
		ID:         run.ID,
		GraphName:  run.GraphName,
		State:      string(run.State),
		NodeStates: cols.nodeStates,
		Seed:       cols.seed,
		Outputs:    cols.outputs,
		Log:        cols.log,
		Error:      cols.errStr,
		StartedAt:  run.StartedAt.UnixNano(),
		EndedAt:    run.EndedAt.UnixNano(),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRedisRun(data []byte) (*api.Run, error) {
	if len(data) == 0 {
		return nil, ErrRunNotFound
	}
	var payload redisRunPayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return nil, err
	}

	run := &api.Run{
		ID:        payload.ID,
		GraphName: payload.GraphName,
		State:     api.RunState(payload.State),
	}
	var err error
	if run.NodeStates, err = DecodeValue[map[string]api.ExecutionState](payload.NodeStates); err != nil {
		return nil, err
	}
	if run.Seed, err = DecodeValue[map[string]any](payload.Seed); err != nil {
		return nil, err
	}
	if run.Outputs, err = DecodeValue[map[string]any](payload.Outputs); err != nil {
		return nil, err
	}
	if run.Log, err = DecodeValue[[]api.LogEntry](payload.Log); err != nil {
		return nil, err
	}
	if payload.Error != "" {
		run.Err = errors.New(payload.Error)
	}
	run.StartedAt = time.Unix(0, payload.StartedAt)
	run.EndedAt = time.Unix(0, payload.EndedAt)
	return run, nil
}

func (s *RedisRunStore) SaveRun(ctx context.Context, run *api.Run) error {
	return s.write(ctx, run, "")
}

func (s *RedisRunStore) UpdateRun(ctx context.Context, run *api.Run) error {
	prev, err := s.client.Get(ctx, s.keyRun(run.ID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrRunNotFound
	}
	if err != nil {
		return err
	}
	prevRun, err := decodeRedisRun(prev)
	if err != nil {
		return err
	}
	return s.write(ctx, run, prevRun.State)
}

// write stores the run and keeps the indexes consistent. prevState, when
// non-empty, names the state index the run must leave.
func (s *RedisRunStore) write(ctx context.Context, run *api.Run, prevState api.RunState) error {
	blob, err := encodeRedisRun(run)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keyRun(run.ID), blob, 0)
	pipe.SAdd(ctx, s.keyAll(), run.ID)
	pipe.SAdd(ctx, s.keyGraph(run.GraphName), run.ID)
	if prevState != "" && prevState != run.State {
		pipe.SRem(ctx, s.keyState(prevState), run.ID)
	}
	pipe.SAdd(ctx, s.keyState(run.State), run.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisRunStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	data, err := s.client.Get(ctx, s.keyRun(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRedisRun(data)
}

func (s *RedisRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error) {
	keys := []string{s.keyAll()}
	if filter.GraphName != "" {
		keys = append(keys, s.keyGraph(filter.GraphName))
	}
	if filter.State != "" {
		keys = append(keys, s.keyState(filter.State))
	}

	var ids []string
	var err error
	if len(keys) == 1 {
		ids, err = s.client.SMembers(ctx, keys[0]).Result()
	} else {
		ids, err = s.client.SInter(ctx, keys...).Result()
	}
	if err != nil {
		return nil, err
	}

	runs := make([]*api.Run, 0, len(ids))
	for _, id := range ids {
		run, err := s.GetRun(ctx, id)
		if errors.Is(err, ErrRunNotFound) {
			// Index entry outlived the run key; skip it.
			continue
		}
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	// Set members come back in arbitrary order; match the other backends.
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.Before(runs[j].StartedAt) })
	return runs, nil
}
