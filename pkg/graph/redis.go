package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis key prefixes.
const (
	keyPrefixNode = "engram:node:" // node ID -> JSON document
	keyPrefixEdge = "engram:edge:" // edge key -> hash of properties
	keyPrefixOut  = "engram:out:"  // from ID -> set of outgoing edge keys
)

// RedisStore implements Store on Redis hashes and sets. It is the intended
// volatile plane: node bodies are JSON strings, edge property bags are
// hashes so confidence increments can use HINCRBY, and adjacency is a set
// per source node.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Store backed by the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) UpsertNode(ctx context.Context, n Node) error {
	body, err := json.Marshal(redisNode{ID: n.ID, Label: string(n.Label), Props: n.Props})
	if err != nil {
		return fmt.Errorf("marshaling node %s: %w", n.ID, err)
	}
	if err := s.client.Set(ctx, keyPrefixNode+n.ID, body, 0).Err(); err != nil {
		return fmt.Errorf("upserting node %s: %w", n.ID, err)
	}
	return nil
}

func (s *RedisStore) GetNode(ctx context.Context, id string) (*Node, error) {
	body, err := s.client.Get(ctx, keyPrefixNode+id).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting node %s: %w", id, err)
	}
	var rn redisNode
	if err := json.Unmarshal(body, &rn); err != nil {
		return nil, fmt.Errorf("unmarshaling node %s: %w", id, err)
	}
	return &Node{ID: rn.ID, Label: NodeLabel(rn.Label), Props: rn.Props}, nil
}

func (s *RedisStore) UpsertEdge(ctx context.Context, e Edge) error {
	fields := encodeEdgeFields(e.Props)

	pipe := s.client.TxPipeline()
	edgeKey := keyPrefixEdge + e.Key.String()
	pipe.Del(ctx, edgeKey)
	if len(fields) > 0 {
		pipe.HSet(ctx, edgeKey, fields)
	}
	pipe.SAdd(ctx, keyPrefixOut+e.Key.FromID, e.Key.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upserting edge %s: %w", e.Key, err)
	}
	return nil
}

func (s *RedisStore) GetEdge(ctx context.Context, key EdgeKey) (*Edge, error) {
	fields, err := s.client.HGetAll(ctx, keyPrefixEdge+key.String()).Result()
	if err != nil {
		return nil, fmt.Errorf("getting edge %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return &Edge{Key: key, Props: decodeEdgeFields(fields)}, nil
}

// Edge mutations run as Lua scripts so the existence check and the write are
// one atomic step. Two round trips would let a concurrent DeleteEdge land in
// between, and the HSET/HINCRBY would then recreate the hash holding only
// the written fields, an edge with no expiration and no provenance.
const (
	updateEdgeLua = `if redis.call("EXISTS", KEYS[1]) == 0 then
  return false
end
return redis.call("HSET", KEYS[1], unpack(ARGV))`

	incrEdgeLua = `if redis.call("EXISTS", KEYS[1]) == 0 then
  return false
end
return redis.call("HINCRBY", KEYS[1], ARGV[1], ARGV[2])`
)

var (
	updateEdgeScript = redis.NewScript(updateEdgeLua)
	incrEdgeScript   = redis.NewScript(incrEdgeLua)
)

func (s *RedisStore) UpdateEdgeProps(ctx context.Context, key EdgeKey, props map[string]any) error {
	args := hsetArgs(encodeEdgeFields(props))
	if len(args) == 0 {
		if _, err := s.GetEdge(ctx, key); err != nil {
			return err
		}
		return nil
	}
	err := updateEdgeScript.Run(ctx, s.client, []string{keyPrefixEdge + key.String()}, args...).Err()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("updating edge %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) IncrementEdgeCounter(ctx context.Context, key EdgeKey, field string, delta int64) (int64, error) {
	next, err := incrEdgeScript.Run(ctx, s.client, []string{keyPrefixEdge + key.String()}, field, delta).Int64()
	if err == redis.Nil {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("incrementing %s on edge %s: %w", field, key, err)
	}
	return next, nil
}

func (s *RedisStore) DeleteEdge(ctx context.Context, key EdgeKey) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keyPrefixEdge+key.String())
	pipe.SRem(ctx, keyPrefixOut+key.FromID, key.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting edge %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) QueryConnected(ctx context.Context, fromID string, maxFanout int, fn func(Node, Edge) error) error {
	members, err := s.client.SMembers(ctx, keyPrefixOut+fromID).Result()
	if err != nil {
		return fmt.Errorf("listing edges of %s: %w", fromID, err)
	}
	sort.Strings(members)

	streamed := 0
	for _, member := range members {
		if maxFanout > 0 && streamed >= maxFanout {
			return ErrFanoutTruncated
		}
		key, ok := parseEdgeKey(member)
		if !ok {
			continue
		}
		edge, err := s.GetEdge(ctx, key)
		if err == ErrNotFound {
			continue // deleted since the set was read
		}
		if err != nil {
			return err
		}
		node, err := s.GetNode(ctx, key.ToID)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(*node, *edge); err != nil {
			if err == ErrStopIteration {
				return nil
			}
			return err
		}
		streamed++
	}
	return nil
}

func (s *RedisStore) ScanEdges(ctx context.Context, t EdgeType, fn func(Edge) error) error {
	match := keyPrefixEdge + string(t) + "|*"
	var keys []string
	iter := s.client.Scan(ctx, 0, match, 256).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning %s edges: %w", t, err)
	}
	sort.Strings(keys)

	for _, raw := range keys {
		key, ok := parseEdgeKey(strings.TrimPrefix(raw, keyPrefixEdge))
		if !ok {
			continue
		}
		edge, err := s.GetEdge(ctx, key)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(*edge); err != nil {
			if err == ErrStopIteration {
				return nil
			}
			return err
		}
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisNode struct {
	ID    string         `json:"id"`
	Label string         `json:"label"`
	Props map[string]any `json:"props"`
}

// encodeEdgeFields flattens a property bag into hash field strings. Integers
// keep their decimal form so HINCRBY can operate on them directly.
func encodeEdgeFields(props map[string]any) map[string]string {
	fields := make(map[string]string, len(props))
	for k, v := range props {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case bool:
			if val {
				fields[k] = "1"
			} else {
				fields[k] = "0"
			}
		case int:
			fields[k] = strconv.FormatInt(int64(val), 10)
		case int64:
			fields[k] = strconv.FormatInt(val, 10)
		case float64:
			fields[k] = strconv.FormatInt(int64(val), 10)
		default:
			fields[k] = fmt.Sprint(val)
		}
	}
	return fields
}

// hsetArgs flattens hash fields into the alternating name/value argument
// list HSET expects. Names are sorted so the script arguments are stable.
func hsetArgs(fields map[string]string) []interface{} {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]interface{}, 0, 2*len(names))
	for _, name := range names {
		args = append(args, name, fields[name])
	}
	return args
}

// decodeEdgeFields keeps hash values as strings; the graph prop coercion
// helpers accept the string forms.
func decodeEdgeFields(fields map[string]string) map[string]any {
	props := make(map[string]any, len(fields))
	for k, v := range fields {
		props[k] = v
	}
	return props
}

// parseEdgeKey splits "TYPE|from|to". Node IDs never contain "|".
func parseEdgeKey(raw string) (EdgeKey, bool) {
	parts := strings.SplitN(raw, "|", 3)
	if len(parts) != 3 {
		return EdgeKey{}, false
	}
	return EdgeKey{Type: EdgeType(parts[0]), FromID: parts[1], ToID: parts[2]}, true
}

var _ Store = (*RedisStore)(nil)
