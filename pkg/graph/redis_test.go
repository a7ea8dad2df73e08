package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEdgeKey(t *testing.T) {
	key, ok := parseEdgeKey("MENTIONS|marie curie:PERSON|pg-abc")
	require.True(t, ok)
	assert.Equal(t, EdgeMentions, key.Type)
	assert.Equal(t, "marie curie:PERSON", key.FromID)
	assert.Equal(t, "pg-abc", key.ToID)

	_, ok = parseEdgeKey("MENTIONS|only-one-part")
	assert.False(t, ok)

	_, ok = parseEdgeKey("")
	assert.False(t, ok)
}

func TestEncodeEdgeFields(t *testing.T) {
	fields := encodeEdgeFields(map[string]any{
		PropExpiresAt:  int64(1700000000000),
		PropConfidence: 5,
		PropValidated:  true,
		PropPromoted:   false,
		PropSessionID:  "session-1",
		PropIngestedAt: float64(1700000000000),
	})

	assert.Equal(t, "1700000000000", fields[PropExpiresAt])
	assert.Equal(t, "5", fields[PropConfidence])
	assert.Equal(t, "1", fields[PropValidated])
	assert.Equal(t, "0", fields[PropPromoted])
	assert.Equal(t, "session-1", fields[PropSessionID])
	// JSON round-trips turn ints into float64; the decimal form survives.
	assert.Equal(t, "1700000000000", fields[PropIngestedAt])
}

func TestHSetArgs(t *testing.T) {
	args := hsetArgs(map[string]string{"b": "2", "a": "1", "c": "3"})
	assert.Equal(t, []interface{}{"a", "1", "b", "2", "c", "3"}, args)

	assert.Empty(t, hsetArgs(nil))
}

// A deleted edge hash must stay deleted: every mutation script checks the
// key exists before writing, in the same atomic step, so an interleaved
// DeleteEdge cannot be followed by a write that resurrects the hash with
// only the mutated field.
func TestEdgeMutationScriptsCheckExistence(t *testing.T) {
	for name, script := range map[string]string{
		"update":    updateEdgeLua,
		"increment": incrEdgeLua,
	} {
		t.Run(name, func(t *testing.T) {
			guard := strings.Index(script, `redis.call("EXISTS", KEYS[1])`)
			write := strings.LastIndex(script, "redis.call")
			require.GreaterOrEqual(t, guard, 0)
			assert.Less(t, guard, write)
		})
	}
}
