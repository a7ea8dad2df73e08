package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntityKey(t *testing.T) {
	tests := []struct {
		name  string
		label string
		want  string
	}{
		{"Marie Curie", "person", "marie curie:PERSON"},
		{"  marie curie  ", " PERSON ", "marie curie:PERSON"},
		{"CERN", "Org", "cern:ORG"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EntityKey(tt.name, tt.label))
	}
}

func TestEdgeKeyString(t *testing.T) {
	key := EdgeKey{Type: EdgeMentions, FromID: "marie curie:PERSON", ToID: "pg-abc"}
	assert.Equal(t, "MENTIONS|marie curie:PERSON|pg-abc", key.String())
}

func TestInt64PropCoercion(t *testing.T) {
	props := map[string]any{
		"i64":  int64(7),
		"i":    3,
		"f64":  float64(9),
		"str":  "11",
		"junk": "not a number",
	}
	assert.Equal(t, int64(7), Int64Prop(props, "i64"))
	assert.Equal(t, int64(3), Int64Prop(props, "i"))
	assert.Equal(t, int64(9), Int64Prop(props, "f64"))
	assert.Equal(t, int64(11), Int64Prop(props, "str"))
	assert.Equal(t, int64(0), Int64Prop(props, "junk"))
	assert.Equal(t, int64(0), Int64Prop(props, "absent"))
}

func TestBoolPropCoercion(t *testing.T) {
	props := map[string]any{
		"b":    true,
		"one":  "1",
		"word": "true",
		"no":   "0",
		"f64":  float64(1),
	}
	assert.True(t, BoolProp(props, "b"))
	assert.True(t, BoolProp(props, "one"))
	assert.True(t, BoolProp(props, "word"))
	assert.False(t, BoolProp(props, "no"))
	assert.True(t, BoolProp(props, "f64"))
	assert.False(t, BoolProp(props, "absent"))
}

func TestEdgeLiveAndExpired(t *testing.T) {
	now := NowMillis(time.Now())

	durable := Edge{Props: map[string]any{PropExpiresAt: int64(0)}}
	assert.True(t, durable.Live(now))
	assert.False(t, durable.Expired(now))

	future := Edge{Props: map[string]any{PropExpiresAt: now + 1000}}
	assert.True(t, future.Live(now))
	assert.False(t, future.Expired(now))

	past := Edge{Props: map[string]any{PropExpiresAt: now - 1}}
	assert.False(t, past.Live(now))
	assert.True(t, past.Expired(now))
}

func TestCloneIsDeep(t *testing.T) {
	e := Edge{
		Key:   EdgeKey{Type: EdgeMentions, FromID: "a", ToID: "b"},
		Props: map[string]any{PropConfidence: int64(1)},
	}
	c := e.Clone()
	c.Props[PropConfidence] = int64(99)
	assert.Equal(t, int64(1), e.Confidence())
}

func TestSortEdgeKeys(t *testing.T) {
	keys := []EdgeKey{
		{Type: EdgePartOf, FromID: "a", ToID: "b"},
		{Type: EdgeMentions, FromID: "z", ToID: "a"},
		{Type: EdgeMentions, FromID: "a", ToID: "c"},
		{Type: EdgeMentions, FromID: "a", ToID: "b"},
	}
	SortEdgeKeys(keys)
	assert.Equal(t, "MENTIONS|a|b", keys[0].String())
	assert.Equal(t, "MENTIONS|a|c", keys[1].String())
	assert.Equal(t, "MENTIONS|z|a", keys[2].String())
	assert.Equal(t, "PART_OF|a|b", keys[3].String())
}
