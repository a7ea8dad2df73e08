package graph

import (
	"strconv"
)

// Well-known property keys. Provenance fields are immutable once written;
// cache-state fields are mutated only through the named protocol operations.
const (
	// Node properties.
	PropName     = "name"
	PropLabel    = "label"
	PropTitle    = "title"
	PropCategory = "category"
	PropText     = "text"
	PropIndex    = "index"
	PropDocID    = "docId"

	// Edge provenance (immutable).
	PropSourceDocID   = "sourceDocumentId"
	PropIngestedAt    = "ingestedAt"
	PropSchemaVersion = "schemaVersion"
	PropSessionID     = "sessionId"

	// Edge cache state.
	PropExpiresAt      = "expiresAt"
	PropConfidence     = "confidenceScore"
	PropValidated      = "validated"
	PropPromoted       = "promoted"
	PropGraduatedScore = "graduatedScore"
)

// ProvenanceProps lists the fields copied verbatim across planes.
var ProvenanceProps = []string{PropSourceDocID, PropIngestedAt, PropSchemaVersion, PropSessionID}

// Int64Prop coerces a property value to int64. Property bags round-trip
// through JSON (postgres, redis, badger serializations), so numbers may come
// back as float64 or strings; all of those decode here.
func Int64Prop(props map[string]any, key string) int64 {
	switch v := props[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// BoolProp coerces a property value to bool, accepting the string forms the
// redis hash encoding produces.
func BoolProp(props map[string]any, key string) bool {
	switch v := props[key].(type) {
	case bool:
		return v
	case string:
		return v == "1" || v == "true"
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return false
	}
}

// StringProp coerces a property value to string.
func StringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

// ExpiresAt returns the edge's expiration in epoch milliseconds. Zero means
// the edge never expires, regardless of which plane physically holds it.
func (e Edge) ExpiresAt() int64 { return Int64Prop(e.Props, PropExpiresAt) }

// Confidence returns the accumulated reinforcement score.
func (e Edge) Confidence() int64 { return Int64Prop(e.Props, PropConfidence) }

// Validated reports whether the edge crossed the promotion threshold.
func (e Edge) Validated() bool { return BoolProp(e.Props, PropValidated) }

// Promoted reports whether a durable copy of the edge exists.
func (e Edge) Promoted() bool { return BoolProp(e.Props, PropPromoted) }

// SessionID returns the caller session that promoted the edge, if any.
func (e Edge) SessionID() string { return StringProp(e.Props, PropSessionID) }

// Live reports whether the edge is visible at the given instant: durable
// edges always are, ephemeral edges only until their expiration. Every read
// against the volatile plane must apply this filter; the sweeper is a
// space-reclamation optimization, not a correctness mechanism.
func (e Edge) Live(nowMs int64) bool {
	exp := e.ExpiresAt()
	return exp == 0 || exp > nowMs
}

// Expired reports whether the edge's expiration has lapsed.
func (e Edge) Expired(nowMs int64) bool {
	exp := e.ExpiresAt()
	return exp > 0 && exp < nowMs
}
