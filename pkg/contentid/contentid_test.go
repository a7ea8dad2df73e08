package contentid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForDocumentDeterministic(t *testing.T) {
	a := ForDocument("Title", "Body text")
	b := ForDocument("Title", "Body text")
	assert.Equal(t, a, b, "same content must derive the same ID")

	c := ForDocument("Title", "Different body")
	assert.NotEqual(t, a, c, "different content must derive different IDs")
}

func TestForDocumentFormat(t *testing.T) {
	id := ForDocument("Title", "Body")
	require.Len(t, id, digestLen+3)
	assert.True(t, strings.HasPrefix(id, "dc-"))
	assert.True(t, IsValid(id))
}

func TestForParagraph(t *testing.T) {
	docID := ForDocument("Title", "Body")

	p0 := ForParagraph(docID, 0)
	p1 := ForParagraph(docID, 1)
	assert.True(t, strings.HasPrefix(p0, "pg-"))
	assert.NotEqual(t, p0, p1, "paragraph index must distinguish IDs")
	assert.Equal(t, p0, ForParagraph(docID, 0))
}

func TestDelimiterFree(t *testing.T) {
	id := ForDocument("a|b", "c|d")
	assert.NotContains(t, id[3:], "|")
	assert.NotContains(t, id[3:], ":")
}

func TestParse(t *testing.T) {
	id := ForDocument("Title", "Body")

	parsed, err := Parse(id)
	require.NoError(t, err)
	assert.Equal(t, TypeDocument, parsed.Type)
	assert.Len(t, parsed.Digest, digestLen)
	assert.Equal(t, id, parsed.String())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want error
	}{
		{"too short", "dc-abc", ErrInvalidFormat},
		{"missing dash", "dcXabcdefgh1234", ErrInvalidFormat},
		{"unknown type", "zz-abcdefgh1234", ErrInvalidType},
		{"bad characters", "dc-abcdefgh12!@", ErrInvalidFormat},
		{"empty", "", ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.id)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTypeFromID(t *testing.T) {
	assert.Equal(t, "dc", TypeFromID(ForDocument("t", "b")))
	assert.Equal(t, "pg", TypeFromID(ForParagraph("dc-abcdefgh1234", 0)))
	assert.Equal(t, "", TypeFromID("not-an-id"))
}

func TestIsValidType(t *testing.T) {
	assert.True(t, IsValidType(TypeDocument))
	assert.True(t, IsValidType(TypeParagraph))
	assert.False(t, IsValidType("em"))
	assert.ElementsMatch(t, []string{"dc", "pg"}, ValidTypes())
}
