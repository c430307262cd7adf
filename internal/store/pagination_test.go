package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	in := OrderCursor{
		CreatedAt: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
		ID:        uuid.New(),
	}

	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestDecodeCursorEmpty(t *testing.T) {
	cursor, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestDecodeCursorGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%not-base64")
	assert.Error(t, err)
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	assert.Equal(t, `%miel%`, likePattern("miel"))
	assert.Equal(t, `%100\%%`, likePattern("100%"))
	assert.Equal(t, `%a\_b%`, likePattern("a_b"))
}

func TestBuildProductWhere(t *testing.T) {
	where, args := buildProductWhere(ProductFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	providerID := uuid.New()
	where, args = buildProductWhere(ProductFilter{
		ActiveOnly:   true,
		Category:     "honey",
		FeaturedOnly: true,
		Search:       "miel",
		ProviderID:   providerID,
	})
	assert.Equal(t,
		`WHERE is_active = TRUE AND category = $1 AND is_featured = TRUE AND name ILIKE $2 ESCAPE '\' AND provider_id = $3`,
		where)
	require.Len(t, args, 3)
	assert.Equal(t, "%miel%", args[1])
	assert.Equal(t, providerID, args[2])
}

func TestPrefixColumns(t *testing.T) {
	assert.Equal(t, "ci.id, ci.cart_id, ci.quantity", prefixColumns("ci", "id, cart_id,\n\tquantity"))
}
