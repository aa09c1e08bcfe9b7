package pagination

import (
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	at := time.Date(2026, 1, 18, 19, 9, 54, 123456000, time.UTC)
	token := Encode(Cursor{CreatedAt: at, ID: "01JHX"})

	c, err := Decode(token)
	require.NoError(t, err)
	require.True(t, c.CreatedAt.Equal(at))
	require.Equal(t, "01JHX", c.ID)
}

func TestDecode_Empty(t *testing.T) {
	c, err := Decode("")
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestDecode_Invalid(t *testing.T) {
	for _, token := range []string{"%%%", Encode(Cursor{}), "bm90LWpzb24"} {
		_, err := Decode(token)
		require.ErrorIs(t, err, ErrInvalidCursor, token)
		require.ErrorIs(t, err, domain.ErrValidation, token)
	}
}

func TestClampLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, ClampLimit(0))
	require.Equal(t, DefaultLimit, ClampLimit(-3))
	require.Equal(t, 20, ClampLimit(20))
	require.Equal(t, MaxLimit, ClampLimit(MaxLimit+1))
}

func TestNext(t *testing.T) {
	require.Equal(t, "prev", Next(nil, "prev"))

	at := time.Now().UTC()
	page := []domain.Message{{ID: "a", CreatedAt: at}, {ID: "b", CreatedAt: at}}
	c, err := Decode(Next(page, "prev"))
	require.NoError(t, err)
	require.Equal(t, "b", c.ID)
}
