package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractString(t *testing.T) {
	kv := []any{"token", "0xabc", "amount", 5, "dangling"}

	assert.Equal(t, "0xabc", ExtractString(kv, "token"))
	assert.Empty(t, ExtractString(kv, "amount"), "non-string values are ignored")
	assert.Empty(t, ExtractString(kv, "dangling"))
	assert.Empty(t, ExtractString(nil, "token"))
}

func TestFirstString(t *testing.T) {
	kv := []any{"account", "0x01", "from", ""}
	assert.Equal(t, "0x01", FirstString(kv, "from", "account"))
	assert.Empty(t, FirstString(kv, "to"))
}

func TestExtractUint8(t *testing.T) {
	v, ok := ExtractUint8([]any{"result", "8"}, "result")
	assert.True(t, ok)
	assert.Equal(t, uint8(8), v)

	_, ok = ExtractUint8([]any{"result", "256"}, "result")
	assert.False(t, ok)

	_, ok = ExtractUint8(nil, "result")
	assert.False(t, ok)
}
