package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "abc", TruncateUTF8("abc", 5))
	assert.Equal(t, "ab", TruncateUTF8("abc", 2))
	// "é" is two bytes; cutting at 3 must not split the second one
	assert.Equal(t, "é", TruncateUTF8("éé", 3))
	assert.Equal(t, "", TruncateUTF8("é", 1))
	assert.Equal(t, "", TruncateUTF8("abc", 0))
	assert.Equal(t, "a", TruncateUTF8("a日", 3))
}
