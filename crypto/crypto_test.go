package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMd5(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", Md5(nil))
	assert.Equal(t, Md5([]byte("a\nb")), Md5Lines([]string{"a", "b"}))
	assert.NotEqual(t, Md5Lines([]string{"ab"}), Md5Lines([]string{"a", "b"}))
}
