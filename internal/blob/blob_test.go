package blob

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProductObjectName(t *testing.T) {
	now := time.UnixMilli(1714567890123)

	assert.Equal(t, "products/lamp.png-1714567890123-0", ProductObjectName("lamp.png", now, 0))
	assert.Equal(t, "products/lamp.png-1714567890123-0", ProductObjectName("../../etc/lamp.png", now, 0))
	assert.Equal(t, "products/shot.jpg-1714567890123-2", ProductObjectName(`C:\Users\me\shot.jpg`, now, 2))
	assert.Equal(t, "products/image-1714567890123-0", ProductObjectName("", now, 0))
}

func TestProductObjectName_SameFileSameMillisecond(t *testing.T) {
	now := time.UnixMilli(1714567890123)

	first := ProductObjectName("lamp.png", now, 0)
	second := ProductObjectName("lamp.png", now, 1)

	assert.NotEqual(t, first, second)
	assert.Equal(t, trimMillis(first), trimMillis(second))
}

func TestNameFromURL(t *testing.T) {
	name, ok := NameFromURL(URL("products/lamp.png-1"))
	assert.True(t, ok)
	assert.Equal(t, "products/lamp.png-1", name)

	for _, ref := range []string{"https://cdn.example.com/lamp.png", "/images/", "/images/../secret", "/images//abs"} {
		_, ok := NameFromURL(ref)
		assert.False(t, ok, ref)
	}
}

func TestTrimMillis(t *testing.T) {
	assert.Equal(t, "products/lamp.png", trimMillis("products/lamp.png-1714567890123-3"))
	assert.Equal(t, "products/lamp.png", trimMillis("products/lamp.png-1714567890123"))
	assert.Equal(t, "products/lamp.png-", trimMillis("products/lamp.png-"))
	assert.Equal(t, "products/lamp.png", trimMillis("products/lamp.png"))
	assert.Equal(t, "products/a-b.png", trimMillis("products/a-b.png"))
}
