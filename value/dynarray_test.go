package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDynArrayPushAndAt(t *testing.T) {
	d := NewDynArray[int]()
	for i := 0; i < 20; i++ {
		idx := d.Push(i)
		assert.Equal(t, i, idx)
	}
	assert.Equal(t, 20, d.Len())
	for i := 0; i < 20; i++ {
		assert.Equal(t, i, d.At(i))
	}
}

func TestDynArraySetOverwrites(t *testing.T) {
	d := NewDynArray[string]()
	d.Push("a")
	d.Push("b")
	d.Set(1, "c")
	assert.Equal(t, []string{"a", "c"}, d.Slice())
}
