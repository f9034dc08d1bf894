package tree

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodec(t *testing.T) {
	t.Run("pack and unpack are inverse", func(t *testing.T) {
		for _, n := range []int{2, 3, 4} {
			c := NewCodec(n)
			for node := int32(0); node < 5; node++ {
				for x := 0; x < n; x++ {
					for y := 0; y < n; y++ {
						for z := 0; z < n; z++ {
							gotNode, gotX, gotY, gotZ := c.Unpack(c.Pack(node, x, y, z))
							require.Equal(t, []int{int(node), x, y, z}, []int{int(gotNode), gotX, gotY, gotZ},
								"Should recover the packed tuple for N=%d", n)
						}
					}
				}
			}
		}
	})

	t.Run("codes are flat slot offsets", func(t *testing.T) {
		c := NewCodec(2)
		require.Equal(t, int32(0), c.Pack(0, 0, 0, 0))
		require.Equal(t, int32(1), c.Pack(0, 0, 0, 1), "z should vary fastest")
		require.Equal(t, int32(4), c.Pack(0, 1, 0, 0))
		require.Equal(t, int32(8), c.Pack(1, 0, 0, 0), "Each node should span N^3 codes")
	})

	t.Run("codes fit in int32 up to MaxNodes", func(t *testing.T) {
		for _, n := range []int{2, 3, 16} {
			c := NewCodec(n)
			last := int32(c.MaxNodes() - 1)
			code := c.Pack(last, n-1, n-1, n-1)
			require.GreaterOrEqual(t, code, int32(0), "N=%d", n)
			require.LessOrEqual(t, int64(c.MaxNodes())*int64(n*n*n), int64(math.MaxInt32)+1, "N=%d", n)
			gotNode, gotX, gotY, gotZ := c.Unpack(code)
			require.Equal(t, []int{int(last), n - 1, n - 1, n - 1}, []int{int(gotNode), gotX, gotY, gotZ}, "N=%d", n)
		}
		require.Equal(t, 524288, NewCodec(16).MaxNodes())
	})

	t.Run("batch unpack", func(t *testing.T) {
		c := NewCodec(3)
		codes := []int32{c.Pack(2, 1, 0, 2), c.Pack(0, 2, 2, 2)}
		require.Equal(t, []Slot{{2, 1, 0, 2}, {0, 2, 2, 2}}, c.UnpackAll(codes))
	})

	t.Run("panics below N=2", func(t *testing.T) {
		require.Panics(t, func() { NewCodec(1) }, "Should panic when N < 2")
	})
}
