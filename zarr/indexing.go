package zarr

// chunkProjection maps one chunk of the chunk grid onto the array. Items
// at Offset..Offset+Extent in the array live at 0..Extent in the chunk.
type chunkProjection struct {
	// Indices of the chunk in the chunk grid
	ChunkCoords []int
	// position of the chunk's first item in the array
	Offset []int
	// number of items of the chunk that fall inside the array along each
	// dimension. Smaller than the chunk shape only for edge chunks.
	Extent []int
}

// gridShape is the number of chunks along each dimension
func gridShape(shape, chunks []int) []int {
	g := make([]int, len(shape))
	for i := range shape {
		g[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}
	return g
}

// projections lists every chunk of an array in C order
func projections(shape, chunks []int) []chunkProjection {
	g := gridShape(shape, chunks)
	n := 1
	for _, c := range g {
		n *= c
	}

	ps := make([]chunkProjection, 0, n)
	eachIndex(g, func(coords []int) {
		p := chunkProjection{
			ChunkCoords: append([]int(nil), coords...),
			Offset:      make([]int, len(coords)),
			Extent:      make([]int, len(coords)),
		}
		for i, c := range coords {
			p.Offset[i] = c * chunks[i]
			p.Extent[i] = chunks[i]
			if rem := shape[i] - p.Offset[i]; rem < p.Extent[i] {
				p.Extent[i] = rem
			}
		}
		ps = append(ps, p)
	})
	return ps
}

// eachIndex calls fn with every index of shape in C order. A zero-dimensional
// shape has a single empty index. fn must not retain idx.
func eachIndex(shape []int, fn func(idx []int)) {
	for _, s := range shape {
		if s == 0 {
			return
		}
	}
	idx := make([]int, len(shape))
	for {
		fn(idx)
		d := len(shape) - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return
		}
	}
}

func cStrides(shape []int) []int {
	st := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= shape[i]
	}
	return st
}

// eachRun calls fn for every contiguous run of the last dimension of an
// extent-shaped block, with the run's first element offset in the dst and
// src C-ordered buffers and its length
func eachRun(dstShape, dstOff, srcShape, srcOff, extent []int, fn func(di, si, n int)) {
	nd := len(extent)
	if nd == 0 {
		fn(0, 0, 1)
		return
	}
	ds, ss := cStrides(dstShape), cStrides(srcShape)
	outer := append([]int(nil), extent...)
	outer[nd-1] = 1
	eachIndex(outer, func(idx []int) {
		di, si := 0, 0
		for d := 0; d < nd; d++ {
			di += (dstOff[d] + idx[d]) * ds[d]
			si += (srcOff[d] + idx[d]) * ss[d]
		}
		fn(di, si, extent[nd-1])
	})
}

// copyBlock copies an extent-shaped block of items between two C-ordered
// buffers
func copyBlock(dst []byte, dstShape, dstOff []int, src []byte, srcShape, srcOff []int, extent []int, item int) {
	eachRun(dstShape, dstOff, srcShape, srcOff, extent, func(di, si, n int) {
		copy(dst[di*item:(di+n)*item], src[si*item:(si+n)*item])
	})
}
