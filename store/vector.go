package store

import (
	"database/sql"
	"encoding/binary"
	"math"
	"sort"

	"ustawy/types"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rank scores every candidate against query and keeps the best k.
// Ties keep the candidates' input order.
func rank(candidates []types.Chunk, query []float32, k int) []types.Chunk {
	for i := range candidates {
		candidates[i].Score = sql.NullFloat64{Float64: cosine(query, candidates[i].Embedding), Valid: true}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score.Float64 > candidates[j].Score.Float64
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

func encodeVector(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
