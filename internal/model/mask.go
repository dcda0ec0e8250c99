package model

import "math"

// CausalMask is an additive [Rows, Cols] mask. Query row i sits at absolute
// position Offset+i and may attend to key columns 0..Offset+i; every column
// after that holds -Inf. With no prior cache Cols == Rows.
type CausalMask struct {
	Rows   int
	Cols   int
	Offset int
	Data   []float32
}

// NewCausalMask builds the mask for seqLen new positions following offset
// cached ones.
func NewCausalMask(seqLen, offset int) *CausalMask {
	cols := offset + seqLen
	m := &CausalMask{
		Rows:   seqLen,
		Cols:   cols,
		Offset: offset,
		Data:   make([]float32, seqLen*cols),
	}
	negInf := float32(math.Inf(-1))
	for i := 0; i < seqLen; i++ {
		row := m.Row(i)
		for j := offset + i + 1; j < cols; j++ {
			row[j] = negInf
		}
	}
	return m
}

// Row returns the additive mask for query row i.
func (m *CausalMask) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}
