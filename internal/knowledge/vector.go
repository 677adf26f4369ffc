package knowledge

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

func encodeVector(vec []float32) []byte {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, vec); err != nil {
		return nil
	}
	return buf.Bytes()
}

func decodeVector(blob []byte, dims int) ([]float32, error) {
	if len(blob) != dims*4 {
		return nil, fmt.Errorf("embedding blob has %d bytes, want %d", len(blob), dims*4)
	}
	vec := make([]float32, dims)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
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
