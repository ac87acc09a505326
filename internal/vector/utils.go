package vector

import (
	"math"
)

// Dequantize reconstructs a float vector from its 8-bit representation.
// Each byte maps linearly back into [min, max]: value = b/255 * (max-min) + min.
// The arithmetic is carried out in float64 and narrowed once per element so the
// same input always yields bit-identical output.
func Dequantize(data []byte, min, max float64) []float32 {
	out := make([]float32, len(data))
	span := max - min
	for i, b := range data {
		out[i] = float32(float64(b)/255*span + min)
	}
	return out
}

// Quantize compresses a float vector to one byte per dimension and returns the
// range needed by Dequantize. A constant vector gets a unit-wide range.
func Quantize(v []float32) (data []byte, min, max float64) {
	if len(v) == 0 {
		return nil, 0, 0
	}

	min, max = math.MaxFloat64, -math.MaxFloat64
	for _, val := range v {
		f := float64(val)
		if f < min {
			min = f
		}
		if f > max {
			max = f
		}
	}
	if min == max {
		max = min + 1
	}

	data = make([]byte, len(v))
	scale := 255 / (max - min)
	for i, val := range v {
		q := math.Round((float64(val) - min) * scale)
		if q < 0 {
			q = 0
		} else if q > 255 {
			q = 255
		}
		data[i] = byte(q)
	}
	return data, min, max
}

// CosineSimilarity calculates the cosine similarity between two vectors:
// dot(a,b) / (|a| * |b|). The result is defined as 0 when either vector has
// zero magnitude. Only the common prefix is compared when lengths differ;
// callers that care about dimensionality check it before scoring.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		normA += va * va
		normB += vb * vb
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// Magnitude returns the Euclidean norm of v.
func Magnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		f := float64(val)
		sum += f * f
	}
	return math.Sqrt(sum)
}
