package quality

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// EmbedDim is the dimensionality of the hashed bag-of-tokens embedding.
const EmbedDim = 256

// Embed maps text to a deterministic hashed bag-of-tokens vector: each
// lowercase token is hashed into one of EmbedDim buckets and counted. The
// same text always produces the same vector, so leakage scores are
// reproducible without a remote embedding service.
func Embed(text string) []float32 {
	vec := make([]float32, EmbedDim)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%EmbedDim]++
	}
	return vec
}

// Cosine computes cosine similarity between two vectors, 0 when either is
// zero or dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
