package envelope

import (
	"fmt"
	"sort"
	"strconv"
)

// Header keys used by the chunking helper. These are ordinary headers as
// far as the broker is concerned — it never inspects them — so chunked
// envelopes route exactly like any other event or command.
const (
	headerChunkIndex = "mbus.chunk.index"
	headerChunkTotal = "mbus.chunk.total"
)

// Split divides a single logical payload across chunkCount envelopes that
// share a CorrelationID and carry mbus.chunk.index/mbus.chunk.total
// headers so a Reassembler on the receiving side can put them back in
// order. env's own
// Payload is replaced chunk-by-chunk; all other fields are copied as-is
// onto every chunk.
//
// This is an opt-in client-side feature (see Budget/CalculateBudget for
// when to use it); the broker's routing rules are unaffected by it.
func Split(env *Envelope, chunkCount int) ([]*Envelope, error) {
	if chunkCount < 1 {
		return nil, fmt.Errorf("chunk count must be >= 1, got %d", chunkCount)
	}
	if chunkCount == 1 {
		return []*Envelope{env.Clone()}, nil
	}

	payload := env.Payload
	size := len(payload)
	chunkSize := (size + chunkCount - 1) / chunkCount
	if chunkSize == 0 {
		chunkSize = 1
	}

	correlationID := env.CorrelationID
	if correlationID == "" {
		correlationID = NewID()
	}

	var chunks []*Envelope
	for i := 0; i*chunkSize < size; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > size {
			end = size
		}

		chunk := env.Clone()
		chunk.Payload = append([]byte(nil), payload[start:end]...)
		chunk.CorrelationID = correlationID
		chunk.SetHeader(headerChunkIndex, strconv.Itoa(i))
		chunk.SetHeader(headerChunkTotal, strconv.Itoa(chunkCount))
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// Reassembler accumulates chunked envelopes sharing a CorrelationID until
// every chunk has arrived, then yields one envelope with the concatenated
// payload and the chunk headers stripped.
type Reassembler struct {
	pending map[string][]*Envelope
	totals  map[string]int
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{
		pending: make(map[string][]*Envelope),
		totals:  make(map[string]int),
	}
}

// IsChunk reports whether env carries the chunking headers Split attaches.
func IsChunk(env *Envelope) bool {
	_, ok := env.GetHeader(headerChunkTotal)
	return ok
}

// Add feeds one chunk into the reassembler. It returns the reassembled
// envelope once all chunks for its CorrelationID have arrived, or nil if
// more chunks are still pending.
func (r *Reassembler) Add(chunk *Envelope) (*Envelope, error) {
	totalStr, ok := chunk.GetHeader(headerChunkTotal)
	if !ok {
		return nil, fmt.Errorf("envelope is not a chunk")
	}
	total, err := strconv.Atoi(totalStr)
	if err != nil || total < 1 {
		return nil, fmt.Errorf("invalid chunk total header %q", totalStr)
	}

	key := chunk.CorrelationID
	r.totals[key] = total
	r.pending[key] = append(r.pending[key], chunk)

	if len(r.pending[key]) < total {
		return nil, nil
	}

	parts := r.pending[key]
	delete(r.pending, key)
	delete(r.totals, key)

	sort.Slice(parts, func(i, j int) bool {
		return chunkIndexOf(parts[i]) < chunkIndexOf(parts[j])
	})

	merged := parts[0].Clone()
	var size int
	for _, p := range parts {
		size += len(p.Payload)
	}
	buf := make([]byte, 0, size)
	for _, p := range parts {
		buf = append(buf, p.Payload...)
	}
	merged.Payload = buf
	delete(merged.Headers, headerChunkIndex)
	delete(merged.Headers, headerChunkTotal)

	return merged, nil
}

func chunkIndexOf(env *Envelope) int {
	idx, _ := env.GetHeader(headerChunkIndex)
	n, _ := strconv.Atoi(idx)
	return n
}
