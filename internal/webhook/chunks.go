package webhook

import (
	"slices"
	"strconv"
	"strings"
)

// Markers the remote script prints around a payload that was too large to
// return inline.
const (
	ResultStartMarker = "__RESULT_JSON_START__"
	ResultEndMarker   = "__RESULT_JSON_END__"

	chunkPrefix    = "__CHUNK_"
	chunkSeparator = "__:"
)

type captureState uint8

const (
	stateIdle captureState = iota
	stateCapturing
)

// ChunkAssembler collects "__CHUNK_<N>__:<fragment>" log arguments seen between
// the start and end markers. Chunks persist across capture windows and a
// repeated index overwrites the earlier fragment.
type ChunkAssembler struct {
	state  captureState
	chunks map[int]string
}

func NewChunkAssembler() *ChunkAssembler {
	return &ChunkAssembler{chunks: make(map[int]string)}
}

// Feed advances the state machine by one log argument.
func (a *ChunkAssembler) Feed(arg string) {
	switch strings.TrimSpace(arg) {
	case ResultStartMarker:
		a.state = stateCapturing
		return
	case ResultEndMarker:
		a.state = stateIdle
		return
	}

	if a.state != stateCapturing {
		return
	}
	if idx, fragment, ok := ParseChunk(arg); ok {
		a.chunks[idx] = fragment
	}
}

func (a *ChunkAssembler) Capturing() bool { return a.state == stateCapturing }

// Len is the number of distinct chunk indexes captured so far.
func (a *ChunkAssembler) Len() int { return len(a.chunks) }

// Assemble concatenates the captured fragments in ascending index order. It
// reports false when nothing was captured.
func (a *ChunkAssembler) Assemble() (string, bool) {
	if len(a.chunks) == 0 {
		return "", false
	}

	indexes := make([]int, 0, len(a.chunks))
	size := 0
	for idx, fragment := range a.chunks {
		indexes = append(indexes, idx)
		size += len(fragment)
	}
	slices.Sort(indexes)

	var b strings.Builder
	b.Grow(size)
	for _, idx := range indexes {
		b.WriteString(a.chunks[idx])
	}
	return b.String(), true
}

// ParseChunk splits "__CHUNK_<N>__:<fragment>" into its index and fragment.
// The fragment is returned verbatim and may itself contain separators.
func ParseChunk(arg string) (int, string, bool) {
	rest, ok := strings.CutPrefix(arg, chunkPrefix)
	if !ok {
		return 0, "", false
	}
	digits, fragment, ok := strings.Cut(rest, chunkSeparator)
	if !ok || digits == "" {
		return 0, "", false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, "", false
		}
	}
	idx, err := strconv.Atoi(digits)
	if err != nil {
		return 0, "", false
	}
	return idx, fragment, true
}
