package recorder

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Replayer reads FrameRecords from a log directory.
type Replayer struct {
	basePath string
	header   LogHeader
	index    []indexEntry

	// Playback state
	currentFrame uint64
	paused       bool
	rate         float64

	// Chunk cache
	currentChunk int
	chunkData    []byte

	mu sync.Mutex
}

// NewReplayer opens a log for replay.
func NewReplayer(basePath string) (*Replayer, error) {
	r := &Replayer{
		basePath:     basePath,
		currentChunk: -1,
		rate:         1.0,
	}

	// Read header
	headerPath := filepath.Join(basePath, "header.json")
	headerData, err := os.ReadFile(headerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerData, &r.header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	// Read index
	indexPath := filepath.Join(basePath, "index.bin")
	indexFile, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer indexFile.Close()

	r.index = make([]indexEntry, 0, r.header.TotalFrames)
	for {
		var entry indexEntry
		if err := binary.Read(indexFile, binary.LittleEndian, &entry); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to read index: %w", err)
		}
		r.index = append(r.index, entry)
	}

	return r, nil
}

// Header returns the log header.
func (r *Replayer) Header() LogHeader {
	return r.header
}

// TotalFrames returns the total number of frames in the log.
func (r *Replayer) TotalFrames() uint64 {
	return r.header.TotalFrames
}

// CurrentFrame returns the current frame index.
func (r *Replayer) CurrentFrame() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentFrame
}

// Seek seeks to a specific frame by index. A replay host that seeks must
// also reset its driver so tracks do not bridge the jump.
func (r *Replayer) Seek(frameIdx uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if frameIdx >= uint64(len(r.index)) {
		return fmt.Errorf("frame index out of range: %d >= %d", frameIdx, len(r.index))
	}

	r.currentFrame = frameIdx
	return nil
}

// SeekToTimestamp seeks to the first frame at or after the given video
// timestamp, or the last frame if the timestamp is beyond the log.
func (r *Replayer) SeekToTimestamp(sec float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.index) == 0 {
		return fmt.Errorf("empty log")
	}

	i := sort.Search(len(r.index), func(i int) bool {
		return r.index[i].TimestampSec >= sec
	})
	if i >= len(r.index) {
		i = len(r.index) - 1
	}
	r.currentFrame = uint64(i)
	return nil
}

// ReadFrame reads the current frame and advances. Returns io.EOF past the
// end of the log.
func (r *Replayer) ReadFrame() (*FrameRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentFrame >= uint64(len(r.index)) {
		return nil, io.EOF
	}

	entry := r.index[r.currentFrame]

	// Load chunk if needed
	if int(entry.ChunkID) != r.currentChunk {
		if err := r.loadChunk(int(entry.ChunkID)); err != nil {
			return nil, err
		}
	}

	// Read frame from chunk
	offset := entry.Offset
	if offset+4 > uint32(len(r.chunkData)) {
		return nil, fmt.Errorf("invalid frame offset")
	}

	frameLen := binary.LittleEndian.Uint32(r.chunkData[offset:])
	offset += 4

	if offset+frameLen > uint32(len(r.chunkData)) {
		return nil, fmt.Errorf("invalid frame length")
	}

	var frame FrameRecord
	if err := json.Unmarshal(r.chunkData[offset:offset+frameLen], &frame); err != nil {
		return nil, fmt.Errorf("failed to deserialize frame: %w", err)
	}

	r.currentFrame++
	return &frame, nil
}

// loadChunk loads a chunk file into memory.
func (r *Replayer) loadChunk(chunkIdx int) error {
	chunkPath := filepath.Join(r.basePath, "frames", fmt.Sprintf("chunk_%04d.bin", chunkIdx))
	data, err := os.ReadFile(chunkPath)
	if err != nil {
		return fmt.Errorf("failed to read chunk: %w", err)
	}

	r.chunkData = data
	r.currentChunk = chunkIdx
	return nil
}

// SetPaused sets the paused state.
func (r *Replayer) SetPaused(paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = paused
}

// Paused reports the paused state.
func (r *Replayer) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// SetRate sets the playback rate. Rates at or below zero are ignored.
func (r *Replayer) SetRate(rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rate > 0 {
		r.rate = rate
	}
}

// Rate returns the playback rate.
func (r *Replayer) Rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rate
}
