package medium

import "github.com/tracefmt/ctf/traceclass"

// Memory is a Medium over an in-memory byte slice, the way a test
// fixture or an already-fully-buffered trace capture would be fed to
// msgiter without touching a filesystem at all.
type Memory struct {
	data   []byte
	cursor int64
}

// NewMemory wraps data as a Medium. data is not copied; the caller
// must not mutate it while any iterator is reading from it.
func NewMemory(data []byte) *Memory {
	return &Memory{data: data}
}

func (m *Memory) RequestBytes(maxSize int) ([]byte, Status, error) {
	if m.cursor >= int64(len(m.data)) {
		return nil, StatusEOF, nil
	}
	end := m.cursor + int64(maxSize)
	if end > int64(len(m.data)) {
		end = int64(len(m.data))
	}
	chunk := m.data[m.cursor:end]
	m.cursor = end
	return chunk, StatusOK, nil
}

func (m *Memory) Seek(byteOffset int64) (Status, error) {
	if byteOffset < 0 || byteOffset > int64(len(m.data)) {
		return StatusEOF, nil
	}
	m.cursor = byteOffset
	return StatusOK, nil
}

func (m *Memory) SwitchPacket() (Status, error) {
	return StatusOK, nil
}

func (m *Memory) BorrowStream(sc *traceclass.StreamClass, streamID uint64) StreamHandle {
	return nil
}

func (m *Memory) CanSeekBeginning() bool { return true }
