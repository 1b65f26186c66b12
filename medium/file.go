package medium

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/tracefmt/ctf/traceclass"
)

// File is a Medium backed by a memory-mapped regular file, generalizing
// perffile/buf.go's io.SectionReader-based record reader (aclements/
// go-perf) into a zero-copy source: RequestBytes hands back a slice
// directly into the mapping rather than copying into a caller-owned
// buffer, the same way nevermosby-ebpf's types.go treats raw mapped
// memory as a byte source.
type File struct {
	f      *os.File
	data   []byte
	cursor int64
}

// OpenFile maps path read-only for the lifetime of the returned File.
// Close unmaps it and closes the underlying file descriptor.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "medium: opening trace file")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "medium: stat trace file")
	}
	if info.Size() == 0 {
		return &File{f: f}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "medium: mmap trace file")
	}
	return &File{f: f, data: data}, nil
}

// Close unmaps the file and closes its descriptor.
func (m *File) Close() error {
	var err error
	if m.data != nil {
		err = unix.Munmap(m.data)
	}
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (m *File) RequestBytes(maxSize int) ([]byte, Status, error) {
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

func (m *File) Seek(byteOffset int64) (Status, error) {
	if byteOffset < 0 || byteOffset > int64(len(m.data)) {
		return StatusEOF, nil
	}
	m.cursor = byteOffset
	return StatusOK, nil
}

func (m *File) SwitchPacket() (Status, error) {
	return StatusOK, nil
}

func (m *File) BorrowStream(sc *traceclass.StreamClass, streamID uint64) StreamHandle {
	return nil
}

func (m *File) CanSeekBeginning() bool { return true }
