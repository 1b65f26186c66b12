package medium

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryRequestBytesShortRead(t *testing.T) {
	m := NewMemory([]byte{1, 2, 3})
	data, status, err := m.RequestBytes(2)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)
	require.Equal(t, []byte{1, 2}, data)

	data, status, err = m.RequestBytes(2)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)
	require.Equal(t, []byte{3}, data)

	_, status, err = m.RequestBytes(2)
	require.NoError(t, err)
	require.Equal(t, StatusEOF, status)
}

func TestMemorySeek(t *testing.T) {
	m := NewMemory([]byte{1, 2, 3, 4})
	status, err := m.Seek(2)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)
	data, _, err := m.RequestBytes(10)
	require.NoError(t, err)
	require.Equal(t, []byte{3, 4}, data)
}

func TestMemorySeekPastEnd(t *testing.T) {
	m := NewMemory([]byte{1, 2})
	status, err := m.Seek(5)
	require.NoError(t, err)
	require.Equal(t, StatusEOF, status)
}
