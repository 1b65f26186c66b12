package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracefmt/ctf/fieldclass"
)

func TestBuildTraceClassFromDefaultLayout(t *testing.T) {
	tc, err := buildTraceClass(defaultLayout())
	require.NoError(t, err)
	require.Len(t, tc.StreamClasses, 1)
	require.Len(t, tc.ClockClasses, 1)

	sc := tc.StreamClasses[0]
	require.True(t, sc.HasPacketBeginTime)
	require.True(t, sc.HasPacketEndTime)
	require.True(t, sc.HasDiscardedEvents)
	require.False(t, sc.HasDiscardedPackets)
	require.NotNil(t, sc.DefaultClockClass)
	require.Equal(t, "monotonic", sc.DefaultClockClass.Name)

	require.Len(t, sc.EventClasses, 1)
	ec := sc.EventByID(0)
	require.NotNil(t, ec)
	require.Equal(t, "event", ec.Name)
	require.Equal(t, 2, len(ec.Payload.Struct.Members))
	require.Equal(t, fieldclass.KindString, ec.Payload.Struct.Members[1].Class.Kind)
}

func TestDecodeLayoutRejectsUnknownFields(t *testing.T) {
	_, err := decodeLayout(strings.NewReader(`{"bogus": 1}`))
	require.Error(t, err)
}

func TestBuildFieldRejectsUnknownMeaning(t *testing.T) {
	_, err := buildTraceClass(&traceLayout{
		Streams: []streamSpec{{
			PacketContext: []fieldSpec{{Name: "x", Kind: "int", Meaning: "not_a_real_meaning"}},
		}},
	})
	require.Error(t, err)
}

func TestStreamDefaultClockRequiresMappedTimestamp(t *testing.T) {
	tc, err := buildTraceClass(&traceLayout{
		Streams: []streamSpec{{
			EventHeader: []fieldSpec{{Name: "timestamp", Kind: "int"}},
		}},
	})
	require.NoError(t, err)
	require.Nil(t, tc.StreamClasses[0].DefaultClockClass)
}
