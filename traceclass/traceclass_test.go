package traceclass

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamEventByID(t *testing.T) {
	sc := &StreamClass{EventClasses: []*EventClass{
		{ID: 5, Name: "sched_switch"},
		{ID: 1, Name: "sched_wakeup"},
	}}
	sc.IndexEventClasses()

	require.Equal(t, "sched_switch", sc.EventByID(5).Name)
	require.Equal(t, "sched_wakeup", sc.EventByID(1).Name)
	require.Nil(t, sc.EventByID(99))
}

func TestTraceStreamByID(t *testing.T) {
	tc := &TraceClass{StreamClasses: []*StreamClass{{ID: 0}, {ID: 3}}}
	tc.IndexStreamClasses()

	require.Same(t, tc.StreamClasses[1], tc.StreamByID(3))
	require.Nil(t, tc.StreamByID(7))
}

func TestClockByName(t *testing.T) {
	tc := &TraceClass{ClockClasses: []*ClockClass{
		{Name: "monotonic", Frequency: 1000000000},
	}}
	require.NotNil(t, tc.ClockByName("monotonic"))
	require.Nil(t, tc.ClockByName("missing"))
}

func TestEnvLookup(t *testing.T) {
	tc := &TraceClass{Env: []EnvEntry{
		{Name: "tracer_name", IsInt: false, Str: "lttng-modules"},
		{Name: "tracer_major", IsInt: true, Int: 2},
	}}

	str, ok := tc.EnvString("tracer_name")
	require.True(t, ok)
	require.Equal(t, "lttng-modules", str)

	n, ok := tc.EnvInt("tracer_major")
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	_, ok = tc.EnvInt("tracer_name")
	require.False(t, ok, "wrong-typed lookup should miss, not coerce")

	_, ok = tc.EnvString("missing")
	require.False(t, ok)
}
