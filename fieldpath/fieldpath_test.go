package fieldpath

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tracefmt/ctf/fieldclass"
)

func intClass(size int) *fieldclass.Class {
	return &fieldclass.Class{Kind: fieldclass.KindInt, InIR: true, Int: &fieldclass.Int{Size: size, Alignment: 8, StoredValueIndex: fieldclass.NoStoredValue}}
}

func TestResolveRelative(t *testing.T) {
	payload := &fieldclass.Struct{Members: []fieldclass.Member{
		{Name: "len", Class: intClass(32)},
		{Name: "data", Class: &fieldclass.Class{Kind: fieldclass.KindSequence}},
	}}
	scopes := Scopes{EventPayload: payload}

	path, err := Resolve("len", scopes)
	require.NoError(t, err)
	require.Equal(t, fieldclass.ScopeEventPayload, path.Root)
	require.Equal(t, []int{0}, path.Indices)
}

func TestResolveAbsolute(t *testing.T) {
	ctx := &fieldclass.Struct{Members: []fieldclass.Member{
		{Name: "packet_size", Class: intClass(64)},
	}}
	scopes := Scopes{PacketContext: ctx}

	path, err := Resolve("stream.packet.context.packet_size", scopes)
	require.NoError(t, err)
	require.Equal(t, fieldclass.ScopeStreamPacketContext, path.Root)
	require.Equal(t, []int{0}, path.Indices)
}

func TestResolveUnderscoreConvention(t *testing.T) {
	hdr := &fieldclass.Struct{Members: []fieldclass.Member{
		{Name: "_id", Class: intClass(8)},
	}}
	scopes := Scopes{EventHeader: hdr}

	path, err := Resolve("id", scopes)
	require.NoError(t, err)
	require.Equal(t, fieldclass.ScopeEventHeader, path.Root)
}

func TestResolveNested(t *testing.T) {
	inner := &fieldclass.Struct{Members: []fieldclass.Member{
		{Name: "tag", Class: intClass(8)},
	}}
	outer := &fieldclass.Struct{Members: []fieldclass.Member{
		{Name: "hdr", Class: &fieldclass.Class{Kind: fieldclass.KindStruct, Struct: inner}},
	}}
	scopes := Scopes{EventPayload: outer}

	path, err := Resolve("hdr.tag", scopes)
	require.NoError(t, err)
	require.Equal(t, []int{0, 0}, path.Indices)

	cls := LookupClass(outer, path.Indices)
	require.Equal(t, fieldclass.KindInt, cls.Kind)
}

func TestResolveNotFound(t *testing.T) {
	scopes := Scopes{EventPayload: &fieldclass.Struct{}}
	_, err := Resolve("nope", scopes)
	require.Error(t, err)
}
