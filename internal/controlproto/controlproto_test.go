package controlproto_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embj-org/ej/internal/controlproto"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := controlproto.NewWriter(&buf)

	require.NoError(t, w.Write(controlproto.Hello{}))
	require.NoError(t, w.Write(controlproto.Identity{
		Action:          "build",
		ConfigPath:      "/etc/ej/builder.toml",
		BoardName:       "rpi4",
		BoardConfigName: "release",
	}))
	require.NoError(t, w.Write(controlproto.Exit{}))

	r := controlproto.NewReader(&buf)

	var hello controlproto.Hello
	require.NoError(t, r.Read(&hello))

	var identity controlproto.Identity
	require.NoError(t, r.Read(&identity))
	assert.Equal(t, "build", identity.Action)
	assert.Equal(t, "rpi4", identity.BoardName)
	assert.Equal(t, "release", identity.BoardConfigName)

	var exit controlproto.Exit
	require.NoError(t, r.Read(&exit))

	var anything controlproto.Exit
	assert.Equal(t, io.EOF, r.Read(&anything))
}

func TestReaderReadOnEmptyStreamReturnsEOF(t *testing.T) {
	r := controlproto.NewReader(bytes.NewReader(nil))
	var hello controlproto.Hello
	assert.Equal(t, io.EOF, r.Read(&hello))
}
