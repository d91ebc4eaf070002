package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tarun-kavipurapu/volstream/pkg/protocol"
	"tarun-kavipurapu/volstream/pkg/volume"
	"tarun-kavipurapu/volstream/producer"
)

func TestParseDims(t *testing.T) {
	w, h, d, err := parseDims("64X32x8")
	require.NoError(t, err)
	assert.Equal(t, []int64{64, 32, 8}, []int64{w, h, d})

	for _, bad := range []string{"64x32", "0x1x1", "axbxc", ""} {
		_, _, _, err := parseDims(bad)
		assert.Error(t, err, bad)
	}
}

func writeFrames(t *testing.T, fs afero.Fs, path string, n int) {
	t.Helper()
	gen := &producer.Generator{Type: volume.UnsignedByte, Width: 2, Height: 2, Depth: 2, ChannelName: "x y"}
	f, err := fs.Create(path)
	require.NoError(t, err)
	w := protocol.NewWriter(f, protocol.DefaultOptions())
	for i := 0; i < n; i++ {
		v, err := gen.Next()
		require.NoError(t, err)
		_, err = w.WriteVolume(v)
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
}

func TestInspectFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFrames(t, fs, "/two.vol", 2)

	var out bytes.Buffer
	require.NoError(t, inspectFile(context.Background(), fs, "/two.vol", protocol.DefaultOptions(), &out))
	text := out.String()
	assert.Contains(t, text, "/two.vol frame 0")
	assert.Contains(t, text, "/two.vol frame 1")
	assert.Contains(t, text, "x y")
	assert.Contains(t, text, "UnsignedByte")
}

func TestInspectTruncatedFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFrames(t, fs, "/one.vol", 1)
	data, err := afero.ReadFile(fs, "/one.vol")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/cut.vol", data[:len(data)-3], 0o644))

	err = inspectFile(context.Background(), fs, "/cut.vol", protocol.DefaultOptions(), &bytes.Buffer{})
	assert.ErrorIs(t, err, protocol.ErrChannelClosed)

	err = inspectFile(context.Background(), fs, "/empty.vol", protocol.DefaultOptions(), &bytes.Buffer{})
	assert.Error(t, err)
}
