package renderer

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"tarun-kavipurapu/volstream/pkg/protocol"
	"tarun-kavipurapu/volstream/pkg/volume"
)

const frameExt = ".vol"

// Sink persists received volumes as one frame file each, laid out as
// <dir>/ch<channel>/<index>.vol. A later frame with the same channel and
// index replaces the earlier file.
type Sink struct {
	fs    afero.Fs
	dir   string
	codec *protocol.Codec

	mu  sync.Mutex
	buf []byte
}

func NewSink(fsys afero.Fs, dir string, opts protocol.Options) *Sink {
	return &Sink{fs: fsys, dir: dir, codec: protocol.NewCodec(opts)}
}

func (s *Sink) Dir() string {
	return s.dir
}

// Path returns the file a volume is written to.
func (s *Sink) Path(channel int32, index int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("ch%d", channel), fmt.Sprintf("%d%s", index, frameExt))
}

func (s *Sink) Write(v *volume.Volume) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := s.codec.Marshal(v, s.buf)
	if err != nil {
		return "", err
	}
	s.buf = buf

	path := s.Path(v.ChannelID, v.TimeIndex)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create channel dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, path, buf, 0o644); err != nil {
		return "", fmt.Errorf("write frame: %w", err)
	}
	return path, nil
}

// Read decodes a frame file written by Write.
func (s *Sink) Read(path string) (*volume.Volume, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, err
	}
	return s.codec.Unmarshal(data, nil)
}

// List returns every frame file under the sink directory in lexical order.
func (s *Sink) List() ([]string, error) {
	var files []string
	err := afero.Walk(s.fs, s.dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, frameExt) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
