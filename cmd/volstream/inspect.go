package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"tarun-kavipurapu/volstream/pkg/protocol"
	"tarun-kavipurapu/volstream/pkg/volume"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>...",
	Short: "Decode frame files and print their headers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := cfg.ProtocolOptions()
		if err != nil {
			return err
		}
		fsys := afero.NewOsFs()
		for _, path := range args {
			if err := inspectFile(cmd.Context(), fsys, path, opts, cmd.OutOrStdout()); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		return nil
	},
}

// inspectFile prints every frame in path. A file may hold several frames back to back.
func inspectFile(ctx context.Context, fsys afero.Fs, path string, opts protocol.Options, out io.Writer) error {
	f, err := fsys.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cr := &countingReader{r: f}
	r := protocol.NewReader(cr, opts, nil)
	for n := 0; ; n++ {
		v, err := r.ReadVolume(ctx, nil)
		if err != nil {
			// end of file on a frame boundary
			if errors.Is(err, protocol.ErrChannelClosed) && n > 0 && cr.n == info.Size() {
				return nil
			}
			return err
		}
		fmt.Fprintf(out, "%s frame %d\n", path, n)
		printVolume(out, v)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func printVolume(out io.Writer, v *volume.Volume) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAutoWrapText(false)

	header := protocol.HeaderMap(&v.Metadata)
	for pair := header.Oldest(); pair != nil; pair = pair.Next() {
		table.Append([]string{pair.Key, pair.Value})
	}
	table.Append([]string{"(payload)", fmt.Sprintf("%s (%d bytes)", humanizeBytes(uint64(v.DataSizeInBytes())), v.DataSizeInBytes())})
	if expected := v.VoxelCount() * v.BytesPerVoxel; expected != int64(v.DataSizeInBytes()) {
		table.Append([]string{"(warning)", "payload size differs from width*height*depth*bytespervoxel = " + strconv.FormatInt(expected, 10)})
	}
	table.Render()
}

func humanizeBytes(n uint64) string {
	return humanize.IBytes(n)
}

func humanizeTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

