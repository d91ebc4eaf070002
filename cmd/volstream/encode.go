package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"tarun-kavipurapu/volstream/pkg/logger"
	"tarun-kavipurapu/volstream/pkg/protocol"
	"tarun-kavipurapu/volstream/pkg/volume"
	"tarun-kavipurapu/volstream/producer"
)

var genFlags struct {
	elementType string
	dims        string
	pattern     string
	channel     int32
	channelName string
	color       string
}

var encodeFrames int

var encodeCmd = &cobra.Command{
	Use:   "encode <file>",
	Short: "Write synthetic volumes to a frame file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := cfg.ProtocolOptions()
		if err != nil {
			return err
		}
		gen, err := newGenerator(opts)
		if err != nil {
			return err
		}

		f, err := afero.NewOsFs().Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		w := protocol.NewWriter(f, opts)
		total := 0
		for i := 0; i < encodeFrames; i++ {
			v, err := gen.Next()
			if err != nil {
				return err
			}
			n, err := w.WriteVolume(v)
			if err != nil {
				return err
			}
			total += n
		}
		logger.Sugar.Infof("wrote %d frame(s), %s to %s", encodeFrames, humanizeBytes(uint64(total)), args[0])
		return f.Close()
	},
}

func newGenerator(opts protocol.Options) (*producer.Generator, error) {
	t, err := volume.ParseElementType(genFlags.elementType)
	if err != nil {
		return nil, err
	}
	w, h, d, err := parseDims(genFlags.dims)
	if err != nil {
		return nil, err
	}
	pattern, err := producer.ParsePattern(genFlags.pattern)
	if err != nil {
		return nil, err
	}
	color, fe := protocol.ParseFloatArray(genFlags.color)
	if fe != nil {
		return nil, fe
	}
	return &producer.Generator{
		Type:        t,
		Width:       w,
		Height:      h,
		Depth:       d,
		ChannelID:   genFlags.channel,
		ChannelName: genFlags.channelName,
		Color:       color,
		Pattern:     pattern,
		ByteOrder:   opts.ByteOrder,
	}, nil
}

// parseDims parses "WxHxD".
func parseDims(s string) (w, h, d int64, err error) {
	parts := strings.Split(strings.ToLower(s), "x")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("dimensions must look like 64x64x32, got %q", s)
	}
	var dims [3]int64
	for i, p := range parts {
		dims[i], err = strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || dims[i] <= 0 {
			return 0, 0, 0, fmt.Errorf("invalid dimension %q in %q", p, s)
		}
	}
	return dims[0], dims[1], dims[2], nil
}

func addGeneratorFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&genFlags.elementType, "type", string(volume.UnsignedByte), "voxel element type")
	f.StringVar(&genFlags.dims, "dims", "64x64x32", "volume size in voxels, WxHxD")
	f.StringVar(&genFlags.pattern, "pattern", "gradient", "fill pattern: constant or gradient")
	f.Int32Var(&genFlags.channel, "channel", 0, "channel id")
	f.StringVar(&genFlags.channelName, "channel-name", "synthetic", "channel name")
	f.StringVar(&genFlags.color, "color", "1 1 1 1", "channel color, space separated floats")
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	addGeneratorFlags(encodeCmd)
	encodeCmd.Flags().IntVarP(&encodeFrames, "frames", "n", 1, "number of frames to write")
}
