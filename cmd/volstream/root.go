package main

import (
	"os"

	"github.com/spf13/cobra"

	"tarun-kavipurapu/volstream/pkg/config"
	"tarun-kavipurapu/volstream/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "volstream",
	Short: "Volume frame streaming",
	Long:  `Streams timestamped multi-channel voxel volumes between producers and renderers over TCP or vsock.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = loaded
		return logger.Setup(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Sugar.Error(err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./volstream.yaml)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-file", "", "also write logs to this file")
	pf.String("byte-order", "", "length field byte order: native, little or big")
	pf.Bool("strict-total-length", false, "reject frames whose total_length disagrees with header and data lengths")
	pf.Duration("read-timeout", 0, "abort a frame read after this long (0 = never)")
	pf.Int("max-payload-bytes", 0, "largest accepted voxel payload")
}
