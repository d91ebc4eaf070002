package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tarun-kavipurapu/volstream/pkg/logger"
	"tarun-kavipurapu/volstream/producer"
)

var sendFlags struct {
	renderer    string
	count       uint64
	fps         float64
	dialTimeout time.Duration
	progress    bool
	interval    time.Duration
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Stream synthetic volumes to a renderer",
	Long:  `Stream synthetic volumes to a renderer. Without --renderer the renderer is discovered over mDNS.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := cfg.ProtocolOptions()
		if err != nil {
			return err
		}
		gen, err := newGenerator(opts)
		if err != nil {
			return err
		}
		gen.Interval = sendFlags.interval

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p := producer.NewProducer(producer.Options{
			Renderer:    sendFlags.renderer,
			Protocol:    opts,
			DialTimeout: sendFlags.dialTimeout,
		})
		defer p.Close()

		logger.Sugar.Infof("Connecting to renderer %q", sendFlags.renderer)
		if err := p.Connect(ctx); err != nil {
			return err
		}

		tracker := producer.NewStreamTracker(gen.ChannelName, sendFlags.count)
		if sendFlags.progress {
			pr := producer.NewProgressRenderer(tracker, os.Stdout, true)
			go pr.Start()
			defer pr.StopAndWait()
		}

		return p.Stream(ctx, gen, sendFlags.count, sendFlags.fps, tracker)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	addGeneratorFlags(sendCmd)
	f := sendCmd.Flags()
	f.StringVarP(&sendFlags.renderer, "renderer", "r", "", "renderer address (host:port or vsock://cid:port)")
	f.Uint64VarP(&sendFlags.count, "count", "n", 0, "frames to send (0 = until interrupted)")
	f.Float64Var(&sendFlags.fps, "fps", 10, "frames per second (0 = unpaced)")
	f.DurationVar(&sendFlags.dialTimeout, "dial-timeout", 30*time.Second, "give up connecting after this long")
	f.DurationVar(&sendFlags.interval, "interval", 100*time.Millisecond, "simulated time between frames")
	f.BoolVar(&sendFlags.progress, "progress", true, "show a progress line")
}
