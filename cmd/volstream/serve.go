package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"tarun-kavipurapu/volstream/pkg/logger"
	"tarun-kavipurapu/volstream/pkg/monitor"
	"tarun-kavipurapu/volstream/renderer"
)

var (
	interactive bool
	idleTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a renderer that receives volume streams",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := cfg.ProtocolOptions()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		metrics := monitor.New()
		ropts := renderer.Options{
			Listen:      cfg.Listen,
			Protocol:    opts,
			Metrics:     metrics,
			Advertise:   cfg.Discovery.Advertise,
			Instance:    cfg.Discovery.Instance,
			IdleTimeout: idleTimeout,
		}
		if cfg.Sink.Dir != "" {
			ropts.Sink = renderer.NewSink(afero.NewOsFs(), cfg.Sink.Dir, opts)
		}

		server := renderer.NewReceiver(ropts)
		logger.Sugar.Infof("Starting renderer on %s", cfg.Listen)
		if err := server.Start(); err != nil {
			return err
		}
		defer server.Stop()

		if cfg.MetricsAddr != "" {
			go func() {
				if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
					logger.Sugar.Errorf("[Metrics] server stopped: %v", err)
				}
			}()
		}
		go metrics.LogPeriodic(ctx, time.Minute)

		if interactive {
			fmt.Println("Volume Renderer Interactive Shell")
			fmt.Println("Type 'help' for commands.")

			prompt.New(
				func(in string) { serverExecutor(in, server) },
				serverCompleter,
				prompt.OptionPrefix("renderer> "),
				prompt.OptionTitle("Volume Renderer"),
			).Run()
			return nil
		}

		select {
		case <-ctx.Done():
		case <-server.Done():
		}
		return nil
	},
}

func serverExecutor(in string, server *renderer.Receiver) {
	blocks := strings.Fields(strings.TrimSpace(in))
	if len(blocks) == 0 {
		return
	}

	switch blocks[0] {
	case "exit", "quit":
		fmt.Println("Stopping renderer...")
		_ = server.Stop()
		logger.Sync()
		os.Exit(0)
	case "status":
		fmt.Println(server.GetStatus())
	case "list":
		if len(blocks) > 1 && blocks[1] == "producers" {
			printProducers(server)
		} else {
			fmt.Println("Usage: list producers")
		}
	case "channels":
		printChannels(server)
	case "latest":
		if len(blocks) < 2 {
			fmt.Println("Usage: latest <channel>")
			return
		}
		ch, err := strconv.ParseInt(blocks[1], 10, 32)
		if err != nil {
			fmt.Printf("Invalid channel: %v\n", err)
			return
		}
		v, ok := server.Latest(int32(ch))
		if !ok {
			fmt.Printf("No volume received on channel %d.\n", ch)
			return
		}
		printVolume(os.Stdout, v)
	case "help":
		fmt.Println("Available commands:")
		fmt.Println("  status            - Show renderer status")
		fmt.Println("  list producers    - List connected producers")
		fmt.Println("  channels          - Show the newest volume per channel")
		fmt.Println("  latest <channel>  - Show the header of the newest volume on a channel")
		fmt.Println("  exit              - Stop renderer and exit")
	default:
		fmt.Println("Unknown command: " + blocks[0])
	}
}

func serverCompleter(d prompt.Document) []prompt.Suggest {
	s := []prompt.Suggest{
		{Text: "status", Description: "Show renderer status and stats"},
		{Text: "list producers", Description: "List connected producers"},
		{Text: "channels", Description: "Show the newest volume per channel"},
		{Text: "latest", Description: "Show the newest volume on a channel"},
		{Text: "exit", Description: "Exit the renderer"},
		{Text: "help", Description: "Show help"},
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}

func printProducers(server *renderer.Receiver) {
	producers := server.GetProducers()
	if len(producers) == 0 {
		fmt.Println("No producers connected.")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Address", "Node", "Frames", "Bytes", "Rejected", "Last Active"})
	for _, p := range producers {
		table.Append([]string{
			p.Addr, p.NodeID,
			strconv.FormatUint(p.Frames, 10),
			humanizeBytes(p.Bytes),
			strconv.FormatUint(p.Rejected, 10),
			humanizeTime(p.LastActive),
		})
	}
	table.Render()
}

func printChannels(server *renderer.Receiver) {
	channels := server.Channels()
	if len(channels) == 0 {
		fmt.Println("No volumes received yet.")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Channel", "Name", "Index", "Time", "Type", "Size", "Payload", "Received"})
	for _, c := range channels {
		table.Append([]string{
			strconv.Itoa(int(c.ChannelID)), c.ChannelName,
			strconv.FormatInt(c.TimeIndex, 10),
			strconv.FormatFloat(c.TimeSeconds, 'g', -1, 64),
			c.Type,
			fmt.Sprintf("%dx%dx%d", c.Width, c.Height, c.Depth),
			humanizeBytes(uint64(c.SizeInBytes)),
			humanizeTime(c.ReceivedAt),
		})
	}
	table.Render()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	f := serveCmd.Flags()
	f.StringP("listen", "l", "", "address to listen on (host:port or vsock://cid:port)")
	f.String("metrics-addr", "", "serve prometheus metrics on this address")
	f.String("sink-dir", "", "persist received volumes under this directory")
	f.Bool("advertise", false, "advertise the renderer over mDNS")
	f.String("instance", "", "mDNS instance name")
	f.DurationVar(&idleTimeout, "idle-timeout", 0, "drop producers silent for this long (0 = never)")
	f.BoolVarP(&interactive, "interactive", "i", false, "Start in interactive mode")
}
