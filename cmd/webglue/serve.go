package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/philippseith/webglue"
)

func serveCmd() *cobra.Command {
	var configPath string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo application",
		Long: `Serve the demo modules math, session and chat, the browser client and the
resource directories of the configuration. chat needs a login with session.login.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port, overrides server.port")
	return cmd
}

// serve runs the App and the optional TCP endpoint until ctx is canceled or one of them fails
func serve(ctx context.Context, cfg *Config) error {
	var listener net.Listener
	if cfg.Server.TCPAddress != "" {
		var err error
		if listener, err = net.Listen("tcp", cfg.Server.TCPAddress); err != nil {
			return err
		}
	}
	return serveWith(ctx, cfg, listener)
}

// serveWith serves the TCP endpoint on listener if it is not nil
func serveWith(ctx context.Context, cfg *Config, listener net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	d := newDemo(cfg.Demo.Users)
	app, err := webglue.NewApp(ctx, webglue.Config{
		Modules:     d.modules,
		HTTPPort:    cfg.Server.Port,
		Host:        cfg.Server.Host,
		Minify:      cfg.Server.Minify,
		Path:        cfg.Server.Path,
		MetricsPath: cfg.Server.MetricsPath,
		Watch:       cfg.Server.Watch,
		Resources:   cfg.Resources,
	}, serverOptions(cfg)...)
	if err != nil {
		if listener != nil {
			_ = listener.Close()
		}
		return err
	}
	go d.runTicker(ctx, cfg.Demo.TickInterval)
	g.Go(app.ListenAndServe)
	if listener != nil {
		g.Go(func() error { return serveTCP(ctx, listener, app.Server()) })
	}
	return g.Wait()
}

func serverOptions(cfg *Config) []func(webglue.Party) error {
	options := []func(webglue.Party) error{
		webglue.Logger(newLogger(cfg.Logging.Format), cfg.Logging.Debug),
		webglue.SupportedVersions(cfg.Protocol.SupportedVersions...),
		webglue.EventBufferCapacity(cfg.Protocol.EventBufferCapacity),
		webglue.TimeoutInterval(cfg.Protocol.Timeout),
		webglue.KeepAliveInterval(cfg.Protocol.KeepAliveInterval),
		webglue.HandshakeTimeout(cfg.Protocol.HandshakeTimeout),
		webglue.EnableDetailedErrors(cfg.Protocol.EnableDetailedErrors),
	}
	if len(cfg.Protocol.AllowOriginPatterns) > 0 {
		options = append(options, webglue.AllowOriginPatterns(cfg.Protocol.AllowOriginPatterns))
	}
	return options
}
