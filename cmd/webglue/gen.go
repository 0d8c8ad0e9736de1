package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/philippseith/webglue"
	"github.com/philippseith/webglue/internal/codegen"
)

func genCmd() *cobra.Command {
	var (
		address string
		pkgName string
		out     string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate Go stubs from the discovery of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			discovery, err := discover(ctx, address)
			if err != nil {
				return err
			}
			src, err := codegen.Generate(pkgName, discovery)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(src)
				return err
			}
			if err = os.WriteFile(out, src, 0o644); err != nil {
				return fmt.Errorf("write stubs: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&address, "url", "u", "ws://localhost:8080/webglue", "ws:// or tcp:// address of the server")
	cmd.Flags().StringVar(&pkgName, "package", "stubs", "package name of the generated file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, stdout if empty")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "time to connect and discover")
	return cmd
}

func discover(ctx context.Context, address string) (webglue.Discovery, error) {
	conn, err := dial(ctx, address)
	if err != nil {
		return webglue.Discovery{}, fmt.Errorf("connect %v: %w", address, err)
	}
	client, err := webglue.NewClient(ctx,
		webglue.WithConnection(conn),
		webglue.Logger(newLogger("logfmt"), false))
	if err != nil {
		return webglue.Discovery{}, err
	}
	if err = client.Start(); err != nil {
		return webglue.Discovery{}, err
	}
	defer func() { _ = client.Stop() }()
	return client.Discovery(), nil
}
