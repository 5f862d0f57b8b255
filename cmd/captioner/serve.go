package main

import (
	"log/slog"
	"net"

	"github.com/spf13/cobra"

	"github.com/born-ml/captioner/internal/server"
)

func (a *app) serveCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Serve captions over HTTP",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
			}
			checkpoint, _ := cmd.Flags().GetString("checkpoint")
			vocabPath, _ := cmd.Flags().GetString("vocab")

			m, v, err := a.loadModel(checkpoint, vocabPath)
			if err != nil {
				return err
			}
			opts := a.captionOptions(cmd)

			ln, err := net.Listen("tcp", a.cfg.Server.Addr)
			if err != nil {
				return err
			}
			slog.Info("listening", "addr", ln.Addr().String(), "vocab", v.Len())

			srv := server.New(m, v, server.Options{MaxLen: opts.MaxLen, Policy: opts.Policy})
			return srv.Serve(cmd.Context(), ln)
		},
	}
	addModelFlags(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (defaults to server.addr)")
	return serveCmd
}
