package main

import (
	"context"
	"log"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/df07/go-pathtracer/web/server"
	"github.com/spf13/cobra"
)

func main() {
	var port int

	cmd := &cobra.Command{
		Use:   "pathtracer-web",
		Short: "Serve the path tracer over HTTP with live scanline streaming",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			webServer := server.NewServer(port)

			log.Printf("Path Tracer Web Server")
			log.Printf("Visit http://localhost:%d to start rendering", port)
			return webServer.Start()
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to serve on")

	if err := fang.Execute(context.Background(), cmd, fang.WithNotifySignal(os.Interrupt)); err != nil {
		os.Exit(1)
	}
}
