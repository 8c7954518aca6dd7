package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	quic "github.com/metaech/quix"
	"github.com/metaech/quix/metrics"
	"github.com/metaech/quix/transport"
)

var serverCertFile, serverKeyFile string

func init() {
	ServerCmd.Flags().StringVar(&serverCertFile, "cert", "", "TLS certificate file (overrides --config)")
	ServerCmd.Flags().StringVar(&serverKeyFile, "key", "", "TLS key file (overrides --config)")
}

// ServerCmd is the cobra command that corresponds to the 'server' subcommand.
var ServerCmd = &cobra.Command{
	Use:   "server <listen-address>",
	Short: "`server` accepts QUIC connections and echoes every stream it receives",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			// nolint:errcheck
			cmd.Usage()
			os.Exit(1)
		}
		if err := runServer(args[0]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func runServer(addr string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if serverCertFile != "" {
		config.TLS.CertFile = serverCertFile
		config.TLS.KeyFile = serverKeyFile
	}
	if config.TLS.CertFile == "" {
		return fmt.Errorf("quince: server requires --cert/--key or config.tls.certFile/keyFile")
	}

	collector := serveMetrics()

	handler := &serverHandler{collector: collector}
	server := quic.NewServer(config)
	server.SetHandler(handler)
	server.SetLogger(verbosity, os.Stdout)
	if err := server.ListenAndServe(addr); err != nil {
		return err
	}
	log.Printf("quince: serving on %s", addr)
	select {}
}

// serverHandler echoes every byte it reads on a stream back to the
// peer on the same stream, closing the write side once the peer does.
type serverHandler struct {
	collector *metrics.ConnCollector
	seen      map[*quic.Conn]bool
}

func (h *serverHandler) Serve(c *quic.Conn, events []transport.Event) {
	if h.seen == nil {
		h.seen = make(map[*quic.Conn]bool)
	}
	if !h.seen[c] {
		h.seen[c] = true
		metrics.ConnAccepted()
		if h.collector != nil {
			h.collector.Add(c)
		}
	}

	for _, e := range events {
		switch e.Kind {
		case transport.EventStreamReadable:
			st, ok := c.Stream(e.StreamID)
			if !ok {
				continue
			}
			buf := make([]byte, 4096)
			n, err := st.Read(buf)
			if n > 0 {
				if _, werr := st.Write(buf[:n]); werr != nil {
					log.Printf("echo write: %v", werr)
				}
			}
			if err != nil {
				_ = st.Close()
			}
		case transport.EventConnClosed:
			metrics.ConnClosed(c.IsEstablished())
			delete(h.seen, c)
			if h.collector != nil {
				h.collector.Remove(c)
			}
		}
	}
}
