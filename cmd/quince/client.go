package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	quic "github.com/metaech/quix"
	"github.com/metaech/quix/metrics"
	"github.com/metaech/quix/transport"
)

var (
	clientListen   string
	clientInsecure bool
	clientData     string
)

func init() {
	ClientCmd.Flags().StringVar(&clientListen, "listen", "0.0.0.0:0", "listen on the given IP:port")
	ClientCmd.Flags().BoolVar(&clientInsecure, "insecure", false, "skip verifying server certificate")
	ClientCmd.Flags().StringVar(&clientData, "data", "GET /\r\n", "data to send on the first opened stream")
}

// ClientCmd is the cobra command that corresponds to the 'client' subcommand.
var ClientCmd = &cobra.Command{
	Use:   "client <address>",
	Short: "`client` dials a single QUIC connection and exchanges data on one stream",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			// nolint:errcheck
			cmd.Usage()
			os.Exit(1)
		}
		if err := runClient(args[0]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func runClient(addr string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if config.TLS.ServerName == "" {
		config.TLS.ServerName = hostOf(addr)
	}
	config.TLS.InsecureSkipVerify = config.TLS.InsecureSkipVerify || clientInsecure

	collector := serveMetrics()

	handler := &clientHandler{data: clientData, collector: collector}
	client := quic.NewClient(config)
	client.SetHandler(handler)
	client.SetLogger(verbosity, os.Stdout)
	if err := client.ListenAndServe(clientListen); err != nil {
		return err
	}
	handler.wg.Add(1)
	conn, err := client.Connect(addr)
	if err != nil {
		return err
	}
	metrics.ConnDialed()
	if collector != nil {
		collector.Add(conn)
	}
	handler.wg.Wait()
	return client.Close()
}

type clientHandler struct {
	wg        sync.WaitGroup
	data      string
	collector *metrics.ConnCollector
	opened    bool
}

func (h *clientHandler) Serve(c *quic.Conn, events []transport.Event) {
	for _, e := range events {
		log.Printf("%s connection event: %v", c.RemoteAddr(), e.Kind)
		switch e.Kind {
		case transport.EventHandshakeComplete:
			if h.opened {
				continue
			}
			h.opened = true
			st, err := c.OpenStream(true)
			if err != nil {
				log.Printf("open stream: %v", err)
				continue
			}
			if _, err := st.Write([]byte(h.data)); err != nil {
				log.Printf("write stream: %v", err)
			}
			_ = st.Close()
		case transport.EventStreamReadable:
			st, ok := c.Stream(e.StreamID)
			if !ok {
				continue
			}
			buf := make([]byte, 4096)
			n, _ := st.Read(buf)
			log.Printf("stream %d received:\n%s", e.StreamID, buf[:n])
		case transport.EventConnClosed:
			metrics.ConnClosed(c.IsEstablished())
			if h.collector != nil {
				h.collector.Remove(c)
			}
			h.wg.Done()
		}
	}
}

func hostOf(s string) string {
	colon := strings.LastIndex(s, ":")
	if colon > 0 {
		bracket := strings.LastIndex(s, "]")
		if colon > bracket {
			return s[:colon]
		}
	}
	return s
}
