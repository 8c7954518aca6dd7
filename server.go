package quic

import (
	"io"
	"net"
)

// Server accepts inbound QUIC connections on a single UDP socket.
type Server struct {
	config *Config
	engine *engine

	handler  Handler
	logLevel int
	logOut   io.Writer
}

// NewServer builds a Server from a process Config; config.TLS must
// carry a certificate (CertFile/KeyFile) before ListenAndServe is
// called.
func NewServer(config *Config) *Server {
	if config == nil {
		config = NewConfig()
	}
	return &Server{config: config}
}

// SetHandler installs the Handler invoked for every connection event.
func (s *Server) SetHandler(h Handler) {
	s.handler = h
	if s.engine != nil {
		s.engine.setHandler(h)
	}
}

// SetLogger configures the operational logrus level and output writer.
func (s *Server) SetLogger(level int, w io.Writer) {
	s.logLevel, s.logOut = level, w
	if s.engine == nil || s.engine.logger == nil {
		return
	}
	s.engine.logger.SetLevel(levelFromVerbosity(level))
	s.engine.logger.SetOutput(w)
}

// ListenAndServe binds addr and runs the accept/I-O loop until Close.
func (s *Server) ListenAndServe(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	pc, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	tc, err := s.config.TransportConfig(false)
	if err != nil {
		pc.Close()
		return err
	}
	s.engine = newEngine(pc, tc, true, s.config.Log)
	if s.handler != nil {
		s.engine.setHandler(s.handler)
	}
	if s.logOut != nil {
		s.SetLogger(s.logLevel, s.logOut)
	}
	go s.engine.run()
	return nil
}

// Close shuts down the listening socket and every connection it owns.
func (s *Server) Close() error {
	return s.engine.close()
}
