// Package tls serves the API over HTTPS with certificates managed by
// CertMagic and DNS-01 challenges solved through Azure DNS.
package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/libdns/azure"

	"github.com/jobrunner/regiond/internal/config"
)

// Server wraps an HTTP server with automatic TLS. With TLS disabled it
// serves plain HTTP.
type Server struct {
	config    config.TLSConfig
	server    *http.Server
	logger    *slog.Logger
	tlsConfig *tls.Config
}

// NewServer creates a server for handler using the listener settings of srv.
func NewServer(cfg config.TLSConfig, srv config.ServerConfig, handler http.Handler, logger *slog.Logger) (*Server, error) {
	s := &Server{
		config: cfg,
		logger: logger,
		server: &http.Server{
			Addr:              srv.Address(),
			Handler:           handler,
			ReadTimeout:       srv.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      srv.WriteTimeout,
		},
	}
	if !cfg.Enabled {
		return s, nil
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = cfg.Email
	if cfg.Staging {
		certmagic.DefaultACME.CA = certmagic.LetsEncryptStagingCA
	}
	if cfg.CacheDir != "" {
		certmagic.Default.Storage = &certmagic.FileStorage{Path: cfg.CacheDir}
	}
	certmagic.DefaultACME.DNS01Solver = dnsSolver(cfg.DNS)

	tlsConfig, err := certmagic.TLS(cfg.Domains)
	if err != nil {
		return nil, fmt.Errorf("configuring TLS: %w", err)
	}
	s.tlsConfig = tlsConfig
	s.server.TLSConfig = tlsConfig

	return s, nil
}

func validate(cfg config.TLSConfig) error {
	if len(cfg.Domains) == 0 {
		return errors.New("TLS enabled but no domains specified")
	}
	if cfg.Email == "" {
		return errors.New("TLS enabled but no email specified")
	}
	return nil
}

// dnsSolver builds the DNS-01 solver. An empty client id selects the
// system assigned managed identity.
func dnsSolver(cfg config.TLSDNSConfig) *certmagic.DNS01Solver {
	return &certmagic.DNS01Solver{
		DNSManager: certmagic.DNSManager{
			DNSProvider: &azure.Provider{
				SubscriptionId:    cfg.SubscriptionID,
				ResourceGroupName: cfg.ResourceGroupName,
				ClientId:          cfg.ClientID,
			},
		},
	}
}

// ListenAndServe serves until Shutdown. It returns nil after a graceful
// shutdown.
func (s *Server) ListenAndServe() error {
	var err error
	if s.config.Enabled {
		s.logger.Info("starting HTTPS server",
			"address", s.server.Addr,
			"domains", s.config.Domains,
		)
		err = s.server.ListenAndServeTLS("", "")
	} else {
		s.logger.Info("starting HTTP server (TLS disabled)", "address", s.server.Addr)
		err = s.server.ListenAndServe()
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// TLSConfig returns the TLS configuration, nil when TLS is disabled.
func (s *Server) TLSConfig() *tls.Config {
	return s.tlsConfig
}

// ManageCertificates obtains certificates for the configured domains before
// the listener starts.
func (s *Server) ManageCertificates(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}

	s.logger.Info("obtaining certificates", "domains", s.config.Domains)
	if err := certmagic.ManageSync(ctx, s.config.Domains); err != nil {
		return fmt.Errorf("managing certificates: %w", err)
	}
	s.logger.Info("certificates obtained")
	return nil
}
