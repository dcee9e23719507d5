// Package httptransport builds the HTTP server shared by the binaries.
package httptransport

import (
	"log"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// ServerConfig contains tunables for the HTTP server.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates an *http.Server whose internal errors go to logger.
func NewServer(cfg ServerConfig, handler http.Handler, logger *logrus.Entry) *http.Server {
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	if logger != nil {
		srv.ErrorLog = log.New(logger.WriterLevel(logrus.WarnLevel), "", 0)
	}
	return srv
}
