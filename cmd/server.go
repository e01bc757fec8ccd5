/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/leadpipe"
	"github.com/blnkfinance/leadpipe/api"
	"github.com/blnkfinance/leadpipe/config"
	trace "github.com/blnkfinance/leadpipe/internal/traces"
)

const (
	certStoragePath        = "./certmagic"
	serverShutdownDeadline = 15 * time.Second
)

/*
newTLSServer builds an HTTPS server whose certificates are managed by CertMagic.
If no domain is specified, the certificate is issued for localhost.
*/
func newTLSServer(ctx context.Context, r *gin.Engine, conf config.ServerConfig) (*http.Server, error) {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: certStoragePath}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(ctx, domains); err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}, nil
}

func initializeTracing(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	shutdown, err := trace.SetupOTelSDK(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

func initializeObservability(ctx context.Context, cfg *config.Configuration, serviceName string) (func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return func(context.Context) error { return nil }, nil
	}
	return initializeTracing(ctx, serviceName)
}

// startServer serves router until ctx is cancelled, then drains in-flight requests.
func startServer(ctx context.Context, router *gin.Engine, cfg config.ServerConfig) error {
	var (
		server *http.Server
		err    error
	)
	if cfg.SSL {
		server, err = newTLSServer(ctx, router, cfg)
		if err != nil {
			return err
		}
	} else {
		server = &http.Server{Addr: ":" + cfg.Port, Handler: router}
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.SSL {
			log.Printf("Starting HTTPS server on %s\n", cfg.Port)
			errCh <- server.ListenAndServeTLS("", "")
			return
		}
		log.Printf("Starting server on http://localhost:%s", cfg.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownDeadline)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// startRecovery runs the stuck record sweeper when it is enabled.
func startRecovery(ctx context.Context, pipe *leadpipe.LeadPipe, cfg *config.Configuration) func() {
	if !cfg.Pipeline.Recovery.Enabled {
		return func() {}
	}
	processor := leadpipe.NewRecordRecoveryProcessor(pipe)
	processor.Start(ctx)
	return processor.Stop
}

/*
serverCommands returns the Cobra command that starts the ops API. It loads the stored
transformer descriptors into the registry before serving.
*/
func serverCommands(l *leadpipeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start leadpipe server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := l.cnf

			shutdown, err := initializeObservability(ctx, cfg, cfg.ProjectName)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			if _, err := l.pipe.LoadStoredTransformers(ctx); err != nil {
				logrus.Errorf("failed to load stored transformers, continuing with built-in ones: %v", err)
			}

			stopRecovery := startRecovery(ctx, l.pipe, cfg)

			router := api.NewAPI(l.pipe).Router()
			serveErr := startServer(ctx, router, cfg.Server)

			stopRecovery()
			if err := l.pipe.Close(); err != nil {
				logrus.Errorf("error closing leadpipe: %v", err)
			}
			if serveErr != nil {
				log.Fatal(serveErr)
			}
		},
	}

	return cmd
}
