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

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
	"golang.org/x/sync/errgroup"

	"github.com/blnkfinance/leadpipe"
	"github.com/blnkfinance/leadpipe/config"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

// workerPool is one queue served by its own bounded pool of goroutines.
type workerPool struct {
	queue       string
	concurrency int
	handler     asynq.HandlerFunc
}

func workerPools(l *leadpipeInstance) []workerPool {
	q := l.cnf.Queue
	return []workerPool{
		{queue: q.TransformQueue, concurrency: q.TransformConcurrency, handler: l.pipe.ProcessTransform},
		{queue: q.FingerprintQueue, concurrency: q.FingerprintConcurrency, handler: l.pipe.ProcessFingerprint},
		{queue: q.CampaignQueue, concurrency: q.CampaignConcurrency, handler: l.pipe.ProcessCampaign},
		{queue: q.WebhookQueue, concurrency: q.WebhookConcurrency, handler: leadpipe.ProcessWebhook},
	}
}

func initializeWorkerServer(redisOpt asynq.RedisClientOpt, conf *config.Configuration, pool workerPool) *asynq.Server {
	return asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     pool.concurrency,
			Queues:          map[string]int{pool.queue: 1},
			ErrorHandler:    asynq.ErrorHandlerFunc(leadpipe.HandleTaskError),
			ShutdownTimeout: time.Duration(conf.Queue.ShutdownTimeout) * time.Second,
			Logger:          logrus.StandardLogger(),
		},
	)
}

// startMonitoring serves the asynqmon UI under /monitoring on the monitoring port.
func startMonitoring(redisOpt asynq.RedisClientOpt, port string) *http.Server {
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: redisOpt,
	})

	server := &http.Server{Addr: fmt.Sprintf(":%s", port), Handler: h}
	go func() {
		log.Printf("Asynqmon server listening on %s/monitoring", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("could not start asynqmon server: %v", err)
		}
	}()
	return server
}

// shutdownWorkers stops every server in parallel; each one waits for its running
// jobs up to the configured shutdown timeout.
func shutdownWorkers(servers []*asynq.Server) {
	var g errgroup.Group
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			srv.Shutdown()
			return nil
		})
	}
	_ = g.Wait()
}

// workerCommands defines the "workers" command. Each queue gets its own asynq
// server sized by its configured concurrency.
func workerCommands(l *leadpipeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start leadpipe workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			conf := l.cnf

			shutdown, err := initializeObservability(ctx, conf, conf.ProjectName+"-workers")
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

			redisOpt, err := leadpipe.RedisConnOpt(conf)
			if err != nil {
				log.Fatal(err)
			}

			var servers []*asynq.Server
			for _, pool := range workerPools(l) {
				srv := initializeWorkerServer(redisOpt, conf, pool)
				mux := asynq.NewServeMux()
				mux.HandleFunc(pool.queue, pool.handler)
				if err := srv.Start(mux); err != nil {
					shutdownWorkers(servers)
					log.Fatalf("could not start %s workers: %v", pool.queue, err)
				}
				logrus.Infof("started %d worker(s) on queue %s", pool.concurrency, pool.queue)
				servers = append(servers, srv)
			}

			monitor := startMonitoring(redisOpt, conf.Queue.MonitoringPort)

			<-ctx.Done()
			logrus.Info("shutting down workers")

			shutdownWorkers(servers)
			if err := monitor.Close(); err != nil {
				logrus.Warnf("closing monitoring server: %v", err)
			}
			if err := l.pipe.Close(); err != nil {
				logrus.Errorf("error closing leadpipe: %v", err)
			}
		},
	}

	return cmd
}
