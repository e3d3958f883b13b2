/*
Copyright 2024 Pledge Authors.

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
	"fmt"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"

	"github.com/pledgebet/pledge"
	"github.com/pledgebet/pledge/config"
	redis_db "github.com/pledgebet/pledge/internal/redis-db"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

func initializeQueues(cfg config.QueueConfig) map[string]int {
	return map[string]int{
		cfg.ExpiryQueue:  4,
		cfg.SweepQueue:   1,
		cfg.WebhookQueue: 2,
	}
}

func initializeWorkerServer(p *pledgeInstance) *asynq.Server {
	return asynq.NewServerFromRedisClient(p.redis, asynq.Config{
		Concurrency:    p.cnf.Queue.Concurrency,
		Queues:         initializeQueues(p.cnf.Queue),
		RetryDelayFunc: pledge.RetryDelay,
		IsFailure:      pledge.IsFailure,
	})
}

func initializeTaskHandlers(p *pledgeInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(p.cnf.Queue.ExpiryQueue, p.pledge.ProcessExpiry)
	mux.HandleFunc(p.cnf.Queue.SweepQueue, p.pledge.ProcessSweep)
	mux.HandleFunc(p.cnf.Queue.WebhookQueue, pledge.ProcessWebhook)
}

// startScheduler registers the periodic expiry sweep and runs the scheduler
// in the background.
func startScheduler(p *pledgeInstance) (*asynq.Scheduler, error) {
	scheduler := asynq.NewSchedulerFromRedisClient(p.redis, &asynq.SchedulerOpts{})
	entryID, err := pledge.RegisterSweep(scheduler, p.cnf.Queue)
	if err != nil {
		return nil, err
	}
	logrus.WithField("entry_id", entryID).Info("expiry sweep scheduled")

	if err := scheduler.Start(); err != nil {
		return nil, err
	}
	return scheduler, nil
}

func startMonitoring(p *pledgeInstance) error {
	redisOption, err := redis_db.AsynqOpt(p.cnf.Redis.Dns, p.cnf.Redis.SkipTLSVerify)
	if err != nil {
		return err
	}
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: redisOption,
	})

	go func() {
		monitoringAddr := fmt.Sprintf(":%s", p.cnf.Queue.MonitoringPort)
		log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
		if err := http.ListenAndServe(monitoringAddr, h); err != nil {
			log.Fatalf("could not start asynqmon server: %v", err)
		}
	}()
	return nil
}

// workerCommands defines the "workers" command. Workers expire goals at
// their deadline, run the periodic sweep and deliver webhooks.
func workerCommands(p *pledgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start pledge workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			phClient, shutdown, err := initializeObservability(ctx, p.cnf)
			if err != nil {
				log.Fatal(err)
			}
			if shutdown != nil {
				defer func() {
					if err := shutdown(ctx); err != nil {
						log.Printf("Error during shutdown: %v", err)
					}
				}()
			}
			if phClient != nil {
				defer phClient.Close()
			}

			srv := initializeWorkerServer(p)

			mux := asynq.NewServeMux()
			initializeTaskHandlers(p, mux)

			scheduler, err := startScheduler(p)
			if err != nil {
				log.Fatalf("could not start scheduler: %v", err)
			}
			defer scheduler.Shutdown()

			if err := startMonitoring(p); err != nil {
				log.Printf("asynqmon disabled: %v", err)
			}

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
