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
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pledgebet/pledge"
	"github.com/pledgebet/pledge/config"
	"github.com/pledgebet/pledge/database"
	"github.com/pledgebet/pledge/internal/cache"
	"github.com/pledgebet/pledge/internal/notification"
	redis_db "github.com/pledgebet/pledge/internal/redis-db"
)

// Pledge represents the CLI application, encapsulating the root Cobra command.
type Pledge struct {
	cmd *cobra.Command
}

// pledgeInstance holds the service and the runtime configuration shared by
// every command.
type pledgeInstance struct {
	pledge *pledge.Pledge
	redis  redis.UniversalClient
	cnf    *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the service before any command runs.
func preRun(app *pledgeInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newPledge, client, err := setupPledge(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.pledge = newPledge
		app.redis = client
		app.cnf = cnf

		return nil
	}
}

// setupPledge connects the data source and redis, then wires the read cache
// and the asynq dispatcher into a new service.
func setupPledge(cfg *config.Configuration) (*pledge.Pledge, redis.UniversalClient, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error getting datasource: %v", err)
	}

	client, err := redis_db.NewRedisClient(cfg.Redis.Dns, cfg.Redis.SkipTLSVerify)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to redis: %v", err)
	}

	newPledge, err := pledge.NewPledge(db,
		pledge.WithRedis(client),
		pledge.WithCache(cache.NewCache(client)),
		pledge.WithDispatcher(pledge.NewQueue(client)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating pledge: %v", err)
	}
	return newPledge, client, nil
}

// NewCLI creates the command-line interface with the server, worker,
// migration, config and backup commands.
func NewCLI() *Pledge {
	var configFile string
	p := &pledgeInstance{}

	var rootCmd = &cobra.Command{
		Use:   "pledge",
		Short: "Goal commitment service",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./pledge.json", "Configuration file for pledge")
	rootCmd.PersistentPreRunE = preRun(p, &configFile)

	rootCmd.AddCommand(serverCommands(p))
	rootCmd.AddCommand(workerCommands(p))
	rootCmd.AddCommand(migrateCommands(p))
	rootCmd.AddCommand(configCommands(p))
	rootCmd.AddCommand(backupCommands(p))

	return &Pledge{cmd: rootCmd}
}

func (w Pledge) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
