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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/leadpipe"
	"github.com/blnkfinance/leadpipe/config"
	"github.com/blnkfinance/leadpipe/database"
	"github.com/blnkfinance/leadpipe/internal/notification"
)

// LeadPipeCLI represents the CLI application, encapsulating the root Cobra command.
type LeadPipeCLI struct {
	cmd *cobra.Command
}

// leadpipeInstance holds the pipeline and its configuration for the commands.
type leadpipeInstance struct {
	pipe *leadpipe.LeadPipe
	cnf  *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration file and builds the pipeline before any command runs.
func preRun(app *leadpipeInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		pipe, err := setupLeadPipe(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.pipe = pipe
		app.cnf = cnf

		return nil
	}
}

// setupLeadPipe connects to the data source and builds the pipeline on top of it.
func setupLeadPipe(cfg *config.Configuration) (*leadpipe.LeadPipe, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	pipe, err := leadpipe.NewLeadPipe(db, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating leadpipe: %v", err)
	}
	return pipe, nil
}

func NewCLI() *LeadPipeCLI {
	var configFile string
	l := &leadpipeInstance{}

	var rootCmd = &cobra.Command{
		Use:   "leadpipe",
		Short: "Raw to structured lead pipeline",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./leadpipe.json", "Configuration file for leadpipe")
	rootCmd.PersistentPreRunE = preRun(l, &configFile)

	rootCmd.AddCommand(serverCommands(l))
	rootCmd.AddCommand(workerCommands(l))
	rootCmd.AddCommand(migrateCommands(l))
	rootCmd.AddCommand(configCommands())

	return &LeadPipeCLI{cmd: rootCmd}
}

func (w LeadPipeCLI) executeCLI() {
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
