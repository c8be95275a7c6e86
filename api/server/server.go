/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/engine"
	"github.com/rulego/flowgo/utils/json"
	log "github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v3"
)

// server version.
const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "flowgo-server",
		Usage:   "Deploy flows and manage them over an HTTP API",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "flows",
				Usage:   "Folder of the flow definition documents (*.json, *.yaml)",
				Sources: cli.EnvVars("FLOWGO_FLOWS"),
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "The port to listen on",
				Value:   9090,
				Sources: cli.EnvVars("FLOWGO_PORT"),
			},
			&cli.IntFlag{
				Name:  "queue-size",
				Usage: "Capacity of each node input queue",
				Value: types.DefaultQueueSize,
			},
			&cli.StringFlag{
				Name:  "backpressure",
				Usage: "Policy on a full queue (block, drop, error)",
				Value: string(types.BackpressureBlock),
			},
			&cli.DurationFlag{
				Name:  "shutdown-timeout",
				Usage: "Maximum time a graceful stop waits for in-flight events",
				Value: types.DefaultShutdownTimeout,
			},
			&cli.StringFlag{
				Name:  "logfile",
				Usage: "Location of the logfile",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger, err := newLogger(command.String("logfile"), command.String("log-level"))
			if err != nil {
				return err
			}
			return run(ctx, command, logger)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newLogger(logfile, level string) (*log.Logger, error) {
	logger := log.New()
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(lvl)
	if logfile != "" {
		f, err := os.OpenFile(logfile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, err
		}
		logger.SetOutput(f)
		logger.SetFormatter(&log.JSONFormatter{})
	}
	return logger, nil
}

func run(ctx context.Context, command *cli.Command, logger *log.Logger) error {
	shutdownTimeout := command.Duration("shutdown-timeout")
	pool := engine.NewPool(
		types.WithLogger(logger),
		types.WithQueueSize(int(command.Int("queue-size"))),
		types.WithBackpressure(types.BackpressurePolicy(command.String("backpressure"))),
		types.WithShutdownTimeout(shutdownTimeout),
		//调试模式回调信息
		//debugMode=true 的节点会打印
		types.WithOnDebug(func(flowId string, flowType string, nodeId string, ev types.Event, port string, err error) {
			payload, _ := json.Marshal(ev.Payload)
			logger.WithFields(log.Fields{
				"flowId":   flowId,
				"flowType": flowType,
				"nodeId":   nodeId,
				"port":     port,
				"eventId":  ev.Id,
				"payload":  string(payload),
				"metadata": ev.Metadata,
			}).WithError(err).Debug("debug")
		}),
	)
	if dir := command.String("flows"); dir != "" {
		if err := pool.Load(dir); err != nil {
			logger.WithError(err).Warn("load flows")
		}
	}

	port := strconv.Itoa(int(command.Int("port")))
	server := &http.Server{Addr: ":" + port, Handler: NewRouter(pool, logger)}
	go func() {
		logger.Infof("starting server on :%s", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("ListenAndServe: ", err)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout+time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	pool.Stop()
	return nil
}
