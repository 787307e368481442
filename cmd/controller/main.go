// Command controller is the framework's entrypoint (spec.md §6): it reads
// environment configuration, constructs the Cluster API Gateway, registers
// the bundled reference plugin, and runs the Controller's main loop until
// SIGINT/SIGTERM.
//
// Grounded on the teacher's cmd/main.go bootstrap shape (getEnv/getEnvInt
// helpers, signal.Notify(SIGINT, SIGTERM) graceful-shutdown pattern), with
// the HTTP-server/gin-router/database-pool bootstrap it also does dropped:
// this framework has no HTTP surface, spec.md §10.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/travisghansen/kubernetes-controller-go/internal/controller"
	"github.com/travisghansen/kubernetes-controller-go/internal/gateway"
	"github.com/travisghansen/kubernetes-controller-go/internal/logx"
	"github.com/travisghansen/kubernetes-controller-go/plugins/echoguard"
)

func main() {
	logLevel := getEnv("LOG_LEVEL", "info")
	logPretty := getEnv("LOG_PRETTY", "false") == "true"
	logx.Initialize(logLevel, logPretty)
	log := logx.Component("main")

	opts := controller.Options{
		ControllerID:         getEnv("CONTROLLER_ID", ""),
		ConfigMapNamespace:   getEnv("CONFIG_NAMESPACE", "kube-system"),
		ConfigMapName:        getEnv("CONFIG_NAME", "controller-config"),
		StoreEnabled:         getEnv("STORE_ENABLED", "true") == "true",
		StoreNamespace:       getEnv("STORE_NAMESPACE", "kube-system"),
		StoreName:            getEnv("STORE_NAME", "controller-store"),
		FailedActionWaitTime: time.Duration(getEnvInt("FAILED_ACTION_WAIT_SECONDS", 30)) * time.Second,
	}

	gw, err := gateway.NewClient()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build cluster API gateway")
	}

	ctl := controller.New(gw, opts)

	if err := ctl.RegisterPlugin(echoguard.Descriptor()); err != nil {
		log.Fatal().Err(err).Msg("failed to register echoguard plugin")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal, stopping controller")
		cancel()
	}()

	if err := ctl.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("controller exited with error")
	}

	log.Info().Msg("controller stopped cleanly")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
