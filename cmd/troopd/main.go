// Command troopd runs the collaborative live-coding relay server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"troopd/pkg/logger"
	"troopd/pkg/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		host       string
		port       int
		password   string
		authCost   int
		rateBytes  int
		rateBurst  int
		enableLog  bool
		logRoot    string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "troopd",
		Short: "Relay server for collaborative live-coding sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := loadFileConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			cfg := resolveConfig(cmd, fc, host, port, password, authCost, rateBytes, rateBurst, enableLog, logRoot, logLevel)

			logger.SetLevel(cfg.logLevel)
			logger.Info("starting troopd")

			srv, err := server.New(server.Config{
				Host:            cfg.host,
				Port:            cfg.port,
				Password:        cfg.password,
				AuthCost:        byte(cfg.authCost),
				RateBytesPerSec: cfg.rateBytes,
				RateBurst:       cfg.rateBurst,
				EnableLog:       cfg.enableLog,
				LogRoot:         cfg.logRoot,
			})
			if err != nil {
				return err
			}
			if err := srv.Listen(); err != nil {
				return err
			}
			logger.Info("bound port %d (requested %d)", srv.Port(), cfg.port)

			ctx, cancel := context.WithCancel(context.Background())
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sig
				logger.Info("shutdown signal received")
				cancel()
			}()

			go func() {
				<-ctx.Done()
				srv.Shutdown()
			}()

			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "troopd.yaml", "path to a YAML config file")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "bind address")
	cmd.Flags().IntVar(&port, "port", 57890, "first port to try; successive ports are probed on conflict")
	cmd.Flags().StringVar(&password, "password", "", "shared secret peers must present to join")
	cmd.Flags().IntVar(&authCost, "auth-cost", 8, "memory-hard auth digest cost parameter")
	cmd.Flags().IntVar(&rateBytes, "rate-bytes-per-sec", 1<<20, "per-connection inbound pacing, sustained bytes/sec")
	cmd.Flags().IntVar(&rateBurst, "rate-burst", 1<<16, "per-connection inbound pacing, burst bytes")
	cmd.Flags().BoolVar(&enableLog, "log", false, "write a per-message performance log")
	cmd.Flags().StringVar(&logRoot, "log-root", ".", "root directory for the logs/ folder")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, or error")

	return cmd
}

type resolvedConfig struct {
	host, password, logRoot, logLevel string
	port, authCost, rateBytes, rateBurst int
	enableLog                            bool
}

// resolveConfig layers configuration: built-in flag defaults, then the YAML
// file, then environment variables, then explicit flags — each layer
// overriding the one before it. Cobra flag defaults already seed the
// variables passed in, so a flag layer is "did the user set this flag"; here
// we approximate that with cmd.Flags().Changed.
func resolveConfig(cmd *cobra.Command, fc *fileConfig, host string, port int, password string, authCost, rateBytes, rateBurst int, enableLog bool, logRoot, logLevel string) resolvedConfig {
	hostP, portP, passP := &host, &port, &password
	costP, bytesP, burstP := &authCost, &rateBytes, &rateBurst
	logP, rootP, levelP := &enableLog, &logRoot, &logLevel

	if fc.Host != nil && !cmd.Flags().Changed("host") {
		hostP = fc.Host
	}
	if fc.Port != nil && !cmd.Flags().Changed("port") {
		portP = fc.Port
	}
	if fc.Password != nil && !cmd.Flags().Changed("password") {
		passP = fc.Password
	}
	if fc.AuthCost != nil && !cmd.Flags().Changed("auth-cost") {
		costP = fc.AuthCost
	}
	if fc.RateBytesPerSec != nil && !cmd.Flags().Changed("rate-bytes-per-sec") {
		bytesP = fc.RateBytesPerSec
	}
	if fc.RateBurst != nil && !cmd.Flags().Changed("rate-burst") {
		burstP = fc.RateBurst
	}
	if fc.EnableLog != nil && !cmd.Flags().Changed("log") {
		logP = fc.EnableLog
	}
	if fc.LogRoot != nil && !cmd.Flags().Changed("log-root") {
		rootP = fc.LogRoot
	}
	if fc.LogLevel != nil && !cmd.Flags().Changed("log-level") {
		levelP = fc.LogLevel
	}

	if !cmd.Flags().Changed("host") {
		hostP = envString("TROOPD_HOST", hostP)
	}
	if !cmd.Flags().Changed("port") {
		portP = envInt("TROOPD_PORT", portP)
	}
	if !cmd.Flags().Changed("password") {
		passP = envString("TROOPD_PASSWORD", passP)
	}
	if !cmd.Flags().Changed("log") {
		logP = envBool("TROOPD_LOG", logP)
	}
	if !cmd.Flags().Changed("log-level") {
		levelP = envString("TROOPD_LOG_LEVEL", levelP)
	}

	return resolvedConfig{
		host:      *hostP,
		port:      *portP,
		password:  *passP,
		authCost:  *costP,
		rateBytes: *bytesP,
		rateBurst: *burstP,
		enableLog: *logP,
		logRoot:   *rootP,
		logLevel:  *levelP,
	}
}
