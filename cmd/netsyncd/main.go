package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liangmanlin/netsync/console"
	"github.com/liangmanlin/netsync/kernel"
	"github.com/liangmanlin/netsync/metrics"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "netsyncd",
		Short:         "Networked object replication server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd(), consoleCmd(), versionCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var config, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the replication server",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(config)
			if err != nil {
				return err
			}
			if addr != "" {
				env.Gate.Addr = addr
			}
			s, err := newServer(env, metrics.New(nil))
			if err != nil {
				return err
			}
			if err = s.start(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			kernel.Logger().Info().Str("gate", s.gate.Addr()).Str("version", version).Msg("netsyncd started")
			s.run(ctx)
			return nil
		},
	}
	cmd.Flags().StringVarP(&config, "config", "c", "", "yaml config file")
	cmd.Flags().StringVar(&addr, "addr", "", "gate listen address, overrides the config")
	return cmd
}

func loadEnv(path string) (*kernel.EnvConfig, error) {
	if path == "" {
		env := kernel.DefaultEnv()
		kernel.Apply(env)
		return env, nil
	}
	return kernel.LoadEnv(path)
}

func consoleCmd() *cobra.Command {
	var addr, command string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Open the debug console of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			kernel.Env.WriteLogStd = false
			c, err := console.Dial(addr)
			if err != nil {
				return err
			}
			defer c.Close()
			// 脱离交互界面直接执行
			if command != "" {
				rs, err := c.Call(command)
				if err != nil {
					return err
				}
				fmt.Println(rs.Command)
				return nil
			}
			return console.RunShell(c, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", kernel.DefaultEnv().ConsoleAddr, "console address of the server")
	cmd.Flags().StringVar(&command, "cmd", "", "run one command and exit")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}
