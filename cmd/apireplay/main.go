package main

import (
	"errors"
	"strings"

	"github.com/loykin/apireplay/cmd/apireplay/commands"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "apireplay",
	Short:         "Replay recorded HTTP sessions as load",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	v := viper.GetViper()
	v.SetDefault(commands.KeyConfig, "")

	// Environment variables: APIREPLAY_CONFIG, APIREPLAY_WORKERS, APIREPLAY_RAMP_UP, ...
	v.SetEnvPrefix("APIREPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "path to a config yaml (like examples/bing/config.yaml)")
	pf.String("script", "", "session script yaml; overrides script: in the config")
	pf.Bool("no-store", false, "do not open the run store")
	pf.String("log-level", "", "error, warn, info or debug")

	rf := commands.RunCmd.Flags()
	rf.Int("workers", 0, "number of concurrent virtual users")
	rf.Int("iterations", 0, "iterations per worker (0 with --duration runs until the deadline)")
	rf.Duration("duration", 0, "stop starting iterations after this long")
	rf.Duration("ramp-up", 0, "spread worker start times over this period")
	rf.Bool("fail-fast", false, "abort an iteration on any failed step")
	rf.String("csv", "", "write a measurement data file")
	rf.String("monitor-addr", "", "serve /progress and /metrics on this address")

	commands.MeasurementsCmd.Flags().String("run", "", "run id as printed by 'apireplay runs'")

	bind := func(key string, cmd *cobra.Command, flag string, persistent bool) {
		fs := cmd.Flags()
		if persistent {
			fs = cmd.PersistentFlags()
		}
		_ = v.BindPFlag(key, fs.Lookup(flag))
	}
	bind(commands.KeyConfig, rootCmd, "config", true)
	bind(commands.KeyScript, rootCmd, "script", true)
	bind(commands.KeyStoreDisabled, rootCmd, "no-store", true)
	bind(commands.KeyLogLevel, rootCmd, "log-level", true)
	bind(commands.KeyWorkers, commands.RunCmd, "workers", false)
	bind(commands.KeyIterations, commands.RunCmd, "iterations", false)
	bind(commands.KeyDuration, commands.RunCmd, "duration", false)
	bind(commands.KeyRampUp, commands.RunCmd, "ramp-up", false)
	bind(commands.KeyFailFast, commands.RunCmd, "fail-fast", false)
	bind(commands.KeyCSV, commands.RunCmd, "csv", false)
	bind(commands.KeyMonitorAddr, commands.RunCmd, "monitor-addr", false)
	bind(commands.KeyRunID, commands.MeasurementsCmd, "run", false)

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ValidateCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.MeasurementsCmd)
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var ec *commands.ExitCodeError
	if errors.As(err, &ec) {
		exitHandler.LogExit(ec.Code, ec.Reason)
		return
	}
	exitHandler.LogFatalError(err, "command execution failed")
}
