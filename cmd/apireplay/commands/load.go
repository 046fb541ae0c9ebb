package commands

import (
	"fmt"

	"github.com/loykin/apireplay/cmd/apireplay/config"
	"github.com/loykin/apireplay/internal/util"
	"github.com/spf13/viper"
)

// Viper keys that override the config file when set by a flag or an
// APIREPLAY_* environment variable.
const (
	KeyConfig        = "config"
	KeyScript        = "script"
	KeyWorkers       = "workers"
	KeyIterations    = "iterations"
	KeyDuration      = "duration"
	KeyRampUp        = "ramp_up"
	KeyFailFast      = "fail_fast"
	KeyCSV           = "csv"
	KeyMonitorAddr   = "monitor_addr"
	KeyStoreDisabled = "no_store"
	KeyLogLevel      = "log_level"
	KeyRunID         = "run"
)

// loadConfig reads the config file named by the "config" key, if any, and
// overlays flag and environment values on top of it.
func loadConfig(v *viper.Viper) (*config.ConfigDoc, error) {
	doc := &config.ConfigDoc{}
	if path, ok := util.TrimEmptyCheck(v.GetString(KeyConfig)); ok {
		if err := doc.Load(path); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	if v.IsSet(KeyScript) {
		doc.Script = v.GetString(KeyScript)
	}
	if v.IsSet(KeyWorkers) {
		doc.Run.Workers = v.GetInt(KeyWorkers)
	}
	if v.IsSet(KeyIterations) {
		doc.Run.Iterations = v.GetInt(KeyIterations)
	}
	if v.IsSet(KeyDuration) {
		doc.Run.Duration = v.GetDuration(KeyDuration)
	}
	if v.IsSet(KeyRampUp) {
		doc.Run.RampUp = v.GetDuration(KeyRampUp)
	}
	if v.IsSet(KeyFailFast) {
		doc.Run.FailFast = v.GetBool(KeyFailFast)
	}
	if v.IsSet(KeyCSV) {
		doc.Sinks.CSV = v.GetString(KeyCSV)
	}
	if v.IsSet(KeyMonitorAddr) {
		doc.Monitor.Addr = v.GetString(KeyMonitorAddr)
	}
	if v.IsSet(KeyStoreDisabled) {
		doc.Store.Disabled = v.GetBool(KeyStoreDisabled)
	}
	if v.IsSet(KeyLogLevel) {
		doc.Logging.Level = v.GetString(KeyLogLevel)
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}
