package main

import (
	"testing"

	"github.com/loykin/apireplay/cmd/apireplay/commands"
	"github.com/spf13/viper"
)

func TestRootCommand_Subcommands(t *testing.T) {
	want := map[string]bool{"run": false, "validate": false, "runs": false, "measurements": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestRootCommand_FlagBinding(t *testing.T) {
	if err := commands.RunCmd.Flags().Set("ramp-up", "7s"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = commands.RunCmd.Flags().Set("ramp-up", "0s") })
	if got := viper.GetDuration(commands.KeyRampUp); got.String() != "7s" {
		t.Fatalf("ramp_up = %v", got)
	}
	if !viper.IsSet(commands.KeyRampUp) {
		t.Fatal("changed flag should count as set")
	}
	if viper.IsSet(commands.KeyWorkers) {
		t.Fatal("untouched flag should not override the config file")
	}
}

type recordingExit struct {
	code   int
	reason string
}

func (r *recordingExit) Exit(code int) { r.code = code }
func (r *recordingExit) LogFatalError(err error, msg string, keyvals ...any) {
	r.reason = msg
	r.code = 1
}
func (r *recordingExit) LogExit(code int, reason string) { r.code, r.reason = code, reason }

func TestMain_CommandErrorIsFatal(t *testing.T) {
	prev := exitHandler
	rec := &recordingExit{}
	exitHandler = rec
	t.Cleanup(func() { exitHandler = prev })

	rootCmd.SetArgs([]string{"measurements", "--no-store"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	main()
	if rec.code != 1 || rec.reason != "command execution failed" {
		t.Fatalf("exit = %+v", rec)
	}
}
