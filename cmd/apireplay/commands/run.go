package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/apireplay/cmd/apireplay/config"
	"github.com/loykin/apireplay/internal/auth"
	"github.com/loykin/apireplay/internal/common"
	"github.com/loykin/apireplay/internal/monitor"
	"github.com/loykin/apireplay/internal/replay"
	"github.com/loykin/apireplay/internal/runner"
	"github.com/loykin/apireplay/internal/script"
	"github.com/loykin/apireplay/pkg/env"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ExitCodeError ends the process with Code without being logged as a
// failure of the command itself.
type ExitCodeError struct {
	Code   int
	Reason string
}

func (e *ExitCodeError) Error() string { return e.Reason }

var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay a session script with concurrent virtual users",
	Long: `Replay a session script with K concurrent workers over an iteration count
or a duration. The command blocks until the run completes or SIGINT/SIGTERM
is received, then prints per-step statistics. The exit status is 1 when any
iteration was aborted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runReplay(ctx, cmd, viper.GetViper())
	},
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runReplay(ctx context.Context, cmd *cobra.Command, v *viper.Viper) error {
	doc, err := loadConfig(v)
	if err != nil {
		return err
	}
	base, err := doc.SetupLogging()
	if err != nil {
		return err
	}
	logger := base.WithComponent("run")

	sc, err := loadScript(doc)
	if err != nil {
		return err
	}
	globals := doc.GetEnv()
	for _, issue := range sc.CheckTokens(tokenNames(globals), doc.AuthNames()) {
		logger.Warn("token check", "issue", issue.String())
	}

	auths, err := doc.AuthEntries()
	if err != nil {
		return err
	}

	if err := doWait(ctx, doc.Wait, doc.Client, waitEnv(globals)); err != nil {
		return err
	}

	sinks, err := buildSinks(ctx, doc, base)
	if err != nil {
		return err
	}

	engine, err := replay.New(replayConfig(doc, globals, auths, sinks, base))
	if err != nil {
		_ = sinks.close(ctx, nil)
		return err
	}
	defer engine.Close()

	r, err := runner.New(engine, sc, sinks.Tally, runner.Config{
		Workers:    doc.Run.Workers,
		Iterations: doc.Run.Iterations,
		Duration:   doc.Run.Duration,
		RampUp:     doc.Run.RampUp,
		Logger:     base,
	})
	if err != nil {
		_ = sinks.close(ctx, nil)
		return err
	}

	var mon *monitor.Server
	if doc.Monitor.Addr != "" {
		mon = monitor.New(monitor.Options{
			Addr:      doc.Monitor.Addr,
			JWTSecret: doc.Monitor.JWTSecret,
			Gatherer:  sinks.Registry,
			Progress:  r.Progress,
			Steps:     sinks.Tally.Steps,
			Logger:    base,
		})
		if err := mon.Start(); err != nil {
			_ = sinks.close(ctx, nil)
			return fmt.Errorf("monitor: %w", err)
		}
	}

	rep, err := r.Run(ctx)
	if err != nil {
		_ = sinks.close(ctx, nil)
		return err
	}

	if mon != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		_ = mon.Shutdown(sctx)
		cancel()
	}
	if err := sinks.close(ctx, rep); err != nil {
		logger.Error("closing sinks", "error", err)
	}
	if n := sinks.dropped(); n > 0 {
		logger.Warn("measurements not persisted", "count", n, "run_id", sinks.RunID)
	}

	out := cmd.OutOrStdout()
	rep.Print(out)
	if sinks.RunID != "" {
		fmt.Fprintf(out, "run id: %s\n", sinks.RunID)
	}
	if code := rep.ExitCode(); code != 0 {
		return &ExitCodeError{Code: code, Reason: fmt.Sprintf("%d iteration(s) aborted", rep.Aborted)}
	}
	return nil
}

func loadScript(doc *config.ConfigDoc) (*script.Script, error) {
	path := doc.ScriptPath()
	if path == "" {
		return nil, errors.New("no script given (use --script or script: in the config)")
	}
	return script.Load(path)
}

func replayConfig(doc *config.ConfigDoc, globals map[string]string, auths []auth.Auth, sinks *runSinks, logger *common.Logger) replay.Config {
	return replay.Config{
		Timeout:             doc.Client.Timeout,
		FollowRedirects:     doc.Client.FollowRedirects,
		TLS:                 doc.Client.TLS(),
		Proxy:               doc.Client.Proxy,
		MaxIdleConnsPerHost: doc.Client.MaxIdleConnsPerHost,
		Retry:               replay.RetryConfig{Enabled: doc.Run.Retry, Delay: doc.Run.RetryDelay},
		FailFast:            doc.Run.FailFast,
		FatalSteps:          doc.Run.FatalSteps,
		RenderBody:          doc.RenderBody,
		Sink:                sinks.Sink(),
		Env:                 globals,
		Auth:                auths,
		Logger:              logger,
	}
}

// tokenNames lists what the engine binds before the first step: the config
// env plus the per-worker globals.
func tokenNames(globals map[string]string) []string {
	names := []string{"worker", "iteration"}
	for k := range globals {
		names = append(names, k)
	}
	return names
}

func waitEnv(globals map[string]string) *env.Env {
	e := env.New()
	e.Global = env.FromStringMap(globals)
	return e
}
