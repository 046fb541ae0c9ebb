package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/loykin/apireplay/cmd/apireplay/config"
	"github.com/loykin/apireplay/internal/common"
	"github.com/loykin/apireplay/internal/constants"
	"github.com/loykin/apireplay/internal/httpc"
	"github.com/loykin/apireplay/internal/util"
	"github.com/loykin/apireplay/pkg/env"
)

type waitParams struct {
	url      string
	method   string
	expected int
	timeout  time.Duration
	interval time.Duration
}

func parseWaitConfig(wc config.WaitConfig, e *env.Env) (waitParams, error) {
	raw, _ := util.TrimEmptyCheck(wc.URL)
	url, err := e.RenderGoTemplateErr(raw)
	if err != nil {
		return waitParams{}, fmt.Errorf("wait: %w", err)
	}
	p := waitParams{
		url:      url,
		method:   strings.ToUpper(util.TrimWithDefault(wc.Method, constants.DefaultWaitMethod)),
		expected: wc.Status,
		timeout:  wc.Timeout,
		interval: wc.Interval,
	}
	if p.expected == 0 {
		p.expected = constants.DefaultWaitStatus
	}
	if p.timeout <= 0 {
		p.timeout = constants.DefaultWaitTimeout
	}
	if p.interval <= 0 {
		p.interval = constants.DefaultWaitInterval
	}
	return p, nil
}

func checkReady(ctx context.Context, client *resty.Client, method, url string) (int, error) {
	req := client.R().SetContext(ctx)
	var (
		resp *resty.Response
		err  error
	)
	switch method {
	case "HEAD":
		resp, err = req.Head(url)
	default:
		resp, err = req.Get(url)
	}
	if resp != nil {
		return resp.StatusCode(), err
	}
	return 0, err
}

// doWait polls the readiness URL until it returns the expected status, the
// timeout elapses, or ctx is cancelled. Only GET and HEAD are sent; other
// methods fall back to GET. The URL is rendered against the global tokens.
func doWait(ctx context.Context, wc config.WaitConfig, cc config.ClientConfig, e *env.Env) error {
	if strings.TrimSpace(wc.URL) == "" {
		return nil
	}
	params, err := parseWaitConfig(wc, e)
	if err != nil {
		return err
	}
	client := httpc.New(cc.Options())
	logger := common.GetLogger().WithComponent("wait")

	deadline := time.Now().Add(params.timeout)
	var lastStatus int
	var lastErr error
	for {
		status, err := checkReady(ctx, client, params.method, params.url)
		if err == nil && status == params.expected {
			logger.Info("target ready", "url", params.url, "status", status)
			return nil
		}
		lastStatus, lastErr = status, err
		logger.Debug("target not ready", "url", params.url, "status", status, "error", err)

		if time.Now().Add(params.interval).After(deadline) {
			if lastErr != nil {
				return fmt.Errorf("wait: timeout waiting for %s to return %d: %w", params.url, params.expected, lastErr)
			}
			return fmt.Errorf("wait: timeout waiting for %s to return %d (last=%d)", params.url, params.expected, lastStatus)
		}
		t := time.NewTimer(params.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
