package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/loykin/apireplay/internal/common"
	"github.com/loykin/apireplay/internal/httpc"
	"github.com/loykin/apireplay/internal/retry"
	"github.com/loykin/apireplay/internal/script"
	"github.com/loykin/apireplay/internal/sink"
	"github.com/loykin/apireplay/pkg/env"
)

// Session is one virtual user. It is not safe for concurrent use: a worker
// runs its iterations one after another on the same session, keeping its
// cookies and auth values between them.
type Session struct {
	engine    *Engine
	worker    int
	base      *env.Env
	client    *resty.Client
	logger    *common.Logger
	iteration int
}

// Worker returns the session's worker index.
func (s *Session) Worker() int { return s.worker }

// RunIteration executes every page of sc in order and returns the result.
// Cancelling ctx stops the iteration before its next step or during a wait;
// a request already in flight runs to completion or Config.Timeout.
func (s *Session) RunIteration(ctx context.Context, sc *script.Script) *IterationResult {
	res := &IterationResult{Worker: s.worker, Iteration: s.iteration, State: NotStarted}
	s.iteration++

	res.Start = time.Now()
	defer func() {
		res.Elapsed = time.Since(res.Start)
		s.report(res)
	}()

	if sc == nil || !sc.Compiled() {
		res.State = Aborted
		res.Err = errors.New("replay: script is not compiled")
		return res
	}

	it := s.iterationEnv(sc, res.Iteration)
	defer func() { res.Tokens = snapshot(it) }()

	follow := s.engine.cfg.FollowRedirects
	if sc.FollowRedirects != nil {
		follow = *sc.FollowRedirects
	}
	sample := sc.SampleRequest()

	res.State = Running
	for _, page := range sc.Pages {
		for _, step := range page.Steps {
			if err := ctx.Err(); err != nil {
				res.State = Cancelled
				res.Err = err
				return res
			}
			if step.IsWait() {
				if !wait(ctx, step.Wait.Duration) {
					res.State = Cancelled
					res.Err = ctx.Err()
					return res
				}
				res.Steps++
				continue
			}

			req := step.Request
			logger := s.logger.WithStep(req.ID, req.Label)
			sr, err := s.execute(ctx, it, req, follow, res.Iteration)
			if err != nil {
				logger.Error("iteration aborted before request was sent", "error", err)
				res.State = Aborted
				res.Err = &StepError{TestID: req.ID, Label: req.Label, Err: err}
				return res
			}
			res.Steps++
			res.Requests++
			if req == sample {
				res.Sample = sr
			}

			if sr.Status > 0 {
				missing, cerr := capture(it, req, sr)
				if cerr != nil {
					logger.Warn("capture failed", "error", cerr)
				}
				if len(missing) > 0 {
					logger.Debug("capture found no value", "tokens", missing)
				}
			}

			if !sr.OK() {
				if s.engine.isFatal(req) {
					logger.WithRequest(sr.Method, sr.URL).Error("fatal step failed", "status", sr.Status, "error", sr.Err)
					res.State = Aborted
					res.Err = &StepError{TestID: req.ID, Label: req.Label, Err: sr.Err}
					return res
				}
				res.Failures++
				logger.Debug("step failed", "status", sr.Status, "error", sr.Err)
			}
		}
	}
	res.State = Completed
	return res
}

// iterationEnv layers engine globals over script constants and adds the
// worker's auth values. Tokens bound during the iteration live only here.
func (s *Session) iterationEnv(sc *script.Script, iteration int) *env.Env {
	it := s.base.Clone()
	for k, v := range sc.Env {
		if _, ok := it.Global[k]; !ok {
			it.Global[k] = env.Str(v)
		}
	}
	it.Global["iteration"] = env.Str(fmt.Sprint(iteration))
	return it
}

func snapshot(it *env.Env) map[string]string {
	out := make(map[string]string, len(it.Local))
	for _, k := range it.Tokens() {
		if v, ok := it.Local[k]; ok && v != nil {
			out[k] = v.String()
		}
	}
	return out
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type preparedRequest struct {
	method string
	url    string
	header http.Header
	body   []byte
}

// prepare applies the step's bindings and substitutes tokens. Any error here
// means no request can be sent.
func (s *Session) prepare(it *env.Env, req *script.RequestSpec) (*preparedRequest, error) {
	for _, b := range req.Tokens {
		v, err := it.RenderGoTemplateErr(b.Value)
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", b.Name, err)
		}
		if err := it.Bind(b.Name, v); err != nil {
			return nil, err
		}
	}

	target, err := it.RenderGoTemplateErr(req.URLTemplate())
	if err != nil {
		return nil, err
	}
	if len(req.Queries) > 0 {
		var qs []string
		for _, q := range req.Queries {
			v, err := it.RenderGoTemplateErr(q.Value)
			if err != nil {
				return nil, err
			}
			qs = append(qs, url.QueryEscape(q.Name)+"="+url.QueryEscape(v))
		}
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + strings.Join(qs, "&")
	}
	if u, err := url.Parse(target); err != nil || u.Host == "" {
		return nil, fmt.Errorf("rendered url %q is not absolute", target)
	}

	header := make(http.Header, len(req.EffectiveHeaders()))
	for _, h := range req.EffectiveHeaders() {
		v, err := it.RenderGoTemplateErr(h.Value)
		if err != nil {
			return nil, err
		}
		header.Add(h.Name, v)
	}

	var body []byte
	if req.HasBody() {
		body = req.BodyBytes()
		if req.ShouldRenderBody(s.engine.cfg.renderBody()) && env.HasTemplate(string(body)) {
			rendered, err := it.RenderGoTemplateErr(string(body))
			if err != nil {
				return nil, err
			}
			body = []byte(rendered)
		}
	}
	return &preparedRequest{method: req.Method, url: target, header: header, body: body}, nil
}

// execute prepares req, sends it (retrying a network or timeout failure at
// most once) and records the final attempt. The returned error is set only
// when the request could not be built.
func (s *Session) execute(ctx context.Context, it *env.Env, req *script.RequestSpec, follow bool, iteration int) (*StepResult, error) {
	p, err := s.prepare(it, req)
	if err != nil {
		return nil, err
	}

	var sr *StepResult
	attempts, _ := retry.Do(ctx, s.engine.retry, func(int) error {
		sr = s.send(ctx, req, p, follow)
		return sr.Err
	})
	sr.Attempts = attempts

	m := sink.Measurement{
		Worker:     s.worker,
		Iteration:  iteration,
		TestID:     req.ID,
		Label:      req.Label,
		Method:     p.method,
		URL:        p.url,
		Start:      sr.Start,
		Elapsed:    sr.Elapsed,
		Status:     sr.Status,
		Bytes:      sr.Bytes,
		Attempts:   sr.Attempts,
		OK:         sr.OK(),
		ErrorClass: errorClass(sr.Err),
	}
	if sr.Err != nil {
		m.Error = sr.Err.Error()
	}
	s.engine.cfg.Sink.Record(m)
	return sr, nil
}

func (s *Session) send(ctx context.Context, req *script.RequestSpec, p *preparedRequest, follow bool) *StepResult {
	timeout := s.engine.cfg.Timeout
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	callCtx = httpc.WithExactHeaders(callCtx, p.header)
	callCtx = httpc.WithFollowRedirects(callCtx, follow)

	sr := &StepResult{TestID: req.ID, Label: req.Label, Method: p.method, URL: p.url, Start: time.Now()}
	r := s.client.R().SetContext(callCtx).SetDoNotParseResponse(true)
	if p.body != nil {
		r.SetBody(p.body)
	}
	logger := s.logger.WithStep(req.ID, req.Label).WithRequest(p.method, p.url)
	resp, err := r.Execute(p.method, p.url)
	if err != nil {
		sr.Elapsed = time.Since(sr.Start)
		sr.Err = classifyTransport(callCtx, p.method, p.url, timeout, err)
		logger.Debug("request failed", "elapsed", sr.Elapsed, "error", sr.Err)
		return sr
	}

	raw := resp.RawBody()
	wire, rerr := io.ReadAll(raw)
	_ = raw.Close()
	sr.Elapsed = time.Since(sr.Start)
	sr.Status = resp.StatusCode()
	sr.Header = resp.Header()
	sr.Bytes = int64(len(wire))
	if rerr != nil {
		sr.Err = classifyTransport(callCtx, p.method, p.url, timeout, rerr)
		return sr
	}

	body, derr := decodeBody(sr.Header.Get("Content-Encoding"), wire)
	if derr != nil {
		logger.Debug("response body kept encoded", "error", derr)
	}
	sr.Body = body

	if !req.Accepts(sr.Status) {
		sr.Err = &UnexpectedStatusError{Status: sr.Status, Accepted: req.Expect}
	}
	logger.Debug("response received", "status", sr.Status, "bytes", sr.Bytes, "elapsed", sr.Elapsed)
	return sr
}

func (s *Session) report(res *IterationResult) {
	it := sink.Iteration{
		Worker:    res.Worker,
		Iteration: res.Iteration,
		State:     res.State.String(),
		Start:     res.Start,
		Elapsed:   res.Elapsed,
		Steps:     res.Steps,
		Requests:  res.Requests,
		Failures:  res.Failures,
	}
	if res.Err != nil {
		it.Error = res.Err.Error()
	}
	sink.RecordIteration(s.engine.cfg.Sink, it)
}
