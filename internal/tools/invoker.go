package tools

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/normalize"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/tracing"
)

// ErrUnknownTool is reported when a call names an unregistered tool.
var ErrUnknownTool = errors.New("unknown tool")

// Status is the outcome of a tool call.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// CallRequest is one tool invocation attempt as emitted by the model.
type CallRequest struct {
	ID           string
	Tool         string
	RawArguments map[string]any
}

// CallResult is the outcome of an invocation. It is always returned as
// data; the invoker never surfaces a Go error to its caller.
type CallResult struct {
	CallID      string
	Tool        string
	Status      Status
	Payload     string
	Diagnostics string
	Arguments   map[string]any
	Duration    time.Duration
}

// OK reports whether the call succeeded.
func (r CallResult) OK() bool { return r.Status == StatusOK }

// Text renders the result for feeding back to a model.
func (r CallResult) Text() string {
	if r.OK() {
		return r.Payload
	}
	return "Error: " + r.Diagnostics
}

// Invoker runs tool calls through normalization, signature filtering, a
// per-call timeout and panic recovery.
type Invoker struct {
	registry *Registry
	timeout  time.Duration
	logger   *logging.Logger
}

// NewInvoker creates an invoker over a registry. A zero timeout disables
// the per-call deadline.
func NewInvoker(reg *Registry, timeout time.Duration) *Invoker {
	return &Invoker{
		registry: reg,
		timeout:  timeout,
		logger:   logging.New().WithComponent("invoker"),
	}
}

// Registry returns the invoker's registry.
func (i *Invoker) Registry() *Registry { return i.registry }

// Invoke executes one call.
func (i *Invoker) Invoke(ctx context.Context, req CallRequest) (result CallResult) {
	start := time.Now()
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	result = CallResult{CallID: req.ID, Tool: req.Tool}

	ctx, span := tracing.Start(ctx, "tool."+req.Tool, attribute.String("tool.call_id", req.ID))
	defer func() {
		result.Duration = time.Since(start)
		var err error
		if !result.OK() {
			err = errors.New(result.Diagnostics)
		}
		tracing.End(span, err, attribute.String("tool.status", string(result.Status)))
		i.logger.ToolResult(req.Tool, result.Duration, err)
	}()

	tool := i.registry.Get(req.Tool)
	if tool == nil {
		result.Status = StatusError
		result.Diagnostics = fmt.Sprintf("%v: %s", ErrUnknownTool, req.Tool)
		return result
	}

	args := FilterAccepted(tool, normalize.Normalize(req.RawArguments, tool.Parameters()))
	result.Arguments = args

	payload, err := i.call(ctx, tool, args)
	if err != nil {
		result.Status = StatusError
		result.Diagnostics = err.Error()
		return result
	}
	result.Status = StatusOK
	result.Payload = payload
	return result
}

func (i *Invoker) call(ctx context.Context, tool Tool, args map[string]any) (payload string, err error) {
	if i.timeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > i.timeout {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, i.timeout)
			defer cancel()
		}
	}

	type outcome struct {
		payload string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				i.logger.Error("tool panicked", map[string]interface{}{
					"tool":  tool.Name(),
					"panic": fmt.Sprint(r),
					"stack": string(debug.Stack()),
				})
				done <- outcome{err: fmt.Errorf("tool %s panicked: %v", tool.Name(), r)}
			}
		}()
		p, e := tool.Execute(ctx, args)
		done <- outcome{payload: p, err: e}
	}()

	select {
	case o := <-done:
		return o.payload, o.err
	case <-ctx.Done():
		return "", fmt.Errorf("tool %s: %w", tool.Name(), ctx.Err())
	}
}

// FilterAccepted drops argument keys the tool's callable does not accept.
func FilterAccepted(tool Tool, args map[string]any) map[string]any {
	sig, ok := tool.(Signature)
	if !ok {
		return args
	}
	accepted := sig.Accepts()
	if accepted == nil {
		return args
	}
	keep := make(map[string]struct{}, len(accepted))
	for _, k := range accepted {
		keep[k] = struct{}{}
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if _, ok := keep[k]; ok {
			out[k] = v
		}
	}
	return out
}
