//go:build botguard

package botguard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/ytget/streamproxy/internal/filesystem"
)

// Available reports whether this build can run solver scripts.
const Available = true

// entryPoint is the global a solver script must define. It receives the
// Input as a plain object and returns either the token string or
// {token, ttlSeconds}.
const entryPoint = "bgAttest"

type scriptSolver struct {
	path string
}

// NewSolver returns a Solver running the script at path, or nil when path
// is empty.
func NewSolver(path string) Solver {
	if path == "" {
		return nil
	}
	return &scriptSolver{path: path}
}

func (s *scriptSolver) Attest(ctx context.Context, in Input) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	src, err := filesystem.API().ReadFile(s.path)
	if err != nil {
		return Output{}, fmt.Errorf("botguard: read %s: %w", s.path, err)
	}

	rt := goja.New()
	_ = rt.Set("console", map[string]any{"log": func(...any) {}})

	stop := context.AfterFunc(ctx, func() { rt.Interrupt(ctx.Err()) })
	defer stop()

	if _, err := rt.RunScript(s.path, string(src)); err != nil {
		return Output{}, fmt.Errorf("botguard: load %s: %w", s.path, err)
	}
	attest, ok := goja.AssertFunction(rt.Get(entryPoint))
	if !ok {
		return Output{}, fmt.Errorf("botguard: %s does not define %s", s.path, entryPoint)
	}

	arg, err := inputValue(rt, in)
	if err != nil {
		return Output{}, err
	}
	res, err := attest(goja.Undefined(), arg)
	if err != nil {
		return Output{}, fmt.Errorf("botguard: %s: %w", entryPoint, err)
	}
	return outputOf(rt, res)
}

// inputValue hands the script a plain object rather than a wrapped Go struct.
func inputValue(rt *goja.Runtime, in Input) (goja.Value, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return rt.ToValue(obj), nil
}

func outputOf(rt *goja.Runtime, res goja.Value) (Output, error) {
	if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
		return Output{}, fmt.Errorf("botguard: %s returned nothing", entryPoint)
	}
	if token, ok := res.Export().(string); ok {
		return Output{Token: token}, nil
	}

	obj := res.ToObject(rt)
	var out Output
	if v := obj.Get("token"); present(v) {
		out.Token = v.String()
	}
	if v := obj.Get("ttlSeconds"); present(v) {
		if ttl := v.ToInteger(); ttl > 0 {
			out.ExpiresAt = time.Now().Add(time.Duration(ttl) * time.Second)
		}
	}
	if out.Token == "" {
		return Output{}, fmt.Errorf("botguard: %s returned no token", entryPoint)
	}
	return out, nil
}

func present(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}
