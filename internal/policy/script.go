package policy

import (
	"fmt"
	"log/slog"

	"github.com/dop251/goja"
)

// Script evaluates a small JavaScript predicate against every detected
// Conflict, using the same goja.Runtime-per-call approach the teacher's CWL
// expression evaluator (internal/cwlexpr) uses for valueFrom/when
// expressions. The script must define a function:
//
//	function shouldFail(hash, modules) { ... return true/false; }
//
// A truthy return escalates the conflict to a fatal rebuild error; falsy
// (or a script error) logs a warning and lets the rebuild proceed, so a
// broken script degrades to WarnOnly rather than wedging the scheduler.
type Script struct {
	Source string
	Logger *slog.Logger
}

// NewScript compiles nothing eagerly (goja programs are cheap to re-run per
// call here since conflicts are rare); it just validates the source parses
// once at construction time so configuration errors surface immediately.
func NewScript(source string, logger *slog.Logger) (*Script, error) {
	vm := goja.New()
	if _, err := vm.RunString(source); err != nil {
		return nil, fmt.Errorf("compile conflict policy script: %w", err)
	}
	isFunc, err := vm.RunString("typeof shouldFail === 'function'")
	if err != nil {
		return nil, fmt.Errorf("conflict policy script: %w", err)
	}
	if !isFunc.ToBoolean() {
		return nil, fmt.Errorf("conflict policy script must define a shouldFail(hash, modules) function")
	}
	return &Script{Source: source, Logger: logger}, nil
}

func (s *Script) Decide(c Conflict) error {
	vm := goja.New()
	if _, err := vm.RunString(s.Source); err != nil {
		s.Logger.Warn("conflict policy script failed to load, defaulting to warn", "error", err)
		return WarnOnly{Logger: s.Logger}.Decide(c)
	}

	fn, ok := goja.AssertFunction(vm.Get("shouldFail"))
	if !ok {
		s.Logger.Warn("conflict policy script has no shouldFail function, defaulting to warn")
		return WarnOnly{Logger: s.Logger}.Decide(c)
	}

	modules := make([]interface{}, len(c.Modules))
	for i, m := range c.Modules {
		modules[i] = m
	}
	result, err := fn(goja.Undefined(), vm.ToValue(fmt.Sprintf("0x%016x", c.Hash)), vm.ToValue(modules))
	if err != nil {
		s.Logger.Warn("conflict policy script error, defaulting to warn", "error", err)
		return WarnOnly{Logger: s.Logger}.Decide(c)
	}

	if result.ToBoolean() {
		return AlwaysFatal{Logger: s.Logger}.Decide(c)
	}
	return WarnOnly{Logger: s.Logger}.Decide(c)
}
