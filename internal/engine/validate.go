package engine

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"modelbase-backend/internal/catalog"
)

// ruleCache holds compiled validation programs keyed by attribute id and
// source, so renegotiating the same rule on every write is free.
type ruleCache struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func newRuleCache() *ruleCache {
	return &ruleCache{programs: make(map[string]*vm.Program)}
}

func (rc *ruleCache) get(key string) *vm.Program {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.programs[key]
}

func (rc *ruleCache) put(key string, p *vm.Program) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.programs[key] = p
}

// ValidateValue evaluates an attribute's validation expression against the
// coerced value. The expression sees `value` (typed) and `record` (the full
// incoming value set) and must yield a boolean.
func (rc *ruleCache) ValidateValue(attr *catalog.Attribute, value any, record map[string]any) *ErrorDetail {
	if attr.Validation == "" {
		return nil
	}

	key := attr.ID + "\x00" + attr.Validation
	program := rc.get(key)
	if program == nil {
		var err error
		program, err = expr.Compile(attr.Validation, expr.AllowUndefinedVariables())
		if err != nil {
			return &ErrorDetail{
				Field:   attr.Name,
				Rule:    "validation",
				Message: fmt.Sprintf("invalid validation expression: %v", err),
			}
		}
		rc.put(key, program)
	}

	env := map[string]any{
		"value":  value,
		"record": record,
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return &ErrorDetail{
			Field:   attr.Name,
			Rule:    "validation",
			Message: fmt.Sprintf("validation error: %v", err),
		}
	}

	ok, isBool := out.(bool)
	if !isBool {
		return &ErrorDetail{
			Field:   attr.Name,
			Rule:    "validation",
			Message: "validation expression must return a boolean",
		}
	}
	if !ok {
		return &ErrorDetail{
			Field:   attr.Name,
			Rule:    "validation",
			Message: fmt.Sprintf("value for %s failed validation", attr.Name),
		}
	}
	return nil
}
