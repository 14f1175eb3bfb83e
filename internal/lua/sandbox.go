package lua

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// ErrEmptyExpression is returned when nothing evaluable survives sanitizing.
var ErrEmptyExpression = errors.New("empty expression")

var unsafeChars = regexp.MustCompile(`[^0-9+\-*/().\s]`)

// Sandbox evaluates arithmetic expressions in a Lua state with no libraries
// loaded. Each evaluation gets a fresh state.
type Sandbox struct {
	// CallStackSize bounds nesting depth of parenthesized expressions.
	CallStackSize int
}

func NewSandbox() *Sandbox {
	return &Sandbox{CallStackSize: 64}
}

// Sanitize keeps only digits, arithmetic operators, parentheses, dots and
// whitespace.
func Sanitize(expression string) string {
	return strings.TrimSpace(unsafeChars.ReplaceAllString(expression, ""))
}

// Eval sanitizes expression and evaluates it to a number.
func (s *Sandbox) Eval(ctx context.Context, expression string) (float64, error) {
	expr := Sanitize(expression)
	if expr == "" {
		return 0, ErrEmptyExpression
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: s.CallStackSize,
	})
	defer L.Close()
	L.SetContext(ctx)

	openSafeLibs(L)

	if err := L.DoString("return (" + expr + ")"); err != nil {
		return 0, fmt.Errorf("invalid calculation %q: %w", expression, err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("invalid calculation %q: result is %s", expression, ret.Type())
	}

	v := float64(n)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("invalid calculation %q: result is not finite", expression)
	}
	return v, nil
}

// openSafeLibs loads the base library only and strips everything that could
// reach outside the state.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	for _, name := range []string{"loadfile", "dofile", "load", "loadstring", "print", "require", "collectgarbage"} {
		L.SetGlobal(name, lua.LNil)
	}
}
