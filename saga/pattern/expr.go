package pattern

import (
	"fmt"
	"reflect"

	ristretto "github.com/dgraph-io/ristretto/v2"
	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
	"github.com/on-the-ground/saga_ive_go/saga"
)

// EventVar is the name an expression refers to the event by.
const EventVar = "event"

// ProgramCache stores compiled expressions by source.
type ProgramCache interface {
	Get(src string) (*exprvm.Program, bool)
	Set(src string, program *exprvm.Program)
}

// NewProgramCache returns a ristretto backed ProgramCache holding up to
// maxPrograms compiled expressions.
func NewProgramCache(maxPrograms int64) (ProgramCache, error) {
	if maxPrograms < 1 {
		maxPrograms = 1
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *exprvm.Program]{
		NumCounters: maxPrograms * 10,
		MaxCost:     maxPrograms,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return programCache{cache: cache}, nil
}

type programCache struct {
	cache *ristretto.Cache[string, *exprvm.Program]
}

func (c programCache) Get(src string) (*exprvm.Program, bool) {
	return c.cache.Get(src)
}

func (c programCache) Set(src string, program *exprvm.Program) {
	c.cache.Set(src, program, 1)
	c.cache.Wait()
}

type ExprOption func(*exprOptions)

type exprOptions struct {
	cache ProgramCache
}

// WithProgramCache reuses programs compiled for the same source.
func WithProgramCache(cache ProgramCache) ExprOption {
	return func(o *exprOptions) { o.cache = cache }
}

// Expr compiles a boolean expr-lang expression over the event, which is
// bound to EventVar:
//
//	pred, err := pattern.Expr[Event](`event.Kind == "search" && len(event.Query) > 2`)
//
// The expression is type checked against E at compile time. An evaluation
// error at match time counts as no match.
func Expr[E any](src string, opts ...ExprOption) (saga.Predicate[E], error) {
	var o exprOptions
	for _, opt := range opts {
		opt(&o)
	}

	program, err := compile[E](src, o.cache)
	if err != nil {
		return nil, err
	}
	return func(ev E) bool {
		out, err := exprlang.Run(program, map[string]any{EventVar: ev})
		if err != nil {
			return false
		}
		matched, _ := out.(bool)
		return matched
	}, nil
}

// MustExpr is Expr for expressions known to be valid.
func MustExpr[E any](src string, opts ...ExprOption) saga.Predicate[E] {
	p, err := Expr[E](src, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func compile[E any](src string, cache ProgramCache) (*exprvm.Program, error) {
	if src == "" {
		return nil, fmt.Errorf("pattern: expression must not be empty")
	}
	// Programs are typed against E, so E is part of the key.
	key := reflect.TypeFor[E]().String() + "|" + src
	if cache != nil {
		if program, ok := cache.Get(key); ok {
			return program, nil
		}
	}
	var zero E
	program, err := exprlang.Compile(src,
		exprlang.Env(map[string]any{EventVar: zero}),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("pattern: compile %q: %w", src, err)
	}
	if cache != nil {
		cache.Set(key, program)
	}
	return program, nil
}
