// Package universe resolves a scope into the list of subjects a run acts on.
package universe

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/viktsys/tt2ingest/normalize"
	"github.com/viktsys/tt2ingest/source"
)

// DefaultSource is the provenance label used when a scope names none.
const DefaultSource = "sp500"

var ErrUnknownScope = errors.New("unknown scope")

var (
	topScope   = regexp.MustCompile(`^top_(\d+)_([a-z0-9_]+)$`)
	labelScope = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// ParseScope reads a named scope: "sp500", "top_10_sp500", or a
// comma-separated symbol list such as "AAPL,MSFT". An empty name is the zero
// scope.
func ParseScope(name string) (source.Scope, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return source.Scope{}, nil
	}
	if m := topScope.FindStringSubmatch(name); m != nil {
		limit, err := strconv.Atoi(m[1])
		if err != nil || limit < 1 {
			return source.Scope{}, fmt.Errorf("%w: %q", ErrUnknownScope, name)
		}
		return source.Scope{Source: m[2], Limit: limit}, nil
	}
	if labelScope.MatchString(name) {
		return source.Scope{Source: name}, nil
	}
	if symbols := Symbols(name); len(symbols) > 0 && strings.ContainsAny(name, ",") {
		return source.Scope{Symbols: symbols}, nil
	}
	return source.Scope{}, fmt.Errorf("%w: %q", ErrUnknownScope, name)
}

// Symbols splits a comma-separated list into normalized, distinct symbols.
func Symbols(list string) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(list, ",") {
		sym := normalize.Symbol(part)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}

// AssetLister is the read side of the store the resolver needs.
type AssetLister interface {
	ActiveSymbols(ctx context.Context, sourceLabel string, limit int) ([]string, error)
}

// Resolver turns scopes into subject lists. It never writes.
type Resolver struct {
	store AssetLister
}

func NewResolver(store AssetLister) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the active symbols of the scope's provenance label, capped
// by its limit, or the scope's explicit list untouched. The zero scope reads
// DefaultSource. No match is an empty list, not an error.
func (r *Resolver) Resolve(ctx context.Context, scope source.Scope) ([]string, error) {
	if scope.Explicit() {
		return scope.Symbols, nil
	}
	label := scope.Source
	if label == "" {
		label = DefaultSource
	}
	symbols, err := r.store.ActiveSymbols(ctx, label, scope.Limit)
	if err != nil {
		return nil, fmt.Errorf("resolve scope %s: %w", scope, err)
	}
	if symbols == nil {
		symbols = []string{}
	}
	return symbols, nil
}
