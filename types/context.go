package types

import "github.com/clavoie-takt/dhall/ast"

type binding struct {
	name string
	ty   ast.Expr
}

// Context is an ordered typing context supporting shadowed names. It is
// persistent: Insert returns an extended context and leaves the receiver
// usable.
type Context struct {
	bindings []binding
}

// NewContext returns an empty typing context.
func NewContext() *Context {
	return &Context{}
}

// Insert returns a context extended with name : ty as the innermost
// binding.
func (c *Context) Insert(name string, ty ast.Expr) *Context {
	extended := make([]binding, len(c.bindings), len(c.bindings)+1)
	copy(extended, c.bindings)
	extended = append(extended, binding{name: name, ty: ty})
	return &Context{bindings: extended}
}

// Lookup finds the type of name, skipping index shadowing binders.
func (c *Context) Lookup(name string, index int) (ast.Expr, bool) {
	seen := 0
	for i := len(c.bindings) - 1; i >= 0; i-- {
		if c.bindings[i].name != name {
			continue
		}
		if seen == index {
			return c.bindings[i].ty, true
		}
		seen++
	}
	return nil, false
}

// Len returns the number of bindings.
func (c *Context) Len() int { return len(c.bindings) }
