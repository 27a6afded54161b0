package cctx

import "context"

// Context request scoped context
type Context struct {
	context.Context
}

// New new context
func New() *Context {
	return &Context{Context: context.Background()}
}

// WithContext wrap ctx
func WithContext(ctx context.Context) *Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return &Context{Context: ctx}
}
