package logging

import "github.com/samber/oops"

// ErrorAttrs returns key-value pairs describing err. oops errors contribute
// their code and context; anything else is logged by message only.
//
//	log.Error(ctx, "refresh failed", logging.ErrorAttrs(err)...)
func ErrorAttrs(err error) []any {
	if err == nil {
		return nil
	}

	oe, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err.Error()}
	}

	attrs := []any{"error", oe.Error()}
	if code := oe.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if ctx := oe.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}
