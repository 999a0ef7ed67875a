package plugin

import (
	"context"

	"firestige.xyz/dsmark/internal/core"
)

// Emitter receives every packet after rule evaluation, together with its
// verdict. Emit is called from several workers at once.
type Emitter interface {
	Plugin
	Emit(ctx context.Context, res core.Result) error
}
