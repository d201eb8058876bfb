package ges

import (
	"context"
)

// Metadata carries contextual information that accompanies events.
// Typical keys include tenant_id, user_id, correlation_id, and trace_id.
type Metadata map[string]any

// MetadataExtractor builds Metadata from a context.
// Applications can supply their own extractor that knows about
// private context keys (tenant_id, user_id, correlation_id, trace_id, etc.).
type MetadataExtractor func(ctx context.Context) Metadata
