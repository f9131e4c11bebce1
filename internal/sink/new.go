package sink

import (
	"context"
	"fmt"
	"log/slog"
)

// Options selects the sink variant. Exactly one of the two configurations is
// used, based on Kind.
type Options struct {
	Kind   string // NameSheets or NameRelational
	Sheets SheetsConfig
}

// New builds the configured sink. writer backs the relational variant and may
// be nil for the sheets variant.
func New(ctx context.Context, opts Options, writer VisitWriter, logger *slog.Logger) (Sink, error) {
	switch opts.Kind {
	case NameSheets:
		s, err := NewSheets(ctx, opts.Sheets, logger)
		if err != nil {
			return nil, fmt.Errorf("init sheets sink: %w", err)
		}
		return s, nil
	case NameRelational:
		if writer == nil {
			return nil, fmt.Errorf("relational sink requires a visit writer")
		}
		return NewRelational(writer), nil
	default:
		return nil, fmt.Errorf("unknown sink %q", opts.Kind)
	}
}
