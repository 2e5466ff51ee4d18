package parser

import (
	"context"
	"fmt"
	"io"
)

// DetectSchema resolves the parser for filename and runs its sampling
// pass. The resolved parser is returned alongside the detection so the
// caller can stream or preview the same source next; the source is
// guaranteed rewound to byte zero on success.
func DetectSchema(ctx context.Context, reg *Registry, filename string, src io.ReadSeeker, opts Options) (*Detection, Parser, error) {
	p, err := reg.Resolve(filename)
	if err != nil {
		return nil, nil, err
	}
	det, err := p.DetectSchema(ctx, src, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("detect schema: %w", err)
	}
	if err := rewind(src); err != nil {
		return nil, nil, err
	}
	return det, p, nil
}
