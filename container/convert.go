package container

import (
	"context"
	"fmt"
	"io"

	"github.com/INLOpen/dictbase/core"
)

// ConversionError reports where a conversion failed.
type ConversionError struct {
	// Key is the entry being processed, "" when the failure was not tied
	// to one entry.
	Key string
	Err error
}

func (e *ConversionError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("conversion failed: %v", e.Err)
	}
	return fmt.Sprintf("conversion failed at entry %q: %v", e.Key, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Convert re-encodes every entry of src into a new stream-layout
// container written to dst, preserving the source's collation so entries
// stay in order without re-sorting. Entries stream through a bounded
// window of decoded blocks; ctx is checked between entries so a
// conversion can be cancelled midway. On error nothing useful has been
// written to dst; use ConvertFile for an all-or-nothing file result.
func Convert(ctx context.Context, src *Reader, opts BuilderOptions, dst io.Writer) error {
	if opts.Comparator == nil {
		opts.Comparator = src.Comparator()
	}
	if opts.Attributes == nil {
		attrs := make(map[string]string, len(src.Header().Attributes))
		for k, v := range src.Header().Attributes {
			attrs[k] = v
		}
		delete(attrs, core.AttrLayout)
		opts.Attributes = attrs
	}
	b, err := NewBuilder(opts)
	if err != nil {
		return &ConversionError{Err: err}
	}

	it := src.Entries()
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return &ConversionError{Err: err}
		}
		key, payload := it.At()
		if err := b.Add(key, payload); err != nil {
			return &ConversionError{Key: key, Err: err}
		}
	}
	if err := it.Error(); err != nil {
		return &ConversionError{Err: err}
	}
	if err := b.Finish(dst); err != nil {
		return &ConversionError{Err: err}
	}
	return nil
}

// ConvertFile converts src into a container file at path. The result is
// written to a temp file and renamed into place, so a failed or cancelled
// conversion leaves no partial file.
func ConvertFile(ctx context.Context, src *Reader, opts BuilderOptions, path string) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		return Convert(ctx, src, opts, w)
	})
}
