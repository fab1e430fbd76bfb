package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/franksops/siptransfer/report"
)

// VerificationOrigin is the log origin of entries written by a Verifier.
const VerificationOrigin = "Verification"

// Verifier compares a local source tree with its copy by CRC64.
type Verifier struct {
	workers int
}

// NewVerifier creates a Verifier hashing with the given number of workers.
func NewVerifier(workers int) *Verifier {
	return &Verifier{workers: max(workers, 1)}
}

// Verify checks every regular file under src against the same relative path
// under dst. Mismatches and missing files are logged as ERROR.
func (v *Verifier) Verify(ctx context.Context, src, dst string) *report.Log {
	log := report.NewLog(VerificationOrigin)
	items := make(chan WalkItem)
	var checked atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(items)
		return NewWalker(items).Walk(ctx, src)
	})
	for range v.workers {
		g.Go(func() error {
			for item := range items {
				v.compare(item, src, dst, log)
				checked.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Log(report.SeverityError, fmt.Sprintf("Verification aborted: %v", err))
		return log
	}
	if !log.Failed() {
		log.Log(report.SeverityInfo, fmt.Sprintf("Verified %d file(s).", checked.Load()))
	}
	return log
}

func (v *Verifier) compare(item WalkItem, src, dst string, log *report.Log) {
	srcPath, dstPath := src, dst
	if item.RelPath != "" {
		srcPath = filepath.Join(src, item.RelPath)
		dstPath = filepath.Join(dst, item.RelPath)
	}
	name := item.RelPath
	if name == "" {
		name = filepath.Base(src)
	}

	want, _, err := FileChecksum(srcPath)
	if err != nil {
		log.Log(report.SeverityError, fmt.Sprintf("Unable to read source file '%s': %v", name, err))
		return
	}
	got, _, err := FileChecksum(dstPath)
	if err != nil {
		log.Log(report.SeverityError, fmt.Sprintf("Missing file '%s' at destination.", name))
		return
	}
	if got != want {
		log.Log(report.SeverityError, fmt.Sprintf("Checksum mismatch for '%s'.", name))
	}
}
