package compiler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bep/godartsass/v2"
)

// DartSass runs SCSS through an embedded Dart Sass process. The process is
// started lazily and restarted when the configured binary changes.
type DartSass struct {
	mu         sync.Mutex
	binary     string
	transpiler *godartsass.Transpiler
}

// NewDartSass returns a preprocessor that starts Dart Sass on first use.
func NewDartSass() *DartSass {
	return &DartSass{}
}

// Preprocess implements Preprocessor.
func (d *DartSass) Preprocess(ctx context.Context, source string, opts SassOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t, err := d.transpilerFor(opts.Binary)
	if err != nil {
		return "", err
	}

	style := godartsass.OutputStyleExpanded
	if opts.OutputStyle != "" {
		style = godartsass.ParseOutputStyle(opts.OutputStyle)
	}
	res, err := t.Execute(godartsass.Args{
		Source:       source,
		OutputStyle:  style,
		SourceSyntax: godartsass.SourceSyntaxSCSS,
		IncludePaths: opts.IncludePaths,
	})
	if err != nil {
		return "", err
	}
	return res.CSS, nil
}

func (d *DartSass) transpilerFor(binary string) (*godartsass.Transpiler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transpiler != nil && d.binary == binary && !d.transpiler.IsShutDown() {
		return d.transpiler, nil
	}
	if d.transpiler != nil {
		_ = d.transpiler.Close()
		d.transpiler = nil
	}
	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: binary,
		Timeout:                  30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("start dart sass: %w", err)
	}
	d.binary = binary
	d.transpiler = t
	return t, nil
}

// Close stops the Dart Sass process if it was started.
func (d *DartSass) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transpiler == nil {
		return nil
	}
	err := d.transpiler.Close()
	d.transpiler = nil
	return err
}
