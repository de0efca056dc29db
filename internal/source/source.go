// Package source loads spatial data from heterogeneous inputs into Frames:
// in-memory tables, CSV/XLSX exports, local feature classes, hosted feature
// services, and Web GIS items.
package source

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/vergilyu/geoai-retail/internal/frame"
)

// Options configures a Resolver.
type Options struct {
	Portal      string
	Token       string
	HTTPClient  *http.Client
	PageSize    int
	RateLimit   float64
	Concurrency int
	TempDir     string
	Timeout     time.Duration
}

// Resolver turns any supported input into a spatial Frame.
type Resolver struct {
	opts Options
	fs   *FeatureServiceClient
}

// NewResolver creates a Resolver with the given options.
func NewResolver(opts Options) *Resolver {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Resolver{
		opts: opts,
		fs: NewFeatureServiceClient(FeatureServiceOptions{
			Portal:      opts.Portal,
			Token:       opts.Token,
			HTTPClient:  opts.HTTPClient,
			PageSize:    opts.PageSize,
			RateLimit:   rate.Limit(opts.RateLimit),
			Concurrency: opts.Concurrency,
		}),
	}
}

// Resolve evaluates the input and converts it to a spatial Frame. Accepted
// inputs, in dispatch order:
//
//   - *frame.Frame: passed through; a SHAPE column is (re)designated as the
//     geometry column and validated
//   - path to a .csv exported from a spatial table
//   - path to an .xlsx workbook
//   - http(s) feature service layer URL
//   - ftp:// URL, downloaded and re-dispatched by extension
//   - 32 character Web GIS item ID
//   - path to a local feature class (.shp)
func (r *Resolver) Resolve(ctx context.Context, in any) (*frame.Frame, error) {
	switch v := in.(type) {
	case *frame.Frame:
		return resolveFrame(v)

	case string:
		return r.resolveString(ctx, v)

	default:
		return nil, eris.Errorf("source: cannot resolve input of type %T", in)
	}
}

func (r *Resolver) resolveString(ctx context.Context, s string) (*frame.Frame, error) {
	switch {
	case strings.HasSuffix(s, ".csv") && fileExists(s):
		return ReadCSVFile(s)

	case strings.HasSuffix(s, ".xlsx") && fileExists(s):
		return ReadXLSX(s)

	case strings.HasPrefix(s, "http"):
		return r.fs.QueryLayer(ctx, s)

	case strings.HasPrefix(s, "ftp://"):
		local, err := FetchFTP(ctx, s, r.opts.TempDir, r.opts.Timeout)
		if err != nil {
			return nil, err
		}
		return r.resolveString(ctx, local)

	case len(s) == 32:
		return r.fs.QueryItem(ctx, s)

	case fileExists(s):
		return ReadShapefile(s)
	}

	return nil, eris.Errorf("source: could not resolve input %q", s)
}

// resolveFrame validates an in-memory Frame, designating SHAPE as the
// geometry column when present. Sliced or modified frames sometimes lose the
// geometry designation, so it is always re-set.
func resolveFrame(f *frame.Frame) (*frame.Frame, error) {
	if f.HasColumn(frame.GeometryColumn) {
		if err := f.SetGeometry(frame.GeometryColumn); err != nil {
			return nil, eris.Wrap(err, "source: input frame SHAPE column does not hold valid geometries")
		}
		return f, nil
	}
	if err := f.Validate(); err != nil {
		return nil, eris.Wrap(err, "source: could not process input frame")
	}
	return f, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
