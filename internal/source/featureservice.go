package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vergilyu/geoai-retail/internal/frame"
)

// DefaultPortal is the anonymous ArcGIS Online portal used to resolve item
// IDs when no portal is configured.
const DefaultPortal = "https://www.arcgis.com"

// Submitted layer urls can be lacking a few essential pieces, so a couple of
// regexes handle the contingencies: a present layer index is kept and any
// trailing query parameters dropped, a missing index gets layer 0.
var (
	layerURLRe    = regexp.MustCompile(`((^https?://.*?)(/\d{1,3})?)\?`)
	trailingIdxRe = regexp.MustCompile(`/\d{1,3}/?$`)
)

// FeatureServiceOptions configures the feature service client.
type FeatureServiceOptions struct {
	Portal      string
	Token       string
	HTTPClient  *http.Client
	PageSize    int
	RateLimit   rate.Limit
	Concurrency int
}

// FeatureServiceClient queries hosted feature layers and portal items into
// Frames. Requests are rate limited and result pages are fetched in
// parallel.
type FeatureServiceClient struct {
	client      *http.Client
	limiter     *rate.Limiter
	portal      string
	token       string
	pageSize    int
	concurrency int
}

// NewFeatureServiceClient creates a client with the given options.
func NewFeatureServiceClient(opts FeatureServiceOptions) *FeatureServiceClient {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.Portal == "" {
		opts.Portal = DefaultPortal
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 1000
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 4
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &FeatureServiceClient{
		client:      opts.HTTPClient,
		limiter:     rate.NewLimiter(opts.RateLimit, 1),
		portal:      strings.TrimRight(opts.Portal, "/"),
		token:       opts.Token,
		pageSize:    opts.PageSize,
		concurrency: opts.Concurrency,
	}
}

// NormalizeLayerURL cleans a submitted feature service URL: trailing query
// parameters are dropped, and layer index 0 is appended when the index was
// forgotten.
func NormalizeLayerURL(raw string) string {
	if m := layerURLRe.FindStringSubmatch(raw); m != nil {
		if m[3] != "" {
			return m[1]
		}
		return m[2] + "/0"
	}
	trimmed := strings.TrimRight(raw, "/")
	if trailingIdxRe.MatchString(raw) {
		return trimmed
	}
	return trimmed + "/0"
}

type queryResponse struct {
	Fields []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"fields"`
	Features []struct {
		Attributes map[string]any  `json:"attributes"`
		Geometry   json.RawMessage `json:"geometry"`
	} `json:"features"`
	Count                 *int       `json:"count,omitempty"`
	ExceededTransferLimit bool       `json:"exceededTransferLimit"`
	Error                 *esriError `json:"error,omitempty"`
}

type esriError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// QueryLayer fetches every feature of a layer in WGS84 and returns them as
// a spatial Frame. The URL is normalized first, and paging continues until
// the server stops reporting exceededTransferLimit.
func (c *FeatureServiceClient) QueryLayer(ctx context.Context, layerURL string) (*frame.Frame, error) {
	layerURL = NormalizeLayerURL(layerURL)
	log := zap.L().With(zap.String("layer", layerURL))

	count, err := c.featureCount(ctx, layerURL)
	if err != nil {
		return nil, err
	}

	// Servers cap each page at their own maxRecordCount, which can be
	// smaller than the requested resultRecordCount, so the effective page
	// size is whatever the first page actually came back with.
	first, err := c.queryPage(ctx, layerURL, 0)
	if err != nil {
		return nil, err
	}
	pages := []*queryResponse{first}
	fetched := len(first.Features)

	if step := fetched; step > 0 && fetched < count {
		rest := make([]*queryResponse, (count-fetched+step-1)/step)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.concurrency)
		for i := range rest {
			i := i
			offset := fetched + i*step
			g.Go(func() error {
				resp, err := c.queryPage(gctx, layerURL, offset)
				if err != nil {
					return err
				}
				rest[i] = resp
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		pages = append(pages, rest...)
		for _, p := range rest {
			fetched += len(p.Features)
		}
	}

	// The count can go stale between requests; keep advancing the offset by
	// rows actually received while the server reports a truncated result.
	for pages[len(pages)-1].ExceededTransferLimit {
		resp, err := c.queryPage(ctx, layerURL, fetched)
		if err != nil {
			return nil, err
		}
		if len(resp.Features) == 0 {
			break
		}
		pages = append(pages, resp)
		fetched += len(resp.Features)
	}

	log.Debug("source: queried feature layer", zap.Int("features", fetched), zap.Int("pages", len(pages)))
	return framesFromPages(pages)
}

// QueryItem resolves a 32 character Web GIS item ID through the portal and
// queries the item's first layer.
func (c *FeatureServiceClient) QueryItem(ctx context.Context, itemID string) (*frame.Frame, error) {
	itemURL := fmt.Sprintf("%s/sharing/rest/content/items/%s", c.portal, itemID)

	body, err := c.get(ctx, itemURL, url.Values{"f": {"json"}})
	if err != nil {
		return nil, err
	}

	var item struct {
		URL   string     `json:"url"`
		Error *esriError `json:"error,omitempty"`
	}
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, eris.Wrap(err, "source: decode portal item")
	}
	if item.Error != nil {
		return nil, eris.Errorf("source: portal item %s: %s (code %d)", itemID, item.Error.Message, item.Error.Code)
	}
	if item.URL == "" {
		return nil, eris.Errorf("source: portal item %s has no service url", itemID)
	}

	return c.QueryLayer(ctx, strings.TrimRight(item.URL, "/")+"/0?")
}

func (c *FeatureServiceClient) featureCount(ctx context.Context, layerURL string) (int, error) {
	params := c.baseParams()
	params.Set("returnCountOnly", "true")

	body, err := c.get(ctx, layerURL+"/query", params)
	if err != nil {
		return 0, err
	}

	var resp queryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, eris.Wrap(err, "source: decode feature count")
	}
	if resp.Error != nil {
		return 0, eris.Errorf("source: feature count: %s (code %d)", resp.Error.Message, resp.Error.Code)
	}
	if resp.Count == nil {
		return 0, eris.New("source: feature count missing from response")
	}
	return *resp.Count, nil
}

func (c *FeatureServiceClient) queryPage(ctx context.Context, layerURL string, offset int) (*queryResponse, error) {
	params := c.baseParams()
	params.Set("outFields", "*")
	params.Set("outSR", "4326")
	params.Set("resultOffset", fmt.Sprintf("%d", offset))
	params.Set("resultRecordCount", fmt.Sprintf("%d", c.pageSize))

	body, err := c.get(ctx, layerURL+"/query", params)
	if err != nil {
		return nil, err
	}

	var resp queryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "source: decode feature page")
	}
	if resp.Error != nil {
		return nil, eris.Errorf("source: feature query: %s (code %d)", resp.Error.Message, resp.Error.Code)
	}
	return &resp, nil
}

func (c *FeatureServiceClient) baseParams() url.Values {
	params := url.Values{}
	params.Set("where", "1=1")
	params.Set("f", "json")
	if c.token != "" {
		params.Set("token", c.token)
	}
	return params
}

func (c *FeatureServiceClient) get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "source: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "source: build request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "source: request %s", rawURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("source: %s returned status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "source: read response body")
	}
	return body, nil
}

// framesFromPages merges query pages, in order, into one spatial Frame.
func framesFromPages(pages []*queryResponse) (*frame.Frame, error) {
	var first *queryResponse
	for _, p := range pages {
		if p != nil && len(p.Fields) > 0 {
			first = p
			break
		}
	}
	if first == nil {
		return nil, eris.New("source: feature query returned no fields")
	}

	names := make([]string, len(first.Fields))
	intField := make(map[string]bool, len(first.Fields))
	for i, fld := range first.Fields {
		names[i] = fld.Name
		switch fld.Type {
		case "esriFieldTypeOID", "esriFieldTypeInteger", "esriFieldTypeSmallInteger":
			intField[fld.Name] = true
		}
	}

	columns := make([][]any, len(names)+1)
	for _, page := range pages {
		if page == nil {
			continue
		}
		for _, feat := range page.Features {
			for i, name := range names {
				val := feat.Attributes[name]
				if x, ok := val.(float64); ok && intField[name] {
					val = int64(x)
				}
				columns[i] = append(columns[i], val)
			}

			var g any
			if len(feat.Geometry) > 0 && string(feat.Geometry) != "null" {
				var eg esriGeometry
				if err := json.Unmarshal(feat.Geometry, &eg); err != nil {
					return nil, eris.Wrap(err, "source: decode feature geometry")
				}
				parsed, err := eg.toGeom()
				if err != nil {
					return nil, err
				}
				g = parsed
			}
			columns[len(names)] = append(columns[len(names)], g)
		}
	}

	f, err := frame.FromColumns(append(names, frame.GeometryColumn), columns)
	if err != nil {
		return nil, err
	}
	if err := f.SetGeometry(frame.GeometryColumn); err != nil {
		return nil, err
	}
	return f, nil
}
