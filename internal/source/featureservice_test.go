package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/vergilyu/geoai-retail/internal/frame"
)

func TestNormalizeLayerURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		// layer index present: trailing params dropped
		{"https://svc.example.com/FeatureServer/2?f=json&token=x", "https://svc.example.com/FeatureServer/2"},
		// index forgotten: layer 0 appended
		{"https://svc.example.com/FeatureServer?f=json", "https://svc.example.com/FeatureServer/0"},
		// no query string at all
		{"https://svc.example.com/FeatureServer", "https://svc.example.com/FeatureServer/0"},
		{"https://svc.example.com/FeatureServer/5", "https://svc.example.com/FeatureServer/5"},
		{"https://svc.example.com/FeatureServer/5/", "https://svc.example.com/FeatureServer/5"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeLayerURL(tc.in), "input %s", tc.in)
	}
}

// newFeatureServer serves a two-page point layer with the given page size.
func newFeatureServer(t *testing.T, total int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "1=1", q.Get("where"))

		if q.Get("returnCountOnly") == "true" {
			fmt.Fprintf(w, `{"count": %d}`, total)
			return
		}

		offset, _ := strconv.Atoi(q.Get("resultOffset"))
		size, _ := strconv.Atoi(q.Get("resultRecordCount"))
		require.Equal(t, "4326", q.Get("outSR"))

		resp := map[string]any{
			"fields": []map[string]string{
				{"name": "OBJECTID", "type": "esriFieldTypeOID"},
				{"name": "name", "type": "esriFieldTypeString"},
			},
		}
		var features []map[string]any
		for i := offset; i < offset+size && i < total; i++ {
			features = append(features, map[string]any{
				"attributes": map[string]any{"OBJECTID": i + 1, "name": fmt.Sprintf("site-%d", i)},
				"geometry":   map[string]any{"x": float64(i), "y": float64(i) * 2},
			})
		}
		resp["features"] = features
		resp["exceededTransferLimit"] = offset+len(features) < total
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

// newCappedFeatureServer serves total point features but caps every page at
// one feature no matter what resultRecordCount asks for, the way a server
// with a small maxRecordCount does. The count endpoint reports reportedCount.
func newCappedFeatureServer(t *testing.T, total, reportedCount int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("returnCountOnly") == "true" {
			fmt.Fprintf(w, `{"count": %d}`, reportedCount)
			return
		}

		offset, _ := strconv.Atoi(q.Get("resultOffset"))
		resp := map[string]any{
			"fields": []map[string]string{
				{"name": "OBJECTID", "type": "esriFieldTypeOID"},
			},
		}
		var features []map[string]any
		if offset < total {
			features = append(features, map[string]any{
				"attributes": map[string]any{"OBJECTID": offset + 1},
				"geometry":   map[string]any{"x": float64(offset), "y": float64(offset)},
			})
		}
		resp["features"] = features
		resp["exceededTransferLimit"] = offset+len(features) < total
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestQueryLayer_ServerCappedPages(t *testing.T) {
	srv := newCappedFeatureServer(t, 3, 3)
	defer srv.Close()

	client := NewFeatureServiceClient(FeatureServiceOptions{
		PageSize:  10,
		RateLimit: 1000,
	})

	f, err := client.QueryLayer(context.Background(), srv.URL+"/FeatureServer/0?")
	require.NoError(t, err)

	// every feature arrives even though the server caps pages below the
	// requested record count
	assert.Equal(t, 3, f.NumRows())
	ids, err := f.Col("OBJECTID")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, ids)
}

func TestQueryLayer_StaleCount(t *testing.T) {
	// count endpoint understates the layer; exceededTransferLimit drives
	// the trailing fetches
	srv := newCappedFeatureServer(t, 3, 2)
	defer srv.Close()

	client := NewFeatureServiceClient(FeatureServiceOptions{
		PageSize:  10,
		RateLimit: 1000,
	})

	f, err := client.QueryLayer(context.Background(), srv.URL+"/FeatureServer/0?")
	require.NoError(t, err)
	assert.Equal(t, 3, f.NumRows())
}

func TestQueryLayer_Paged(t *testing.T) {
	srv := newFeatureServer(t, 5)
	defer srv.Close()

	client := NewFeatureServiceClient(FeatureServiceOptions{
		PageSize:  2,
		RateLimit: 1000,
	})

	f, err := client.QueryLayer(context.Background(), srv.URL+"/FeatureServer/0?f=json")
	require.NoError(t, err)

	assert.Equal(t, []string{"OBJECTID", "name", frame.GeometryColumn}, f.Columns())
	assert.Equal(t, 5, f.NumRows())
	assert.Equal(t, frame.GeometryColumn, f.Geometry())

	// pages merge in order and OID fields arrive as ints
	ids, err := f.Col("OBJECTID")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3), int64(4), int64(5)}, ids)

	shapes, err := f.Col(frame.GeometryColumn)
	require.NoError(t, err)
	pt, ok := shapes[4].(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, []float64{4, 8}, pt.FlatCoords())
}

func TestQueryLayer_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": {"code": 499, "message": "Token Required"}}`)
	}))
	defer srv.Close()

	client := NewFeatureServiceClient(FeatureServiceOptions{RateLimit: 1000})
	_, err := client.QueryLayer(context.Background(), srv.URL+"/FeatureServer/0?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Token Required")
}

func TestQueryLayer_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewFeatureServiceClient(FeatureServiceOptions{RateLimit: 1000})
	_, err := client.QueryLayer(context.Background(), srv.URL+"/FeatureServer/0?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestQueryItem(t *testing.T) {
	layerSrv := newFeatureServer(t, 1)
	defer layerSrv.Close()

	portal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/sharing/rest/content/items/")
		fmt.Fprintf(w, `{"url": %q}`, layerSrv.URL+"/FeatureServer")
	}))
	defer portal.Close()

	client := NewFeatureServiceClient(FeatureServiceOptions{
		Portal:    portal.URL,
		RateLimit: 1000,
	})

	f, err := client.QueryItem(context.Background(), "0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, 1, f.NumRows())
}

func TestQueryItem_NotFound(t *testing.T) {
	portal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": {"code": 400, "message": "Item does not exist"}}`)
	}))
	defer portal.Close()

	client := NewFeatureServiceClient(FeatureServiceOptions{
		Portal:    portal.URL,
		RateLimit: 1000,
	})

	_, err := client.QueryItem(context.Background(), "0123456789abcdef0123456789abcdef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Item does not exist")
}

func TestQueryLayer_TokenForwarded(t *testing.T) {
	var sawToken bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "secret" {
			sawToken = true
		}
		if r.URL.Query().Get("returnCountOnly") == "true" {
			fmt.Fprint(w, `{"count": 0}`)
			return
		}
		fmt.Fprint(w, `{"fields": [{"name": "id", "type": "esriFieldTypeOID"}], "features": []}`)
	}))
	defer srv.Close()

	client := NewFeatureServiceClient(FeatureServiceOptions{
		Token:     "secret",
		RateLimit: 1000,
	})

	f, err := client.QueryLayer(context.Background(), srv.URL+"/FeatureServer/0?")
	require.NoError(t, err)
	assert.True(t, sawToken)
	assert.Equal(t, 0, f.NumRows())
}
