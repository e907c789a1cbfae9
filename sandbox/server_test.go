package sandbox

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prologic/simbridgefs/simbridge"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testSeed() *Seed {
	return &Seed{
		Routes: []simbridge.CoRoute{
			{Name: "JFKLHR1", Origin: simbridge.Airport{IcaoCode: "KJFK"}, Destination: simbridge.Airport{IcaoCode: "EGLL"}},
			{Name: "JFKCDG1", Origin: simbridge.Airport{IcaoCode: "KJFK"}, Destination: simbridge.Airport{IcaoCode: "LFPG"}},
		},
		PDFs: map[string][]string{
			"checklist.pdf": {
				base64.StdEncoding.EncodeToString([]byte("page-1")),
				base64.StdEncoding.EncodeToString([]byte("page-2")),
			},
		},
		Images: map[string]string{
			"chart.png": base64.StdEncoding.EncodeToString([]byte("png-bytes")),
		},
		Terrain: TerrainSeed{
			Range:  simbridge.TerrainRange{MinElevation: 100, MaxElevation: 4500},
			Frames: []string{"ZnJhbWUx"},
		},
	}
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestNewRejectsBadBase64(t *testing.T) {
	_, err := New(&Seed{Images: map[string]string{"x.png": "%%%"}})
	assert.Error(t, err)

	_, err = New(&Seed{PDFs: map[string][]string{"x.pdf": {"%%%"}}})
	assert.Error(t, err)
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	data, err := json.Marshal(testSeed())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	assert.Len(t, seed.Routes, 2)

	_, err = LoadSeed(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestExampleSeed(t *testing.T) {
	seed, err := LoadSeed(filepath.Join("testdata", "seed.json"))
	require.NoError(t, err)
	require.Len(t, seed.Routes, 1)
	assert.Equal(t, "KLAX", seed.Routes[0].Destination.IcaoCode)
	assert.Len(t, seed.Routes[0].Navlog.Fix, 2)

	_, err = New(seed)
	require.NoError(t, err)
}

func TestTerrainEndpoints(t *testing.T) {
	s, err := New(testSeed())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/terrain/available", "").Code)

	w := do(t, s, http.MethodPatch, "/api/v1/terrain/position", `{"latitude":40.6,"longitude":-73.7,"heading":90,"altitude":1200,"verticalSpeed":-500}`)
	assert.Equal(t, http.StatusOK, w.Code)
	pos, ok := s.LastPosition()
	require.True(t, ok)
	assert.Equal(t, -500.0, pos.VerticalSpeed)

	w = do(t, s, http.MethodPut, "/api/v1/terrain/displaysettings?display=L", `{"active":true,"range":40}`)
	assert.Equal(t, http.StatusOK, w.Code)
	ds, ok := s.DisplaySettings(simbridge.SideLeft)
	require.True(t, ok)
	assert.Equal(t, 40, ds.Range)

	assert.Equal(t, "false", do(t, s, http.MethodGet, "/api/v1/terrain/ndMapAvailable?display=L&timestamp=1", "").Body.String())

	w = do(t, s, http.MethodGet, "/api/v1/terrain/renderMap?display=L", "")
	require.Equal(t, http.StatusOK, w.Code)
	ts, err := strconv.ParseInt(w.Body.String(), 10, 64)
	require.NoError(t, err)

	assert.Equal(t, "true", do(t, s, http.MethodGet, "/api/v1/terrain/ndMapAvailable?display=L&timestamp="+strconv.FormatInt(ts, 10), "").Body.String())
	assert.Equal(t, "false", do(t, s, http.MethodGet, "/api/v1/terrain/ndMapAvailable?display=R&timestamp="+strconv.FormatInt(ts, 10), "").Body.String())

	assert.JSONEq(t, `["ZnJhbWUx"]`, do(t, s, http.MethodGet, "/api/v1/terrain/ndmaps?display=L&timestamp=1", "").Body.String())
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/terrain/renderMap?display=X", "").Code)
}

func TestTerrainDisabled(t *testing.T) {
	s, err := New(testSeed())
	require.NoError(t, err)
	s.SetTerrainEnabled(false)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/api/v1/terrain/available", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/api/v1/terrain/renderMap?display=L", "").Code)
}

func TestCompanyRoutes(t *testing.T) {
	s, err := New(testSeed())
	require.NoError(t, err)

	w := do(t, s, http.MethodGet, "/api/v1/coroute?rteNum=JFKLHR1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"EGLL"`)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/coroute?rteNum=NOPE", "").Code)

	var routes []simbridge.CoRoute
	w = do(t, s, http.MethodGet, "/api/v1/coroute/list?origin=KJFK&destination=", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &routes))
	assert.Len(t, routes, 2)

	w = do(t, s, http.MethodGet, "/api/v1/coroute/list?origin=&destination=LFPG", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &routes))
	require.Len(t, routes, 1)
	assert.Equal(t, "JFKCDG1", routes[0].Name)
}

func TestUtilityEndpoints(t *testing.T) {
	s, err := New(testSeed())
	require.NoError(t, err)

	w := do(t, s, http.MethodGet, "/api/v1/utility/pdf?filename=checklist.pdf&pagenumber=2", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "page-2", w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/utility/pdf?filename=checklist.pdf&pagenumber=3", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/utility/pdf/numpages?filename=nope.pdf", "").Code)
	assert.Equal(t, "2", do(t, s, http.MethodGet, "/api/v1/utility/pdf/numpages?filename=checklist.pdf", "").Body.String())
	assert.JSONEq(t, `["checklist.pdf"]`, do(t, s, http.MethodGet, "/api/v1/utility/pdf/list", "").Body.String())

	w = do(t, s, http.MethodGet, "/api/v1/utility/image?filename=chart.png", "")
	assert.Equal(t, "png-bytes", w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `["chart.png"]`, do(t, s, http.MethodGet, "/api/v1/utility/image/list", "").Body.String())
}

func TestFailureInjection(t *testing.T) {
	s, err := New(nil, WithFailure(http.StatusInternalServerError))
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, do(t, s, http.MethodGet, "/api/v1/utility/pdf/list", "").Code)
	s.SetFailure(0)
	assert.JSONEq(t, `[]`, do(t, s, http.MethodGet, "/api/v1/utility/pdf/list", "").Body.String())
	assert.Equal(t, 2, s.Requests("/api/v1/utility/pdf/list"))
}
