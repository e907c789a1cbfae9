package simbridge

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/prologic/simbridgefs/internal/httpx"
)

// Availability is the state of the terrain endpoints.
type Availability int32

const (
	Unavailable Availability = iota
	Available
)

func (a Availability) String() string {
	if a == Available {
		return "available"
	}
	return "unavailable"
}

const terrainPath = "/api/v1/terrain"

// Terrain talks to the terrain map endpoints. All operations other than
// ProbeAvailability fail with ErrServiceUnavailable, without touching the
// network, until a probe succeeds.
type Terrain struct {
	client        *httpx.Client
	state         atomic.Int32
	reportTimeout time.Duration
	reports       sync.WaitGroup
}

func newTerrain(c *httpx.Client, reportTimeout time.Duration) *Terrain {
	return &Terrain{client: c, reportTimeout: reportTimeout}
}

// State returns the last probed availability.
func (t *Terrain) State() Availability {
	return Availability(t.state.Load())
}

func (t *Terrain) gate() error {
	if t.State() != Available {
		return ErrServiceUnavailable
	}
	return nil
}

// ProbeAvailability checks whether the terrain endpoints answer and records
// the result. Transport failures and non-2xx responses mark them unavailable.
func (t *Terrain) ProbeAvailability(ctx context.Context) bool {
	resp, err := t.client.Do(ctx, &httpx.Request{
		Op:     "terrain.available",
		Method: http.MethodGet,
		Path:   terrainPath + "/available",
	})
	next := Unavailable
	if err == nil {
		if httpx.IsSuccess(resp.StatusCode) {
			next = Available
		}
		httpx.Discard(resp)
	}
	if prev := Availability(t.state.Swap(int32(next))); prev != next {
		log.WithField("state", next).Info("Terrain endpoints changed state")
	}
	return next == Available
}

// ReportPosition sends the aircraft position in the background and returns
// without waiting. Failures are only logged.
func (t *Terrain) ReportPosition(ctx context.Context, pos Position) error {
	if err := t.gate(); err != nil {
		return err
	}

	body, err := httpx.JSONBody(pos)
	if err != nil {
		return fmt.Errorf("simbridge: terrain.position: %w", err)
	}

	rctx := context.WithoutCancel(ctx)
	t.reports.Add(1)
	go func() {
		defer t.reports.Done()
		if t.reportTimeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(rctx, t.reportTimeout)
			defer cancel()
		}
		resp, err := t.client.Do(rctx, &httpx.Request{
			Op:     "terrain.position",
			Method: http.MethodPatch,
			Path:   terrainPath + "/position",
			Header: http.Header{"Content-Type": {"application/json"}},
			Body:   body,
		})
		if err != nil {
			log.WithError(err).Debug("Position report failed")
			return
		}
		httpx.Discard(resp)
	}()
	return nil
}

// WaitReports blocks until every in-flight position report has finished.
func (t *Terrain) WaitReports() {
	t.reports.Wait()
}

// SetDisplaySettings updates what the display on side renders.
func (t *Terrain) SetDisplaySettings(ctx context.Context, side Side, settings DisplaySettings) error {
	const op = "terrain.displaysettings"
	if err := t.gate(); err != nil {
		return err
	}

	body, err := httpx.JSONBody(settings)
	if err != nil {
		return fmt.Errorf("simbridge: %s: %w", op, err)
	}
	resp, err := t.client.Do(ctx, &httpx.Request{
		Op:     op,
		Method: http.MethodPut,
		Path:   terrainPath + "/displaysettings",
		Query:  []httpx.Param{{Key: "display", Value: string(side)}},
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   body,
	})
	if err != nil {
		return asServerError(op, err)
	}
	if err := httpx.CheckStatus(resp); err != nil {
		return asServerError(op, err)
	}
	httpx.Discard(resp)
	return nil
}

func displayQuery(side Side, timestamp int64) []httpx.Param {
	return []httpx.Param{
		{Key: "display", Value: string(side)},
		{Key: "timestamp", Value: strconv.FormatInt(timestamp, 10)},
	}
}

// NdMapAvailable reports whether a map rendered at timestamp is ready for the
// display on side. A non-2xx answer means it is not.
func (t *Terrain) NdMapAvailable(ctx context.Context, side Side, timestamp int64) (bool, error) {
	const op = "terrain.ndMapAvailable"
	if err := t.gate(); err != nil {
		return false, err
	}

	resp, err := t.client.Do(ctx, &httpx.Request{
		Op:     op,
		Method: http.MethodGet,
		Path:   terrainPath + "/ndMapAvailable",
		Query:  displayQuery(side, timestamp),
	})
	if err != nil {
		return false, asServerError(op, err)
	}
	if !httpx.IsSuccess(resp.StatusCode) {
		httpx.Discard(resp)
		return false, nil
	}
	text, err := httpx.ReadAllAndClose(resp.Body)
	if err != nil {
		return false, asServerError(op, err)
	}
	return string(text) == "true", nil
}

// NdTransitionMaps returns the base64 encoded frames of the map transition.
func (t *Terrain) NdTransitionMaps(ctx context.Context, side Side, timestamp int64) ([]string, error) {
	var frames []string
	if err := t.getJSON(ctx, "terrain.ndmaps", "/ndmaps", displayQuery(side, timestamp), &frames); err != nil {
		return nil, err
	}
	return frames, nil
}

// NdTerrainRange returns the elevation band of the map rendered at timestamp.
func (t *Terrain) NdTerrainRange(ctx context.Context, side Side, timestamp int64) (*TerrainRange, error) {
	var tr TerrainRange
	if err := t.getJSON(ctx, "terrain.terrainRange", "/terrainRange", displayQuery(side, timestamp), &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

func (t *Terrain) getJSON(ctx context.Context, op, path string, query []httpx.Param, out any) error {
	if err := t.gate(); err != nil {
		return err
	}

	resp, err := t.client.Do(ctx, &httpx.Request{
		Op:     op,
		Method: http.MethodGet,
		Path:   terrainPath + path,
		Query:  query,
		Header: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		return asServerError(op, err)
	}
	if err := httpx.CheckStatus(resp); err != nil {
		return asServerError(op, err)
	}
	if err := httpx.DecodeJSON(resp, out); err != nil {
		return asServerError(op, err)
	}
	return nil
}

// RenderNdMap asks SimBridge to render a new map for side and returns the
// timestamp of the render.
func (t *Terrain) RenderNdMap(ctx context.Context, side Side) (int64, error) {
	const op = "terrain.renderMap"
	if err := t.gate(); err != nil {
		return 0, err
	}

	resp, err := t.client.Do(ctx, &httpx.Request{
		Op:     op,
		Method: http.MethodGet,
		Path:   terrainPath + "/renderMap",
		Query:  []httpx.Param{{Key: "display", Value: string(side)}},
	})
	if err != nil {
		return 0, asServerError(op, err)
	}
	if err := httpx.CheckStatus(resp); err != nil {
		return 0, asServerError(op, err)
	}
	text, err := httpx.ReadAllAndClose(resp.Body)
	if err != nil {
		return 0, asServerError(op, err)
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(string(text)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("simbridge: %s: invalid timestamp %q: %w", op, text, err)
	}
	return ts, nil
}
