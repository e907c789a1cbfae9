package simbridge

import (
	"context"
	"net/http"

	"github.com/prologic/simbridgefs/internal/httpx"
)

const coroutePath = "/api/v1/coroute"

// CompanyRoutes retrieves stored company routes.
type CompanyRoutes struct {
	client *httpx.Client
}

// GetRoute returns the company route named routeID. Only HTTP 200 counts as
// success.
func (r *CompanyRoutes) GetRoute(ctx context.Context, routeID string) (*CoRoute, error) {
	const op = "coroute.get"
	if routeID == "" {
		return nil, missing("no company route provided")
	}

	resp, err := r.client.Do(ctx, &httpx.Request{
		Op:     op,
		Method: http.MethodGet,
		Path:   coroutePath,
		Query:  []httpx.Param{{Key: "rteNum", Value: routeID}},
	})
	if err != nil {
		return nil, asServerError(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, asServerError(op, httpx.NewHTTPError(resp))
	}

	var route CoRoute
	if err := httpx.DecodeJSON(resp, &route); err != nil {
		return nil, asServerError(op, err)
	}
	return &route, nil
}

// ListRoutes returns the company routes between origin and destination. One of
// the two may be empty.
func (r *CompanyRoutes) ListRoutes(ctx context.Context, origin, destination string) ([]CoRoute, error) {
	const op = "coroute.list"
	if origin == "" && destination == "" {
		return nil, missing("origin or destination missing")
	}

	resp, err := r.client.Do(ctx, &httpx.Request{
		Op:     op,
		Method: http.MethodGet,
		Path:   coroutePath + "/list",
		Query: []httpx.Param{
			{Key: "origin", Value: origin},
			{Key: "destination", Value: destination},
		},
	})
	if err != nil {
		return nil, asServerError(op, err)
	}
	if err := httpx.CheckStatus(resp); err != nil {
		return nil, asServerError(op, err)
	}

	var routes []CoRoute
	if err := httpx.DecodeJSON(resp, &routes); err != nil {
		return nil, asServerError(op, err)
	}
	return routes, nil
}
