// Package sandbox emulates the SimBridge HTTP API from fixture data, for local
// development and tests.
package sandbox

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/prologic/simbridgefs/simbridge"
)

// Option configures a Server.
type Option func(*Server)

// WithLatency delays every response by d.
func WithLatency(d time.Duration) Option {
	return func(s *Server) { s.latency = d }
}

// WithFailure answers every request with status.
func WithFailure(status int) Option {
	return func(s *Server) { s.failStatus = status }
}

// Server is an in-memory SimBridge.
type Server struct {
	router *gin.Engine

	mu         sync.RWMutex
	routes     []simbridge.CoRoute
	pdfs       map[string][][]byte
	images     map[string][]byte
	terrain    TerrainSeed
	position   *simbridge.Position
	display    map[simbridge.Side]simbridge.DisplaySettings
	renders    map[simbridge.Side]int64
	latency    time.Duration
	failStatus int
	requests   map[string]int
}

// New builds a Server from seed. A nil seed serves empty folders.
func New(seed *Seed, opts ...Option) (*Server, error) {
	if seed == nil {
		seed = &Seed{}
	}

	s := &Server{
		routes:   seed.Routes,
		pdfs:     make(map[string][][]byte),
		images:   make(map[string][]byte),
		terrain:  seed.Terrain,
		display:  make(map[simbridge.Side]simbridge.DisplaySettings),
		renders:  make(map[simbridge.Side]int64),
		requests: make(map[string]int),
	}
	for name, pages := range seed.PDFs {
		decoded, err := decodePages(name, pages)
		if err != nil {
			return nil, err
		}
		s.pdfs[name] = decoded
	}
	for name, img := range seed.Images {
		data, err := base64.StdEncoding.DecodeString(img)
		if err != nil {
			return nil, fmt.Errorf("sandbox: image %s: %w", name, err)
		}
		s.images[name] = data
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = s.newRouter()
	return s, nil
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler { return s.router }

// SetFailure makes every following request fail with status. Zero clears it.
func (s *Server) SetFailure(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// SetTerrainEnabled switches the terrain endpoints on or off.
func (s *Server) SetTerrainEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terrain.Disabled = !enabled
}

// Requests returns how many requests reached path.
func (s *Server) Requests(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requests[path]
}

// LastPosition returns the most recent reported position.
func (s *Server) LastPosition() (simbridge.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.position == nil {
		return simbridge.Position{}, false
	}
	return *s.position, true
}

// DisplaySettings returns the settings last sent for side.
func (s *Server) DisplaySettings(side simbridge.Side) (simbridge.DisplaySettings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.display[side]
	return ds, ok
}

func (s *Server) newRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.middleware())

	v1 := r.Group("/api/v1")

	terrain := v1.Group("/terrain")
	terrain.GET("/available", s.available)
	terrain.Use(s.terrainEnabled())
	terrain.PATCH("/position", s.setPosition)
	terrain.PUT("/displaysettings", s.setDisplaySettings)
	terrain.GET("/ndMapAvailable", s.ndMapAvailable)
	terrain.GET("/ndmaps", s.ndMaps)
	terrain.GET("/terrainRange", s.terrainRange)
	terrain.GET("/renderMap", s.renderMap)

	v1.GET("/coroute", s.getRoute)
	v1.GET("/coroute/list", s.listRoutes)

	utility := v1.Group("/utility")
	utility.GET("/pdf", s.pdfPage)
	utility.GET("/pdf/numpages", s.pdfPageCount)
	utility.GET("/pdf/list", s.pdfList)
	utility.GET("/image", s.image)
	utility.GET("/image/list", s.imageList)

	return r
}

func (s *Server) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		s.requests[c.Request.URL.Path]++
		latency, fail := s.latency, s.failStatus
		s.mu.Unlock()

		if latency > 0 {
			time.Sleep(latency)
		}
		if fail != 0 {
			c.AbortWithStatus(fail)
		} else {
			c.Next()
		}
		log.WithField("method", c.Request.Method).
			WithField("path", c.Request.URL.Path).
			WithField("status", c.Writer.Status()).
			Debug("sandbox request")
	}
}

func (s *Server) terrainEnabled() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.RLock()
		disabled := s.terrain.Disabled
		s.mu.RUnlock()
		if disabled {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	}
}

func (s *Server) available(c *gin.Context) {
	s.mu.RLock()
	disabled := s.terrain.Disabled
	s.mu.RUnlock()
	if disabled {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	c.Status(http.StatusOK)
}

func side(c *gin.Context) (simbridge.Side, bool) {
	switch sd := simbridge.Side(c.Query("display")); sd {
	case simbridge.SideLeft, simbridge.SideRight:
		return sd, true
	}
	c.String(http.StatusBadRequest, "invalid display")
	return "", false
}

func (s *Server) setPosition(c *gin.Context) {
	var pos simbridge.Position
	if err := c.ShouldBindJSON(&pos); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	s.position = &pos
	s.mu.Unlock()
	c.Status(http.StatusOK)
}

func (s *Server) setDisplaySettings(c *gin.Context) {
	sd, ok := side(c)
	if !ok {
		return
	}
	var ds simbridge.DisplaySettings
	if err := c.ShouldBindJSON(&ds); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	s.display[sd] = ds
	s.mu.Unlock()
	c.Status(http.StatusOK)
}

func (s *Server) ndMapAvailable(c *gin.Context) {
	sd, ok := side(c)
	if !ok {
		return
	}
	ts, err := strconv.ParseInt(c.Query("timestamp"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid timestamp")
		return
	}
	s.mu.RLock()
	rendered := s.renders[sd]
	s.mu.RUnlock()
	c.String(http.StatusOK, strconv.FormatBool(rendered != 0 && rendered >= ts))
}

func (s *Server) ndMaps(c *gin.Context) {
	if _, ok := side(c); !ok {
		return
	}
	s.mu.RLock()
	frames := append([]string{}, s.terrain.Frames...)
	s.mu.RUnlock()
	c.JSON(http.StatusOK, frames)
}

func (s *Server) terrainRange(c *gin.Context) {
	if _, ok := side(c); !ok {
		return
	}
	s.mu.RLock()
	tr := s.terrain.Range
	s.mu.RUnlock()
	c.JSON(http.StatusOK, tr)
}

func (s *Server) renderMap(c *gin.Context) {
	sd, ok := side(c)
	if !ok {
		return
	}
	s.mu.Lock()
	ts := time.Now().UnixMilli()
	if ts <= s.renders[sd] {
		ts = s.renders[sd] + 1
	}
	s.renders[sd] = ts
	s.mu.Unlock()
	c.String(http.StatusOK, strconv.FormatInt(ts, 10))
}

func (s *Server) getRoute(c *gin.Context) {
	name := c.Query("rteNum")
	if name == "" {
		c.String(http.StatusBadRequest, "rteNum is required")
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.routes {
		if r.Name == name {
			c.JSON(http.StatusOK, r)
			return
		}
	}
	c.String(http.StatusNotFound, "route not found")
}

func (s *Server) listRoutes(c *gin.Context) {
	origin, dest := c.Query("origin"), c.Query("destination")
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := []simbridge.CoRoute{}
	for _, r := range s.routes {
		if origin != "" && r.Origin.IcaoCode != origin {
			continue
		}
		if dest != "" && r.Destination.IcaoCode != dest {
			continue
		}
		matches = append(matches, r)
	}
	c.JSON(http.StatusOK, matches)
}

func (s *Server) pdfPage(c *gin.Context) {
	name := c.Query("filename")
	page, err := strconv.Atoi(c.Query("pagenumber"))
	if name == "" || err != nil {
		c.String(http.StatusBadRequest, "filename and pagenumber are required")
		return
	}
	s.mu.RLock()
	pages, ok := s.pdfs[name]
	s.mu.RUnlock()
	if !ok {
		c.String(http.StatusNotFound, "file not found")
		return
	}
	if page < 1 || page > len(pages) {
		c.String(http.StatusBadRequest, "page out of range")
		return
	}
	c.Data(http.StatusOK, "image/png", pages[page-1])
}

func (s *Server) pdfPageCount(c *gin.Context) {
	name := c.Query("filename")
	s.mu.RLock()
	pages, ok := s.pdfs[name]
	s.mu.RUnlock()
	if !ok {
		c.String(http.StatusNotFound, "file not found")
		return
	}
	c.JSON(http.StatusOK, len(pages))
}

func (s *Server) pdfList(c *gin.Context) {
	s.mu.RLock()
	names := make([]string, 0, len(s.pdfs))
	for name := range s.pdfs {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	c.JSON(http.StatusOK, names)
}

func (s *Server) image(c *gin.Context) {
	name := c.Query("filename")
	s.mu.RLock()
	data, ok := s.images[name]
	s.mu.RUnlock()
	if !ok {
		c.String(http.StatusNotFound, "file not found")
		return
	}
	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	c.Data(http.StatusOK, ct, data)
}

func (s *Server) imageList(c *gin.Context) {
	s.mu.RLock()
	names := make([]string, 0, len(s.images))
	for name := range s.images {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	c.JSON(http.StatusOK, names)
}
