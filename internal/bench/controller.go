package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"arc-framework/benchd/internal/launcher"
	"arc-framework/benchd/internal/server"
	"arc-framework/benchd/internal/store"
)

const (
	controllerName  = "bench-controller"
	htmlContentType = "text/html; charset=utf-8"
	extraFortune    = "Additional fortune added at request time."
)

// Controller serves the benchmark routes. Route groups are registered per
// store engine, e.g. /memory/db and /postgresql/db.
type Controller struct {
	settings  Settings
	stores    map[string]store.Store
	renderers map[string]Renderer
	logger    *slog.Logger
	intn      func(n int) int
}

var (
	_ launcher.Component = (*Controller)(nil)
	_ server.Mounter     = (*Controller)(nil)
)

// NewController builds a Controller over stores keyed by engine name. Every
// template named in settings must be a known engine.
func NewController(settings Settings, stores map[string]store.Store, logger *slog.Logger) (*Controller, error) {
	renderers, err := Renderers(settings.Templates)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		settings:  settings,
		stores:    stores,
		renderers: renderers,
		logger:    logger,
		intn:      rand.IntN,
	}, nil
}

func (c *Controller) Name() string { return controllerName }

// engines returns the store engine names in route order.
func (c *Controller) engines() []string {
	names := make([]string, 0, len(c.stores))
	for name := range c.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mount registers /plaintext, /json and one route group per store.
func (c *Controller) Mount(r gin.IRouter) {
	r.GET("/plaintext", c.Plaintext)
	r.GET("/json", c.JSON)

	for _, engine := range c.engines() {
		s := c.stores[engine]
		g := r.Group("/" + engine)
		for id, renderer := range c.renderers {
			g.GET("/"+id+"/fortunes", c.fortunes(s, renderer))
		}
		g.GET("/db", c.db(s))
		g.GET("/query", c.query(s))
		g.GET("/cached", c.cached(s))
		g.GET("/update", c.update(s))
	}
}

// Plaintext handles GET /plaintext.
func (c *Controller) Plaintext(ctx *gin.Context) {
	ctx.String(http.StatusOK, c.settings.TextMessage)
}

// JSON handles GET /json.
func (c *Controller) JSON(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"message": c.settings.TextMessage})
}

func (c *Controller) db(s store.Store) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		worlds, err := s.FindWorlds(ctx.Request.Context(), c.randomIDs(1))
		if err != nil {
			c.fail(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, worlds[0])
	}
}

func (c *Controller) query(s store.Store) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ids := c.randomIDs(WorldsCount(ctx.Query(c.settings.QueriesParam)))
		worlds, err := s.FindWorlds(ctx.Request.Context(), ids)
		if err != nil {
			c.fail(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, worlds)
	}
}

func (c *Controller) cached(s store.Store) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ids := c.randomIDs(WorldsCount(ctx.Query(c.settings.CachedQueriesParam)))
		worlds, err := s.FindCachedWorlds(ctx.Request.Context(), ids)
		if err != nil {
			c.fail(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, worlds)
	}
}

// update replaces random worlds with random numbers drawn from the same
// range as the ids.
func (c *Controller) update(s store.Store) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		n := WorldsCount(ctx.Query(c.settings.QueriesParam))
		worlds := make([]store.World, n)
		for i := range worlds {
			worlds[i] = store.World{ID: c.randomWorld(), RandomNumber: c.randomWorld()}
		}
		if err := s.ReplaceWorlds(ctx.Request.Context(), worlds); err != nil {
			c.fail(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, worlds)
	}
}

func (c *Controller) fortunes(s store.Store, r Renderer) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		fortunes, err := ListFortunes(ctx.Request.Context(), s)
		if err != nil {
			c.fail(ctx, err)
			return
		}
		var buf bytes.Buffer
		if err := r.Render(&buf, fortunes); err != nil {
			c.fail(ctx, fmt.Errorf("rendering fortunes: %w", err))
			return
		}
		ctx.Data(http.StatusOK, htmlContentType, buf.Bytes())
	}
}

// ListFortunes returns every stored fortune plus the request-time fortune,
// sorted by message.
func ListFortunes(ctx context.Context, s store.Store) ([]store.Fortune, error) {
	stored, err := s.FindAllFortunes(ctx)
	if err != nil {
		return nil, err
	}
	fortunes := make([]store.Fortune, 0, len(stored)+1)
	fortunes = append(fortunes, stored...)
	fortunes = append(fortunes, store.Fortune{ID: 0, Message: extraFortune})
	sort.SliceStable(fortunes, func(i, j int) bool {
		return fortunes[i].Message < fortunes[j].Message
	})
	return fortunes, nil
}

func (c *Controller) randomWorld() int32 {
	return int32(c.intn(c.settings.WorldRows) + 1)
}

func (c *Controller) randomIDs(n int) []int32 {
	ids := make([]int32, n)
	for i := range ids {
		ids[i] = c.randomWorld()
	}
	return ids
}

func (c *Controller) fail(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, store.ErrNotFound) {
		status = http.StatusNotFound
	}
	c.logger.ErrorContext(ctx.Request.Context(), "bench request failed",
		"path", ctx.FullPath(), "status", status, "err", err)
	ctx.AbortWithStatusJSON(status, gin.H{"status": "error", "error": err.Error()})
}
