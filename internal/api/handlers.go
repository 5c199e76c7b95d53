// Package api wires up the Gin HTTP router with all handler functions.
//
// The service exposes one cache instance over HTTP so that sidecar
// processes and operators can read, seed, and inspect it. The service
// itself never produces values: a GET that would elect this process as
// producer abandons the election immediately and reports a miss —
// production belongs to the in-process callers of the cache library.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dedup-cache/internal/cache"
)

// Handler holds all dependencies injected from main.
type Handler struct {
	cache *cache.Cache[string, string]
}

// NewHandler creates a Handler.
func NewHandler(c *cache.Cache[string, string]) *Handler {
	return &Handler{cache: c}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	g := r.Group("/cache")
	g.GET("/:key", h.Get)
	g.PUT("/:key", h.Put)
	g.GET("", h.Keys)
}

// Get handles GET /cache/:key
func (h *Handler) Get(c *gin.Context) {
	key := c.Param("key")
	ctx := c.Request.Context()

	entry := h.cache.Get(ctx, key)
	if entry.IsFirst() {
		// Nobody here will compute the value; release the election so
		// the next caller can.
		entry.Abandon()
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}

	value, err := entry.Get(ctx)
	if errors.Is(err, cache.ErrNoValue) {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"key":   key,
		"value": value,
	})
}

// Put handles PUT /cache/:key
// Body: {"value": "<string>"}
func (h *Handler) Put(c *gin.Context) {
	key := c.Param("key")

	var body struct {
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.cache.Insert(c.Request.Context(), key, body.Value)

	c.JSON(http.StatusOK, gin.H{
		"key":   key,
		"value": body.Value,
	})
}

// Keys handles GET /cache
// Returns the in-memory tier's keys, most recently used first.
func (h *Handler) Keys(c *gin.Context) {
	keys := h.cache.Keys()
	if keys == nil {
		keys = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"keys": keys,
		"len":  len(keys),
	})
}
