package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"options_watchlist_backend/services"

	"github.com/gin-gonic/gin"
)

// OptionsController handles watchlist and option-chain requests
type OptionsController struct {
	registry *services.SymbolRegistry
	store    *services.SnapshotStore
	cache    *services.ResponseCache
	refresh  *services.RefreshScheduler
	cacheTTL time.Duration
}

// NewOptionsController creates a new options controller
func NewOptionsController(registry *services.SymbolRegistry, store *services.SnapshotStore, cache *services.ResponseCache, refresh *services.RefreshScheduler, cacheTTL time.Duration) *OptionsController {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &OptionsController{
		registry: registry,
		store:    store,
		cache:    cache,
		refresh:  refresh,
		cacheTTL: cacheTTL,
	}
}

// ListSymbols returns the active watchlist
// GET /api/v1/symbols
func (oc *OptionsController) ListSymbols(c *gin.Context) {
	symbols, err := oc.registry.ListActive()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list symbols"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  symbols,
		"count": len(symbols),
	})
}

// AddSymbol registers a symbol for tracking
// POST /api/v1/symbols
func (oc *OptionsController) AddSymbol(c *gin.Context) {
	var request struct {
		Symbol    string `json:"symbol" binding:"required"`
		Preferred bool   `json:"preferred"`
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	tracked, err := oc.registry.AddOrUpdate(request.Symbol, request.Preferred)
	if err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add symbol"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": tracked})
}

// RemoveSymbol takes a symbol out of the refresh rotation. Its snapshot
// history is kept.
// DELETE /api/v1/symbols/:symbol
func (oc *OptionsController) RemoveSymbol(c *gin.Context) {
	symbol := c.Param("symbol")

	if err := oc.registry.Deactivate(symbol); err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusNotFound, gin.H{"error": verr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove symbol"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Symbol removed from rotation"})
}

// GetLatestRanked returns the newest snapshot for a symbol with its
// contracts ranked by score, served through the short-TTL cache.
// GET /api/v1/options/:symbol/latest
func (oc *OptionsController) GetLatestRanked(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	forceRefresh := c.Query("refresh") == "true"

	key := services.CacheKey{Symbol: symbol, Kind: "latest"}
	value, fromCache, err := oc.cache.GetOrFetch(key, oc.cacheTTL, func() (interface{}, error) {
		return oc.store.GetLatest(symbol)
	}, forceRefresh)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load latest snapshot"})
		return
	}

	detail, _ := value.(*services.SnapshotDetail)
	if detail == nil {
		// Tracked but never refreshed, or unknown: either way there is
		// nothing to rank yet.
		c.JSON(http.StatusOK, gin.H{
			"symbol":    symbol,
			"message":   "No data yet for this symbol",
			"contracts": []interface{}{},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":                   symbol,
		"snapshot":                 detail.Snapshot,
		"contracts":                detail.Contracts,
		"cached":                   fromCache,
		"cache_time_remaining_min": oc.cache.TimeRemaining(key),
	})
}

// GetHistory returns recent snapshots for a symbol, newest first and
// deduplicated within hour buckets
// GET /api/v1/options/:symbol/history
func (oc *OptionsController) GetHistory(c *gin.Context) {
	symbol := c.Param("symbol")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	snapshots, err := oc.store.GetRecent(symbol, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  snapshots,
		"count": len(snapshots),
	})
}

// GetPerformance returns per-day aggregates over a trailing window
// GET /api/v1/options/:symbol/performance
func (oc *OptionsController) GetPerformance(c *gin.Context) {
	symbol := c.Param("symbol")
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))

	performance, err := oc.store.GetPerformance(symbol, days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load performance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": performance,
		"days": days,
	})
}

// TriggerRefresh refreshes one symbol on demand, outside the rotation.
// The scheduler cursor is not advanced.
// POST /api/v1/refresh/:symbol
func (oc *OptionsController) TriggerRefresh(c *gin.Context) {
	symbol := c.Param("symbol")

	if err := oc.refresh.RefreshManual(symbol); err != nil {
		var verr *services.ValidationError
		var ferr *services.UpstreamFetchError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
		case errors.As(err, &ferr):
			c.JSON(http.StatusBadGateway, gin.H{"error": ferr.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Refresh failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Refresh completed"})
}

// GetStatus reports market state, cursor position and registry statistics
// GET /api/v1/refresh/status
func (oc *OptionsController) GetStatus(c *gin.Context) {
	status, err := oc.refresh.Status()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": status})
}
