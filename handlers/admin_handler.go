// handlers/admin_handler.go
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gewnthar/favdemand/models"
	"github.com/gewnthar/favdemand/services"
	"github.com/gewnthar/favdemand/utils"
	"github.com/gin-gonic/gin"
)

// AdminHandler serves the /api/cache routes: stats, row edits, clear and reload.
type AdminHandler struct {
	products *services.ProductService
	log      *utils.Logger
}

func NewAdminHandler(products *services.ProductService, log *utils.Logger) *AdminHandler {
	return &AdminHandler{products: products, log: log.With("component", "admin")}
}

func (h *AdminHandler) Stats(c *gin.Context) {
	respondWithJSON(c, http.StatusOK, h.products.Stats())
}

// AddProduct handles POST /api/cache/products.
func (h *AdminHandler) AddProduct(c *gin.Context) {
	var in models.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondWithError(c, fmt.Errorf("%w: invalid request body: %v", models.ErrInvalidArgument, err))
		return
	}
	rec, total, err := h.products.Add(in)
	if err != nil {
		respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusCreated, gin.H{"product": rec, "total_products": total})
}

// UpdateProduct handles PUT /api/cache/products/:id with a partial body.
func (h *AdminHandler) UpdateProduct(c *gin.Context) {
	var patch models.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondWithError(c, fmt.Errorf("%w: invalid request body: %v", models.ErrInvalidArgument, err))
		return
	}
	id := c.Param("id")
	n, err := h.products.Update(id, patch)
	if err != nil {
		respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, gin.H{"id": id, "updated_rows": n})
}

// DeleteProduct handles DELETE /api/cache/products/:id.
func (h *AdminHandler) DeleteProduct(c *gin.Context) {
	id := c.Param("id")
	total, err := h.products.Delete(id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, gin.H{"id": id, "total_products": total})
}

// DeleteProducts handles DELETE /api/cache/products with {"product_ids": [...]}.
func (h *AdminHandler) DeleteProducts(c *gin.Context) {
	var req models.DeleteProductsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, fmt.Errorf("%w: invalid request body: %v", models.ErrInvalidArgument, err))
		return
	}
	if len(req.ProductIDs) == 0 {
		respondWithError(c, fmt.Errorf("%w: product_ids must not be empty", models.ErrInvalidArgument))
		return
	}
	removed, total, err := h.products.DeleteMany(req.ProductIDs)
	if err != nil {
		respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, gin.H{"removed_rows": removed, "total_products": total})
}

// Clear handles POST /api/cache/clear?persistent=true|false.
func (h *AdminHandler) Clear(c *gin.Context) {
	persistent, err := strconv.ParseBool(c.DefaultQuery("persistent", "false"))
	if err != nil {
		respondWithError(c, fmt.Errorf("%w: persistent must be a boolean", models.ErrInvalidArgument))
		return
	}
	removed := h.products.Clear(c.Request.Context(), persistent)
	respondWithJSON(c, http.StatusOK, gin.H{"removed_rows": removed, "persistent": persistent})
}

// Reload handles POST /api/cache/reload?force=true|false. The request waits for ingestion.
func (h *AdminHandler) Reload(c *gin.Context) {
	force, err := strconv.ParseBool(c.DefaultQuery("force", "true"))
	if err != nil {
		respondWithError(c, fmt.Errorf("%w: force must be a boolean", models.ErrInvalidArgument))
		return
	}
	h.log.Info("Reload requested", "force", force)
	res, err := h.products.Reload(c.Request.Context(), force)
	if err != nil {
		respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, gin.H{
		"message":        fmt.Sprintf("Loaded %d products from %d files.", len(res.Rows), len(res.Files)),
		"total_products": len(res.Rows),
		"files_loaded":   len(res.Files),
		"failed_files":   res.Failed,
		"from_cache":     res.FromCache,
	})
}
