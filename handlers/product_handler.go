// handlers/product_handler.go
package handlers

import (
	"net/http"

	"github.com/gewnthar/favdemand/services"
	"github.com/gin-gonic/gin"
)

// ProductHandler serves read-only product lookups.
type ProductHandler struct {
	products *services.ProductService
}

func NewProductHandler(products *services.ProductService) *ProductHandler {
	return &ProductHandler{products: products}
}

// List handles GET /api/products with the shared filters plus page and page_size.
func (h *ProductHandler) List(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	page, err := queryInt(c, "page", 1, 1, 1<<30)
	if err != nil {
		respondWithError(c, err)
		return
	}
	pageSize, err := queryInt(c, "page_size", services.DefaultPageSize, 1, services.MaxPageSize)
	if err != nil {
		respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, h.products.Search(filter, page, pageSize))
}

// Get handles GET /api/products/:id.
func (h *ProductHandler) Get(c *gin.Context) {
	p, err := h.products.GetByID(c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, p)
}

func (h *ProductHandler) Categories(c *gin.Context) {
	respondWithJSON(c, http.StatusOK, h.products.Categories())
}

// Brands handles GET /api/products/brands?category=.
func (h *ProductHandler) Brands(c *gin.Context) {
	respondWithJSON(c, http.StatusOK, h.products.Brands(c.Query("category")))
}
