package api

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

func parsePages() *template.Template {
	return template.Must(template.New("pages").ParseFS(templateFS, "templates/*.html"))
}

// productsFragment renders the farmer's product table for in-page swaps.
func (h *Handler) productsFragment(c *gin.Context) {
	page, err := h.svc.Products.ListProducts(c.Request.Context(), farmerID(c), productFilter(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.HTML(http.StatusOK, "products_list.html", page)
}

func (h *Handler) lowStockFragment(c *gin.Context) {
	products, err := h.svc.Products.LowStockProducts(c.Request.Context(), farmerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.HTML(http.StatusOK, "low_stock_list.html", gin.H{"Products": products})
}
