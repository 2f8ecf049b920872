package tiers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes exposes the public catalogue.
func RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/tiers", listTiers)
	r.GET("/tiers/:id", getTier)
}

func listTiers(c *gin.Context) {
	all := All()
	c.JSON(http.StatusOK, gin.H{"tiers": all, "count": len(all)})
}

func getTier(c *gin.Context) {
	def, ok := Resolve(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "unknown tier"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tier": def})
}
