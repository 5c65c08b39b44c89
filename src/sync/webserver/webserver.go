package webserver

import (
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/giveth/pledge-sync/src/sync/queue"
	"github.com/giveth/pledge-sync/src/sync/store"
)

// New builds the read-only ops router. Mutations only ever come from the
// reconciliation engine; this surface is for dashboards and debugging.
func New(db *gorm.DB, q *queue.TxQueue) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	h := handlers{
		donations: store.NewDonations(db),
		histories: store.NewHistories(db),
		queue:     q,
	}

	r.GET("/healthz", h.health)
	v1 := r.Group("/v1")
	{
		v1.GET("/donations", h.listDonations)
		v1.GET("/donations/:id/history", h.donationHistory)
		v1.GET("/queue", h.queueStats)
	}
	return r
}

type handlers struct {
	donations *store.Donations
	histories *store.Histories
	queue     *queue.TxQueue
}

func (h handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h handlers) listDonations(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	out, err := h.donations.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"donations": out})
}

func (h handlers) donationHistory(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad donation id"})
		return
	}
	out, err := h.histories.ListByDonation(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": out})
}

func (h handlers) queueStats(c *gin.Context) {
	keys := h.queue.Keys()
	c.JSON(http.StatusOK, gin.H{"in_flight": len(keys), "tx_hashes": keys})
}
