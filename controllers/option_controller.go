package controllers

import (
	"fmt"
	"net/http"

	"market_reader_backend/models"
	"market_reader_backend/services/cache"
	"market_reader_backend/services/contracts"
	"market_reader_backend/services/options"
	"market_reader_backend/services/prices"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OptionController serves discovered option contracts. Options are created by
// the scheduler's discovery step, never through the API, so the surface is
// read-only.
type OptionController struct {
	contracts *contracts.Service
	options   *options.Service
	prices    *prices.Service
	cache     *cache.Service
}

// NewOptionController creates an option controller.
func NewOptionController(db *gorm.DB, cacheSvc *cache.Service) *OptionController {
	contractSvc := contracts.NewService(db, nil)
	return &OptionController{
		contracts: contractSvc,
		options:   options.NewService(db, contractSvc),
		prices:    prices.NewService(db),
		cache:     cacheSvc,
	}
}

func (oc *OptionController) underlying(c *gin.Context) *models.Contract {
	stock, err := oc.contracts.BySymbol(c.Param("symbol"), models.ContractStock)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stock"})
		return nil
	}
	if stock == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stock not found"})
		return nil
	}
	return stock
}

// Expirations returns the distinct stored expiration dates for a symbol
// GET /api/v1/options/:symbol
func (oc *OptionController) Expirations(c *gin.Context) {
	stock := oc.underlying(c)
	if stock == nil {
		return
	}

	expirations, err := oc.options.Expirations(stock.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch expirations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": expirations})
}

// Strikes returns the distinct stored strikes for a symbol and expiration
// GET /api/v1/options/:symbol/:expiration/strikes
func (oc *OptionController) Strikes(c *gin.Context) {
	stock := oc.underlying(c)
	if stock == nil {
		return
	}

	strikes, err := oc.options.Strikes(stock.ID, c.Param("expiration"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": strikes})
}

// Bars returns stored price bars for one option contract
// GET /api/v1/options/:symbol/:expiration
func (oc *OptionController) Bars(c *gin.Context) {
	stock := oc.underlying(c)
	if stock == nil {
		return
	}
	expiration := c.Param("expiration")

	strike, err := decimal.NewFromString(c.Query("strike"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid strike"})
		return
	}
	right, err := models.ParseRight(c.Query("right"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	option, err := oc.options.ByKey(stock.ID, expiration, strike, right)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if option == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Option contract not found"})
		return
	}

	query, ok := parseBarQuery(c)
	if !ok {
		return
	}

	key := fmt.Sprintf("bars:Option:%s:%s:%s:%s:%s:%d:%s:%d",
		stock.Symbol, expiration, strike, right, query.dataType, query.barSize, query.order, query.limit)
	serveBars(c, oc.cache, oc.prices, option.ID, key, query)
}
