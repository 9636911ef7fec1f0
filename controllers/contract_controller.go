package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"market_reader_backend/models"
	"market_reader_backend/services/cache"
	"market_reader_backend/services/contracts"
	"market_reader_backend/services/gateway"
	"market_reader_backend/services/prices"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// barsCacheTTL bounds how stale a cached bar response may get. Bars only grow
// by one per bar-size interval, so a short TTL loses nothing.
const barsCacheTTL = 60 * time.Second

// ContractController serves one contract class (Stock, Future, Forex or
// Index). Options have their own controller.
type ContractController struct {
	class     models.ContractType
	contracts *contracts.Service
	prices    *prices.Service
	cache     *cache.Service
}

// NewContractController creates a controller for one contract class.
func NewContractController(db *gorm.DB, sessions *gateway.SessionManager, cacheSvc *cache.Service, class models.ContractType) *ContractController {
	return &ContractController{
		class:     class,
		contracts: contracts.NewService(db, sessions),
		prices:    prices.NewService(db),
		cache:     cacheSvc,
	}
}

// createContractRequest is the payload for creating any contract class.
type createContractRequest struct {
	Symbol   string  `json:"symbol" binding:"required"`
	Exchange *string `json:"exchange"`
	Currency *string `json:"currency"`
	ToTrade  *bool   `json:"to_trade"`
}

func (r *createContractRequest) toContract(class models.ContractType) models.Contract {
	contract := models.Contract{
		Symbol:       r.Symbol,
		ContractType: class,
		Currency:     "USD",
		Exchange:     r.Exchange,
		ToTrade:      r.ToTrade,
	}
	if contract.Exchange == nil {
		smart := "SMART"
		contract.Exchange = &smart
	}
	if r.Currency != nil {
		contract.Currency = *r.Currency
	}
	if contract.ToTrade == nil {
		tradable := true
		contract.ToTrade = &tradable
	}
	return contract
}

// List returns all contracts of the controller's class
// GET /api/v1/{class}
func (cc *ContractController) List(c *gin.Context) {
	list, err := cc.contracts.List(cc.class)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch contracts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Create stores a new contract. Stocks are onboarded asynchronously through
// the gateway (202); the other classes are stored directly (201).
// POST /api/v1/{class}
func (cc *ContractController) Create(c *gin.Context) {
	var req createContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contract := req.toContract(cc.class)
	exists, err := cc.contracts.Exists(contract)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check contract"})
		return
	}
	if exists {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s already exists", cc.class)})
		return
	}

	if cc.class == models.ContractStock {
		// Resolving the gateway identifier takes a session round trip,
		// so accept the request and onboard in the background.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := cc.contracts.OnboardStock(ctx, contract.Symbol, contract.Exchange, contract.Currency, *contract.ToTrade); err != nil {
				log.Printf("Stock onboarding failed for %s: %v", contract.Symbol, err)
			}
		}()
		c.Status(http.StatusAccepted)
		return
	}

	if err := cc.contracts.Create(&contract); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create contract"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": contract})
}

// Delete removes a contract by symbol, cascading to dependent options.
// DELETE /api/v1/{class}/:symbol
func (cc *ContractController) Delete(c *gin.Context) {
	contract, err := cc.contracts.BySymbol(c.Param("symbol"), cc.class)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch contract"})
		return
	}
	if contract == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%s not found", cc.class)})
		return
	}

	if err := cc.contracts.Delete(contract); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete contract"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Bars returns stored price bars for a symbol of the controller's class
// GET /api/v1/{class}/:symbol/bars
func (cc *ContractController) Bars(c *gin.Context) {
	symbol := c.Param("symbol")

	contract, err := cc.contracts.BySymbol(symbol, cc.class)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch contract"})
		return
	}
	if contract == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%s not found", cc.class)})
		return
	}

	query, ok := parseBarQuery(c)
	if !ok {
		return
	}

	key := fmt.Sprintf("bars:%s:%s:%s:%d:%s:%d",
		cc.class, symbol, query.dataType, query.barSize, query.order, query.limit)
	serveBars(c, cc.cache, cc.prices, contract.ID, key, query)
}

// barQuery holds the validated bar-query parameters shared by every class.
type barQuery struct {
	dataType models.DataType
	barSize  int
	order    string
	limit    int
}

func parseBarQuery(c *gin.Context) (barQuery, bool) {
	dataType, err := models.ParseDataType(c.Query("data_type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return barQuery{}, false
	}

	barSize, err := strconv.Atoi(c.Query("bar_size"))
	if err != nil || barSize <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bar size"})
		return barQuery{}, false
	}

	order := c.DefaultQuery("order", "desc")
	if order != "desc" && order != "asc" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order"})
		return barQuery{}, false
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "500"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return barQuery{}, false
	}

	return barQuery{dataType: dataType, barSize: barSize, order: order, limit: limit}, true
}

// serveBars answers a bar query, going through the response cache first.
func serveBars(c *gin.Context, cacheSvc *cache.Service, priceSvc *prices.Service, contractID uint, key string, query barQuery) {
	if payload, hit := cacheSvc.Get(c.Request.Context(), key); hit {
		c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
		return
	}

	bars, err := priceSvc.Bars(contractID, query.dataType, query.barSize, query.order, query.limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bars"})
		return
	}

	payload, err := json.Marshal(gin.H{"data": bars})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode bars"})
		return
	}

	cacheSvc.Set(c.Request.Context(), key, payload, barsCacheTTL)
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}
