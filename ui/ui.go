// Package ui serves the browser front end for the API.
package ui

import (
	_ "embed"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/seo-optimizer/seo-inspector/middleware"
)

//go:embed index.html
var page string

// Page returns the UI markup pointed at the API on apiPort.
func Page(apiPort int) []byte {
	return []byte(strings.ReplaceAll(page, "{{API_PORT}}", strconv.Itoa(apiPort)))
}

// NewRouter builds the UI engine.
func NewRouter(apiPort int, logger logrus.FieldLogger) *gin.Engine {
	body := Page(apiPort)

	r := gin.New()
	r.Use(middleware.ErrorHandler(logger))
	r.Use(middleware.RequestLogger(logger))

	serve := func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", body)
	}
	r.GET("/", serve)
	r.GET("/index.html", serve)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
