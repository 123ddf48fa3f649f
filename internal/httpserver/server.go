// Package httpserver exposes the REST side of the chatbot: the chat history
// endpoint backed by the CSV interaction log.
package httpserver

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// HistoryReader supplies past interactions as loosely-typed rows, one map per
// CSV record keyed by column name.
type HistoryReader interface {
	ReadAll() ([]map[string]string, error)
}

// New creates a configured Echo server with the chat history routes mounted.
func New(history HistoryReader) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/chat_history", func(c echo.Context) error {
		rows, err := history.ReadAll()
		if err != nil {
			log.Printf("chat history read failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, rows)
	})

	return e
}
