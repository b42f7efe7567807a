package http

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
)

// Moder is satisfied by every loan backend.
type Moder interface{ Mode() string }

type identity interface {
	Account() common.Address
	Contract() common.Address
}

type Handler struct{ backend Moder }

func NewHandler(b Moder) *Handler { return &Handler{backend: b} }

func (h *Handler) Health(c echo.Context) error {
	body := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339Nano),
		"mode":   h.backend.Mode(),
	}
	if id, ok := h.backend.(identity); ok {
		body["account"] = id.Account().Hex()
		body["contract"] = id.Contract().Hex()
	}
	return c.JSON(http.StatusOK, body)
}
