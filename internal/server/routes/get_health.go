package routes

import (
	"net/http"
	"time"

	"github.com/OFFIS-RIT/proteus/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/proteus/backend/pkg/ai"

	"github.com/labstack/echo/v4"
)

func GetHealthHandler(c echo.Context) error {
	type healthResponse struct {
		OK    bool             `json:"ok"`
		Ts    int64            `json:"ts"`
		Usage *ai.ModelMetrics `json:"usage,omitempty"`
	}

	res := healthResponse{OK: true, Ts: time.Now().Unix()}
	if app := c.(*middleware.AppContext).App; app.Usage != nil {
		usage := app.Usage.GetMetrics()
		res.Usage = &usage
	}
	return c.JSON(http.StatusOK, res)
}
