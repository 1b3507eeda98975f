// Package api exposes the relayer's operational HTTP surface: liveness and a
// small info endpoint. It is not a client-facing API.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nemesis-gg/portal-relayer/config"
)

// Version is stamped by the build.
var Version = "dev"

type Server struct {
	echo *echo.Echo
	cfg  *config.Config
}

type networkInfo struct {
	Name    string `json:"name"`
	ChainID int64  `json:"chainId"`
}

type infoResponse struct {
	Name     string        `json:"name"`
	Version  string        `json:"version"`
	Networks []networkInfo `json:"networks"`
}

func NewServer(cfg *config.Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/info", func(c echo.Context) error {
		networks := make([]networkInfo, 0, len(cfg.EvmNetworks))
		for _, network := range cfg.EvmNetworks {
			networks = append(networks, networkInfo{Name: network.Name, ChainID: network.ChainID})
		}
		return c.JSON(http.StatusOK, infoResponse{
			Name:     "portal-relayer",
			Version:  Version,
			Networks: networks,
		})
	})

	return &Server{echo: e, cfg: cfg}
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%d", s.cfg.HealthPort))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
