package controllers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samabos/tymblok/models"
	"github.com/samabos/tymblok/services"
)

type IntegrationController struct {
	service  *services.IntegrationService
	debounce time.Duration
}

func NewIntegrationController(service *services.IntegrationService, debounce time.Duration) *IntegrationController {
	return &IntegrationController{service: service, debounce: debounce}
}

type connectRequest struct {
	RedirectURI       string `json:"redirect_uri"`
	MobileRedirectURI string `json:"mobile_redirect_uri"`
}

func (ic *IntegrationController) List(c echo.Context) error {
	user := currentUser(c)
	integrations, err := ic.service.List(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, integrations)
}

func (ic *IntegrationController) Connect(c echo.Context) error {
	user := currentUser(c)
	provider, err := models.ParseProvider(c.Param("provider"))
	if err != nil {
		return err
	}

	var req connectRequest
	if err := c.Bind(&req); err != nil {
		return models.NewValidationError("invalid request body")
	}
	if req.RedirectURI == "" {
		return models.NewValidationError("redirect_uri is required")
	}

	authURL, state, err := ic.service.Connect(c.Request().Context(), user.ID, provider, req.RedirectURI, req.MobileRedirectURI)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{
		"auth_url": authURL,
		"state":    state,
	})
}

func (ic *IntegrationController) Callback(c echo.Context) error {
	user := currentUser(c)
	provider, err := models.ParseProvider(c.Param("provider"))
	if err != nil {
		return err
	}

	code := c.QueryParam("code")
	if code == "" {
		return models.NewValidationError("authorization code is required")
	}
	state := c.QueryParam("state")
	redirectURI := c.QueryParam("redirect_uri")

	integration, mobileRedirect, err := ic.service.Callback(c.Request().Context(), user.ID, provider, code, state, redirectURI)
	if err != nil {
		return err
	}

	if mobileRedirect != "" {
		target := mobileRedirect + "?connected=" + url.QueryEscape(string(provider))
		return c.Redirect(http.StatusFound, target)
	}
	return c.JSON(http.StatusOK, integration)
}

func (ic *IntegrationController) Sync(c echo.Context) error {
	user := currentUser(c)
	provider, err := models.ParseProvider(c.Param("provider"))
	if err != nil {
		return err
	}

	result, err := ic.service.Sync(c.Request().Context(), user.ID, provider)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (ic *IntegrationController) SyncAll(c echo.Context) error {
	user := currentUser(c)
	result, err := ic.service.SyncAll(c.Request().Context(), user.ID, ic.debounce)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (ic *IntegrationController) Disconnect(c echo.Context) error {
	user := currentUser(c)
	provider, err := models.ParseProvider(c.Param("provider"))
	if err != nil {
		return err
	}

	if err := ic.service.Disconnect(c.Request().Context(), user.ID, provider); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func currentUser(c echo.Context) *models.User {
	user, _ := c.Get("user").(*models.User)
	return user
}
