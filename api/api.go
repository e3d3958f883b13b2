/*
Copyright 2024 Pledge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/pledgebet/pledge"
	"github.com/pledgebet/pledge/api/middleware"
	"github.com/pledgebet/pledge/config"
	"github.com/pledgebet/pledge/internal/apierror"
	"github.com/pledgebet/pledge/internal/backups"
)

type Api struct {
	pledge  *pledge.Pledge
	router  *gin.Engine
	backups *backups.BackupManager
	secure  bool
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.GET("/charities", a.GetCharities)

	goals := router.Group("/goals", middleware.OwnerMiddleware())
	goals.POST("", a.CreateGoal)
	goals.GET("", a.GetGoals)
	goals.GET("/active", a.GetActiveGoal)
	goals.GET("/:id", a.GetGoal)
	goals.GET("/:id/countdown", a.GetCountdown)
	goals.POST("/:id/deposit", a.FundDeposit)
	goals.POST("/:id/confirmation", a.RequestConfirmation)
	goals.PUT("/:id/confirmation", a.CommitConfirmation)
	goals.POST("/:id/expire", a.ExpireGoal)
	goals.POST("/:id/reclaim", a.ReclaimDeposit)

	goals.POST("/:id/donation", a.ChooseTarget)
	goals.GET("/:id/donation", a.GetDonation)
	goals.POST("/:id/donation/confirm", a.ConfirmDonation)

	// backups export every owner's data and always need the secret key
	admin := router.Group("")
	if !a.secure {
		admin.Use(middleware.SecretKeyAuthMiddleware())
	}
	admin.GET("/backup", a.BackupDB)
	admin.GET("/backup-s3", a.BackupDBS3)
	return a.router
}

func NewAPI(p *pledge.Pledge) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	if conf.EnableTelemetry {
		r.Use(otelgin.Middleware(conf.ProjectName))
	}
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{pledge: p, router: r, backups: backups.NewBackupManager(conf.Backup), secure: conf.Server.Secure}
}

// respondError writes err with the status its code maps to. Errors that do
// not carry a code are reported as internal errors without their text.
func respondError(c *gin.Context, err error) {
	var apiErr apierror.APIError
	if !errors.As(err, &apiErr) {
		apiErr = apierror.NewAPIError(apierror.ErrInternalServer, "An internal error occurred", nil)
	}
	c.JSON(apierror.MapErrorToHTTPStatus(apiErr), gin.H{"error": apiErr})
}

func invalidInput(c *gin.Context, err error) {
	respondError(c, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil))
}
