package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/fatflowers/coursepay/internal/app/service/enrollment"
	"github.com/fatflowers/coursepay/internal/app/service/subscription"
	models "github.com/fatflowers/coursepay/internal/models"
	"github.com/fatflowers/coursepay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type EnrollmentItem struct {
	*models.CourseEnrollment
	HasAccess bool `json:"has_access"`
}

type UserSubscriptionResponse struct {
	*models.UserSubscription
	Entitled bool `json:"entitled"`
}

// @Summary      List User Enrollments
// @Description  Course enrollments of a user, newest first, with the current access flag.
// @Tags         User
// @Produce      json
// @Param        user_id query string true "User ID"
// @Success      200  {object}  handlers.RespUserEnrollments
// @Router       /api/v1/user/enrollments [get]
func ApiUserEnrollments(svc *enrollment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing user_id"))
			return
		}
		items, err := svc.ListByUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		now := time.Now()
		c.JSON(http.StatusOK, response.OKT(lo.Map(items, func(e *models.CourseEnrollment, _ int) *EnrollmentItem {
			return &EnrollmentItem{CourseEnrollment: e, HasAccess: e.Active(now)}
		})))
	}
}

// @Summary      Get User Subscription
// @Description  The user's most recently updated subscription as mirrored from Stripe.
// @Tags         User
// @Produce      json
// @Param        user_id query string true "User ID"
// @Success      200  {object}  handlers.RespUserSubscription
// @Router       /api/v1/user/subscription [get]
func ApiUserSubscription(svc *subscription.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing user_id"))
			return
		}
		sub, err := svc.GetByUser(c.Request.Context(), userID)
		if errors.Is(err, subscription.ErrSubscriptionNotFound) {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
			return
		}
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&UserSubscriptionResponse{UserSubscription: sub, Entitled: sub.Entitled(time.Now())}))
	}
}

func RegisterUserRoutes(r gin.IRouter, enrollments *enrollment.Service, subs *subscription.Service) {
	r.GET("/enrollments", ApiUserEnrollments(enrollments))
	r.GET("/subscription", ApiUserSubscription(subs))
}
