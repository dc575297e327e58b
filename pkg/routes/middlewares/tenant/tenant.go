package tenant

import (
	"context"
	"net/http"

	"github.com/fleetdirectory/fleet-directory/pkg/helpers"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	TenantHeader = "X-Tenant-ID"
	SourceHeader = "X-Request-Source"
)

// RequestMetadataToContextMiddleware moves the tenant scope and request
// metadata headers into the request context, where the service layer reads
// them. Requests without a tenant header are rejected before they reach any
// handler.
func RequestMetadataToContextMiddleware(logger *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.Request.Header.Get(TenantHeader)
		if tenantID == "" {
			logger.Debugf("rejecting request to %s without '%s' header", c.Request.URL.Path, TenantHeader)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": "missing or invalid credentials"})
			return
		}

		ctx := c.Request.Context()
		ctx = helpers.ContextWithTenant(ctx, tenantID)

		if reqID := c.Request.Header.Get("x-request-id"); reqID != "" {
			ctx = context.WithValue(ctx, helpers.CtxRequestID, reqID)
		}
		if source := c.Request.Header.Get(SourceHeader); source != "" {
			ctx = context.WithValue(ctx, helpers.CtxSource, source)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
