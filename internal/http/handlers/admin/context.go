package admin

import (
	"time"

	"github.com/adsboard-next/internal/authz"
	handlershared "github.com/adsboard-next/internal/http/handlers/shared"
	"github.com/adsboard-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

func currentActor(c *gin.Context) (authz.ActorContext, bool) {
	return handlershared.MustActor(c)
}

func currentRequestID(c *gin.Context) string {
	return handlershared.GetRequestID(c)
}

func paramID(c *gin.Context, key string) (uint, bool) {
	id, ok := handlershared.ParamUint(c, key)
	if !ok {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return 0, false
	}
	return id, true
}

func queryPagination(c *gin.Context) (int, int) {
	return handlershared.QueryPagination(c)
}

func queryUint(c *gin.Context, key string) uint {
	return handlershared.QueryUint(c, key)
}

func queryTime(c *gin.Context, key string) (*time.Time, bool) {
	value, ok := handlershared.QueryTime(c, key)
	if !ok {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return nil, false
	}
	return value, true
}
