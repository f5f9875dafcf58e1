package apperr

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ErrorHandler converts any AppError recorded on the gin context into the
// standard JSON error body, logging 5xx at error level and 4xx at warn.
func ErrorHandler(log *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last()

		if appErr, ok := err.Err.(*AppError); ok {
			ev := log.Warn()
			if appErr.StatusCode >= 500 {
				ev = log.Error()
			}
			ev.Str("kind", string(appErr.Kind)).Str("details", appErr.Details).Msg(appErr.Message)
			c.JSON(appErr.StatusCode, appErr.ToResponse())
			return
		}

		log.Error().Err(err.Err).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Kind:    KindInternal,
			Message: "an unexpected error occurred",
		})
	}
}

// Recovery recovers from panics in handlers, logging and returning a
// generic internal error instead of crashing the process.
func Recovery(log *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("recovered from panic")
				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Kind:    KindInternal,
					Message: "an unexpected error occurred",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// HandleError writes err as the response body, wrapping non-AppErrors as
// Internal.
func HandleError(c *gin.Context, err error) {
	if appErr, ok := err.(*AppError); ok {
		c.Error(appErr)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}
	ie := Internal(err.Error(), err)
	c.Error(ie)
	c.JSON(ie.StatusCode, ie.ToResponse())
}

// AbortWithError aborts the request immediately with err's response.
func AbortWithError(c *gin.Context, err *AppError) {
	c.Error(err)
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}
