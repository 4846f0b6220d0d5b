package validation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// BindJSON decodes the JSON body into out. On failure it writes a 400
// response and returns the error so the handler can short-circuit.
// Field rules are checked by the caller with Check.
func BindJSON(c *gin.Context, out any) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return err
	}
	return nil
}

// WriteError answers a failed Check with the fields map, or reports false
// when err is not a validation error.
func WriteError(c *gin.Context, err error) bool {
	var verr *Error
	if !errors.As(err, &verr) {
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error":  verr.Error(),
		"fields": verr.Fields,
	})
	return true
}
