package core

import "github.com/gin-gonic/gin"

// Envelope codes shared with API clients.
const (
	codeOK          = 0
	codeAuthFailed  = 4001
	codeNotLoggedIn = 4010
	codeNotFound    = 4040
	codeInternal    = 5000
)

// respondMsg sends the unified envelope {"code": ..., "msg": ...}.
func respondMsg(c *gin.Context, status, code int, msg string) {
	c.JSON(status, gin.H{"code": code, "msg": msg})
}

// respondData sends a success envelope {"code": 0, "data": ...}.
func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"code": codeOK, "data": data})
}
