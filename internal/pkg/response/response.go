package response

import (
	"github.com/gin-gonic/gin"
)

type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return e.code
}

func AsCodeErr(code uint32, msg string) error {
	return codeErr{code: code, msg: msg}
}

type body struct {
	Success bool        `json:"success"`
	Code    uint32      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, body{Success: true, Data: data})
}

// JSON writes a caller-shaped body, used by endpoints whose payload sits next to
// the success flag instead of under data.
func JSON(c *gin.Context, status int, v interface{}) {
	c.JSON(status, v)
}

func Error(c *gin.Context, status int, code uint32, message string) {
	c.JSON(status, body{Success: false, Code: code, Error: message})
}

func FromCodeErr(c *gin.Context, status int, err error) {
	if ce, ok := err.(codeErr); ok {
		Error(c, status, ce.code, ce.msg)
		return
	}
	Error(c, status, 0, err.Error())
}
