package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "", 0), core.NewTestConfig())

	usr := user.User{ID: "42", Username: "grace"}
	logger.Error("progress failed", errors.New("boom"), usr)
	logger.Info("synced", map[string]interface{}{"students": 3})

	out := buf.String()
	assert.Contains(t, out, "[ERROR] progress failed")
	assert.Contains(t, out, "boom")
	assert.NotContains(t, out, "grace")
	assert.Contains(t, out, "[INFO] synced")
	assert.Contains(t, out, "students:3")

	args := logger.prepare("msg", []interface{}{usr, usr, 1})
	assert.Equal(t, []interface{}{"msg", 1}, args)
}
