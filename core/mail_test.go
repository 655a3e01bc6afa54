package core

import (
	"io/fs"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appfs "github.com/siat-edu/siat/fs"
)

type failLogger struct{ t *testing.T }

func (l failLogger) Debug(string, ...interface{}) {}
func (l failLogger) Info(string, ...interface{})  {}
func (l failLogger) Warn(string, ...interface{})  {}
func (l failLogger) Error(msg string, _ ...interface{}) {
	l.t.Errorf("unexpected error log: %s", msg)
}
func (l failLogger) Fatal(msg string, _ ...interface{}) {
	l.t.Errorf("unexpected fatal log: %s", msg)
}

func TestEmbeddedLayouts(t *testing.T) {
	for _, name := range []string{"_base.txt", "_base.gohtml"} {
		_, err := fs.Stat(appfs.FS, path.Join(emailTemplatesDir, name))
		assert.NoError(t, err, name)
	}
}

func TestEmailMessage_Render(t *testing.T) {
	ParseEmailTemplates(NewTestConfig(), failLogger{t})

	type account struct {
		FullName, Portal, StudentNumber, Username, Password string
	}

	t.Run("account created", func(t *testing.T) {
		msg := &EmailMessage{
			TemplateName: "account_created",
			TemplateData: account{FullName: "Ada Lovelace", Portal: "instructor", Username: "ada", Password: "pwd"},
		}
		require.NoError(t, msg.Render())
		assert.True(t, msg.HasContent())
		assert.Contains(t, msg.TextContent, "Dear Ada Lovelace,")
		assert.NotContains(t, msg.TextContent, "Student number")
		assert.Contains(t, msg.HTMLContent, "Ada Lovelace")
	})

	t.Run("plain body", func(t *testing.T) {
		msg := &EmailMessage{BodyStr: "hello"}
		require.NoError(t, msg.Render())
		assert.Equal(t, "hello", msg.TextContent)
	})

	t.Run("unknown template", func(t *testing.T) {
		msg := &EmailMessage{TemplateName: "unknown"}
		assert.EqualError(t, msg.Render(), `email template "unknown" not found`)
	})

	t.Run("template without body", func(t *testing.T) {
		templatesMu.Lock()
		templates["empty"] = new(tmplCacheEntry)
		templatesMu.Unlock()

		msg := &EmailMessage{TemplateName: "empty"}
		assert.EqualError(t, msg.Render(), `email template "empty" has no text nor html body`)
		assert.False(t, msg.HasContent())
	})
}
