package emailsvc

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/markit/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func TestConsoleServiceMock(t *testing.T) {
	svc := NewConsoleServiceMock(core.NewTestConfig(), nopLogger{})

	svc.SendMessages(
		&core.EmailMessage{
			To:      []mail.Address{{Name: "John", Address: "john@test.cd"}},
			Subject: "Hi",
			BodyStr: "hello",
		},
		&core.EmailMessage{Subject: "no recipient", BodyStr: "dropped"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "hello", sent[0].TextContent)

	svc.ClearMessages()
	assert.Empty(t, svc.SentMessages())
}

func TestConsoleService_format(t *testing.T) {
	svc := NewConsoleServiceMock(core.NewTestConfig(), nopLogger{})
	msg := core.EmailMessage{
		To:          []mail.Address{{Address: "a@test.cd"}, {Address: "b@test.cd"}},
		Subject:     "Marks",
		TextContent: "see attached",
	}
	require.NoError(t, msg.Attach(bytes.NewBufferString("a\tb"), "marks.tsv", "text/tab-separated-values"))

	body, err := svc.format(msg)
	require.NoError(t, err)
	assert.Contains(t, body, "Subject: [Markit] Marks\r\n")
	assert.Contains(t, body, "To: <a@test.cd>, <b@test.cd>\r\n")
	assert.Contains(t, body, "multipart/mixed")
	assert.True(t, strings.Contains(body, "filename=marks.tsv"))
}

func TestSendgridService_prepare(t *testing.T) {
	svc := NewSendgridService(core.NewTestConfig(), nopLogger{}).(*sendgridService)
	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Name: "John", Address: "john@test.cd"}},
		Subject:     "Hi",
		TextContent: "hello",
	})

	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[Markit] Hi", m.Personalizations[0].Subject)
	require.Len(t, m.Content, 1)
	assert.Equal(t, "text/plain", m.Content[0].Type)
}
