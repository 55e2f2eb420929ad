package emailsvc

import (
	"io/ioutil"
	"log"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	logsvc "github.com/murilobento/studiofisiopilates-sub000/services/logger"
)

func TestSendgridService_prepare(t *testing.T) {
	conf := &core.Config{AppName: "Studio", Env: "TEST", TestMode: true, SendgridApiKey: "key"}
	svc := NewSendgridService(conf, logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf))

	m := svc.prepare(core.EmailMessage{
		To:           []mail.Address{{Name: "Carla", Address: "carla@studio.com"}},
		Bcc:          []mail.Address{{Address: "finance@studio.com"}},
		Subject:      "Payment receipt",
		TemplateName: "payment_receipt",
		TextContent:  "text",
		HTMLContent:  "<p>html</p>",
	})

	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[Studio] Payment receipt", m.Personalizations[0].Subject)
	assert.Len(t, m.Personalizations[0].To, 1)
	assert.Len(t, m.Personalizations[0].BCC, 1)
	assert.Len(t, m.Content, 2)
	assert.Equal(t, []string{"test", "payment_receipt"}, m.Categories)
	require.NotNil(t, m.MailSettings)
	require.NotNil(t, m.MailSettings.SandboxMode)
	assert.True(t, *m.MailSettings.SandboxMode.Enable)
}
