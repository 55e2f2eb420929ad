package emailsvc_test

import (
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	appfs "github.com/murilobento/studiofisiopilates-sub000/fs"
	emailsvc "github.com/murilobento/studiofisiopilates-sub000/services/email"
	"github.com/murilobento/studiofisiopilates-sub000/tests"
)

func TestConsoleService_SendMessages(t *testing.T) {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	require.NoError(t, core.ParseEmailTemplates(appfs.FS, conf, logger))
	svc := emailsvc.NewConsoleServiceMock(conf, logger)

	to := []mail.Address{{Name: "Carla", Address: "carla@studio.com"}}
	svc.SendMessages(
		&core.EmailMessage{To: to, Subject: "Hello", BodyStr: "plain body"},
		&core.EmailMessage{Subject: "Nobody", BodyStr: "dropped"},
		&core.EmailMessage{To: to, Subject: "Empty"},
		&core.EmailMessage{To: to, Subject: "Unknown template", TemplateName: "nope"},
		&core.EmailMessage{
			To:           to,
			Subject:      "Receipt",
			TemplateName: "payment_receipt",
			TemplateData: map[string]string{
				"StudentName":    "Carla",
				"ReferenceMonth": "01/2024",
				"Amount":         "186.50",
				"PaymentMethod":  "pix",
				"PaidAt":         "2024-01-15",
			},
		},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "plain body", sent[0].TextContent)
	assert.Empty(t, sent[0].HTMLContent)
	assert.True(t, strings.Contains(sent[1].TextContent, "186.50"))
	assert.True(t, strings.Contains(sent[1].HTMLContent, "Carla"))
}
