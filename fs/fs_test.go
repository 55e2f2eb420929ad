package appfs_test

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appfs "github.com/murilobento/studiofisiopilates-sub000/fs"
)

func TestFS(t *testing.T) {
	for _, name := range []string{
		"templates/email/_base.txt",
		"templates/email/_base.gohtml",
		"templates/email/payment_receipt.txt",
		"templates/email/payment_receipt.gohtml",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := fs.Stat(appfs.FS, name)
			assert.NoError(t, err)
		})
	}

	migrations, err := fs.Glob(appfs.FS, "migrations/*.sql")
	require.NoError(t, err)
	assert.NotEmpty(t, migrations)
}
