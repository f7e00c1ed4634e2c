package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weisyn/zkcallback/internal/config"
)

func TestTemplates_LoadAndValidate(t *testing.T) {
	for _, env := range Environments() {
		t.Run(env, func(t *testing.T) {
			b, err := Template(env)
			require.NoError(t, err)
			path := filepath.Join(t.TempDir(), env+".json")
			require.NoError(t, os.WriteFile(path, b, 0o600))
			_, err = config.Load(path)
			require.NoError(t, err)
		})
	}
}

func TestTemplate_Unknown(t *testing.T) {
	_, err := Template("staging")
	require.Error(t, err)
}
