package config

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("super-secret-key"))

	tcases := []struct {
		name        string
		serverAddr  string
		databaseDSN string
		secret      string
		expectErr   string
	}{
		{
			name:        "valid config",
			serverAddr:  "localhost:8000",
			databaseDSN: "host=localhost user=postgres",
			secret:      secret,
		},
		{
			name:        "empty server address",
			databaseDSN: "host=localhost user=postgres",
			secret:      secret,
			expectErr:   "server address cannot be empty",
		},
		{
			name:       "empty database DSN",
			serverAddr: "localhost:8000",
			secret:     secret,
			expectErr:  "database DSN cannot be empty",
		},
		{
			name:        "empty signing secret",
			serverAddr:  "localhost:8000",
			databaseDSN: "host=localhost user=postgres",
			expectErr:   "signing secret cannot be empty",
		},
		{
			name:        "invalid base64 signing secret",
			serverAddr:  "localhost:8000",
			databaseDSN: "host=localhost user=postgres",
			secret:      "not-base64!!!",
			expectErr:   "decode signing secret",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.serverAddr, tc.databaseDSN, tc.secret, []string{"http://localhost:3000"})
			if tc.expectErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.serverAddr, cfg.ServerAddr)
			assert.Equal(t, tc.databaseDSN, cfg.DatabaseDSN)
			assert.Equal(t, []byte("super-secret-key"), cfg.SigningKey)
			assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
		})
	}
}
