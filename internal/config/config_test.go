package config

import (
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetFlags(t *testing.T, args ...string) {
	t.Helper()
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	os.Args = append([]string{"desenrola"}, args...)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
		want Config
	}{
		{
			name: "defaults",
			want: Config{RunAddress: "localhost:8080"},
		},
		{
			name: "flags only",
			args: []string{"-a", ":9090", "-d", "postgres://localhost/dcl", "-w", "http://hooks.local/status"},
			want: Config{
				RunAddress:  ":9090",
				DatabaseURI: "postgres://localhost/dcl",
				WebhookURL:  "http://hooks.local/status",
			},
		},
		{
			name: "env only",
			env: map[string]string{
				"RUN_ADDRESS":  ":7070",
				"DATABASE_URI": "postgres://db/dcl",
			},
			want: Config{RunAddress: ":7070", DatabaseURI: "postgres://db/dcl"},
		},
		{
			name: "env wins over flags",
			args: []string{"-a", ":9090", "-d", "postgres://flag/dcl"},
			env: map[string]string{
				"RUN_ADDRESS":  ":7070",
				"DATABASE_URI": "postgres://env/dcl",
			},
			want: Config{RunAddress: ":7070", DatabaseURI: "postgres://env/dcl"},
		},
		{
			name: "empty env falls back to flag",
			args: []string{"-a", ":9090"},
			env:  map[string]string{"RUN_ADDRESS": ""},
			want: Config{RunAddress: ":9090"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"RUN_ADDRESS", "DATABASE_URI", "WEBHOOK_URL"} {
				t.Setenv(key, "")
				os.Unsetenv(key)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			resetFlags(t, tt.args...)

			cfg, err := Parse()
			require.NoError(t, err)
			assert.Equal(t, tt.want, *cfg)
		})
	}
}
