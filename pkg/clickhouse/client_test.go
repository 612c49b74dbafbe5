package clickhouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "native with timeouts",
			cfg: ClientConfig{
				Host: "ch", Port: 9000, Database: "metagate", User: "default",
				DialTimeout: 5 * time.Second, MaxExecTime: time.Minute,
			},
			want: "clickhouse://default:@ch:9000/metagate?dial_timeout=5s&max_execution_time=60",
		},
		{
			name: "http",
			cfg:  ClientConfig{Host: "ch", Port: 8123, Database: "db", User: "u", Password: "p", UseHTTP: true},
			want: "http://u:p@ch:8123/db",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildDSN(tt.cfg))
		})
	}
}
