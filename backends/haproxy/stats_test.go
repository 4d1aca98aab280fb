package haproxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStats = `# pxname,svname,qcur,qmax,scur,smax,slim,stot,bin,bout,status,weight,lastchg,check_status,
web,FRONTEND,,,3,10,2000,120,0,0,OPEN,,,,
web,web1,0,0,1,4,,60,0,0,UP,1,3600,L7OK,
web,web2,0,0,2,6,,60,0,0,UP 1/3,1,12,L7OK,
web,web3,0,0,0,0,,0,0,0,DOWN,1,5,L4CON,
web,BACKEND,0,0,3,10,200,120,0,0,UP,2,3600,,
api,api1,0,0,0,0,,0,0,0,MAINT,1,99,,
api,api2,0,0,0,0,,0,0,0,no check,1,99,,
`

func TestParseStats(t *testing.T) {
	stats, err := ParseStats([]byte(sampleStats))
	require.NoError(t, err)
	require.Len(t, stats.Rows, 7)

	web2 := stats.Rows[2]
	assert.Equal(t, "web", web2.Proxy)
	assert.Equal(t, "web2", web2.Server)
	assert.Equal(t, "UP 1/3", web2.Status)
	assert.Equal(t, "UP", web2.State())
	assert.Equal(t, int64(2), web2.Sessions)
	assert.Equal(t, int64(6), web2.MaxSessions)
	assert.Equal(t, int64(12), web2.LastChange)
	assert.Equal(t, "L7OK", web2.CheckStatus)

	assert.Equal(t, int64(2000), stats.Rows[0].Limit)
	assert.False(t, stats.Rows[0].IsServer())
	assert.False(t, stats.Rows[4].IsServer())

	var servers []string
	for _, r := range stats.Servers() {
		servers = append(servers, r.Server)
	}
	assert.Equal(t, []string{"web1", "web2", "web3", "api1", "api2"}, servers)
}

func TestParseStats_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"empty", "", "no header"},
		{"missing status column", "# pxname,svname\nweb,web1\n", `missing "status"`},
		{"bad quoting", "# pxname,svname,status\nweb,\"web1,UP\n", "read stats row"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStats([]byte(tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseStats_ShortRows(t *testing.T) {
	stats, err := ParseStats([]byte("# pxname,svname,status,scur\nweb,web1,UP\n"))
	require.NoError(t, err)
	require.Len(t, stats.Rows, 1)
	assert.Equal(t, "UP", stats.Rows[0].Status)
	assert.Zero(t, stats.Rows[0].Sessions)
}
