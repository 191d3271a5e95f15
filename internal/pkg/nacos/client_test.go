package nacos

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfigs(t *testing.T) {
	configs, err := serverConfigs([]string{"10.0.0.1:8848", " nacos-2:8849"})
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "10.0.0.1", configs[0].IpAddr)
	assert.Equal(t, uint64(8848), configs[0].Port)
	assert.Equal(t, "nacos-2", configs[1].IpAddr)

	for _, bad := range [][]string{nil, {"nacos"}, {"nacos:port"}} {
		_, err := serverConfigs(bad)
		assert.Error(t, err, "%v", bad)
	}
}

type fakeDiscoverer struct {
	host string
	port int
	err  error
	asks []string
}

func (f *fakeDiscoverer) Discover(name string) (string, int, error) {
	f.asks = append(f.asks, name)
	return f.host, f.port, f.err
}

func TestResolver(t *testing.T) {
	ctx := context.Background()

	d := &fakeDiscoverer{host: "10.1.2.3", port: 9000}
	r := NewResolver(d, "order-api", "http://orders.local/")
	assert.Equal(t, "http://10.1.2.3:9000", r.BaseURL(ctx))
	assert.Equal(t, []string{"order-api"}, d.asks)

	d.err = errors.New("no healthy instance")
	assert.Equal(t, "http://orders.local", r.BaseURL(ctx))

	assert.Equal(t, "http://orders.local", NewResolver(nil, "order-api", "http://orders.local").BaseURL(ctx))
}
