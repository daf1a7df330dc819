package sink

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthview/internal/logger"
	"depthview/internal/model"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "depthview:view:BTC-USD", Key("BTC-USD"))
}

func TestNewRedisPublisher_InvalidURL(t *testing.T) {
	_, err := NewRedisPublisher(context.Background(), "http://nope", "", "BTC-USD", time.Second, logger.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis URL")
}

// closedAddr returns an address nothing is listening on.
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestNewRedisPublisher_PingFailure(t *testing.T) {
	_, err := NewRedisPublisher(context.Background(), "redis://"+closedAddr(t)+"/0", "", "BTC-USD", time.Second, logger.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestRender_WriteFailureIsReturned(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: closedAddr(t), MaxRetries: -1})
	p := NewRedisPublisherWithClient(client, "BTC-USD", time.Second, logger.NewNop())
	defer p.Close()

	err := p.Render(context.Background(), model.View{Seq: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depthview:view:BTC-USD")
	assert.Equal(t, "redis", p.Name())
}

func TestRender_StoresLatestViewWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	p, err := NewRedisPublisher(context.Background(), "redis://"+mr.Addr()+"/0", "", "BTC-USD", 30*time.Second, logger.NewNop())
	require.NoError(t, err)
	defer p.Close()

	v := model.View{
		Seq:    7,
		Status: model.Connected,
		Depth:  []model.DepthPoint{{Price: decimal.NewFromInt(100), BidVolume: decimal.NewNullDecimal(decimal.NewFromInt(1))}},
		Ladder: model.Ladder{Mid: "50.00"},
	}
	require.NoError(t, p.Render(context.Background(), v))
	v.Seq = 8
	require.NoError(t, p.Render(context.Background(), v))

	raw, err := mr.Get("depthview:view:BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, mr.TTL("depthview:view:BTC-USD"))

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, float64(8), got["seq"], "latest view wins")
	assert.Equal(t, "connected", got["status"])
	depth := got["depth"].([]any)
	require.Len(t, depth, 1)
	assert.Equal(t, float64(100), depth[0].(map[string]any)["price"])

	mr.FastForward(31 * time.Second)
	assert.False(t, mr.Exists("depthview:view:BTC-USD"))
}
