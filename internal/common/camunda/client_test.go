package camunda

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"loan-underwriting/internal/common/config"
	"loan-underwriting/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	return &Client{config: &ClientConfig{
		ConnectionTimeout: time.Second,
		RequestTimeout:    time.Second,
		RetryConfig: &RetryConfig{
			MaxRetries: 2,
			BaseDelay:  time.Millisecond,
			MaxDelay:   2 * time.Millisecond,
		},
	}}
}

func TestConfigFrom(t *testing.T) {
	cc := ConfigFrom(config.CamundaConfig{BrokerAddress: "zeebe:26500", Timeout: 2500})
	assert.Equal(t, "zeebe:26500", cc.GatewayAddress)
	assert.Equal(t, 2500*time.Millisecond, cc.ConnectionTimeout)
	assert.Equal(t, 30*time.Second, cc.RequestTimeout)
	assert.True(t, cc.UsePlaintextConnection)
}

func TestExecuteWithRetry_RetriesTransientErrors(t *testing.T) {
	c := testClient()
	calls := 0
	res, err := c.ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, stderrors.New("rpc error: code = Unavailable")
		}
		return int64(42), nil
	}, "create-instance")

	require.NoError(t, err)
	assert.Equal(t, int64(42), res)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_StopsOnPermanentError(t *testing.T) {
	c := testClient()
	calls := 0
	_, err := c.ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		return nil, stderrors.New("process definition not found")
	}, "create-instance")

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, errors.ErrCodeExternalService, errors.CodeOf(err))
}

func TestExecuteWithRetry_ExhaustedTimeouts(t *testing.T) {
	c := testClient()
	calls := 0
	_, err := c.ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		return nil, stderrors.New("context deadline exceeded")
	}, "topology")

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, errors.ErrCodeTimeout, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestBackoff(t *testing.T) {
	retry := &RetryConfig{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, backoff(retry, 0))
	assert.Equal(t, 4*time.Second, backoff(retry, 2))
	assert.Equal(t, 5*time.Second, backoff(retry, 4))
}

func TestInstrument_CallsHandler(t *testing.T) {
	called := 0
	h := Instrument("underwrite-application", nil, func(worker.JobClient, entities.Job) {
		called++
	})
	h(nil, entities.Job{})
	assert.Equal(t, 1, called)
}
