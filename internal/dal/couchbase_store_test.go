package dal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionOptions(t *testing.T) {
	opts, err := transactionOptions(context.Background())
	require.NoError(t, err)
	assert.Nil(t, opts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	opts, err = transactionOptions(ctx)
	require.NoError(t, err)
	require.NotNil(t, opts)
	assert.Greater(t, opts.Timeout, 50*time.Second)
	assert.LessOrEqual(t, opts.Timeout, time.Minute)

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	_, err = transactionOptions(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSampleConditionsScoped(t *testing.T) {
	where, params := sampleConditions(SampleFilter{Scoped: true, RequestNumbers: []string{"NTR-2610-0001"}})
	assert.Equal(t, []string{"t.requestNumber IN $requestNumbers"}, where)
	assert.Equal(t, []string{"NTR-2610-0001"}, params["requestNumbers"])

	where, _ = sampleConditions(SampleFilter{})
	assert.Empty(t, where)
}

func TestListSamplesScopedToNothingSkipsQuery(t *testing.T) {
	s := NewCouchbaseStore(nil)
	page, err := s.ListSamples(context.Background(), SampleFilter{Scoped: true})
	require.NoError(t, err)
	assert.Empty(t, page.Samples)
	assert.Zero(t, page.Total)
}
