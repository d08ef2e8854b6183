package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/sliderule-earth/sliderule-core/pkg/msgq"
)

func TestCollectorReportsQueueOccupancy(t *testing.T) {
	r := msgq.NewRegistry()
	sub, err := r.Subscribe("metrics-test", msgq.Confidence)
	require.NoError(t, err)
	defer sub.Close()

	pub, err := r.Publish("metrics-test")
	require.NoError(t, err)
	_, err = pub.PostString("x", 0)
	require.NoError(t, err)

	c := NewCollector(r)
	count := testutil.CollectAndCount(c)
	require.Equal(t, 5, count)
}
