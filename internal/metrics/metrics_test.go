package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartlibrary/library/pkg/logger"
)

func TestCirculationCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Borrowed()
	m.Borrowed()
	m.Returned(0)
	m.Returned(250)
	m.BorrowRejected("quota_exceeded")
	m.TransactionDeleted("active")
	m.Swept(4, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.borrows))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.returns))
	assert.Equal(t, 250.0, testutil.ToFloat64(m.finesCents))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("quota_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deletions.WithLabelValues("active")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.overdueMarked))
}

func TestEventAndHTTPCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.EventPublished("book.created", nil)
	m.EventPublished("book.created", errors.New("down"))
	m.HTTPRequest("GET", "/api/books", 200, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsPublished.WithLabelValues("book.created", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsPublished.WithLabelValues("book.created", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/books", "200")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Borrowed()
		m.Returned(100)
		m.BorrowRejected("x")
		m.TransactionDeleted("active")
		m.Swept(1, time.Second)
		m.EventPublished("x", nil)
		m.HTTPRequest("GET", "/", 200, time.Second)
	})
}

func TestCatalogCollector(t *testing.T) {
	c := NewCatalogCollector(func(context.Context) (int64, int64, error) {
		return 7, 5, nil
	}, logger.NewTestLogger())

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	expected := `
# HELP library_catalog_active_books Active books in the catalog.
# TYPE library_catalog_active_books gauge
library_catalog_active_books 5
# HELP library_catalog_books Books in the catalog, including soft-deleted ones.
# TYPE library_catalog_books gauge
library_catalog_books 7
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}

func TestCatalogCollectorSkipsOnError(t *testing.T) {
	c := NewCatalogCollector(func(context.Context) (int64, int64, error) {
		return 0, 0, errors.New("db down")
	}, logger.NewTestLogger())

	assert.Equal(t, 0, testutil.CollectAndCount(c))
}
