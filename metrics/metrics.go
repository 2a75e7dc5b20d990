// Package metrics exposes poolfs usage and FUSE operation statistics to
// prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/poolfs/poolfs/memfs"
)

const namespace = "poolfs"

// ResultOK labels an operation that succeeded. Failures carry the errno
// name instead.
const ResultOK = "ok"

var (
	opsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fuse_ops_total",
			Help:      "FUSE operations served, by operation and result",
		},
		[]string{"op", "result"},
	)

	opDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fuse_op_duration_seconds",
			Help:      "Time spent serving a FUSE operation",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
		[]string{"op"},
	)

	infoMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "info",
		Help:      "poolfs version and session information.",
	}, []string{"version", "commit", "session"})
)

func init() {
	mustRegister(opsTotal)
	mustRegister(opDuration)
}

func mustRegister(c prometheus.Collector) {
	err := prometheus.Register(c)
	are := prometheus.AlreadyRegisteredError{}
	if errors.As(err, &are) {
		return
	}
	if err != nil {
		panic(err)
	}
}

// Observe records one served operation. result is ResultOK or the errno
// label of the failure.
func Observe(op, result string, took time.Duration) {
	opsTotal.WithLabelValues(op, result).Inc()
	opDuration.WithLabelValues(op).Observe(took.Seconds())
}

// SetInfo publishes the version labels of this process. Setting to 1 lets
// us multiply it with other stats to add the labels.
func SetInfo(version, commit, session string) {
	infoMetric.With(prometheus.Labels{
		"version": version,
		"commit":  commit,
		"session": session,
	}).Set(1)
}

// Statfser reports filesystem usage.
type Statfser interface {
	Statfs() memfs.Usage
}

// Register adds a usage collector for fs to the default registry.
func Register(fs Statfser) {
	mustRegister(&Collector{FS: fs})
}

var (
	blocksDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "blocks"),
		"Number of blocks in the pool.",
		nil, nil,
	)
	freeBlocksDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "blocks_free"),
		"Number of unallocated blocks in the pool.",
		nil, nil,
	)
	usedBlocksDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "blocks_used"),
		"Number of allocated blocks, metadata included.",
		nil, nil,
	)
	filesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "files"),
		"Number of files in the filesystem.",
		nil, nil,
	)
	bytesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "bytes_stored"),
		"Sum of all file sizes in bytes.",
		nil, nil,
	)
)

// Collector reads usage from the filesystem at scrape time.
type Collector struct {
	FS Statfser
}

func (c Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- blocksDesc
	ch <- freeBlocksDesc
	ch <- usedBlocksDesc
	ch <- filesDesc
	ch <- bytesDesc
}

func (c Collector) Collect(ch chan<- prometheus.Metric) {
	u := c.FS.Statfs()
	ch <- prometheus.MustNewConstMetric(blocksDesc, prometheus.GaugeValue, float64(u.Blocks))
	ch <- prometheus.MustNewConstMetric(freeBlocksDesc, prometheus.GaugeValue, float64(u.FreeBlocks))
	ch <- prometheus.MustNewConstMetric(usedBlocksDesc, prometheus.GaugeValue, float64(u.Blocks-u.FreeBlocks))
	ch <- prometheus.MustNewConstMetric(filesDesc, prometheus.GaugeValue, float64(u.Files))
	ch <- prometheus.MustNewConstMetric(bytesDesc, prometheus.GaugeValue, float64(u.BytesStored))
}
