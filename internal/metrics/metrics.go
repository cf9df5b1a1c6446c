package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	FramesTotal        *prometheus.CounterVec // labels: direction=rx|tx
	FrameDropTotal     *prometheus.CounterVec // labels: reason
	BytesReceived      prometheus.Counter
	EventsTotal        *prometheus.CounterVec   // labels: kind
	DecodeErrorsTotal  *prometheus.CounterVec   // labels: reason
	CallsTotal         *prometheus.CounterVec   // labels: command, result
	CallDuration       *prometheus.HistogramVec // labels: command
	LinkUp             prometheus.Gauge         // 设备链路是否在线
	ReconnectsTotal    prometheus.Counter
	SinkDeliveredTotal *prometheus.CounterVec // labels: sink, result=ok|error
	SinkDroppedTotal   prometheus.Counter     // 队列满丢弃
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshcore_frames_total",
			Help: "Companion frames by direction.",
		}, []string{"direction"}),
		FrameDropTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshcore_frame_drop_total",
			Help: "Bytes or frames discarded while resynchronizing.",
		}, []string{"reason"}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshcore_bytes_received_total",
			Help: "Total bytes received from the device link.",
		}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshcore_events_total",
			Help: "Decoded device events by kind.",
		}, []string{"kind"}),
		DecodeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshcore_decode_errors_total",
			Help: "Inbound payloads that failed to decode.",
		}, []string{"reason"}),
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshcore_calls_total",
			Help: "Companion command calls by result.",
		}, []string{"command", "result"}),
		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meshcore_call_duration_seconds",
			Help:    "Latency from command write to completion.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"command"}),
		LinkUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshcore_link_up",
			Help: "1 when the device link is connected.",
		}),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshcore_reconnects_total",
			Help: "Device link reconnect attempts.",
		}),
		SinkDeliveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshcore_sink_delivered_total",
			Help: "Events delivered to external sinks.",
		}, []string{"sink", "result"}),
		SinkDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshcore_sink_dropped_total",
			Help: "Events dropped because the sink queue was full.",
		}),
	}
	reg.MustRegister(m.FramesTotal, m.FrameDropTotal, m.BytesReceived, m.EventsTotal, m.DecodeErrorsTotal,
		m.CallsTotal, m.CallDuration, m.LinkUp, m.ReconnectsTotal, m.SinkDeliveredTotal, m.SinkDroppedTotal)
	return m
}

// CompanionObserver 将连接观测回调映射到指标
type CompanionObserver struct {
	M *AppMetrics
}

func (o CompanionObserver) ObserveFrame(direction string, _ int) {
	o.M.FramesTotal.WithLabelValues(direction).Inc()
}

func (o CompanionObserver) ObserveDrop(reason string) {
	o.M.FrameDropTotal.WithLabelValues(reason).Inc()
}

func (o CompanionObserver) ObserveEvent(kind string) {
	o.M.EventsTotal.WithLabelValues(kind).Inc()
}

func (o CompanionObserver) ObserveDecodeError(reason string) {
	o.M.DecodeErrorsTotal.WithLabelValues(reason).Inc()
}

func (o CompanionObserver) ObserveCall(command, result string, elapsed time.Duration) {
	o.M.CallsTotal.WithLabelValues(command, result).Inc()
	o.M.CallDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (o CompanionObserver) ObserveLink(up bool) {
	if up {
		o.M.LinkUp.Set(1)
		return
	}
	o.M.LinkUp.Set(0)
}

// SinkObserver 将事件外发结果映射到指标
type SinkObserver struct {
	M *AppMetrics
}

func (o SinkObserver) ObserveDelivery(sink, result string) {
	o.M.SinkDeliveredTotal.WithLabelValues(sink, result).Inc()
}

func (o SinkObserver) ObserveOverflow() { o.M.SinkDroppedTotal.Inc() }
