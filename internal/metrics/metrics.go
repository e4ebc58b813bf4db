// Package metrics exposes the bot's Prometheus instruments.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nhlbot/internal/eventbus"
)

const namespace = "nhlbot"

// Recorder implements the recorder interfaces of the scheduler, tracker,
// channel manager and notifier. A nil *Recorder records nothing.
type Recorder struct {
	reg *prometheus.Registry

	activeTrackers prometheus.Gauge
	trackerPolls   *prometheus.CounterVec
	scheduleFetch  *prometheus.CounterVec
	channelOps     *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	events         *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		activeTrackers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_trackers",
			Help:      "Games currently being polled.",
		}),
		trackerPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracker_polls_total",
			Help:      "Game refreshes by result.",
		}, []string{"result"}),
		scheduleFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_fetches_total",
			Help:      "Team schedule fetches by result.",
		}, []string{"result"}),
		channelOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_operations_total",
			Help:      "Channel creates and deletes by result.",
		}, []string{"op", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outgoing messages by result.",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Internal lifecycle events by type.",
		}, []string{"type"}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.activeTrackers, r.trackerPolls, r.scheduleFetch, r.channelOps, r.notifications, r.events,
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Recorder) SetActiveTrackers(n int) {
	if r == nil {
		return
	}
	r.activeTrackers.Set(float64(n))
}

func (r *Recorder) TrackerPoll(result string) {
	if r == nil {
		return
	}
	r.trackerPolls.WithLabelValues(result).Inc()
}

func (r *Recorder) ScheduleFetch(result string) {
	if r == nil {
		return
	}
	r.scheduleFetch.WithLabelValues(result).Inc()
}

func (r *Recorder) ChannelOp(op, result string) {
	if r == nil {
		return
	}
	r.channelOps.WithLabelValues(op, result).Inc()
}

func (r *Recorder) Notification(result string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(result).Inc()
}

// Watch counts bus events until ctx is done.
func (r *Recorder) Watch(ctx context.Context, bus eventbus.Bus) {
	ch, unsubscribe := bus.Subscribe(64)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if r != nil {
				r.events.WithLabelValues(e.Type).Inc()
			}
		}
	}
}
