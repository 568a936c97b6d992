// metrics - Prometheus-метрики жизненного цикла токенов и HTTP-слоя.
// Все методы безопасны для nil-получателя: сервис работает и без метрик.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "auth"

// Результаты операций (значение лейбла result).
const (
	ResultOK       = "ok"
	ResultInvalid  = "invalid"
	ResultExpired  = "expired"
	ResultRevoked  = "revoked"
	ResultReused   = "reused"
	ResultRaceLost = "race_lost"
	ResultNoop     = "noop"
	ResultError    = "error"
)

type Metrics struct {
	tokensIssued   prometheus.Counter
	refreshes      *prometheus.CounterVec
	revocations    *prometheus.CounterVec
	familyRevoked  prometheus.Counter
	logins         *prometheus.CounterVec
	introspections *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New создаёт и регистрирует метрики в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_pairs_issued_total",
			Help:      "Number of issued access/refresh token pairs.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Refresh token rotations by result.",
		}, []string{"result"}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revoke_total",
			Help:      "Refresh token revocations by result.",
		}, []string{"result"}),
		familyRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "family_revoked_tokens_total",
			Help:      "Refresh tokens revoked because of detected reuse.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		introspections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "introspect_total",
			Help:      "Access token verifications by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	reg.MustRegister(
		m.tokensIssued,
		m.refreshes,
		m.revocations,
		m.familyRevoked,
		m.logins,
		m.introspections,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

func (m *Metrics) TokenPairIssued() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
}

func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) Revoke(result string) {
	if m == nil {
		return
	}
	m.revocations.WithLabelValues(result).Inc()
}

// FamilyRevoked учитывает токены, отозванные при обнаружении повторного использования.
func (m *Metrics) FamilyRevoked(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.familyRevoked.Add(float64(n))
}

func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) Introspect(result string) {
	if m == nil {
		return
	}
	m.introspections.WithLabelValues(result).Inc()
}

// HTTPRequest учитывает обработанный HTTP-запрос.
func (m *Metrics) HTTPRequest(route, method string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(dur.Seconds())
}
