package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type BotMetrics struct {
	xpAwarded         prometheus.Counter
	rateLimited       prometheus.Counter
	levelUps          prometheus.Counter
	voiceSeconds      prometheus.Counter
	coinsEarned       prometheus.Counter
	storageRecoveries *prometheus.CounterVec
	writeFailures     *prometheus.CounterVec
	identityFallbacks prometheus.Counter
}

var (
	botOnce     sync.Once
	botRegistry *BotMetrics
)

// Bot returns the process-wide collectors, registering them on first use.
func Bot() *BotMetrics {
	botOnce.Do(func() {
		botRegistry = &BotMetrics{
			xpAwarded: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "levelbot_xp_awarded_total",
				Help: "Total experience points granted for messages.",
			}),
			rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "levelbot_messages_rate_limited_total",
				Help: "Messages that earned no XP because the sender hit the window cap.",
			}),
			levelUps: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "levelbot_level_ups_total",
				Help: "Level transitions detected.",
			}),
			voiceSeconds: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "levelbot_voice_seconds_total",
				Help: "Voice seconds flushed into persisted totals.",
			}),
			coinsEarned: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "levelbot_coins_earned_total",
				Help: "Coins granted by earning commands.",
			}),
			storageRecoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "levelbot_storage_recoveries_total",
				Help: "Table reads that fell back to an empty table.",
			}, []string{"table"}),
			writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "levelbot_storage_write_failures_total",
				Help: "Table writes that failed and dropped an update.",
			}, []string{"table"}),
			identityFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "levelbot_identity_fallbacks_total",
				Help: "Leaderboard rows rendered with a placeholder identity.",
			}),
		}
		prometheus.MustRegister(
			botRegistry.xpAwarded,
			botRegistry.rateLimited,
			botRegistry.levelUps,
			botRegistry.voiceSeconds,
			botRegistry.coinsEarned,
			botRegistry.storageRecoveries,
			botRegistry.writeFailures,
			botRegistry.identityFallbacks,
		)
	})
	return botRegistry
}

func (m *BotMetrics) ObserveXP(gain int64) {
	if m == nil {
		return
	}
	m.xpAwarded.Add(float64(gain))
}

func (m *BotMetrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *BotMetrics) ObserveLevelUp() {
	if m == nil {
		return
	}
	m.levelUps.Inc()
}

func (m *BotMetrics) ObserveVoiceSeconds(seconds float64) {
	if m == nil || seconds <= 0 {
		return
	}
	m.voiceSeconds.Add(seconds)
}

func (m *BotMetrics) ObserveCoinsEarned(amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.coinsEarned.Add(float64(amount))
}

func (m *BotMetrics) ObserveStorageRecovery(table string) {
	if m == nil {
		return
	}
	if table == "" {
		table = "unknown"
	}
	m.storageRecoveries.WithLabelValues(table).Inc()
}

func (m *BotMetrics) ObserveWriteFailure(table string) {
	if m == nil {
		return
	}
	if table == "" {
		table = "unknown"
	}
	m.writeFailures.WithLabelValues(table).Inc()
}

func (m *BotMetrics) ObserveIdentityFallback() {
	if m == nil {
		return
	}
	m.identityFallbacks.Inc()
}
