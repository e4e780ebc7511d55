package devapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	otpIssued      prometheus.Counter
	otpVerify      *prometheus.CounterVec
	profileUpdates *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
}

// newMetrics registers the devapi collectors on a fresh registry so several servers can
// coexist in one process.
func newMetrics() (*metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)
	return &metrics{
		otpIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "devapi_otp_issued_total",
			Help: "OTPs issued by POST /customer/login.",
		}),
		otpVerify: f.NewCounterVec(prometheus.CounterOpts{
			Name: "devapi_otp_verifications_total",
			Help: "OTP verification attempts by result.",
		}, []string{"result"}),
		profileUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "devapi_profile_updates_total",
			Help: "Accepted profile and address updates by step.",
		}, []string{"step"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "devapi_refreshes_total",
			Help: "Refresh attempts by result.",
		}, []string{"result"}),
	}, reg
}
