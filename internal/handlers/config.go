package handlers

import (
	"net/http"
	"time"

	"github.com/adminkit/apiserver/config"
)

// ConfigView is the subset of configuration safe to show to operators.
type ConfigView struct {
	BaseURL         string        `json:"base_url"`
	LogLevel        string        `json:"log_level"`
	TokenTTL        time.Duration `json:"token_ttl"`
	RequireVerified bool          `json:"require_verified_email"`
	VerificationTTL time.Duration `json:"verification_ttl"`
	ResetTTL        time.Duration `json:"reset_ttl"`
	CSRFTTL         time.Duration `json:"csrf_ttl"`
	CSRFHeader      string        `json:"csrf_header"`
	CSRFExempt      []string      `json:"csrf_exempt_paths"`
	MQBackend       string        `json:"mq_backend"`
	StorageBackend  string        `json:"storage_backend"`
	RedisEnabled    bool          `json:"redis_enabled"`
	SMTPEnabled     bool          `json:"smtp_enabled"`
	MailFrom        string        `json:"mail_from"`
}

// NewConfigView drops every credential from cfg.
func NewConfigView(cfg config.Config) ConfigView {
	return ConfigView{
		BaseURL:         cfg.BaseURL,
		LogLevel:        cfg.LogLevel,
		TokenTTL:        cfg.Auth.TokenTTL,
		RequireVerified: cfg.Auth.RequireVerified,
		VerificationTTL: cfg.Auth.VerificationHorizon,
		ResetTTL:        cfg.Auth.ResetHorizon,
		CSRFTTL:         cfg.CSRF.TTL,
		CSRFHeader:      cfg.CSRF.HeaderName,
		CSRFExempt:      cfg.CSRF.ExemptPaths,
		MQBackend:       cfg.MQ.Backend,
		StorageBackend:  cfg.Storage.Backend,
		RedisEnabled:    cfg.Redis.Addr != "",
		SMTPEnabled:     cfg.Mail.SMTPHost != "",
		MailFrom:        cfg.Mail.From,
	}
}

// ConfigHandler serves the sanitized configuration.
func ConfigHandler(cfg config.Config) http.HandlerFunc {
	view := NewConfigView(cfg)
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, view)
	}
}
