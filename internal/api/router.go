package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/levelbot/levelbot/internal/bot"
	"github.com/levelbot/levelbot/internal/leaderboard"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderChannelID = "X-Channel-ID"
)

type routes struct {
	bot *bot.Bot
	log *logrus.Logger
}

// NewRouter exposes the bot commands over HTTP for a presentation layer.
func NewRouter(b *bot.Bot, log *logrus.Logger) http.Handler {
	rt := &routes{bot: b, log: log}

	r := chi.NewRouter()
	r.Use(rt.logRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/users/{id}", func(sr chi.Router) {
		sr.Get("/balance", rt.balance)
		sr.Post("/beg", rt.beg)
		sr.Post("/deposit", rt.deposit)
		sr.Post("/withdraw", rt.withdraw)
		sr.Post("/give", rt.give)
		sr.Get("/level", rt.level)
	})
	r.Get("/leaderboards/{kind}", rt.leaderboard)
	r.Post("/sessions/{sessionID}/{direction}", rt.navigate)

	return r
}

func (rt *routes) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		rt.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("http request")
	})
}

// self is an invocation where the path user is the caller.
func self(r *http.Request) bot.Invocation {
	return bot.Invocation{
		UserID:    strings.TrimSpace(chi.URLParam(r, "id")),
		ChannelID: strings.TrimSpace(r.Header.Get(HeaderChannelID)),
	}
}

// caller is an invocation identified by headers only.
func caller(r *http.Request) bot.Invocation {
	return bot.Invocation{
		UserID:    strings.TrimSpace(r.Header.Get(HeaderUserID)),
		ChannelID: strings.TrimSpace(r.Header.Get(HeaderChannelID)),
	}
}

type amountRequest struct {
	Amount int64  `json:"amount"`
	To     string `json:"to,omitempty"`
}

func decodeAmount(r *http.Request) (amountRequest, error) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return amountRequest{}, errors.New("invalid request body")
	}
	return req, nil
}

func (rt *routes) balance(w http.ResponseWriter, r *http.Request) {
	view, err := rt.bot.Balance(r.Context(), self(r))
	if err != nil {
		writeNotice(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *routes) beg(w http.ResponseWriter, r *http.Request) {
	res, err := rt.bot.Beg(r.Context(), self(r))
	if err != nil {
		writeNotice(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"amount": res.Amount,
		"wallet": res.Wallet,
	})
}

func (rt *routes) deposit(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAmount(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	view, err := rt.bot.Deposit(r.Context(), self(r), req.Amount)
	if err != nil {
		writeNotice(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *routes) withdraw(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAmount(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	view, err := rt.bot.Withdraw(r.Context(), self(r), req.Amount)
	if err != nil {
		writeNotice(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *routes) give(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAmount(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	view, err := rt.bot.Give(r.Context(), self(r), strings.TrimSpace(req.To), req.Amount)
	if err != nil {
		writeNotice(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// level reports the path user. The caller defaults to that user when no
// X-User-ID header is sent.
func (rt *routes) level(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(chi.URLParam(r, "id"))
	inv := caller(r)
	if inv.UserID == "" {
		inv.UserID = target
	}
	view, err := rt.bot.Level(r.Context(), inv, target)
	if err != nil {
		writeNotice(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *routes) leaderboard(w http.ResponseWriter, r *http.Request) {
	kind, err := leaderboard.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err)
		return
	}
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, errors.New("page must be an integer"))
			return
		}
	}
	view, err := rt.bot.Leaderboard(r.Context(), caller(r), kind, page)
	if err != nil {
		writeNotice(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *routes) navigate(w http.ResponseWriter, r *http.Request) {
	dir := bot.Direction(chi.URLParam(r, "direction"))
	view, err := rt.bot.Navigate(r.Context(), caller(r), chi.URLParam(r, "sessionID"), dir)
	if err != nil {
		writeNotice(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func noticeStatus(kind bot.NoticeKind) int {
	switch kind {
	case bot.NoticeWrongChannel, bot.NoticeNotRequester:
		return http.StatusForbidden
	case bot.NoticeCooldown:
		return http.StatusTooManyRequests
	case bot.NoticeInsufficientFunds:
		return http.StatusConflict
	case bot.NoticeInvalidInput:
		return http.StatusBadRequest
	case bot.NoticeSessionExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeNotice(w http.ResponseWriter, err error) {
	n := bot.AsNotice(err)
	if n.Retry != nil {
		secs := n.Retry.Hours*3600 + n.Retry.Minutes*60 + n.Retry.Seconds
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, noticeStatus(n.Kind), n)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
