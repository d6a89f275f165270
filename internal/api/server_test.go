package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/dyike/agenttrader/config"
	"github.com/dyike/agenttrader/consts"
	"github.com/dyike/agenttrader/internal/agents"
	"github.com/dyike/agenttrader/internal/graph"
	"github.com/dyike/agenttrader/internal/llm/fakellm"
	"github.com/dyike/agenttrader/internal/memory"
	"github.com/dyike/agenttrader/internal/service"
	"github.com/dyike/agenttrader/internal/storage"
	"github.com/dyike/agenttrader/internal/tools"
	"github.com/dyike/agenttrader/models"
	"github.com/dyike/agenttrader/pkg/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAnalyzer(t *testing.T, overrides map[string]model.ToolCallingChatModel) *service.Analyzer {
	t.Helper()
	ctx := context.Background()

	tk := &tools.Toolkit{Online: false}
	gw, err := tools.NewGateway(ctx, tk.Tools()...)
	require.NoError(t, err)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store, err := storage.NewStore(ctx, db)
	require.NoError(t, err)
	bank, err := memory.NewBank(ctx, db, memory.NewHashEmbedder(32))
	require.NoError(t, err)

	roster := &agents.Roster{
		Quick:     fakellm.Text("ok"),
		Deep:      fakellm.Text("HOLD"),
		Tools:     gw,
		Overrides: overrides,
		Memories:  bank,
	}
	tg, err := graph.NewTradingAgentsGraph(ctx, &config.Config{
		MaxDebateRounds: 1, MaxRiskDiscussRounds: 1, MaxRecurLimit: 100,
	}, roster)
	require.NoError(t, err)

	return service.NewAnalyzer(tg, service.WithStore(store), service.WithResultsDir(t.TempDir()))
}

func newTestServer(t *testing.T, svc Service) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(func() Service { return svc }).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readEvents(t *testing.T, resp *http.Response) []map[string]any {
	t.Helper()
	var events []map[string]any
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	require.NoError(t, sc.Err())
	return events
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, newAnalyzer(t, nil))

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestAnalyze(t *testing.T) {
	srv := newTestServer(t, newAnalyzer(t, map[string]model.ToolCallingChatModel{
		consts.MarketAnalyst: fakellm.Text("Uptrend."),
		consts.RiskJudge:     fakellm.Text("BUY"),
	}))

	resp := post(t, srv.URL+"/analyze", `{"ticker":"NVDA","trade_date":"2024-05-01"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out models.AnalyzeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "NVDA", out.Ticker)
	assert.Equal(t, "2024-05-01", out.TradeDate)
	assert.Equal(t, "Uptrend.", out.MarketReport)
	assert.Equal(t, "BUY", out.FinalTradeDecision)
}

func TestAnalyzeBadRequest(t *testing.T) {
	srv := newTestServer(t, newAnalyzer(t, nil))

	for name, body := range map[string]string{
		"malformed json": `{"ticker":`,
		"missing ticker": `{"trade_date":"2024-05-01"}`,
		"bad date":       `{"ticker":"NVDA","trade_date":"May 1st"}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp := post(t, srv.URL+"/analyze", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var out map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestAnalyzeModelFailure(t *testing.T) {
	srv := newTestServer(t, newAnalyzer(t, map[string]model.ToolCallingChatModel{
		consts.NewsAnalyst: fakellm.Failing(errors.New("rate limited")),
	}))

	resp := post(t, srv.URL+"/analyze", `{"ticker":"NVDA","trade_date":"2024-05-01"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out["error"], "rate limited")
}

func TestStreamDonePayloadMatchesSync(t *testing.T) {
	overrides := map[string]model.ToolCallingChatModel{
		consts.FundamentalsAnalyst: fakellm.Text("Solid balance sheet."),
		consts.ResearchManager:     fakellm.Text("Buy."),
	}
	srv := newTestServer(t, newAnalyzer(t, overrides))

	syncResp := post(t, srv.URL+"/analyze", `{"ticker":"NVDA","trade_date":"2024-05-01"}`)
	require.Equal(t, http.StatusOK, syncResp.StatusCode)
	var want map[string]any
	require.NoError(t, json.NewDecoder(syncResp.Body).Decode(&want))

	resp := post(t, srv.URL+"/analyze/stream", `{"ticker":"NVDA","trade_date":"2024-05-01"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(t, resp)
	require.Len(t, events, 17)
	assert.Equal(t, consts.MarketAnalyst, events[0]["node"])
	assert.Equal(t, consts.RiskJudge, events[15]["node"])

	done := events[16]
	assert.Equal(t, true, done["done"])
	assert.NotContains(t, done, "error")
	delete(done, "done")
	assert.Equal(t, want, done)
}

func TestStreamFailureEndsWithError(t *testing.T) {
	srv := newTestServer(t, newAnalyzer(t, map[string]model.ToolCallingChatModel{
		consts.MarketAnalyst: fakellm.Text("Uptrend."),
		consts.SocialAnalyst: fakellm.Failing(errors.New("boom")),
	}))

	resp := post(t, srv.URL+"/analyze/stream", `{"ticker":"NVDA","trade_date":"2024-05-01"}`)
	events := readEvents(t, resp)
	require.NotEmpty(t, events)

	done := events[len(events)-1]
	assert.Equal(t, true, done["done"])
	assert.Contains(t, done["error"], "boom")
	assert.Equal(t, "Uptrend.", done["market_report"])
	for _, ev := range events[:len(events)-1] {
		assert.NotContains(t, ev, "done")
	}
}

func TestRuns(t *testing.T) {
	srv := newTestServer(t, newAnalyzer(t, nil))

	post(t, srv.URL+"/analyze", `{"ticker":"AAPL","trade_date":"2024-05-01"}`)

	resp, err := http.Get(srv.URL + "/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Runs []models.SessionRecord `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, "AAPL", list.Runs[0].Ticker)

	detailResp, err := http.Get(srv.URL + "/runs/" + list.Runs[0].ID)
	require.NoError(t, err)
	defer detailResp.Body.Close()
	require.Equal(t, http.StatusOK, detailResp.StatusCode)

	var detail service.RunDetail
	require.NoError(t, json.NewDecoder(detailResp.Body).Decode(&detail))
	assert.Equal(t, models.SessionCompleted, detail.Session.Status)
	assert.Len(t, detail.Steps, 16)
}

func TestRunNotFound(t *testing.T) {
	srv := newTestServer(t, newAnalyzer(t, nil))

	resp, err := http.Get(srv.URL + "/runs/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunsInvalidLimit(t *testing.T) {
	srv := newTestServer(t, newAnalyzer(t, nil))

	resp, err := http.Get(srv.URL + "/runs?limit=-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", service.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("x: %w", storage.ErrNotFound), http.StatusNotFound},
		{service.ErrNoHistory, http.StatusServiceUnavailable},
		{service.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("llm down"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(c.err), c.err.Error())
	}
}

func TestServerPicksUpCurrentSource(t *testing.T) {
	first := newAnalyzer(t, map[string]model.ToolCallingChatModel{consts.RiskJudge: fakellm.Text("SELL")})
	second := newAnalyzer(t, map[string]model.ToolCallingChatModel{consts.RiskJudge: fakellm.Text("BUY")})
	var current atomic.Pointer[service.Analyzer]
	current.Store(first)
	srv := httptest.NewServer(NewServer(func() Service { return current.Load() }).Handler())
	defer srv.Close()

	decide := func() string {
		resp := post(t, srv.URL+"/analyze", `{"ticker":"NVDA","trade_date":"2024-05-01"}`)
		var out models.AnalyzeResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out.FinalTradeDecision
	}
	assert.Equal(t, "SELL", decide())
	current.Store(second)
	assert.Equal(t, "BUY", decide())
}

func TestClosedServiceRetriesOnCurrent(t *testing.T) {
	stale := newAnalyzer(t, map[string]model.ToolCallingChatModel{consts.RiskJudge: fakellm.Text("SELL")})
	require.NoError(t, stale.Close())
	fresh := newAnalyzer(t, map[string]model.ToolCallingChatModel{consts.RiskJudge: fakellm.Text("BUY")})

	// the first lookup still sees the analyzer a reload just closed
	var lookups atomic.Int32
	srv := httptest.NewServer(NewServer(func() Service {
		if lookups.Add(1) == 1 {
			return stale
		}
		return fresh
	}).Handler())
	defer srv.Close()

	resp := post(t, srv.URL+"/analyze", `{"ticker":"NVDA","trade_date":"2024-05-01"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out models.AnalyzeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "BUY", out.FinalTradeDecision)
	assert.Equal(t, int32(2), lookups.Load())
}

func TestClosedServiceUnavailable(t *testing.T) {
	a := newAnalyzer(t, nil)
	require.NoError(t, a.Close())
	srv := newTestServer(t, a)

	resp := post(t, srv.URL+"/analyze", `{"ticker":"NVDA","trade_date":"2024-05-01"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	events := readEvents(t, post(t, srv.URL+"/analyze/stream", `{"ticker":"NVDA","trade_date":"2024-05-01"}`))
	require.Len(t, events, 1)
	assert.Equal(t, true, events[0]["done"])
	assert.Contains(t, events[0]["error"], "closed")
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, newAnalyzer(t, nil))

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/analyze", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:8501")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, "*", health.Header.Get("Access-Control-Allow-Origin"))
}
