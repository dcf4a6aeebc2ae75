package jquants

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"kabuto/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return New(Config{BaseURL: baseURL, APIKey: "token-123", RatePerMinute: 6000, MaxRetries: 1})
}

func TestFetchDailyBarsPagination(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/prices/daily_quotes", r.URL.Path)
		require.Equal(t, "72030", r.URL.Query().Get("code"))
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pagination_key") == "" {
			fmt.Fprint(w, `{"daily_quotes":[
				{"Date":"2025-08-01","Open":100,"High":110,"Low":95,"Close":105,"Volume":1000},
				{"Date":"2025-08-04","Open":null,"High":null,"Low":null,"Close":null,"Volume":null}
			],"pagination_key":"next"}`)
			return
		}
		fmt.Fprint(w, `{"daily_quotes":[
			{"Date":"2025-08-05","Open":106,"High":112,"Low":104,"Close":111,"Volume":1200}
		]}`)
	}))
	defer srv.Close()

	bars, err := testClient(srv.URL).FetchDailyBars(context.Background(),
		"7203", day("2025-08-01"), day("2025-08-05"))
	require.NoError(t, err)
	require.Len(t, bars, 2) // 停牌行被丢弃
	assert.Equal(t, "Bearer token-123", gotAuth)
	assert.Equal(t, 105.0, bars[0].Close)
	assert.Equal(t, 111.0, bars[1].Close)
	assert.True(t, bars[0].Date.Before(bars[1].Date))
}

func TestFetchDailyBarsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"no such code"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchDailyBars(context.Background(),
		"9999", day("2025-08-01"), day("2025-08-05"))
	var notFound *market.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "9999", notFound.Code)
}

func TestFetchDailyBarsEmptyIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"daily_quotes":[]}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchDailyBars(context.Background(),
		"7203", day("2025-08-01"), day("2025-08-05"))
	var notFound *market.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestRetryOn429ThenSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"daily_quotes":[{"Date":"2025-08-01","Open":100,"High":110,"Low":95,"Close":105,"Volume":1000}]}`)
	}))
	defer srv.Close()

	bars, err := testClient(srv.URL).FetchDailyBars(context.Background(),
		"7203", day("2025-08-01"), day("2025-08-01"))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestRateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchDailyBars(context.Background(),
		"7203", day("2025-08-01"), day("2025-08-01"))
	var rateLimited *market.RateLimitError
	require.ErrorAs(t, err, &rateLimited)
	assert.Equal(t, "7203", rateLimited.Code)
}

func TestIntradayUnsupportedPlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"plan does not include minute bars"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	bars, err := testClient(srv.URL).FetchIntradayBars(context.Background(), "7203", day("2025-08-01"))
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestIntradayParsesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/prices/intraday_quotes", r.URL.Path)
		fmt.Fprint(w, `{"intraday_quotes":[
			{"Time":"2025-08-01T14:59:00+09:00","Open":100,"High":101,"Low":99,"Close":100.5,"Volume":10},
			{"Time":"2025-08-01T15:00:00+09:00","Open":100.5,"High":102,"Low":100,"Close":101.8,"Volume":12}
		]}`)
	}))
	defer srv.Close()

	bars, err := testClient(srv.URL).FetchIntradayBars(context.Background(), "7203", day("2025-08-01"))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 101.8, bars[1].Close)
	assert.Equal(t, 15, bars[1].Date.Hour())
}

func TestLatestQuoteUsesLastClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"daily_quotes":[
			{"Date":"2025-08-20","Open":100,"High":110,"Low":95,"Close":105,"Volume":1000},
			{"Date":"2025-08-21","Open":105,"High":112,"Low":103,"Close":109,"Volume":900}
		]}`)
	}))
	defer srv.Close()

	quote, err := testClient(srv.URL).LatestQuote(context.Background(), "7203")
	require.NoError(t, err)
	assert.Equal(t, 109.0, quote.Price)
	assert.Equal(t, "7203", quote.Code)
}

func TestCompanyInfo(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.Equal(t, "/listed/info", r.URL.Path)
		fmt.Fprint(w, `{"info":[{"Code":"72030","CompanyName":"トヨタ自動車","CompanyNameEnglish":"TOYOTA MOTOR","Sector33CodeName":"輸送用機器","MarketCodeName":"プライム"}]}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	info, err := c.CompanyInfo(context.Background(), "7203")
	require.NoError(t, err)
	assert.Equal(t, "トヨタ自動車", info.Name)
	assert.Equal(t, "輸送用機器", info.Sector)

	// 指数不触发请求。
	info, err = c.CompanyInfo(context.Background(), "^N225")
	require.NoError(t, err)
	assert.Equal(t, "^N225", info.Code)
	assert.Empty(t, info.Name)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // 立刻关掉：后续每次调用都是传输层失败，且立即返回

	c := testClient(srv.URL)
	var unavailable *market.UnavailableError
	for i := 0; i < 5; i++ {
		_, err := c.FetchDailyBars(context.Background(), "7203", day("2025-08-01"), day("2025-08-01"))
		require.Error(t, err)
		// 熔断打开前返回的是真实传输错误
		require.False(t, errors.As(err, &unavailable))
	}

	_, err := c.FetchDailyBars(context.Background(), "7203", day("2025-08-01"), day("2025-08-01"))
	require.ErrorAs(t, err, &unavailable)
	assert.True(t, market.IsSkippable(err))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "72030", normalizeCode("7203"))
	assert.Equal(t, "72030", normalizeCode("72030"))
	assert.Equal(t, "^N225", normalizeCode("^N225"))
	assert.Equal(t, "130A0", normalizeCode("130A"))
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}
