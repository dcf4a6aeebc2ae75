package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kabuto/internal/analysis/indicator"
	"kabuto/internal/gateway/provider"
)

type fakeProvider struct {
	reply string
	err   error
	calls int
	last  provider.ChatPayload
}

func (f *fakeProvider) ID() string        { return "fake:model" }
func (f *fakeProvider) Enabled() bool     { return true }
func (f *fakeProvider) ExpectsJSON() bool { return true }

func (f *fakeProvider) Call(_ context.Context, p provider.ChatPayload) (string, error) {
	f.calls++
	f.last = p
	return f.reply, f.err
}

func sampleRationaleInput() RationaleInput {
	return RationaleInput{
		Ticker: "7203",
		Name:   "トヨタ自動車",
		Indicators: indicator.Snapshot{
			Code: "7203", Price: 2543.5, RSI: 27.8, Deviation: -6.2,
			Trend: indicator.TrendUpward, MACDLine: 1.2, MACDSignal: 0.8,
			PlusDI: 24.1, MinusDI: 18.3, ADX: 28.5, Volume: 1843000,
		},
		Signals:    map[string]string{"RSI": "買い", "MACD": "買い"},
		BuyScore:   6,
		ShortScore: 0,
		Pattern:    "直近レンジでダブルボトム形成、支持線は約2481.00",
		Trend:      "線形回帰の傾き=0.000812(0.05°)、終値は基準線から+1.20%乖離",
		News:       "- [nikkei] 決算上方修正: 営業利益が市場予想を上回る",
	}
}

func TestRationaleParsesFencedReply(t *testing.T) {
	fake := &fakeProvider{reply: "分析しました。\n```json\n{\"rationale\":\"RSIが売られすぎ圏で、MACDも好転している。\",\"risk\":\"none\"}\n```"}
	adv := New(fake, 30)

	got, err := adv.Rationale(context.Background(), sampleRationaleInput())
	require.NoError(t, err)
	assert.Equal(t, "RSIが売られすぎ圏で、MACDも好転している。", got.Rationale)
	assert.Equal(t, RiskNone, got.Risk)
	assert.NotEmpty(t, got.Raw)

	assert.True(t, fake.last.ExpectJSON)
	assert.Contains(t, fake.last.User, "7203（トヨタ自動車）")
	assert.Contains(t, fake.last.User, "buy_score=6 short_score=0")
	assert.Contains(t, fake.last.User, "ダブルボトム")
	assert.Contains(t, fake.last.User, "決算上方修正")
	assert.Contains(t, fake.last.User, "RSI=買い")
}

func TestRationaleEmptyNewsStillValidInput(t *testing.T) {
	fake := &fakeProvider{reply: `{"rationale":"指標のみで判断。","risk":"low"}`}
	adv := New(fake, 0)

	in := sampleRationaleInput()
	in.News = ""
	got, err := adv.Rationale(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, RiskLow, got.Risk)
	assert.Contains(t, fake.last.User, "直近のニュースはありません")
}

func TestRationaleNormalizesUnknownRisk(t *testing.T) {
	fake := &fakeProvider{reply: `{"rationale":"根拠あり。","risk":"危険"}`}
	got, err := New(fake, 0).Rationale(context.Background(), sampleRationaleInput())
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, got.Risk)
}

func TestRationaleMissingJSONIsServiceError(t *testing.T) {
	fake := &fakeProvider{reply: "すみません、判断できませんでした。"}
	_, err := New(fake, 0).Rationale(context.Background(), sampleRationaleInput())
	require.Error(t, err)

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "rationale", svcErr.Op)
}

func TestRationaleProviderErrorWrapped(t *testing.T) {
	cause := errors.New("timeout")
	fake := &fakeProvider{err: cause}
	_, err := New(fake, 0).Rationale(context.Background(), sampleRationaleInput())

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.ErrorIs(t, err, cause)
}

func sampleTuningArgs() (TuningDecision, TuningOutcome, []ParamState) {
	d := TuningDecision{
		Ticker:     "7203",
		AnalyzedAt: time.Date(2025, 6, 20, 15, 0, 0, 0, time.UTC),
		Side:       "buy",
		BuyScore:   6,
		ShortScore: 0,
		EntryPrice: 2500,
		Signals:    map[string]string{"RSI": "買い"},
	}
	o := TuningOutcome{CurrentPrice: 2350, OutcomePct: -6.0, TargetPct: 5, Hit: false}
	states := []ParamState{
		{Name: "rsi_oversold_threshold", Value: 30, Min: 10, Max: 50, Description: "RSI 売られすぎ境界"},
		{Name: "score_threshold", Value: 5, Min: 1, Max: 12},
	}
	return d, o, states
}

func TestSuggestTuningParsesReply(t *testing.T) {
	fake := &fakeProvider{reply: `{"adjustments":[{"name":"rsi_oversold_threshold","value":28,"reason":"だましを減らすため基準を厳しくする"}]}`}
	d, o, states := sampleTuningArgs()

	got, err := New(fake, 0).SuggestTuning(context.Background(), d, o, states)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "rsi_oversold_threshold", got[0].Name)
	assert.InDelta(t, 28, got[0].Value, 1e-9)

	assert.Contains(t, fake.last.User, "実現損益=-6.00%")
	assert.Contains(t, fake.last.User, "rsi_oversold_threshold=30 範囲[10, 50]")
}

func TestSuggestTuningCoercesStringValue(t *testing.T) {
	fake := &fakeProvider{reply: `{"adjustments":[{"name":"score_threshold","value":"6"}]}`}
	d, o, states := sampleTuningArgs()

	got, err := New(fake, 0).SuggestTuning(context.Background(), d, o, states)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 6, got[0].Value, 1e-9)
}

func TestSuggestTuningEmptyAdjustmentsIsValid(t *testing.T) {
	fake := &fakeProvider{reply: `{"adjustments":[]}`}
	d, o, states := sampleTuningArgs()

	got, err := New(fake, 0).SuggestTuning(context.Background(), d, o, states)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSuggestTuningRejectsMalformedReply(t *testing.T) {
	d, o, states := sampleTuningArgs()
	for _, reply := range []string{
		`{"adjustments":[{"value":3}]}`,
		`{"adjustments":"なし"}`,
		`{"proposals":[]}`,
	} {
		fake := &fakeProvider{reply: reply}
		_, err := New(fake, 0).SuggestTuning(context.Background(), d, o, states)

		var svcErr *ServiceError
		require.ErrorAs(t, err, &svcErr, "reply=%s", reply)
		assert.Equal(t, "tuning", svcErr.Op)
	}
}

func TestNormalizeRisk(t *testing.T) {
	cases := map[string]string{
		"none": RiskNone, "NONE": RiskNone, " Low ": RiskLow,
		"medium": RiskMedium, "high": RiskHigh,
		"": RiskHigh, "危険": RiskHigh, "unknown": RiskHigh,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeRisk(in), "in=%q", in)
	}
}
