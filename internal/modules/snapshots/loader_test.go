package snapshots

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tierfolio/internal/domain"
	testingpkg "github.com/aristath/tierfolio/internal/testing"
)

const yamlSnapshot = `
as_of: 2026-03-02T00:00:00Z
currency: USD
cash: 1500
holdings:
  - ticker: AAPL
    shares: 10
    cost_basis: 150
    current_price: 190
    market_cap: 2.9e12
    quality_score: 82
    profitability: [0.3, 0.31, 0.29]
    fundamentals:
      free_cash_flow: 1.0e11
      debt_to_equity: 1.5
`

func TestFormatDetection(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFromPath("/data/snapshot.yaml"))
	assert.Equal(t, FormatYAML, FormatFromPath("snapshot.YML"))
	assert.Equal(t, FormatJSON, FormatFromPath("snapshot.json"))
	assert.Equal(t, FormatJSON, FormatFromPath("snapshot"))

	assert.Equal(t, FormatYAML, FormatFromContentType("application/x-yaml"))
	assert.Equal(t, FormatYAML, FormatFromContentType("text/yaml; charset=utf-8"))
	assert.Equal(t, FormatJSON, FormatFromContentType("application/json"))
	assert.Equal(t, FormatJSON, FormatFromContentType(""))
}

func TestParse_YAML(t *testing.T) {
	s, err := Parse([]byte(yamlSnapshot), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, domain.CurrencyUSD, s.Currency)
	assert.Equal(t, 1500.0, s.Cash)
	assert.Equal(t, 2026, s.AsOf.Year())
	require.Len(t, s.Holdings, 1)

	h := s.Holdings[0]
	assert.Equal(t, "AAPL", h.Ticker)
	assert.Equal(t, 2.9e12, h.MarketCap)
	require.NotNil(t, h.QualityScore)
	assert.Equal(t, 82.0, *h.QualityScore)
	assert.Nil(t, h.ThematicScore)
	assert.Equal(t, []float64{0.3, 0.31, 0.29}, h.Profitability)
	require.NotNil(t, h.Fundamentals.DebtToEquity)
	assert.Equal(t, 1.5, *h.Fundamentals.DebtToEquity)
	assert.Nil(t, h.Fundamentals.OperatingMargin)
}

func TestParse_JSONRoundTripOfFixture(t *testing.T) {
	fixture := testingpkg.NewBalancedSnapshot()
	data, err := json.Marshal(fixture)
	require.NoError(t, err)

	s, err := Parse(data, FormatJSON)
	require.NoError(t, err)
	assert.Len(t, s.Holdings, len(fixture.Holdings))
	assert.InDelta(t, fixture.TotalValue(), s.TotalValue(), 1e-9)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		format  Format
		wantErr string
	}{
		{name: "unknown json field", data: `{"cash": 1, "casch": 2}`, format: FormatJSON, wantErr: "JSON"},
		{name: "malformed json", data: `{"cash": `, format: FormatJSON, wantErr: "JSON"},
		{name: "unknown yaml field", data: "cash: 1\nholdngs: []\n", format: FormatYAML, wantErr: "YAML"},
		{name: "unsupported format", data: "{}", format: Format("toml"), wantErr: "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_DefaultsCurrency(t *testing.T) {
	s, err := Parse([]byte(`{"cash": 10}`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, domain.CurrencyEUR, s.Currency)
}

func TestFileProvider_LoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlSnapshot), 0644))

	provider := NewFileProvider(path, zerolog.Nop())
	assert.Equal(t, path, provider.Path())

	s, err := provider.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, s.Holdings, 1)

	// the file is re-read on every call
	require.NoError(t, os.WriteFile(path, []byte("cash: 5\nholdings: []\n"), 0644))
	s, err = provider.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.Holdings)
	assert.Equal(t, 5.0, s.Cash)
}

func TestFileProvider_Errors(t *testing.T) {
	provider := NewFileProvider(filepath.Join(t.TempDir(), "missing.json"), zerolog.Nop())
	_, err := provider.LoadSnapshot(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = provider.LoadSnapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
