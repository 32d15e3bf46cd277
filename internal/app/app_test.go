package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectsamarth/samarth/internal/config"
	"github.com/projectsamarth/samarth/internal/index"
	"github.com/projectsamarth/samarth/internal/models"
)

// fakeOllama embeds by keyword and answers with the first district it finds
// in the prompt.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			var req struct {
				Model string   `json:"model"`
				Input []string `json:"input"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			out := struct {
				Embeddings [][]float32 `json:"embeddings"`
			}{}
			for _, in := range req.Input {
				v := []float32{0, 0, 0.1}
				if strings.Contains(in, "Guntur") {
					v[0] = 1
				}
				if strings.Contains(strings.ToLower(in), "rainfall") {
					v[1] = 1
				}
				out.Embeddings = append(out.Embeddings, v)
			}
			_ = json.NewEncoder(w).Encode(out)
		case "/api/chat":
			var req struct {
				Messages []struct {
					Content string `json:"content"`
				} `json:"messages"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			prompt := req.Messages[len(req.Messages)-1].Content
			answer := "The data is not available."
			if strings.Contains(prompt, "District: Guntur") {
				answer = "Guntur, Andhra Pradesh produced 250 tonnes of rice in 2004."
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"message": map[string]string{"role": "assistant", "content": answer},
				"done":    true,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, ollamaURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	crop := filepath.Join(dir, "crop.csv")
	rain := filepath.Join(dir, "rain.csv")
	require.NoError(t, os.WriteFile(crop, []byte(
		"state_name,district_name,crop_year,season,crop,area_,production_\n"+
			"Andhra Pradesh,Guntur,2004,Kharif,Rice,100,250\n"), 0o644))
	require.NoError(t, os.WriteFile(rain, []byte(
		"subdivision,year,jan,feb,mar,apr,may,jun,jul,aug,sep,oct,nov,dec,annual\n"+
			"Kerala,2010,10,20,30,40,50,600,700,400,300,200,100,50,2500\n"), 0o644))

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Database.URL = ""
	cfg.Redis.Addr = ""
	cfg.LLM.OllamaURL = ollamaURL
	cfg.LLM.DefaultProvider = "ollama"
	cfg.LLM.DefaultModel = "llama3"
	cfg.LLM.FallbackProvider = ""
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.Model = "all-minilm"
	cfg.Index.Backend = "memory"
	cfg.Index.Path = filepath.Join(dir, "index.samarth")
	cfg.Data.CropCSV = crop
	cfg.Data.RainfallCSV = rain
	return cfg
}

func TestApp_BuildReloadAsk(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, fakeOllama(t).URL)

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	defer a.Close()
	assert.False(t, a.Index.Ready())

	_, err = a.Pipeline.Ask(ctx, "rice in Guntur?")
	var unavail *index.IndexUnavailableError
	require.ErrorAs(t, err, &unavail)

	report, err := a.Builder().Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Documents[models.SourceCropProduction])
	assert.Equal(t, 1, report.Documents[models.SourceRainfall])
	assert.False(t, report.Mirrored)

	meta, err := a.Index.Reload(cfg.Index.Path, a.Expect())
	require.NoError(t, err)
	assert.Equal(t, "all-minilm", meta.Model)
	assert.Equal(t, 3, meta.Dimension)

	ans, err := a.Pipeline.Ask(ctx, "What was the rice production in Guntur in 2004?")
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "250 tonnes")
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, "Guntur", ans.Sources[0].Metadata[models.MetaDistrict])
}

func TestApp_LoadsExistingIndex(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, fakeOllama(t).URL)

	first, err := New(ctx, cfg)
	require.NoError(t, err)
	_, err = first.Builder().Run(ctx)
	require.NoError(t, err)
	first.Close()

	second, err := New(ctx, cfg)
	require.NoError(t, err)
	defer second.Close()
	assert.True(t, second.Index.Ready())

	// Same model, different dimension.
	other, err := index.New("all-minilm", []index.Entry{{Vector: []float32{1, 0}, Document: models.Document{Text: "x"}}}, time.Now())
	require.NoError(t, err)
	otherPath := filepath.Join(t.TempDir(), "two-dims.samarth")
	require.NoError(t, other.Save(otherPath))
	dimCfg := *cfg
	dimCfg.Index.Path = otherPath
	mismatched, err := New(ctx, &dimCfg)
	require.NoError(t, err)
	defer mismatched.Close()
	assert.Equal(t, 3, mismatched.Expect().Dimension)
	assert.False(t, mismatched.Index.Ready(), "index with another dimension must not load")

	cfg.Embedding.Model = "nomic-embed-text"
	third, err := New(ctx, cfg)
	require.NoError(t, err)
	defer third.Close()
	assert.False(t, third.Index.Ready(), "index built with another model must not load")
}

func TestApp_PgvectorNeedsDatabase(t *testing.T) {
	cfg := testConfig(t, fakeOllama(t).URL)
	cfg.Index.Backend = "pgvector"

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestTurnBudget(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.LLM.MaxRetries = 3
	cfg.LLM.Timeout = 60 * time.Second
	cfg.LLM.FallbackProvider = ""
	cfg.Embedding.Timeout = 30 * time.Second

	assert.Equal(t, 277*time.Second, TurnBudget(cfg))

	cfg.LLM.Timeout = 0
	assert.Zero(t, TurnBudget(cfg))
}
