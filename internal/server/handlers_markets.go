package server

import (
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/bobmcallan/capscan/internal/common"
	"github.com/bobmcallan/capscan/internal/interfaces"
	"github.com/bobmcallan/capscan/internal/models"
	"github.com/bobmcallan/capscan/internal/viewer"
)

const statsTimeFormat = "2006-01-02 15:04:05"

// FileStats describes the result artifact backing the viewer.
type FileStats struct {
	FileSize     int64  `json:"file_size"`
	ModifiedTime string `json:"modified_time"`
	Exists       bool   `json:"exists"`
	Fresh        bool   `json:"fresh"`
}

// MarketsResponse is the body of GET /api/markets.
// Count is the number of markets returned, Total the number stored.
type MarketsResponse struct {
	Markets []map[string]string `json:"markets"`
	Stats   *FileStats          `json:"stats"`
	Count   int                 `json:"count"`
	Total   int                 `json:"total"`
}

// panelSize is the length of the top and bottom performer panels.
const panelSize = 5

// filterParams reads ?category= and ?search= (or ?q=).
func filterParams(r *http.Request) (category, search string) {
	q := r.URL.Query()
	search = q.Get("search")
	if search == "" {
		search = q.Get("q")
	}
	return q.Get("category"), search
}

// CategoriesResponse is the body of GET /api/categories.
type CategoriesResponse struct {
	Categories []string `json:"categories"`
	Count      int      `json:"count"`
}

func (s *Server) loadRecords(w http.ResponseWriter) ([]models.MarketRecord, bool) {
	records, err := s.app.Store.Load()
	if err != nil {
		s.logger.Error().Err(err).Str("path", s.app.Store.Path()).Msg("Failed to load results")
		WriteError(w, http.StatusInternalServerError, "Failed to load results: "+err.Error())
		return nil, false
	}
	return records, true
}

func (s *Server) fileStats() *FileStats {
	size, modified, ok := s.app.Store.Stat()
	if !ok {
		return nil
	}
	return &FileStats{
		FileSize:     size,
		ModifiedTime: modified.Local().Format(statsTimeFormat),
		Exists:       true,
		Fresh:        common.IsFresh(modified, common.FreshnessResults),
	}
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	records, ok := s.loadRecords(w)
	if !ok {
		return
	}

	category, search := filterParams(r)
	filtered := viewer.Filter(records, category, search)

	markets := make([]map[string]string, len(filtered))
	for i, rec := range filtered {
		markets[i] = rec.Fields()
	}

	WriteJSON(w, http.StatusOK, MarketsResponse{
		Markets: markets,
		Stats:   s.fileStats(),
		Count:   len(markets),
		Total:   len(records),
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	records, ok := s.loadRecords(w)
	if !ok {
		return
	}

	categories := viewer.Categories(records)
	WriteJSON(w, http.StatusOK, CategoriesResponse{
		Categories: categories,
		Count:      len(categories),
	})
}

func (s *Server) handleCategoryChart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	records, ok := s.loadRecords(w)
	if !ok {
		return
	}

	png, err := viewer.RenderCategoryChart(records, viewer.ChartColumn)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (s *Server) handleCategoryPie(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	records, ok := s.loadRecords(w)
	if !ok {
		return
	}

	png, err := viewer.RenderCategoryPie(records)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// handleRefresh starts a background scan (POST) or reports its status (GET).
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	if r.Method == http.MethodGet {
		WriteJSON(w, http.StatusOK, s.app.Refresher.Snapshot())
		return
	}

	if err := s.app.Refresher.Trigger(r.Context()); err != nil {
		if errors.Is(err, interfaces.ErrRefreshInProgress) {
			WriteErrorWithCode(w, http.StatusConflict, err.Error(), "refresh_in_progress")
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info().Msg("Refresh started via HTTP endpoint")
	WriteJSON(w, http.StatusAccepted, s.app.Refresher.Snapshot())
}

type indexData struct {
	Columns    []string
	Rows       [][]string
	Count      int
	Total      int
	Categories []string
	Category   string
	Search     string
	Top        []viewer.Ranked
	Bottom     []viewer.Ranked
	PanelSize  int
	Stats      *FileStats
	Refreshing bool
	ChartURL   string
	PieURL     string
	Generated  string
}

var indexFuncs = template.FuncMap{
	"pct": func(v float64) string {
		return models.PercentOf(v).String()
	},
	"cellClass": func(v string) string {
		switch {
		case !strings.HasSuffix(v, "%"):
			return ""
		case strings.HasPrefix(v, "-"):
			return "neg"
		default:
			return "pos"
		}
	},
}

var indexTemplate = template.Must(template.New("index").Funcs(indexFuncs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Capital.com Market Analysis</title>
<style>
*{box-sizing:border-box;margin:0;padding:0}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,sans-serif;background:#0f1117;color:#e1e4e8;padding:1.5rem}
h1{font-size:1.4rem;color:#f0f6fc;margin-bottom:.25rem}
p.meta{color:#8b949e;font-size:.85rem;margin-bottom:1rem}
.tags span{display:inline-block;background:#161b22;border:1px solid #30363d;border-radius:12px;padding:.1rem .6rem;margin:0 .25rem .5rem 0;font-size:.8rem}
img.chart{max-width:100%;background:#fff;border-radius:8px;margin:1rem 0}
table{border-collapse:collapse;width:100%;font-size:.8rem}
th,td{border-bottom:1px solid #30363d;padding:.35rem .5rem;text-align:left;white-space:nowrap}
th{background:#161b22;position:sticky;top:0}
td.pos{color:#3fb950}
td.neg{color:#f85149}
.stale{color:#d29922}
.empty{background:#161b22;border:1px solid #30363d;border-radius:8px;padding:1rem;color:#8b949e}
form{display:inline}
button{padding:.35rem .8rem;border:none;border-radius:6px;background:#238636;color:#fff;cursor:pointer}
button[disabled]{background:#30363d;cursor:default}
.filters{margin:.5rem 0 1rem}
.filters select,.filters input{background:#161b22;color:#e1e4e8;border:1px solid #30363d;border-radius:6px;padding:.3rem .5rem;margin-right:.4rem}
.charts{display:flex;flex-wrap:wrap;gap:1rem;align-items:flex-start}
.charts img.pie{width:320px}
.panels{display:flex;flex-wrap:wrap;gap:1rem;margin:1rem 0}
.panel{flex:1;min-width:280px;background:#161b22;border:1px solid #30363d;border-radius:8px;padding:.75rem}
.panel h2{font-size:1rem;margin-bottom:.5rem}
</style>
</head>
<body>
<h1>Capital.com Market Analysis</h1>
<p class="meta">
{{if .Stats}}{{.Total}} markets &middot; updated {{.Stats.ModifiedTime}}{{if not .Stats.Fresh}} <span class="stale">(stale)</span>{{end}} &middot; {{.Stats.FileSize}} bytes{{else}}No results yet{{end}}
&middot; <button id="refresh" {{if .Refreshing}}disabled{{end}}>{{if .Refreshing}}Refreshing&hellip;{{else}}Refresh{{end}}</button>
</p>
{{if .Total}}
<form class="filters" method="get" action="/">
<select name="category">
<option value="">All</option>
{{range .Categories}}<option value="{{.}}"{{if eq . $.Category}} selected{{end}}>{{.}}</option>
{{end}}</select>
<input type="search" name="search" value="{{.Search}}" placeholder="Search name or symbol">
<button type="submit">Filter</button>
</form>
<div class="charts">
<img class="chart" src="{{.ChartURL}}" alt="Average 1M performance by category">
<img class="chart pie" src="{{.PieURL}}" alt="Markets by category">
</div>
{{end}}
{{if .Rows}}
<div class="panels">
<div class="panel"><h2>Top {{.PanelSize}} Performers (1M)</h2>
<table><tbody>{{range .Top}}<tr><td>{{.Record.Symbol}}</td><td>{{.Record.Name}}</td><td class="{{cellClass (pct .Value)}}">{{pct .Value}}</td></tr>
{{else}}<tr><td>No 1M data</td></tr>{{end}}</tbody></table></div>
<div class="panel"><h2>Bottom {{.PanelSize}} Performers (1M)</h2>
<table><tbody>{{range .Bottom}}<tr><td>{{.Record.Symbol}}</td><td>{{.Record.Name}}</td><td class="{{cellClass (pct .Value)}}">{{pct .Value}}</td></tr>
{{else}}<tr><td>No 1M data</td></tr>{{end}}</tbody></table></div>
</div>
<p class="meta">Showing {{.Count}} of {{.Total}} markets</p>
<table>
<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr>{{range .}}<td class="{{cellClass .}}">{{.}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
{{else if .Total}}
<div class="empty">No markets match the current filter.</div>
{{else}}
<div class="empty">No market data found. Run <code>capscan fetch</code> or press Refresh.</div>
{{end}}
<p class="meta">Generated {{.Generated}}</p>
<script>
document.getElementById("refresh").addEventListener("click", function (e) {
  e.target.disabled = true;
  fetch("/api/refresh", {method: "POST"}).finally(function () { setTimeout(function () { location.reload(); }, 1500); });
});
</script>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	records, ok := s.loadRecords(w)
	if !ok {
		return
	}

	category, search := filterParams(r)
	filtered := viewer.Filter(records, category, search)

	rows := make([][]string, len(filtered))
	for i, rec := range filtered {
		rows[i] = rec.Row()
	}

	data := indexData{
		Columns:    models.Columns,
		Rows:       rows,
		Count:      len(filtered),
		Total:      len(records),
		Categories: viewer.Categories(records),
		Category:   category,
		Search:     search,
		Top:        viewer.Rank(filtered, viewer.ChartColumn, panelSize, false),
		Bottom:     viewer.Rank(filtered, viewer.ChartColumn, panelSize, true),
		PanelSize:  panelSize,
		Stats:      s.fileStats(),
		Refreshing: s.app.Refresher.Running(),
		ChartURL:   "/api/charts/category-1m.png",
		PieURL:     "/api/charts/categories.png",
		Generated:  time.Now().Format(statsTimeFormat),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render index")
	}
}
