package handler

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// TemplateRenderer は埋め込みテンプレートのパースと描画を行う。
// 各ページはlayout.htmlと組み合わせて起動時に1回だけパースされる。
type TemplateRenderer struct {
	templates map[string]*template.Template
}

// NewTemplateRenderer はTemplateRendererを生成する。
// テンプレートのパースに失敗した場合はエラーを返す（起動時に検出するため）。
func NewTemplateRenderer() (*TemplateRenderer, error) {
	pages := []string{"index", "detail"}

	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		t, err := template.ParseFS(templateFS,
			"templates/layout.html",
			fmt.Sprintf("templates/%s.html", page),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		templates[page] = t
	}

	return &TemplateRenderer{templates: templates}, nil
}

// Render は指定ページのテンプレートを描画する。
// 未知のページ名や描画エラーは500レスポンスとなる。
func (tr *TemplateRenderer) Render(w http.ResponseWriter, page string, data any) {
	t, ok := tr.templates[page]
	if !ok {
		slog.Error("unknown template", slog.String("page", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		slog.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
	}
}

// StaticHandler は埋め込み静的ファイルを配信するハンドラーを返す。
// GET /static/* で使用する。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(fmt.Sprintf("embedded static directory is missing: %v", err))
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
