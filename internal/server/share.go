package server

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/memesrc/memesrc/internal/frame"
	"github.com/memesrc/memesrc/internal/subtitle"
)

var sharePage = template.Must(template.New("share").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<meta property="og:type" content="website">
<meta property="og:title" content="{{.Title}}">
<meta property="og:description" content="{{.Subtitle}}">
<meta property="og:image" content="{{.ImageURL}}">
<meta property="og:url" content="{{.PageURL}}">
<meta name="twitter:card" content="summary_large_image">
{{.AdTag}}
</head>
<body>
<main>
<img src="{{.Frame.ImagePath}}" alt="{{.Subtitle}}">
<p>{{.Subtitle}}</p>
<nav>
{{range .Surrounding}}<a href="/frame/{{.FID}}"><img src="{{.ImagePath}}" alt="{{.FID}}" loading="lazy"></a>
{{end}}</nav>
</main>
</body>
</html>
`))

type shareData struct {
	Title       string
	Subtitle    string
	ImageURL    string
	PageURL     string
	AdTag       template.HTML
	Frame       frame.Descriptor
	Surrounding []frame.Descriptor
}

func (s *Server) absoluteURL(p string) string {
	if s.opts.PublicURL == "" {
		return p
	}
	return strings.TrimSuffix(s.opts.PublicURL, "/") + p
}

func (s *Server) handleSharePage(w http.ResponseWriter, r *http.Request) {
	view, err := frame.NewView(chi.URLParam(r, "fid"))
	if err != nil {
		http.Error(w, "malformed frame identifier", http.StatusBadRequest)
		return
	}

	text := s.deps.Subtitles.Lookup(r.Context(), view.Frame.FID)
	data := shareData{
		Title:       fmt.Sprintf("%s S%02dE%02d", view.Frame.SeriesID, view.Frame.Season, view.Frame.Episode),
		Subtitle:    text,
		ImageURL:    s.absoluteURL(view.Frame.ImagePath),
		PageURL:     s.absoluteURL("/frame/" + view.Frame.FID),
		Frame:       view.Frame,
		Surrounding: view.Surrounding,
	}
	if text == subtitle.Unavailable {
		data.Subtitle = ""
	}
	if s.adsFor(r) && s.deps.AdTag != nil {
		data.AdTag = s.deps.AdTag.Tag()
	}

	var buf bytes.Buffer
	if err := sharePage.Execute(&buf, data); err != nil {
		s.logger.Error("render share page", "fid", view.Frame.FID, "err", err)
		http.Error(w, errInternal, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", htmlContentType)
	_, _ = w.Write(buf.Bytes())
}
