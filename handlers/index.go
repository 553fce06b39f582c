package handlers

import (
	"html/template"
	"net/http"

	"github.com/Lucifer7355/pdfmerge/workspace"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Merge PDF files</title>
{{if .Merging}}<meta http-equiv="refresh" content="1">{{end}}
<style>
body { font-family: sans-serif; max-width: 40rem; margin: 2rem auto; }
#drop-zone { border: 2px dashed #999; padding: 2rem; text-align: center; }
#drop-zone.dragover { border-color: #2563eb; background: #eff6ff; }
.message.info { color: #1d4ed8; }
.message.success { color: #15803d; }
.message.error { color: #b91c1c; }
</style>
</head>
<body>
<h1>Merge PDF files</h1>

<form id="upload" action="/files" method="post" enctype="multipart/form-data">
  <div id="drop-zone">Drop PDF files here or
    <input id="file-input" type="file" name="files" accept=".pdf,application/pdf" multiple>
  </div>
  <button type="submit">Add files</button>
</form>

{{with .Message}}{{if .Text}}<p id="message" class="message {{.Severity}}">{{.Text}}</p>{{end}}{{end}}

{{with .Progress}}{{if .Visible}}
<div id="progress">
  <progress max="100" value="{{.Percent}}">{{.Percent}}%</progress>
  <span class="progress-text">{{.Text}}</span>
</div>
{{end}}{{end}}

<ul id="file-list">
{{range .Files}}  <li class="file-item">
    <span class="file-name">{{.Name}}</span>
    <span class="file-size">{{.SizeText}}</span>
    <form action="/files/{{.Index}}/remove" method="post"><button class="remove" type="submit">Remove</button></form>
  </li>
{{end}}</ul>

<form action="/merge" method="post">
  <button id="merge" type="submit"{{if or (not .CanMerge) .Merging}} disabled{{end}}>Merge PDFs</button>
</form>

{{with .Download}}<p><a id="download" href="{{.URL}}" download="{{.Name}}">Download {{.Name}}</a></p>
<script id="download-start">
(function () {
  var link = document.getElementById("download");
  var key = "started:" + link.getAttribute("href");
  if (!sessionStorage.getItem(key)) {
    sessionStorage.setItem(key, "1");
    link.click();
  }
})();
</script>
{{end}}

<script>
(function () {
  var zone = document.getElementById("drop-zone");
  ["dragenter", "dragover"].forEach(function (t) {
    zone.addEventListener(t, function (e) { e.preventDefault(); zone.classList.add("dragover"); });
  });
  ["dragleave", "drop"].forEach(function (t) {
    zone.addEventListener(t, function (e) { e.preventDefault(); zone.classList.remove("dragover"); });
  });
  zone.addEventListener("drop", function (e) {
    var body = new FormData();
    Array.prototype.forEach.call(e.dataTransfer.files, function (f) { body.append("files", f); });
    fetch("/files", { method: "POST", body: body }).then(function () { location.reload(); });
  });
  document.getElementById("file-input").addEventListener("change", function () {
    document.getElementById("upload").submit();
  });
})();
</script>
</body>
</html>
`))

// IndexHandler renders the workspace page.
func (s *Server) IndexHandler(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.mustWorkspace(w, r, "IndexHandler")
	if !ok {
		return
	}
	s.renderIndex(w, ws.View())
}

func (s *Server) renderIndex(w http.ResponseWriter, v workspace.View) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := indexTemplate.Execute(w, v); err != nil {
		s.log.WithError(err).Error("[IndexHandler] ❌ Render failed")
	}
}
