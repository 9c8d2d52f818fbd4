package panel

import (
	"bytes"
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"fmt"
	"html/template"
)

//go:embed assets/shell.html
var shellHTML string

var shellTemplate = template.Must(template.New("shell").Parse(shellHTML))

// Asset names the surface must serve.
const (
	ScriptAsset = "main.js"
	StyleAsset  = "main.css"
)

type shellData struct {
	Nonce     string
	ScriptURI string
	StyleURI  string
	Title     string
}

// NewNonce returns a fresh random token for gating script execution.
func NewNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("panel: generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// RenderShell produces the static HTML page that loads the panel script.
func RenderShell(nonce, scriptURI, styleURI string) (string, error) {
	var buf bytes.Buffer
	err := shellTemplate.Execute(&buf, shellData{
		Nonce:     nonce,
		ScriptURI: scriptURI,
		StyleURI:  styleURI,
		Title:     "Waystation",
	})
	if err != nil {
		return "", fmt.Errorf("panel: render shell: %w", err)
	}
	return buf.String(), nil
}
