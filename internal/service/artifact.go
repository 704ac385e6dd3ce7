package service

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Artifact is the personalized file a purchaser downloads.
type Artifact struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Renderer fills the download template with license data. The template is
// read on every call so it can be replaced without a restart.
type Renderer struct {
	templatePath string
	now          func() time.Time
}

func NewRenderer(templatePath string) *Renderer {
	return &Renderer{templatePath: templatePath, now: time.Now}
}

// ArtifactData is what the template placeholders are filled with.
type ArtifactData struct {
	LicenseKey  string
	Email       string
	Plan        string
	MaxContacts string
}

func (r *Renderer) Render(data ArtifactData) (*Artifact, error) {
	tmpl, err := os.ReadFile(r.templatePath)
	if err != nil {
		return nil, fmt.Errorf("read artifact template: %w", err)
	}

	maxContacts := data.MaxContacts
	if maxContacts == "" {
		maxContacts = "Infinity"
	}
	replacer := strings.NewReplacer(
		"{{LICENSE_KEY}}", data.LicenseKey,
		"{{LICENSE_EMAIL}}", data.Email,
		"{{PLAN}}", strings.ToUpper(data.Plan),
		"{{MAX_CONTACTS}}", maxContacts,
		"{{GENERATION_DATE}}", r.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	)

	return &Artifact{
		Filename:    ArtifactFilename(data.LicenseKey),
		ContentType: "text/html; charset=utf-8",
		Content:     []byte(replacer.Replace(string(tmpl))),
	}, nil
}

// ArtifactFilename derives the attachment name from the key.
func ArtifactFilename(key string) string {
	return "messageflow-pro-" + key + ".html"
}
