package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ettle/strcase"
)

// DefaultTitle names the dashboard when no title is configured.
const DefaultTitle = "SCP Tracker"

// Bundle is the exported configuration document.
type Bundle struct {
	IntervalSec float64  `json:"intervalSec"`
	Widgets     []Widget `json:"widgets"`
	Token       *string  `json:"token,omitempty"`
}

// BundlePatch holds the fields present in an imported document. A nil field
// was absent and leaves the current value untouched.
type BundlePatch struct {
	Token       *string
	IntervalSec *float64
	Widgets     []Widget
}

// Empty reports whether the patch changes nothing.
func (p BundlePatch) Empty() bool {
	return p.Token == nil && p.IntervalSec == nil && p.Widgets == nil
}

// ApplyTo overwrites the present fields of state.
func (p BundlePatch) ApplyTo(state DashboardState) DashboardState {
	next := cloneState(state)
	if p.Token != nil {
		next.Token = *p.Token
	}
	if p.IntervalSec != nil {
		next.IntervalSec = *p.IntervalSec
	}
	if p.Widgets != nil {
		next.Widgets = dedupeWidgets(p.Widgets)
	}
	return next
}

// ExportConfig serialises state as pretty-printed JSON. The token is only
// included when includeToken is set.
func ExportConfig(state DashboardState, includeToken bool) ([]byte, error) {
	bundle := Bundle{
		IntervalSec: state.IntervalSec,
		Widgets:     cloneWidgets(state.Widgets),
	}
	if includeToken {
		token := state.Token
		bundle.Token = &token
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("tracker: encode bundle: %w", err)
	}
	return append(data, '\n'), nil
}

var defaultBundleValidator = NewBundleValidator()

// ImportConfig reads a configuration document. Any decode or validation
// failure is returned as a *ParseError and yields an empty patch.
func ImportConfig(r io.Reader) (BundlePatch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return BundlePatch{}, &ParseError{Source: "import", Err: err}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return BundlePatch{}, &ParseError{Source: "import", Err: err}
	}
	if err := defaultBundleValidator.Validate(doc); err != nil {
		return BundlePatch{}, &ParseError{Source: "import", Err: err}
	}
	var fields struct {
		Token       *string  `json:"token"`
		IntervalSec *float64 `json:"intervalSec"`
		Widgets     []Widget `json:"widgets"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return BundlePatch{}, &ParseError{Source: "import", Err: err}
	}
	patch := BundlePatch{
		Token:       fields.Token,
		IntervalSec: fields.IntervalSec,
	}
	if fields.Widgets != nil {
		patch.Widgets = make([]Widget, 0, len(fields.Widgets))
		for _, w := range fields.Widgets {
			if w.Name == "" {
				w.Name = DefaultWidgetName(w.ID)
			}
			patch.Widgets = append(patch.Widgets, w)
		}
	}
	return patch, nil
}

// Apply writes the present fields of patch in a single update.
func (p *PersistedState) Apply(ctx context.Context, patch BundlePatch) error {
	return p.Update(ctx, func(s *DashboardState) { *s = patch.ApplyTo(*s) })
}

// ExportFileName derives the download name from the dashboard title.
func ExportFileName(title string) string {
	slug := strcase.ToKebab(strings.TrimSpace(title))
	if slug == "" {
		slug = strcase.ToKebab(DefaultTitle)
	}
	return slug + "-config.json"
}

// DirSink writes exported files into a directory.
type DirSink struct {
	Dir string
}

// Save writes data to Dir/name, creating Dir when needed.
func (s DirSink) Save(_ context.Context, name string, data []byte) error {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("tracker: create export dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("tracker: write export %s: %w", path, err)
	}
	return nil
}
