package tracker

import (
	"fmt"
	"sync"
)

// WidgetStore is the ordered, deduplicated list of dashboard widgets.
// It does not enforce roles except for the locked-removal rule; callers gate
// rename and clear themselves.
type WidgetStore struct {
	mu      sync.RWMutex
	widgets []Widget
}

// NewWidgetStore creates a store seeded with widgets (deduplicated).
func NewWidgetStore(widgets ...Widget) *WidgetStore {
	return &WidgetStore{widgets: dedupeWidgets(widgets)}
}

// DefaultWidgetName is used when a widget is added without a name.
func DefaultWidgetName(id WidgetID) string {
	return fmt.Sprintf("SCP %s", id)
}

// Add parses raw input into identifiers, appends one widget per token and
// dedupes the result. It returns the resulting list.
func (s *WidgetStore) Add(input, name string, locked bool) []Widget {
	ids := ParseWidgetInput(input)
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make([]Widget, 0, len(s.widgets)+len(ids))
	merged = append(merged, s.widgets...)
	for _, id := range ids {
		widgetName := name
		if widgetName == "" {
			widgetName = DefaultWidgetName(id)
		}
		merged = append(merged, Widget{ID: id, Name: widgetName, Locked: locked})
	}
	s.widgets = dedupeWidgets(merged)
	return cloneWidgets(s.widgets)
}

// RemoveAt removes the widget at index. Locked widgets are only removable by admins.
func (s *WidgetStore) RemoveAt(index int, role Role) (Widget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.widgets) {
		return Widget{}, ErrIndexOutOfRange
	}
	target := s.widgets[index]
	if target.Locked && !role.IsAdmin() {
		return Widget{}, ErrWidgetLocked
	}
	next := make([]Widget, 0, len(s.widgets)-1)
	next = append(next, s.widgets[:index]...)
	next = append(next, s.widgets[index+1:]...)
	s.widgets = next
	return target, nil
}

// RenameAt changes the display name of the widget at index.
func (s *WidgetStore) RenameAt(index int, name string) (Widget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.widgets) {
		return Widget{}, ErrIndexOutOfRange
	}
	s.widgets[index].Name = name
	return s.widgets[index], nil
}

// Clear removes every widget.
func (s *WidgetStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.widgets = nil
}

// RetainLocked removes every unlocked widget and keeps the locked ones in order.
func (s *WidgetStore) RetainLocked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]Widget, 0, len(s.widgets))
	for _, w := range s.widgets {
		if w.Locked {
			kept = append(kept, w)
		}
	}
	s.widgets = kept
}

// Replace swaps the whole list, applying the dedupe rule.
func (s *WidgetStore) Replace(widgets []Widget) []Widget {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.widgets = dedupeWidgets(widgets)
	return cloneWidgets(s.widgets)
}

// Widgets returns a copy of the current list.
func (s *WidgetStore) Widgets() []Widget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneWidgets(s.widgets)
}

// IndexOf returns the position of id or -1.
func (s *WidgetStore) IndexOf(id WidgetID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, w := range s.widgets {
		if w.ID.String() == id.String() {
			return i
		}
	}
	return -1
}

// Len returns the number of widgets.
func (s *WidgetStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.widgets)
}

// dedupeWidgets keeps the first widget per stringified id. Empty ids are dropped.
func dedupeWidgets(widgets []Widget) []Widget {
	seen := make(map[string]struct{}, len(widgets))
	result := make([]Widget, 0, len(widgets))
	for _, w := range widgets {
		key := w.ID.String()
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, w)
	}
	return result
}

func cloneWidgets(widgets []Widget) []Widget {
	out := make([]Widget, len(widgets))
	copy(out, widgets)
	return out
}
