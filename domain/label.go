package domain

// Label is a project-scoped tag shared across tasks.
type Label struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	Color     string `json:"color"`
}

// PaletteColor is one entry of the closed label color palette.
type PaletteColor struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

var palette = []PaletteColor{
	{Name: "red", Value: "#ef4444"},
	{Name: "orange", Value: "#f97316"},
	{Name: "yellow", Value: "#eab308"},
	{Name: "green", Value: "#22c55e"},
	{Name: "blue", Value: "#3b82f6"},
	{Name: "purple", Value: "#a855f7"},
	{Name: "pink", Value: "#ec4899"},
	{Name: "gray", Value: "#64748b"},
	{Name: "black", Value: "#171717"},
}

// Palette returns the closed set of label colors.
func Palette() []PaletteColor {
	out := make([]PaletteColor, len(palette))
	copy(out, palette)
	return out
}

// ValidColor reports whether value is one of the palette colors.
func ValidColor(value string) bool {
	for _, c := range palette {
		if c.Value == value {
			return true
		}
	}
	return false
}

// StarterLabels is the fixed set seeded into a project that has no labels
// on first access.
func StarterLabels(projectID string) []Label {
	return []Label{
		{ProjectID: projectID, Name: "Priority", Color: "#ef4444"},
		{ProjectID: projectID, Name: "Review", Color: "#a855f7"},
		{ProjectID: projectID, Name: "On Hold", Color: "#eab308"},
	}
}
