package scene

import (
	"os"
	"path/filepath"
	"testing"
)

// writeModel writes a PLY file with the given header lines and one vertex
func writeModel(t *testing.T, dir, name string, headerLines ...string) string {
	t.Helper()
	content := "ply\nformat ascii 1.0\n"
	for _, line := range headerLines {
		content += line + "\n"
	}
	content += "element vertex 1\nproperty float x\nproperty float y\nproperty float z\nend_header\n0 0 0\n"

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write model: %v", err)
	}
	return path
}

func TestTitleCase(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"stanford-bunny", "Stanford Bunny"},
		{"dragon_gold", "Dragon Gold"},
		{"my-custom-model", "My Custom Model"},
		{"simple", "Simple"},
		{"UPPER-case", "Upper Case"},
		{"", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			result := titleCase(tc.input)
			if result != tc.expected {
				t.Errorf("titleCase(%q) = %q, want %q", tc.input, result, tc.expected)
			}
		})
	}
}

func TestParseModelMetadata(t *testing.T) {
	dir := t.TempDir()

	testCases := []struct {
		name     string
		header   []string
		expected SceneInfo
	}{
		{
			name: "complete_metadata.ply",
			header: []string{
				"comment Scene: Stanford Bunny",
				"comment Variant: Coarse",
				"comment Description: Bunny reduced to its vertices",
				"comment Group: Scanned Models",
			},
			expected: SceneInfo{
				ID:          "model:complete_metadata",
				Name:        "Stanford Bunny",
				DisplayName: "Stanford Bunny - Coarse",
				Description: "Bunny reduced to its vertices",
				Group:       "Scanned Models",
				Type:        "model",
				Variant:     "Coarse",
			},
		},
		{
			name: "partial_metadata.ply",
			header: []string{
				"comment Scene: Dragon",
				"comment made by a scanner",
			},
			expected: SceneInfo{
				ID:          "model:partial_metadata",
				Name:        "Dragon",
				DisplayName: "Dragon",
				Group:       "Models", // Default group
				Type:        "model",
			},
		},
		{
			name: "no_metadata.ply",
			expected: SceneInfo{
				ID:          "model:no_metadata",
				Name:        "No Metadata", // From filename
				DisplayName: "No Metadata",
				Group:       "Models",
				Type:        "model",
			},
		},
		{
			name:   "empty_values.ply",
			header: []string{"comment Scene:", "comment Group:   "},
			expected: SceneInfo{
				ID:          "model:empty_values",
				Name:        "Empty Values",
				DisplayName: "Empty Values",
				Group:       "Models",
				Type:        "model",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeModel(t, dir, tc.name, tc.header...)

			result, err := ParseModelMetadata(path)
			if err != nil {
				t.Fatalf("ParseModelMetadata() error: %v", err)
			}

			tc.expected.FilePath = path
			if result != tc.expected {
				t.Errorf("ParseModelMetadata() = %+v, want %+v", result, tc.expected)
			}
		})
	}
}

func TestParseModelMetadata_InvalidFile(t *testing.T) {
	// Missing files fall back to values from the file name
	result, err := ParseModelMetadata("nonexistent.ply")
	if err != nil {
		t.Errorf("ParseModelMetadata() should handle missing files gracefully: %v", err)
	}
	if result.ID != "model:nonexistent" {
		t.Errorf("Expected fallback id, got %q", result.ID)
	}
}

func TestListModelScenesIn(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "zebra.ply")
	writeModel(t, dir, "aardvark.ply")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a model"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	scenes, err := listModelScenesIn(dir)
	if err != nil {
		t.Fatalf("listModelScenesIn() error: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("Expected 2 models, got %d", len(scenes))
	}
	if scenes[0].ID != "model:aardvark" || scenes[1].ID != "model:zebra" {
		t.Errorf("Expected models sorted by name, got %q and %q", scenes[0].ID, scenes[1].ID)
	}
}

func TestListModelScenesIn_NoDirectory(t *testing.T) {
	scenes, err := listModelScenesIn("")
	if err != nil {
		t.Errorf("listModelScenesIn() error: %v", err)
	}
	if scenes == nil || len(scenes) != 0 {
		t.Errorf("Expected an empty slice, got %v", scenes)
	}
}

func TestListScenes(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "models"), 0755); err != nil {
		t.Fatalf("Failed to create models directory: %v", err)
	}
	writeModel(t, filepath.Join(dir, "models"), "bunny.ply", "comment Group: Scanned Models")
	t.Chdir(dir)

	response, err := ListScenes()
	if err != nil {
		t.Fatalf("ListScenes() error: %v", err)
	}

	if len(response.Groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(response.Groups))
	}
	builtIn := response.Groups[0]
	if builtIn.Name != "Built-in Scenes" {
		t.Errorf("Expected built-in scenes first, got %q", builtIn.Name)
	}

	expectedScenes := []string{"default", "accretion-disk", "spiral", "heart", "flat"}
	if len(builtIn.Scenes) != len(expectedScenes) {
		t.Errorf("Built-in scenes count = %d, want %d", len(builtIn.Scenes), len(expectedScenes))
	}
	sceneIDs := make(map[string]bool)
	for _, scene := range builtIn.Scenes {
		sceneIDs[scene.ID] = true
		if scene.Type != "builtin" || scene.DisplayName == "" || scene.Description == "" {
			t.Errorf("Incomplete built-in scene: %+v", scene)
		}
	}
	for _, expectedID := range expectedScenes {
		if !sceneIDs[expectedID] {
			t.Errorf("Missing expected built-in scene: %s", expectedID)
		}
	}

	models := response.Groups[1]
	if models.Name != "Scanned Models" || len(models.Scenes) != 1 || models.Scenes[0].ID != "model:bunny" {
		t.Errorf("Unexpected model group: %+v", models)
	}
}

func TestGroupScenes_Order(t *testing.T) {
	response := groupScenes([]SceneInfo{
		{ID: "b", Group: "Zoo"},
		{ID: "a", Group: "Built-in Scenes"},
		{ID: "c", Group: "Animals"},
		{ID: "d", Group: "Zoo"},
	})

	var names []string
	for _, g := range response.Groups {
		names = append(names, g.Name)
	}
	expected := []string{"Built-in Scenes", "Animals", "Zoo"}
	if len(names) != len(expected) {
		t.Fatalf("Expected groups %v, got %v", expected, names)
	}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("Expected groups %v, got %v", expected, names)
			break
		}
	}
	if len(response.Groups[2].Scenes) != 2 {
		t.Errorf("Expected two scenes in Zoo, got %d", len(response.Groups[2].Scenes))
	}
}
