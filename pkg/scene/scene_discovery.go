package scene

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	modelPrefix   = "model:"
	builtinGroup  = "Built-in Scenes"
	modelGroup    = "Models"
	modelFileGlob = "*.ply"
)

// modelDirs are tried in order, from the project root (command line) and
// from web/ (web server)
var modelDirs = []string{"models", "../models"}

// SceneInfo represents a discovered scene with its metadata
type SceneInfo struct {
	ID          string `json:"id"`          // Unique identifier
	Name        string `json:"name"`        // Scene name
	DisplayName string `json:"displayName"` // UI display name
	Description string `json:"description"` // Optional description
	Group       string `json:"group"`       // Grouping category
	Type        string `json:"type"`        // "builtin" or "model"
	FilePath    string `json:"filePath"`    // Path to PLY file (model type only)
	Variant     string `json:"variant"`     // Variant name (optional)
}

// SceneGroup represents a group of related scenes
type SceneGroup struct {
	Name   string      `json:"name"`
	Scenes []SceneInfo `json:"scenes"`
}

// ScenesResponse represents the complete response for /api/scenes
type ScenesResponse struct {
	Groups []SceneGroup `json:"groups"`
}

var builtinDescriptions = map[string]string{
	"default":        "Black hole between a checkered sky and a sphere just outside the horizon",
	"accretion-disk": "Thin disk of particles orbiting between two and four horizon radii",
	"spiral":         "Flat spiral of points wound around the black hole",
	"heart":          "Heart of points standing next to a small black hole",
	"flat":           "The default scene without gravity, for comparison",
}

// findModelsDir returns the first existing models directory, or "" if there is none
func findModelsDir() string {
	for _, dir := range modelDirs {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}

// findModel resolves a model name to its PLY file
func findModel(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: invalid model name %q", ErrUnknownScene, name)
	}
	for _, dir := range modelDirs {
		path := filepath.Join(dir, name+".ply")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: model %q not found", ErrUnknownScene, name)
}

// modelName returns the file name of a model without its extension
func modelName(path string) string {
	filename := filepath.Base(path)
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// ListModelScenes scans the models directory and returns the PLY models found there
func ListModelScenes() ([]SceneInfo, error) {
	return listModelScenesIn(findModelsDir())
}

func listModelScenesIn(modelsDir string) ([]SceneInfo, error) {
	if modelsDir == "" {
		// No models directory found, return empty list
		return []SceneInfo{}, nil
	}

	files, err := filepath.Glob(filepath.Join(modelsDir, modelFileGlob))
	if err != nil {
		return nil, fmt.Errorf("failed to scan models directory: %w", err)
	}

	scenes := []SceneInfo{}
	for _, filePath := range files {
		sceneInfo, err := ParseModelMetadata(filePath)
		if err != nil {
			// Skip unreadable headers, the other models are still usable
			continue
		}
		scenes = append(scenes, sceneInfo)
	}

	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].DisplayName < scenes[j].DisplayName
	})

	return scenes, nil
}

// ParseModelMetadata extracts metadata from the comment lines of a PLY header,
// e.g. "comment Scene: Stanford Bunny"
func ParseModelMetadata(filePath string) (SceneInfo, error) {
	nameWithoutExt := modelName(filePath)

	// Fallback values
	sceneInfo := SceneInfo{
		ID:          modelPrefix + nameWithoutExt,
		Name:        titleCase(nameWithoutExt),
		DisplayName: titleCase(nameWithoutExt),
		Group:       modelGroup,
		Type:        "model",
		FilePath:    filePath,
	}

	file, err := os.Open(filePath)
	if err != nil {
		// If we can't read the file, return with fallback values
		return sceneInfo, nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "end_header" {
			break
		}

		content, ok := strings.CutPrefix(line, "comment ")
		if !ok {
			continue
		}
		content = strings.TrimSpace(content)

		if value, ok := strings.CutPrefix(content, "Scene:"); ok {
			sceneInfo.Name = strings.TrimSpace(value)
		} else if value, ok := strings.CutPrefix(content, "Variant:"); ok {
			sceneInfo.Variant = strings.TrimSpace(value)
		} else if value, ok := strings.CutPrefix(content, "Description:"); ok {
			sceneInfo.Description = strings.TrimSpace(value)
		} else if value, ok := strings.CutPrefix(content, "Group:"); ok {
			if group := strings.TrimSpace(value); group != "" {
				sceneInfo.Group = group
			}
		}
	}

	if sceneInfo.Name == "" {
		sceneInfo.Name = titleCase(nameWithoutExt)
	}
	if sceneInfo.Variant != "" {
		sceneInfo.DisplayName = fmt.Sprintf("%s - %s", sceneInfo.Name, sceneInfo.Variant)
	} else {
		sceneInfo.DisplayName = sceneInfo.Name
	}

	return sceneInfo, scanner.Err()
}

// builtinSceneInfos describes the built-in scenes
func builtinSceneInfos() []SceneInfo {
	infos := make([]SceneInfo, 0, len(builtinScenes))
	for _, id := range BuiltinIDs() {
		s := builtinScenes[id]()
		infos = append(infos, SceneInfo{
			ID:          id,
			Name:        s.Name,
			DisplayName: s.Name,
			Description: builtinDescriptions[id],
			Group:       builtinGroup,
			Type:        "builtin",
		})
	}
	return infos
}

// ListScenes returns both built-in and model scenes, grouped by category
func ListScenes() (ScenesResponse, error) {
	modelScenes, err := ListModelScenes()
	if err != nil {
		return ScenesResponse{}, fmt.Errorf("failed to list model scenes: %w", err)
	}
	return groupScenes(append(builtinSceneInfos(), modelScenes...)), nil
}

// groupScenes groups scenes by their Group field, built-in scenes first and
// the other groups alphabetically
func groupScenes(allScenes []SceneInfo) ScenesResponse {
	var response ScenesResponse

	groupMap := make(map[string][]SceneInfo)
	for _, scene := range allScenes {
		groupMap[scene.Group] = append(groupMap[scene.Group], scene)
	}

	var groupNames []string
	for groupName := range groupMap {
		if groupName != builtinGroup {
			groupNames = append(groupNames, groupName)
		}
	}
	sort.Strings(groupNames)

	if builtIn, exists := groupMap[builtinGroup]; exists {
		response.Groups = append(response.Groups, SceneGroup{
			Name:   builtinGroup,
			Scenes: builtIn,
		})
	}

	for _, groupName := range groupNames {
		response.Groups = append(response.Groups, SceneGroup{
			Name:   groupName,
			Scenes: groupMap[groupName],
		})
	}

	return response
}

// titleCase converts a filename-style string to title case
// e.g., "stanford-bunny" -> "Stanford Bunny"
func titleCase(s string) string {
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")

	words := strings.Fields(s)
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
		}
	}

	return strings.Join(words, " ")
}
