package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/wfunc/emojirades/internal/errors"
)

// LoadWorkspaceDir reads one workspace definition per *.yaml / *.yml file in dir,
// in filename order. A missing id defaults to the file name without extension.
func LoadWorkspaceDir(dir string) ([]WorkspaceConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrConfigLoad, "read workspaces dir %s", dir)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	workspaces := make([]WorkspaceConfig, 0, len(names))
	for _, name := range names {
		ws, err := loadWorkspaceFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if ws.ID == "" {
			ws.ID = strings.TrimSuffix(name, filepath.Ext(name))
		}
		workspaces = append(workspaces, ws)
	}
	return workspaces, nil
}

func loadWorkspaceFile(path string) (WorkspaceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return WorkspaceConfig{}, apperrors.Wrapf(err, apperrors.ErrConfigLoad, "read %s", path)
	}

	var ws WorkspaceConfig
	if err := yaml.Unmarshal(data, &ws); err != nil {
		return WorkspaceConfig{}, apperrors.Wrapf(err, apperrors.ErrConfigParse, "parse %s", path)
	}

	// Secrets stay out of checked-in files.
	if oauth := os.Getenv("TWITCH_OAUTH"); oauth != "" && ws.Twitch.OAuth == "" {
		ws.Twitch.OAuth = oauth
	}
	if ws.Transport == "" {
		ws.Transport = TransportWebSocket
	}
	return ws, nil
}
