package config

import (
	"net/url"
	"path/filepath"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/sidkik/orangeshare/pkg/errors"
)

const (
	// DefaultPath is the default path to the orangeshare config.
	DefaultPath = "~/.orangeshare.yaml"

	// DefaultFoldersPath is where folders are kept unless they set a
	// custom path.
	DefaultFoldersPath = "~/OrangeShare"

	// DefaultBackend is used by folders that don't set a backend.
	DefaultBackend = "git"

	// InitialConfigVersion is the first version of the config. Config files
	// that do not specify a version will default to this version.
	InitialConfigVersion = "v1alpha1"

	// SupportedConfigVersion is the config version supported by this binary.
	SupportedConfigVersion = "v1alpha1"
)

// Config is the orangeshare configuration file.
type Config struct {
	Version string `json:"version,omitempty"`

	// FoldersPath is the parent directory of folders that don't set a
	// custom path.
	FoldersPath string `json:"foldersPath,omitempty"`

	// AnnouncementsURL overrides the notification server for every folder
	// that doesn't set its own.
	AnnouncementsURL string `json:"announcementsURL,omitempty"`

	LogFile        string `json:"logFile,omitempty"`
	MetricsAddress string `json:"metricsAddress,omitempty"`

	User    User     `json:"user"`
	Folders []Folder `json:"folders"`
}

// User is the identity used when committing changes.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Folder configures a single synced folder.
type Folder struct {
	Name             string `json:"name"` // Required.
	URL              string `json:"url"`  // Required.
	Backend          string `json:"backend,omitempty"`
	Path             string `json:"path,omitempty"`
	AnnouncementsURL string `json:"announcementsURL,omitempty"`
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// Parse reads the config at `path`. A leading ~ in the path is expanded.
func Parse(path string) (Config, error) {
	path, err := homedirExpand(path)
	if err != nil {
		return Config{}, errors.WithContext(err, "expand config path")
	}

	config, err := read(path)
	if err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return Config{}, errors.NewFriendlyError("The orangeshare config "+
				"file doesn't exist at %q. Please create it with at least "+
				"one folder.", path)
		}
		return Config{}, errors.WithContext(err, "parse")
	}

	if config.FoldersPath == "" {
		config.FoldersPath = DefaultFoldersPath
	}
	config.FoldersPath, err = homedirExpand(config.FoldersPath)
	if err != nil {
		return Config{}, errors.WithContext(err, "expand folders path")
	}

	for i, folder := range config.Folders {
		if folder.Name == "" {
			return Config{}, errors.WithContext(errors.MissingFieldError{Field: "name"},
				"validate folder")
		}
		if folder.URL == "" {
			return Config{}, errors.WithContext(errors.MissingFieldError{Field: "url"},
				"validate folder "+folder.Name)
		}
		if folder.Backend == "" {
			config.Folders[i].Backend = DefaultBackend
		}
		if folder.Path != "" {
			config.Folders[i].Path, err = homedirExpand(folder.Path)
			if err != nil {
				return Config{}, errors.WithContext(err, "expand folder path")
			}
		}
	}
	return config, nil
}

// Write writes the given config to `path`.
func Write(path string, cfg Config) error {
	cfg.Version = SupportedConfigVersion
	path, err := homedirExpand(path)
	if err != nil {
		return errors.WithContext(err, "expand config path")
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// Folder returns the configuration for the folder called `name`.
func (c Config) Folder(name string) (Folder, bool) {
	for _, folder := range c.Folders {
		if folder.Name == name {
			return folder, true
		}
	}
	return Folder{}, false
}

// FolderPath returns where the folder called `name` lives on disk.
func (c Config) FolderPath(name string) string {
	if folder, ok := c.Folder(name); ok && folder.Path != "" {
		return filepath.Join(folder.Path, name)
	}
	return filepath.Join(c.FoldersPath, name)
}

// FolderAnnouncementsURL returns the notification server configured for the
// folder called `name`, or an empty string.
func (c Config) FolderAnnouncementsURL(name string) string {
	folder, _ := c.Folder(name)
	return folder.AnnouncementsURL
}

// GlobalAnnouncementsURL returns the notification server configured for all
// folders, or an empty string.
func (c Config) GlobalAnnouncementsURL() string {
	return c.AnnouncementsURL
}

// RemoteURL parses the folder's remote address.
func (f Folder) RemoteURL() (*url.URL, error) {
	u, err := url.Parse(f.URL)
	if err != nil {
		return nil, errors.WithContext(err, "parse url")
	}
	return u, nil
}
