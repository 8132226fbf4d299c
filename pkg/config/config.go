package config

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"

	"github.com/sidkik/orangeshare/pkg/errors"
)

// fs is replaced with an in-memory filesystem by the tests.
var fs = afero.NewOsFs()

// invalidConfigTemplate is shown when the config file isn't valid YAML, or
// has fields that orangeshare doesn't know about. The yaml library's errors
// don't say where the problem is, so the raw message is passed along.
const invalidConfigTemplate = "The orangeshare config at %q could not be parsed.\n" +
	"Check that every folder has a name and url, that values have the " +
	"right types, and that there are no misspelled fields.\n\n" +
	"Parser error:\n" +
	"%s"

type versionError struct {
	path, expected, actual string
}

func (err versionError) Error() string {
	return err.FriendlyMessage()
}

func (err versionError) FriendlyMessage() string {
	return fmt.Sprintf("%q has config version %q, but this version of "+
		"orangeshare only reads %q.", err.path, err.actual, err.expected)
}

// read loads the Config at `path`. Files without a version are treated as
// InitialConfigVersion.
func read(path string) (Config, error) {
	contents, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		return Config{}, errors.FileNotFound{Path: path}
	} else if err != nil {
		return Config{}, errors.WithContext(err, "read file")
	}

	// The version is checked before the strict unmarshal so that configs
	// from newer releases get a version error rather than an unknown field
	// error.
	config := Config{Version: InitialConfigVersion}
	if err := yaml.Unmarshal(contents, &config); err != nil {
		return Config{}, errors.NewFriendlyError(invalidConfigTemplate, path, err)
	}
	if config.Version != SupportedConfigVersion {
		return Config{}, versionError{path, SupportedConfigVersion, config.Version}
	}

	if err := yaml.UnmarshalStrict(contents, &config, yaml.DisallowUnknownFields); err != nil {
		return Config{}, errors.NewFriendlyError(invalidConfigTemplate, path, err)
	}
	return config, nil
}
