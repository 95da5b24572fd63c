// Package inspect provides feature inspection utilities for consoles and
// tools.
//
// The inspect package offers a unified interface for:
//   - Resolving short paths (e.g., "GreetingProvider/SayHello") to FQIs
//   - Listing features with their commands and properties
//   - Parsing command parameters given as key=value pairs
//   - Calling commands and reading properties on a connected server
//   - Formatting values for display
package inspect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/model"
)

// Path errors.
var (
	ErrEmptyPath       = errors.New("empty path")
	ErrInvalidPath     = errors.New("invalid path format")
	ErrFeatureNotFound = errors.New("feature not found")
	ErrMemberNotFound  = errors.New("command or property not found")
	ErrAmbiguousPath   = errors.New("ambiguous path")
)

// Resolve turns a path into the FQI of a feature, command or property.
//
// Supported formats:
//   - a fully qualified identifier, e.g.
//     "org.silastandard/examples/GreetingProvider/v1/Command/SayHello"
//   - "Feature" - the feature with that identifier
//   - "Feature/Member" - a command or property of the feature
//
// Identifiers match case-insensitively. A short feature identifier must be
// unique among the registered features.
func Resolve(reg *model.Registry, path string) (fqi.FQI, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return fqi.FQI{}, ErrEmptyPath
	}

	if strings.Count(path, "/") >= 3 {
		id, err := fqi.Parse(path)
		if err != nil {
			return fqi.FQI{}, fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		return id, nil
	}

	parts := strings.Split(path, "/")
	if len(parts) > 2 || parts[0] == "" || (len(parts) == 2 && parts[1] == "") {
		return fqi.FQI{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	feature, err := findFeature(reg, parts[0])
	if err != nil {
		return fqi.FQI{}, err
	}
	if len(parts) == 1 {
		return feature.ID, nil
	}

	member := parts[1]
	for _, c := range feature.Commands {
		if strings.EqualFold(c.ID.Identifier(), member) {
			return c.ID, nil
		}
	}
	for _, p := range feature.Properties {
		if strings.EqualFold(p.ID.Identifier(), member) {
			return p.ID, nil
		}
	}
	return fqi.FQI{}, fmt.Errorf("%w: %s in %s", ErrMemberNotFound, member, feature.ID.Identifier())
}

func findFeature(reg *model.Registry, identifier string) (*model.Feature, error) {
	var found *model.Feature
	for _, f := range reg.Features() {
		if !strings.EqualFold(f.ID.FeatureIdentifier(), identifier) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %s is both %s and %s", ErrAmbiguousPath, identifier, found.ID, f.ID)
		}
		found = f
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrFeatureNotFound, identifier)
	}
	return found, nil
}
