// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/bassosimone/nop"
)

// runValidateProfile loads the profile at profilePath against the
// daemon's plugin registry, treating every descriptor as an entry
// point so the whole graph gets parsed and loaded, and reports any
// per-plugin errors to out without binding a single real socket.
func runValidateProfile(ctx context.Context, profilePath string, out io.Writer) error {
	profile, err := loadProfile(profilePath)
	if err != nil {
		return err
	}

	logger := nop.DefaultSLogger()
	loader := buildLoader(profile, logger)

	entryNames := make([]string, 0, len(profile.Descriptors))
	for name := range profile.Descriptors {
		entryNames = append(entryNames, name)
	}
	set := loader.LoadAll(ctx, entryNames)
	set.Teardown()

	errs := loader.Errors()
	if len(errs) == 0 {
		fmt.Fprintf(out, "profile %s: %d plugins loaded cleanly\n", profilePath, len(profile.Descriptors))
		return nil
	}
	for name, err := range errs {
		fmt.Fprintf(out, "%s: %s\n", name, err)
	}
	return fmt.Errorf("flowplaned: profile %s: %d plugin(s) failed to load", profilePath, len(errs))
}
