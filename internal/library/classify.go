// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

package library

import "regexp"

// samplePatterns match sample clips that ship alongside the main video.
var samplePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)[-_.\s]sample[-_.\s]`),
	regexp.MustCompile(`(?i)^sample[-_.\s]`),
	regexp.MustCompile(`(?i)[-_.\s]sample$`),
	regexp.MustCompile(`(?i)sample\.`),
	regexp.MustCompile(`(?i)[\[(]sample[\])]`),
}

// extendedMoviePatterns match legitimate extended editions so they are
// never misclassified as extras.
var extendedMoviePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)extended[.\s]+(cut|edition|version)`),
	regexp.MustCompile(`(?i)[.\s]extended[.\s]+`),
	regexp.MustCompile(`(?i)[.\s]extended$`),
	regexp.MustCompile(`(?i)extended[.\s]+(bluray|uhd|2160p|1080p)`),
}

// unratedMoviePattern matches full unrated releases, as opposed to
// standalone unrated scenes.
var unratedMoviePattern = regexp.MustCompile(`(?i)unrated[.\s]+(cut|edition|bluray|uhd|2160p|1080p)`)

// extrasCategories maps extra-content categories to their filename
// patterns. Order matters only for which category name is reported.
var extrasCategories = []struct {
	category string
	patterns []*regexp.Regexp
}{
	{"trailer", []*regexp.Regexp{
		regexp.MustCompile(`(?i)[-_.\s]trailer[-_.\s]`),
		regexp.MustCompile(`(?i)[-_.\s]teaser[-_.\s]`),
		regexp.MustCompile(`(?i)[\[(]trailer[\])]`),
	}},
	{"deleted_scene", []*regexp.Regexp{
		regexp.MustCompile(`(?i)[-_.\s]deleted[-_.\s]scene`),
		regexp.MustCompile(`(?i)[-_.\s]deleted[-_.\s]`),
	}},
	{"interview", []*regexp.Regexp{
		regexp.MustCompile(`(?i)[-_.\s]interview[-_.\s]`),
		regexp.MustCompile(`(?i)[-_.\s]press[-_.\s]`),
	}},
	{"behind_scenes", []*regexp.Regexp{
		regexp.MustCompile(`(?i)[-_.\s]behind[-_.\s]the[-_.\s]scenes[-_.\s]`),
		regexp.MustCompile(`(?i)[-_.\s]making[-_.\s]of[-_.\s]`),
		regexp.MustCompile(`(?i)[-_.\s]bts[-_.\s]`),
	}},
	{"featurette", []*regexp.Regexp{
		regexp.MustCompile(`(?i)[-_.\s]featurette[-_.\s]`),
	}},
	{"extra", []*regexp.Regexp{
		regexp.MustCompile(`(?i)[-_.\s](extra|extras)[-_.\s]`),
		regexp.MustCompile(`(?i)[-_.\s]bonus[-_.\s](feature|content|material)`),
		regexp.MustCompile(`(?i)[-_.\s]special[-_.\s]feature[-_.\s]`),
	}},
	{"commentary", []*regexp.Regexp{
		regexp.MustCompile(`(?i)[-_.\s]commentary[-_.\s]`),
		regexp.MustCompile(`(?i)[-_.\s]blooper[-_.\s]`),
		regexp.MustCompile(`(?i)[-_.\s]gag[-_.\s]reel[-_.\s]`),
	}},
	{"unrated", []*regexp.Regexp{
		regexp.MustCompile(`(?i)[-_.\s]unrated[-_.\s]scene`),
		regexp.MustCompile(`(?i)[-_.\s]uncensored[-_.\s]scene`),
	}},
}

// ClassifyExtra returns the extra-content category of a filename, or ""
// if the file is main content. Extended and unrated full releases are
// main content even though they share keywords with extras.
func ClassifyExtra(filename string) string {
	for _, p := range extendedMoviePatterns {
		if p.MatchString(filename) {
			return ""
		}
	}
	if unratedMoviePattern.MatchString(filename) {
		return ""
	}
	for _, cat := range extrasCategories {
		for _, p := range cat.patterns {
			if p.MatchString(filename) {
				return cat.category
			}
		}
	}
	return ""
}

// IsSample reports whether the filename looks like a sample clip.
func IsSample(filename string) bool {
	for _, p := range samplePatterns {
		if p.MatchString(filename) {
			return true
		}
	}
	return false
}

// ShouldSkip reports whether a file should be excluded from the library,
// with the reason category for logging.
func ShouldSkip(filename string) (bool, string) {
	if category := ClassifyExtra(filename); category != "" {
		return true, category
	}
	if IsSample(filename) {
		return true, "sample"
	}
	return false, ""
}
