// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

// Package config loads and validates the robofuse configuration.
//
// Configuration is layered with koanf: struct defaults, then an optional
// YAML file, then ROBOFUSE_* environment variables. The resulting Config is
// immutable for the life of the process.
package config
