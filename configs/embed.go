// Package configs embeds the configuration template written by
// `nocmatch config init`.
//
// Configuration hierarchy (see internal/config Load):
//  1. Hardcoded defaults (internal/config NewConfig)
//  2. User config (~/.config/nocmatch/config.yaml)
//  3. Project config (.nocmatch.yaml)
//  4. Environment variables (NOCMATCH_*)
package configs

import _ "embed"

// ConfigTemplate is a commented config file listing every setting with its
// default. It is valid for both the user and the project location.
//
//go:embed config.example.yaml
var ConfigTemplate string
