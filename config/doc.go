// Package config loads the flowdiffd configuration.
//
// A Loader starts from Default, deep-merges each file layer in order (JSON
// or YAML, chosen by extension), then applies FLOWDIFF_* environment
// variables. Durations may be written as Go duration strings, with a "d"
// suffix for days, or as nanoseconds.
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.yaml") // overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Validation combines go-playground/validator struct tags with checks that
// depend on the selected store backend.
package config
