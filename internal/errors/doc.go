// Package errors provides coded, actionable errors for the reactor CLI
// and configuration loader.
//
// Each code maps to a category, a short message, a longer explanation
// and a documentation link. Errors can point at a line of a config file,
// in which case Format prints the surrounding lines.
//
// # Codes
//
//   - R001-R019: runtime (signing keys, database, listener)
//   - R100-R139: config (parse errors, invalid values)
//   - R140-R159: cli (flags, arguments)
//
// # Usage
//
//	err := errors.New("R104").
//	    WithLocation("reactor.yaml", 7, 3).
//	    WithSuggestion("Use a duration such as 30s or 1m")
//
//	errors.PrintError(err)
package errors
