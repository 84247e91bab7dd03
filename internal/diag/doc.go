// Package diag holds the diagnostic model shared by the rules, the engine and
// the renderers: rule codes, severities, fixes, bags and reporters.
package diag
