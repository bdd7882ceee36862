// Package lookup loads the static assets that give MARTS category codes
// their labels and the web page its colours.
//
// Both assets are embedded and can be overridden with files named by
// MARTS_ASSETS_CATEGORIES_FILE and MARTS_ASSETS_COLORS_FILE. They are loaded
// once at startup and passed explicitly to the components that need them.
package lookup
