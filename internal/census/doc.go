// Package census fetches the Monthly Retail Trade Survey (MARTS) time
// series from the Census Bureau API and decodes it into a raw table.
package census
