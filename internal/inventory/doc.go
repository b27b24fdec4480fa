// Package inventory defines the stock record model, the fixed catalog of
// sizes, colors, categories and collar styles, and the business rules used to
// match base and accent stock.
package inventory
