// Package workspace manages the scoped temporary directory owned by one
// conversion run.
//
// Each run gets its own directory (e.g. pdf2muse-3f2a9c1d) holding the
// intermediate page images and page-scoped notation documents. The directory
// is created before rendering starts and removed on every exit path; only
// the final artifacts in the caller's output directory survive a run.
package workspace
