// Package test contains helper functions that remove common boilerplate from
// the package tests.
//
// The Expect functions report a failure and let the test continue. The Demand
// functions stop the test, and should be used when later steps depend on the
// value being correct, for example checking the length of a slice before
// indexing into it.
package test
