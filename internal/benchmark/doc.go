// Package benchmark holds benchmarks that span several intervalflow packages.
package benchmark
