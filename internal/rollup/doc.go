// Package rollup groups report rows by key, merges measures across fetched
// slices, aligns parallel tables, appends grand totals and orders rows by a
// priority list. Every function is a pure transformation over in-memory rows;
// the only blocking boundary is the Fetcher handed to CombineSlices.
package rollup
