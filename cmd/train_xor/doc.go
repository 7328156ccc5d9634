// Package main provides a demo program for training a tiny sigmoid network on
// logic truth tables. This demonstrates gradnet's WebGPU gradient-descent engine
// with its CPU fallback, streaming epoch metrics while the cooperative loop runs.
package main
