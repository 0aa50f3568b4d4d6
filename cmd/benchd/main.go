// Package main is the entry point for benchd, the benchmark server launcher.
package main

func main() {
	Execute()
}
