// Package main provides the entry point for the feedscan CLI.
//
// feedscan discovers the RSS, Atom and JSON feeds of websites whose feed
// URL is not known.
//
// Usage:
//
//	feedscan find <site>...
//	feedscan history <site>
//
// See --help for all available options.
package main

func main() {
	Execute()
}
